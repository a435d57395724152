package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
)

// Categories.

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, store.ErrValidation
	}

	category, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", fmt.Sprintf("category=%s,name=%s", category.ID, category.Name))
	return *category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return nil, store.ErrForbidden
	}
	return s.repo.ListCategories(ctx)
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (domain.Category, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	existing, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		existing.Description = strings.TrimSpace(*req.Description)
	}
	if existing.Name == "" {
		return domain.Category{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateCategory(ctx, *existing)
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_update", fmt.Sprintf("category=%s", id))
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "category_delete", fmt.Sprintf("category=%s", id))
	return nil
}

// Products.

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.Name == "" || req.Price < 1 || req.CategoryID == "" {
		return domain.Product{}, store.ErrValidation
	}

	product, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		SKU:        req.SKU,
		Price:      req.Price,
		CategoryID: req.CategoryID,
		IsActive:   true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", fmt.Sprintf("product=%s,name=%s,price=%d", product.ID, product.Name, product.Price))
	s.invalidateAllCatalogs(ctx)
	return *product, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Product{}, store.ErrForbidden
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return nil, store.ErrForbidden
	}
	return s.repo.ListProducts(ctx, activeOnly)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.SKU != nil {
		existing.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.Price != nil {
		existing.Price = *req.Price
	}
	if req.CategoryID != nil {
		existing.CategoryID = *req.CategoryID
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if existing.Name == "" || existing.Price < 1 || existing.CategoryID == "" {
		return domain.Product{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", fmt.Sprintf("product=%s", id))
	s.invalidateAllCatalogs(ctx)
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", fmt.Sprintf("product=%s", id))
	s.invalidateAllCatalogs(ctx)
	return nil
}

// Catalog returns what the seller's terminal shows: active products with
// their availability in the branch default warehouse. Served from cache when
// warm.
func (s *Service) Catalog(ctx context.Context) ([]domain.CatalogProduct, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return nil, err
	}

	seller, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if seller.BranchID == "" {
		return nil, store.ErrNoBranchAssigned
	}

	key := catalogKey(seller.BranchID)
	if cached, ok, err := s.catalog.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("catalog cache read failed", zap.String("branch_id", seller.BranchID), zap.Error(err))
	}

	catalog, err := s.buildCatalog(ctx, seller.BranchID)
	if err != nil {
		return nil, err
	}

	if err := s.catalog.Set(ctx, key, catalog, catalogCacheTTL); err != nil {
		s.logger.Warn("catalog cache write failed", zap.String("branch_id", seller.BranchID), zap.Error(err))
	}
	return catalog, nil
}

func (s *Service) buildCatalog(ctx context.Context, branchID string) ([]domain.CatalogProduct, error) {
	warehouse, err := s.defaultWarehouseFor(ctx, branchID)
	if err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	categoryNames := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryNames[c.ID] = c.Name
	}

	catalog := make([]domain.CatalogProduct, 0, len(products))
	for _, p := range products {
		available, err := s.repo.AvailableQty(ctx, p.ID, warehouse.ID)
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, domain.CatalogProduct{
			ID:        p.ID,
			Name:      p.Name,
			SKU:       p.SKU,
			Price:     p.Price,
			Category:  categoryNames[p.CategoryID],
			Available: available,
		})
	}
	return catalog, nil
}

// invalidateAllCatalogs drops the catalog entry of every branch. Product
// edits are rare compared to reads, so blanket invalidation is fine.
func (s *Service) invalidateAllCatalogs(ctx context.Context) {
	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		s.logger.Warn("branch list for cache invalidation failed", zap.Error(err))
		return
	}
	for _, b := range branches {
		s.invalidateCatalog(ctx, b.ID)
	}
}

// LowStock lists active products whose branch-wide stock is at or under the
// configured threshold.
func (s *Service) LowStock(ctx context.Context, branchID string) ([]domain.LowStockItem, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.StockByProduct(ctx, branchID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.LowStockItem, 0, 16)
	for _, p := range products {
		stock := totals[p.ID]
		if stock <= s.lowStockThreshold {
			items = append(items, domain.LowStockItem{
				ID:    p.ID,
				Name:  p.Name,
				SKU:   p.SKU,
				Price: p.Price,
				Stock: stock,
			})
		}
	}
	return items, nil
}
