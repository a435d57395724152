package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
)

// OpenSale starts a draft sale in the seller's branch. No shift is required
// yet; completing the sale is what needs one. The sale gets the next
// sequential number for its (day, branch) pair.
func (s *Service) OpenSale(ctx context.Context) (domain.Sale, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	seller, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return domain.Sale{}, err
	}
	if seller.BranchID == "" {
		return domain.Sale{}, store.ErrNoBranchAssigned
	}

	sale, err := s.repo.CreateSale(ctx, actor.UserID, seller.BranchID, s.dayKey(time.Now()))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// ownedOpenSale loads the sale and checks it belongs to the caller and is
// still OPEN. A missing sale reads as not-open: mutations on unknown ids fail
// the same way as mutations on closed sales.
func (s *Service) ownedOpenSale(ctx context.Context, actor domain.Actor, saleID string) (*domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrSaleNotOpen
		}
		return nil, err
	}
	if sale.SellerID != actor.UserID {
		return nil, store.ErrForbidden
	}
	if sale.Status != domain.SaleStatusOpen {
		return nil, store.ErrSaleNotOpen
	}
	return sale, nil
}

// AddItem puts qty units of a product on the draft. Name and price are
// snapshotted so later admin edits do not rewrite open carts. The
// availability check counts what the draft already holds; it is advisory, the
// hard guarantee stays with checkout.
func (s *Service) AddItem(ctx context.Context, saleID string, req domain.AddItemRequest) (domain.SaleItem, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return domain.SaleItem{}, err
	}
	if req.ProductID == "" || req.Qty < 1 {
		return domain.SaleItem{}, store.ErrValidation
	}

	sale, err := s.ownedOpenSale(ctx, actor, saleID)
	if err != nil {
		return domain.SaleItem{}, err
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleItem{}, store.ErrProductNotAvailable
		}
		return domain.SaleItem{}, err
	}
	if !product.IsActive {
		return domain.SaleItem{}, store.ErrProductNotAvailable
	}

	warehouse, err := s.defaultWarehouseFor(ctx, sale.BranchID)
	if err != nil {
		return domain.SaleItem{}, err
	}
	available, err := s.repo.AvailableQty(ctx, product.ID, warehouse.ID)
	if err != nil {
		return domain.SaleItem{}, err
	}

	existingQty := 0
	for _, item := range sale.Items {
		if item.ProductID == product.ID {
			existingQty += item.Qty
		}
	}
	if available < existingQty+req.Qty {
		return domain.SaleItem{}, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, product.ID)
	}

	item, err := s.repo.AddSaleItem(ctx, domain.SaleItem{
		SaleID:       sale.ID,
		ProductID:    product.ID,
		NameSnapshot: product.Name,
		Price:        product.Price,
		Qty:          req.Qty,
		Subtotal:     int64(req.Qty) * product.Price,
	})
	if err != nil {
		return domain.SaleItem{}, err
	}
	return *item, nil
}

// UpdateItem sets a line to an absolute quantity. The availability check
// excludes the line being replaced.
func (s *Service) UpdateItem(ctx context.Context, saleID string, itemID string, qty int) (domain.SaleItem, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return domain.SaleItem{}, err
	}
	if qty < 1 {
		return domain.SaleItem{}, store.ErrValidation
	}

	sale, err := s.ownedOpenSale(ctx, actor, saleID)
	if err != nil {
		return domain.SaleItem{}, err
	}

	var target *domain.SaleItem
	for i := range sale.Items {
		if sale.Items[i].ID == itemID {
			target = &sale.Items[i]
			break
		}
	}
	if target == nil {
		return domain.SaleItem{}, store.ErrNotFound
	}

	warehouse, err := s.defaultWarehouseFor(ctx, sale.BranchID)
	if err != nil {
		return domain.SaleItem{}, err
	}
	available, err := s.repo.AvailableQty(ctx, target.ProductID, warehouse.ID)
	if err != nil {
		return domain.SaleItem{}, err
	}

	otherQty := 0
	for _, item := range sale.Items {
		if item.ProductID == target.ProductID && item.ID != itemID {
			otherQty += item.Qty
		}
	}
	if available < otherQty+qty {
		return domain.SaleItem{}, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, target.ProductID)
	}

	item, err := s.repo.UpdateSaleItem(ctx, sale.ID, itemID, qty)
	if err != nil {
		return domain.SaleItem{}, err
	}
	return *item, nil
}

// RemoveItem deletes a line. Removing an already-removed line succeeds and
// reports zero deletions.
func (s *Service) RemoveItem(ctx context.Context, saleID string, itemID string) (domain.RemoveItemResult, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return domain.RemoveItemResult{}, err
	}

	sale, err := s.ownedOpenSale(ctx, actor, saleID)
	if err != nil {
		return domain.RemoveItemResult{}, err
	}

	deleted, err := s.repo.RemoveSaleItem(ctx, sale.ID, itemID)
	if err != nil {
		return domain.RemoveItemResult{}, err
	}
	return domain.RemoveItemResult{Deleted: deleted}, nil
}

// CancelSale abandons the draft. Stock never moved, so there is nothing to
// put back.
func (s *Service) CancelSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.ownedOpenSale(ctx, actor, saleID)
	if err != nil {
		return domain.Sale{}, err
	}

	cancelled, err := s.repo.CancelSale(ctx, sale.ID, time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}
	return *cancelled, nil
}

// CompleteSale is the checkout: the one operation that moves inventory. The
// datastore commits the decrements, the SALE moves and the status flip as a
// single unit, so a failed checkout leaves the draft untouched.
func (s *Service) CompleteSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.ownedOpenSale(ctx, actor, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if len(sale.Items) == 0 {
		return domain.Sale{}, store.ErrValidation
	}

	shift, err := s.repo.GetOpenShift(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, store.ErrNoActiveShift
		}
		return domain.Sale{}, err
	}

	warehouse, err := s.defaultWarehouseFor(ctx, sale.BranchID)
	if err != nil {
		return domain.Sale{}, err
	}

	completed, err := s.repo.CompleteSale(ctx, sale.ID, shift.ID, warehouse.ID, actor.UserID, time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_complete", fmt.Sprintf("sale=%s,number=%d,total=%d", completed.ID, completed.Number, completed.Total))
	s.invalidateCatalog(ctx, completed.BranchID)
	return *completed, nil
}

// GetSale returns one sale. Sellers only see their own; admins see all.
func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, store.ErrForbidden
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if actor.Role != domain.RoleAdmin && sale.SellerID != actor.UserID {
		return domain.Sale{}, store.ErrForbidden
	}
	return *sale, nil
}

// ListMySales returns the seller's own sales, newest first.
func (s *Service) ListMySales(ctx context.Context, status string, limit int) ([]domain.Sale, error) {
	actor, err := s.requireSeller(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, domain.SaleFilter{
		SellerID: actor.UserID,
		Status:   status,
		Limit:    limit,
	})
}
