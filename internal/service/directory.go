package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
)

// Branches.

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Branch{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Branch{}, store.ErrValidation
	}

	branch, err := s.repo.CreateBranch(ctx, domain.Branch{Name: req.Name})
	if err != nil {
		return domain.Branch{}, err
	}

	s.logAudit(ctx, "branch_create", fmt.Sprintf("branch=%s,name=%s", branch.ID, branch.Name))
	return *branch, nil
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListBranches(ctx)
}

func (s *Service) UpdateBranch(ctx context.Context, id string, req domain.BranchUpdateRequest) (domain.Branch, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Branch{}, err
	}

	existing, err := s.repo.GetBranch(ctx, id)
	if err != nil {
		return domain.Branch{}, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if existing.Name == "" {
		return domain.Branch{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateBranch(ctx, *existing)
	if err != nil {
		return domain.Branch{}, err
	}

	s.logAudit(ctx, "branch_update", fmt.Sprintf("branch=%s", id))
	return *updated, nil
}

// DeleteBranch rejects while users, warehouses or sales still reference the
// branch. History is never cascaded away.
func (s *Service) DeleteBranch(ctx context.Context, id string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteBranch(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "branch_delete", fmt.Sprintf("branch=%s", id))
	return nil
}

// Warehouses.

func (s *Service) CreateWarehouse(ctx context.Context, req domain.WarehouseCreateRequest) (domain.Warehouse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Warehouse{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.BranchID == "" {
		return domain.Warehouse{}, store.ErrValidation
	}

	warehouse, err := s.repo.CreateWarehouse(ctx, domain.Warehouse{
		Name:      req.Name,
		BranchID:  req.BranchID,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return domain.Warehouse{}, err
	}

	s.logAudit(ctx, "warehouse_create", fmt.Sprintf("warehouse=%s,branch=%s,default=%t", warehouse.ID, warehouse.BranchID, warehouse.IsDefault))
	return *warehouse, nil
}

func (s *Service) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListWarehouses(ctx)
}

func (s *Service) UpdateWarehouse(ctx context.Context, id string, req domain.WarehouseUpdateRequest) (domain.Warehouse, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.Warehouse{}, err
	}

	existing, err := s.repo.GetWarehouse(ctx, id)
	if err != nil {
		return domain.Warehouse{}, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.BranchID != nil {
		existing.BranchID = *req.BranchID
	}
	if req.IsDefault != nil {
		existing.IsDefault = *req.IsDefault
	}
	if existing.Name == "" || existing.BranchID == "" {
		return domain.Warehouse{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateWarehouse(ctx, *existing)
	if err != nil {
		return domain.Warehouse{}, err
	}

	s.logAudit(ctx, "warehouse_update", fmt.Sprintf("warehouse=%s", id))
	s.invalidateCatalog(ctx, updated.BranchID)
	return *updated, nil
}

// DeleteWarehouse transfers remaining stock to targetID (or a sibling
// warehouse when empty targetID) before removal. With stock and nowhere to
// move it, the delete is rejected.
func (s *Service) DeleteWarehouse(ctx context.Context, id string, targetID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}

	warehouse, err := s.repo.GetWarehouse(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteWarehouse(ctx, id, targetID); err != nil {
		return err
	}

	s.logAudit(ctx, "warehouse_delete", fmt.Sprintf("warehouse=%s,target=%s", id, targetID))
	s.invalidateCatalog(ctx, warehouse.BranchID)
	return nil
}

// Users.

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Name = strings.TrimSpace(req.Name)
	if req.Username == "" || req.Name == "" || len(req.Password) < 6 {
		return domain.User{}, store.ErrValidation
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleSeller {
		return domain.User{}, store.ErrValidation
	}
	if req.Role == domain.RoleSeller && req.BranchID == "" {
		return domain.User{}, store.ErrValidation
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.repo.CreateUser(ctx, domain.User{
		Username:     req.Username,
		Name:         req.Name,
		Role:         req.Role,
		BranchID:     req.BranchID,
		PasswordHash: string(hash),
		IsActive:     true,
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_create", fmt.Sprintf("user=%s,username=%s,role=%s", user.ID, user.Username, user.Role))
	return *user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserUpdateRequest) (domain.User, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}

	existing, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Role != nil {
		existing.Role = *req.Role
	}
	if req.BranchID != nil {
		existing.BranchID = *req.BranchID
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			return domain.User{}, store.ErrValidation
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, err
		}
		existing.PasswordHash = string(hash)
	}
	if existing.Name == "" {
		return domain.User{}, store.ErrValidation
	}
	if existing.Role != domain.RoleAdmin && existing.Role != domain.RoleSeller {
		return domain.User{}, store.ErrValidation
	}
	if existing.Role == domain.RoleSeller && existing.BranchID == "" {
		return domain.User{}, store.ErrValidation
	}

	updated, err := s.repo.UpdateUser(ctx, *existing)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_update", fmt.Sprintf("user=%s", id))
	return *updated, nil
}

// DeleteUser rejects while sales or shifts reference the user; deactivate
// instead to keep history attributable.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if actor.UserID == id {
		return store.ErrValidation
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "user_delete", fmt.Sprintf("user=%s", id))
	return nil
}
