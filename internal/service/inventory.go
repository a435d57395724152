package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
)

// Adjust applies a signed correction to one (product, warehouse) pair and
// records the matching ADJUSTMENT move in the same unit.
func (s *Service) Adjust(ctx context.Context, req domain.AdjustRequest) (domain.AdjustResult, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.AdjustResult{}, err
	}

	req.Reason = strings.TrimSpace(req.Reason)
	if req.WarehouseID == "" || req.ProductID == "" || req.Delta == 0 || req.Reason == "" {
		return domain.AdjustResult{}, store.ErrValidation
	}

	qtyAfter, err := s.repo.AdjustStock(ctx, domain.StockMove{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Delta:       req.Delta,
		Type:        domain.MoveTypeAdjustment,
		Reason:      req.Reason,
		Note:        strings.TrimSpace(req.Note),
		UserID:      actor.UserID,
	})
	if err != nil {
		return domain.AdjustResult{}, err
	}

	s.logAudit(ctx, "stock_adjust", fmt.Sprintf("product=%s,warehouse=%s,delta=%d,reason=%s", req.ProductID, req.WarehouseID, req.Delta, req.Reason))
	s.invalidateCatalogForWarehouse(ctx, req.WarehouseID)

	return domain.AdjustResult{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		QtyAfter:    qtyAfter,
	}, nil
}

// Receive books incoming goods. All lines land or none do.
func (s *Service) Receive(ctx context.Context, req domain.ReceiptRequest) ([]domain.ReceiptResult, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	if req.WarehouseID == "" || len(req.Items) == 0 {
		return nil, store.ErrValidation
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Qty < 1 {
			return nil, store.ErrValidation
		}
	}

	results, err := s.repo.ReceiveStock(ctx, req.WarehouseID, req.Items, actor.UserID)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "stock_receive", fmt.Sprintf("warehouse=%s,lines=%d", req.WarehouseID, len(req.Items)))
	s.invalidateCatalogForWarehouse(ctx, req.WarehouseID)

	return results, nil
}

func (s *Service) AvailableQty(ctx context.Context, productID string, warehouseID string) (int, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return 0, err
	}
	if productID == "" || warehouseID == "" {
		return 0, store.ErrValidation
	}
	return s.repo.AvailableQty(ctx, productID, warehouseID)
}

func (s *Service) ListStockMoves(ctx context.Context, filter domain.StockMoveFilter) ([]domain.StockMove, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListStockMoves(ctx, filter)
}

func (s *Service) invalidateCatalogForWarehouse(ctx context.Context, warehouseID string) {
	warehouse, err := s.repo.GetWarehouse(ctx, warehouseID)
	if err != nil {
		s.logger.Warn("warehouse lookup for cache invalidation failed", zap.String("warehouse_id", warehouseID), zap.Error(err))
		return
	}
	s.invalidateCatalog(ctx, warehouse.BranchID)
}
