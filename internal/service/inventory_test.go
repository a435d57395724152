package service

import (
	"context"
	"errors"
	"testing"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
)

func TestReceiveStockAppliesAllLines(t *testing.T) {
	svc := newTestService()

	results, err := svc.Receive(adminCtx(), domain.ReceiptRequest{
		WarehouseID: "wh-main",
		Items: []domain.ReceiptItem{
			{ProductID: "prod-cola", Qty: 10},
			{ProductID: "prod-chips", Qty: 5, Note: "supplier X"},
		},
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].QtyAfter != 60 || results[1].QtyAfter != 35 {
		t.Fatalf("qty after = %d, %d, want 60, 35", results[0].QtyAfter, results[1].QtyAfter)
	}

	moves, err := svc.ListStockMoves(adminCtx(), domain.StockMoveFilter{Type: domain.MoveTypeReceipt})
	if err != nil {
		t.Fatalf("list moves: %v", err)
	}
	if len(moves) != 2 {
		t.Fatalf("receipt moves = %d, want 2", len(moves))
	}
}

func TestReceiveRejectsUnknownProductWholly(t *testing.T) {
	svc := newTestService()

	_, err := svc.Receive(adminCtx(), domain.ReceiptRequest{
		WarehouseID: "wh-main",
		Items: []domain.ReceiptItem{
			{ProductID: "prod-cola", Qty: 10},
			{ProductID: "prod-missing", Qty: 5},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("receive err = %v, want ErrNotFound", err)
	}

	qty, err := svc.repo.AvailableQty(context.Background(), "prod-cola", "wh-main")
	if err != nil {
		t.Fatalf("available qty: %v", err)
	}
	if qty != 50 {
		t.Fatalf("cola qty = %d, want 50 untouched", qty)
	}
}

func TestAdjustCannotGoNegative(t *testing.T) {
	svc := newTestService()

	_, err := svc.Adjust(adminCtx(), domain.AdjustRequest{
		WarehouseID: "wh-main",
		ProductID:   "prod-cola",
		Delta:       -51,
		Reason:      "test",
	})
	if !errors.Is(err, store.ErrNegativeStock) {
		t.Fatalf("adjust err = %v, want ErrNegativeStock", err)
	}

	qty, err := svc.repo.AvailableQty(context.Background(), "prod-cola", "wh-main")
	if err != nil {
		t.Fatalf("available qty: %v", err)
	}
	if qty != 50 {
		t.Fatalf("qty = %d, want 50 unchanged", qty)
	}

	moves, err := svc.ListStockMoves(adminCtx(), domain.StockMoveFilter{Type: domain.MoveTypeAdjustment})
	if err != nil {
		t.Fatalf("list moves: %v", err)
	}
	if len(moves) != 0 {
		t.Fatalf("adjustment moves after failed adjust = %d, want 0", len(moves))
	}
}

func TestAdjustRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.Adjust(sellerCtx(), domain.AdjustRequest{
		WarehouseID: "wh-main",
		ProductID:   "prod-cola",
		Delta:       1,
		Reason:      "test",
	})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("adjust err = %v, want ErrForbidden", err)
	}
}

func TestDefaultWarehouseStaysUnique(t *testing.T) {
	svc := newTestService()

	second, err := svc.CreateWarehouse(adminCtx(), domain.WarehouseCreateRequest{
		Name:      "Backroom",
		BranchID:  "branch-main",
		IsDefault: true,
	})
	if err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	if !second.IsDefault {
		t.Fatalf("new warehouse should be default")
	}

	warehouses, err := svc.ListWarehouses(adminCtx())
	if err != nil {
		t.Fatalf("list warehouses: %v", err)
	}
	defaults := 0
	for _, w := range warehouses {
		if w.BranchID == "branch-main" && w.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Fatalf("defaults in branch = %d, want 1", defaults)
	}
}

func TestDeleteWarehouseTransfersStock(t *testing.T) {
	svc := newTestService()

	second, err := svc.CreateWarehouse(adminCtx(), domain.WarehouseCreateRequest{
		Name:     "Backroom",
		BranchID: "branch-main",
	})
	if err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	if _, err := svc.Receive(adminCtx(), domain.ReceiptRequest{
		WarehouseID: second.ID,
		Items:       []domain.ReceiptItem{{ProductID: "prod-cola", Qty: 7}},
	}); err != nil {
		t.Fatalf("seed backroom: %v", err)
	}

	if err := svc.DeleteWarehouse(adminCtx(), second.ID, "wh-main"); err != nil {
		t.Fatalf("delete warehouse: %v", err)
	}

	qty, err := svc.repo.AvailableQty(context.Background(), "prod-cola", "wh-main")
	if err != nil {
		t.Fatalf("available qty: %v", err)
	}
	if qty != 57 {
		t.Fatalf("qty after transfer = %d, want 57", qty)
	}
}

func TestDeleteLastWarehouseWithStockRejected(t *testing.T) {
	svc := newTestService()

	err := svc.DeleteWarehouse(adminCtx(), "wh-main", "")
	if !errors.Is(err, store.ErrHasDependents) {
		t.Fatalf("delete err = %v, want ErrHasDependents", err)
	}
}

func TestDeleteBranchWithDependentsRejected(t *testing.T) {
	svc := newTestService()

	err := svc.DeleteBranch(adminCtx(), "branch-main")
	if !errors.Is(err, store.ErrHasDependents) {
		t.Fatalf("delete err = %v, want ErrHasDependents", err)
	}
}

func TestDeleteCategoryWithProductsRejected(t *testing.T) {
	svc := newTestService()

	err := svc.DeleteCategory(adminCtx(), "cat-drinks")
	if !errors.Is(err, store.ErrHasDependents) {
		t.Fatalf("delete err = %v, want ErrHasDependents", err)
	}
}

func TestCatalogShowsBranchAvailability(t *testing.T) {
	svc := newTestService()

	catalog, err := svc.Catalog(sellerCtx())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(catalog) != 2 {
		t.Fatalf("catalog size = %d, want 2", len(catalog))
	}
	byID := make(map[string]domain.CatalogProduct, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}
	if byID["prod-cola"].Available != 50 || byID["prod-chips"].Available != 30 {
		t.Fatalf("availability = %+v", byID)
	}
	if byID["prod-cola"].Category != "Drinks" {
		t.Fatalf("category = %s, want Drinks", byID["prod-cola"].Category)
	}
}

func TestLowStockUsesThreshold(t *testing.T) {
	svc := newTestService()
	setStock(t, svc, "prod-cola", 5)

	items, err := svc.LowStock(adminCtx(), "branch-main")
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(items) != 1 || items[0].ID != "prod-cola" || items[0].Stock != 5 {
		t.Fatalf("low stock items = %+v", items)
	}
}

func TestTodayStatsAggregatesCompletedSales(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	for i := 0; i < 2; i++ {
		sale, err := svc.OpenSale(sellerCtx())
		if err != nil {
			t.Fatalf("open sale: %v", err)
		}
		if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 1}); err != nil {
			t.Fatalf("add item: %v", err)
		}
		if _, err := svc.CompleteSale(sellerCtx(), sale.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	stats, err := svc.TodayStats(adminCtx(), "branch-main")
	if err != nil {
		t.Fatalf("today stats: %v", err)
	}
	if stats.Checks != 2 || stats.Revenue != 24000 || stats.Avg != 12000 {
		t.Fatalf("stats = %+v", stats)
	}
}
