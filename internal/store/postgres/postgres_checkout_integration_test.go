package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
)

func TestCompleteSaleDecrementsStock(t *testing.T) {
	databaseURL := os.Getenv("POSADMIN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POSADMIN_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	branchID := fmt.Sprintf("branch-it-%d", stamp)
	warehouseID := fmt.Sprintf("wh-it-%d", stamp)
	categoryID := fmt.Sprintf("cat-it-%d", stamp)
	productID := fmt.Sprintf("prod-it-%d", stamp)
	sellerID := fmt.Sprintf("user-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_moves WHERE warehouse_id = $1`, warehouseID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE branch_id = $1`, branchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM shifts WHERE seller_id = $1`, sellerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_stocks WHERE warehouse_id = $1`, warehouseID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, categoryID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, sellerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM warehouses WHERE id = $1`, warehouseID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, branchID)
	})

	if _, err := s.CreateBranch(ctx, domain.Branch{ID: branchID, Name: fmt.Sprintf("Branch IT %d", stamp)}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if _, err := s.CreateWarehouse(ctx, domain.Warehouse{ID: warehouseID, Name: "WH IT", BranchID: branchID, IsDefault: true}); err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	if _, err := s.CreateCategory(ctx, domain.Category{ID: categoryID, Name: fmt.Sprintf("Cat IT %d", stamp)}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{ID: productID, Name: "Product IT", Price: 5000, CategoryID: categoryID, IsActive: true}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateUser(ctx, domain.User{ID: sellerID, Username: fmt.Sprintf("seller-it-%d", stamp), Name: "Seller IT", Role: domain.RoleSeller, BranchID: branchID, PasswordHash: "x", IsActive: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := s.AdjustStock(ctx, domain.StockMove{
		ProductID: productID, WarehouseID: warehouseID, Delta: 3,
		Type: domain.MoveTypeReceipt, Reason: "receipt", UserID: sellerID,
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	shift, err := s.CreateShift(ctx, domain.Shift{SellerID: sellerID, BranchID: branchID})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	sale, err := s.CreateSale(ctx, sellerID, branchID, "2026-09-01")
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := s.AddSaleItem(ctx, domain.SaleItem{
		SaleID: sale.ID, ProductID: productID, NameSnapshot: "Product IT",
		Price: 5000, Qty: 2, Subtotal: 10000,
	}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	completed, err := s.CompleteSale(ctx, sale.ID, shift.ID, warehouseID, sellerID, time.Now().UTC())
	if err != nil {
		t.Fatalf("complete sale: %v", err)
	}
	if completed.Status != domain.SaleStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", completed.Status)
	}
	if completed.Total != 10000 {
		t.Fatalf("total = %d, want 10000", completed.Total)
	}

	qty, err := s.AvailableQty(ctx, productID, warehouseID)
	if err != nil {
		t.Fatalf("available qty: %v", err)
	}
	if qty != 1 {
		t.Fatalf("qty after checkout = %d, want 1", qty)
	}

	// A second checkout over the remaining unit must fail whole.
	sale2, err := s.CreateSale(ctx, sellerID, branchID, "2026-09-01")
	if err != nil {
		t.Fatalf("create second sale: %v", err)
	}
	if sale2.Number != sale.Number+1 {
		t.Fatalf("sale number = %d, want %d", sale2.Number, sale.Number+1)
	}
	if _, err := s.AddSaleItem(ctx, domain.SaleItem{
		SaleID: sale2.ID, ProductID: productID, NameSnapshot: "Product IT",
		Price: 5000, Qty: 2, Subtotal: 10000,
	}); err != nil {
		t.Fatalf("add item to second sale: %v", err)
	}
	if _, err := s.CompleteSale(ctx, sale2.ID, shift.ID, warehouseID, sellerID, time.Now().UTC()); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("oversell err = %v, want ErrInsufficientStock", err)
	}

	qty, err = s.AvailableQty(ctx, productID, warehouseID)
	if err != nil {
		t.Fatalf("available qty after failed checkout: %v", err)
	}
	if qty != 1 {
		t.Fatalf("qty after failed checkout = %d, want 1 (unchanged)", qty)
	}

	got, err := s.GetSale(ctx, sale2.ID)
	if err != nil {
		t.Fatalf("get second sale: %v", err)
	}
	if got.Status != domain.SaleStatusOpen {
		t.Fatalf("second sale status = %s, want OPEN after failed checkout", got.Status)
	}

	if _, err := s.CancelSale(ctx, sale2.ID, time.Now().UTC()); err != nil {
		t.Fatalf("cancel second sale: %v", err)
	}
	if _, err := s.CloseShift(ctx, sellerID, "done", 10000, time.Now().UTC()); err != nil {
		t.Fatalf("close shift: %v", err)
	}
}
