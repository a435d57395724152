package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/abdukhamidov/pos-admin/internal/cache"
	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
	"github.com/abdukhamidov/pos-admin/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopCatalogCache{}, nil, nil, 5)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   "user-admin",
		Username: "admin",
		Role:     domain.RoleAdmin,
	})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   "user-seller",
		Username: "seller",
		Role:     domain.RoleSeller,
	})
}

// setStock drives the seeded cola stock to an exact quantity through the
// admin adjust path.
func setStock(t *testing.T, svc *Service, productID string, qty int) {
	t.Helper()
	current, err := svc.repo.AvailableQty(context.Background(), productID, "wh-main")
	if err != nil {
		t.Fatalf("available qty: %v", err)
	}
	if current == qty {
		return
	}
	_, err = svc.Adjust(adminCtx(), domain.AdjustRequest{
		WarehouseID: "wh-main",
		ProductID:   productID,
		Delta:       qty - current,
		Reason:      "test setup",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
}

func openShift(t *testing.T, svc *Service) domain.Shift {
	t.Helper()
	shift, err := svc.OpenShift(sellerCtx(), domain.ShiftOpenRequest{OpeningCash: 100000})
	if err != nil {
		t.Fatalf("open shift: %v", err)
	}
	return shift
}

func TestOpenShiftTwiceFails(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	_, err := svc.OpenShift(sellerCtx(), domain.ShiftOpenRequest{})
	if !errors.Is(err, store.ErrShiftAlreadyOpen) {
		t.Fatalf("second open err = %v, want ErrShiftAlreadyOpen", err)
	}
}

func TestOpenShiftRequiresBranch(t *testing.T) {
	svc := newTestService()

	floating, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{
		Username: "floater",
		Password: "secret1",
		Name:     "No Branch",
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	// demote to seller without branch through the repo, the service refuses
	// to create that shape directly
	u, err := svc.repo.GetUser(context.Background(), floating.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	u.Role = domain.RoleSeller
	if _, err := svc.repo.UpdateUser(context.Background(), *u); err != nil {
		t.Fatalf("update user: %v", err)
	}

	ctx := WithActor(context.Background(), domain.Actor{UserID: floating.ID, Username: "floater", Role: domain.RoleSeller})
	if _, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{}); !errors.Is(err, store.ErrNoBranchAssigned) {
		t.Fatalf("open shift err = %v, want ErrNoBranchAssigned", err)
	}
}

func TestCurrentShiftNilWhenNoneOpen(t *testing.T) {
	svc := newTestService()

	shift, err := svc.CurrentShift(sellerCtx())
	if err != nil {
		t.Fatalf("current shift: %v", err)
	}
	if shift != nil {
		t.Fatalf("expected nil shift, got %+v", shift)
	}
}

func TestCloseShiftBlockedByOpenSale(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}

	_, err = svc.CloseShift(sellerCtx(), domain.ShiftCloseRequest{ClosingCash: 100000})
	if !errors.Is(err, store.ErrOpenSalesExist) {
		t.Fatalf("close err = %v, want ErrOpenSalesExist", err)
	}

	if _, err := svc.CancelSale(sellerCtx(), sale.ID); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	closed, err := svc.CloseShift(sellerCtx(), domain.ShiftCloseRequest{ClosingCash: 100000})
	if err != nil {
		t.Fatalf("close shift after cancel: %v", err)
	}
	if closed.EndedAt == nil {
		t.Fatalf("closed shift has no ended_at")
	}
}

func TestOpenSaleNeedsOnlyBranch(t *testing.T) {
	svc := newTestService()

	// No shift open: the draft still starts, items can go on, and only
	// checkout demands the shift.
	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale without shift: %v", err)
	}
	if sale.Status != domain.SaleStatusOpen || sale.BranchID != "branch-main" {
		t.Fatalf("sale = %+v", sale)
	}
	if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 1}); err != nil {
		t.Fatalf("add item without shift: %v", err)
	}

	_, err = svc.CompleteSale(sellerCtx(), sale.ID)
	if !errors.Is(err, store.ErrNoActiveShift) {
		t.Fatalf("complete err = %v, want ErrNoActiveShift", err)
	}
	kept, err := svc.GetSale(sellerCtx(), sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if kept.Status != domain.SaleStatusOpen {
		t.Fatalf("sale status = %s, want OPEN after failed complete", kept.Status)
	}
}

func TestOpenSaleRequiresBranch(t *testing.T) {
	svc := newTestService()

	floating, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{
		Username: "floatseller",
		Password: "secret1",
		Name:     "Floating Seller",
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	u, err := svc.repo.GetUser(context.Background(), floating.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	u.Role = domain.RoleSeller
	if _, err := svc.repo.UpdateUser(context.Background(), *u); err != nil {
		t.Fatalf("demote user: %v", err)
	}

	floatCtx := WithActor(context.Background(), domain.Actor{UserID: floating.ID, Username: "floatseller", Role: domain.RoleSeller})
	if _, err := svc.OpenSale(floatCtx); !errors.Is(err, store.ErrNoBranchAssigned) {
		t.Fatalf("open sale err = %v, want ErrNoBranchAssigned", err)
	}
}

func TestMissingSaleReadsAsNotOpen(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	if _, err := svc.CompleteSale(sellerCtx(), "sale-missing"); !errors.Is(err, store.ErrSaleNotOpen) {
		t.Fatalf("complete missing sale err = %v, want ErrSaleNotOpen", err)
	}
	if _, err := svc.AddItem(sellerCtx(), "sale-missing", domain.AddItemRequest{ProductID: "prod-cola", Qty: 1}); !errors.Is(err, store.ErrSaleNotOpen) {
		t.Fatalf("add item to missing sale err = %v, want ErrSaleNotOpen", err)
	}
	if _, err := svc.CancelSale(sellerCtx(), "sale-missing"); !errors.Is(err, store.ErrSaleNotOpen) {
		t.Fatalf("cancel missing sale err = %v, want ErrSaleNotOpen", err)
	}
}

func TestAddItemRejectsUnknownProduct(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}
	if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-missing", Qty: 1}); !errors.Is(err, store.ErrProductNotAvailable) {
		t.Fatalf("add unknown product err = %v, want ErrProductNotAvailable", err)
	}
}

func TestSaleNumbersAreSequentialPerDay(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	first, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open first sale: %v", err)
	}
	second, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open second sale: %v", err)
	}
	if first.Number != 1 || second.Number != 2 {
		t.Fatalf("numbers = %d, %d, want 1, 2", first.Number, second.Number)
	}
	if first.Day != second.Day {
		t.Fatalf("day keys differ: %s vs %s", first.Day, second.Day)
	}
}

func TestAddItemCountsDraftQuantity(t *testing.T) {
	svc := newTestService()
	setStock(t, svc, "prod-cola", 3)
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}

	if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 2}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err = svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 2})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("second add err = %v, want ErrInsufficientStock", err)
	}
	// one more unit still fits
	if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 1}); err != nil {
		t.Fatalf("third add: %v", err)
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	inactive := false
	if _, err := svc.UpdateProduct(adminCtx(), "prod-cola", domain.ProductUpdateRequest{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate product: %v", err)
	}

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}
	_, err = svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 1})
	if !errors.Is(err, store.ErrProductNotAvailable) {
		t.Fatalf("add err = %v, want ErrProductNotAvailable", err)
	}
}

func TestUpdateItemExcludesItsOwnQuantity(t *testing.T) {
	svc := newTestService()
	setStock(t, svc, "prod-cola", 3)
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}
	item, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 2})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	updated, err := svc.UpdateItem(sellerCtx(), sale.ID, item.ID, 3)
	if err != nil {
		t.Fatalf("update to full stock: %v", err)
	}
	if updated.Qty != 3 || updated.Subtotal != 3*updated.Price {
		t.Fatalf("updated item = %+v", updated)
	}

	if _, err := svc.UpdateItem(sellerCtx(), sale.ID, item.ID, 4); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("update beyond stock err = %v, want ErrInsufficientStock", err)
	}
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}
	item, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 1})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	first, err := svc.RemoveItem(sellerCtx(), sale.ID, item.ID)
	if err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if first.Deleted != 1 {
		t.Fatalf("first remove deleted = %d, want 1", first.Deleted)
	}
	second, err := svc.RemoveItem(sellerCtx(), sale.ID, item.ID)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if second.Deleted != 0 {
		t.Fatalf("second remove deleted = %d, want 0", second.Deleted)
	}
}

func TestCancelledSaleRejectsChanges(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}
	if _, err := svc.CancelSale(sellerCtx(), sale.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 1}); !errors.Is(err, store.ErrSaleNotOpen) {
		t.Fatalf("add after cancel err = %v, want ErrSaleNotOpen", err)
	}
	if _, err := svc.CompleteSale(sellerCtx(), sale.ID); !errors.Is(err, store.ErrSaleNotOpen) {
		t.Fatalf("complete after cancel err = %v, want ErrSaleNotOpen", err)
	}
}

func TestCompleteSaleDecrementsStockAndRecordsMove(t *testing.T) {
	svc := newTestService()
	setStock(t, svc, "prod-cola", 10)
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}
	if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 4}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	completed, err := svc.CompleteSale(sellerCtx(), sale.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.SaleStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", completed.Status)
	}
	if completed.Total != 4*12000 {
		t.Fatalf("total = %d, want %d", completed.Total, 4*12000)
	}
	if completed.ShiftID == "" || completed.ClosedAt == nil {
		t.Fatalf("completed sale missing shift or closed_at: %+v", completed)
	}

	qty, err := svc.repo.AvailableQty(context.Background(), "prod-cola", "wh-main")
	if err != nil {
		t.Fatalf("available qty: %v", err)
	}
	if qty != 6 {
		t.Fatalf("qty after checkout = %d, want 6", qty)
	}

	moves, err := svc.ListStockMoves(adminCtx(), domain.StockMoveFilter{
		ProductID: "prod-cola",
		Type:      domain.MoveTypeSale,
	})
	if err != nil {
		t.Fatalf("list moves: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("sale moves = %d, want 1", len(moves))
	}
	if moves[0].Delta != -4 || moves[0].Note != sale.ID {
		t.Fatalf("sale move = %+v", moves[0])
	}
}

func TestCompleteEmptySaleFails(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}
	if _, err := svc.CompleteSale(sellerCtx(), sale.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("complete empty err = %v, want ErrValidation", err)
	}
}

func TestCompleteSaleFailsWholeWhenStockShort(t *testing.T) {
	svc := newTestService()
	setStock(t, svc, "prod-cola", 5)
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}
	if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 3}); err != nil {
		t.Fatalf("add cola: %v", err)
	}
	if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-chips", Qty: 2}); err != nil {
		t.Fatalf("add chips: %v", err)
	}

	// drain cola behind the draft's back
	if _, err := svc.Adjust(adminCtx(), domain.AdjustRequest{
		WarehouseID: "wh-main", ProductID: "prod-cola", Delta: -4, Reason: "shrinkage",
	}); err != nil {
		t.Fatalf("drain stock: %v", err)
	}

	_, err = svc.CompleteSale(sellerCtx(), sale.ID)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("complete err = %v, want ErrInsufficientStock", err)
	}

	// nothing moved: chips stock intact, sale still open
	chipsQty, err := svc.repo.AvailableQty(context.Background(), "prod-chips", "wh-main")
	if err != nil {
		t.Fatalf("chips qty: %v", err)
	}
	if chipsQty != 30 {
		t.Fatalf("chips qty = %d, want 30 untouched", chipsQty)
	}
	got, err := svc.GetSale(sellerCtx(), sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if got.Status != domain.SaleStatusOpen {
		t.Fatalf("sale status = %s, want OPEN after failed checkout", got.Status)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	svc := newTestService()
	setStock(t, svc, "prod-cola", 1)
	openShift(t, svc)

	saleA, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale A: %v", err)
	}
	saleB, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale B: %v", err)
	}
	if _, err := svc.AddItem(sellerCtx(), saleA.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 1}); err != nil {
		t.Fatalf("add to A: %v", err)
	}
	if _, err := svc.AddItem(sellerCtx(), saleB.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 1}); err != nil {
		t.Fatalf("add to B: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, id := range []string{saleA.ID, saleB.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, results[i] = svc.CompleteSale(sellerCtx(), id)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("succeeded = %d, want exactly 1", succeeded)
	}

	qty, err := svc.repo.AvailableQty(context.Background(), "prod-cola", "wh-main")
	if err != nil {
		t.Fatalf("available qty: %v", err)
	}
	if qty != 0 {
		t.Fatalf("qty = %d, want 0", qty)
	}
}

func TestSellerCannotTouchForeignSale(t *testing.T) {
	svc := newTestService()
	openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}

	branch, err := svc.repo.GetBranch(context.Background(), "branch-main")
	if err != nil {
		t.Fatalf("get branch: %v", err)
	}
	other, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{
		Username: "seller2",
		Password: "secret1",
		Name:     "Second Seller",
		Role:     domain.RoleSeller,
		BranchID: branch.ID,
	})
	if err != nil {
		t.Fatalf("create second seller: %v", err)
	}

	otherCtx := WithActor(context.Background(), domain.Actor{UserID: other.ID, Username: "seller2", Role: domain.RoleSeller})
	if _, err := svc.AddItem(otherCtx, sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 1}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("foreign add err = %v, want ErrForbidden", err)
	}
	if _, err := svc.CancelSale(otherCtx, sale.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("foreign cancel err = %v, want ErrForbidden", err)
	}
}

func TestShiftDetailListsShiftSales(t *testing.T) {
	svc := newTestService()
	shift := openShift(t, svc)

	sale, err := svc.OpenSale(sellerCtx())
	if err != nil {
		t.Fatalf("open sale: %v", err)
	}
	if _, err := svc.AddItem(sellerCtx(), sale.ID, domain.AddItemRequest{ProductID: "prod-cola", Qty: 2}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := svc.CompleteSale(sellerCtx(), sale.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, sales, err := svc.ShiftDetail(adminCtx(), shift.ID)
	if err != nil {
		t.Fatalf("shift detail: %v", err)
	}
	if got.ID != shift.ID {
		t.Fatalf("shift id = %s, want %s", got.ID, shift.ID)
	}
	if len(sales) != 1 || sales[0].ID != sale.ID {
		t.Fatalf("sales = %+v, want the one completed sale", sales)
	}
	if sales[0].ShiftID != shift.ID {
		t.Fatalf("sale shift id = %s, want %s", sales[0].ShiftID, shift.ID)
	}
}

func TestLogoutRequiresActor(t *testing.T) {
	svc := newTestService()

	if err := svc.Logout(context.Background()); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("anonymous logout err = %v, want ErrForbidden", err)
	}
	if err := svc.Logout(sellerCtx()); err != nil {
		t.Fatalf("logout: %v", err)
	}
}
