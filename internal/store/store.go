package store

import (
	"context"
	"errors"
	"time"

	"github.com/abdukhamidov/pos-admin/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrForbidden           = errors.New("forbidden")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrHasDependents       = errors.New("has dependents")
	ErrSaleNotOpen         = errors.New("sale not open")
	ErrNoActiveShift       = errors.New("no active shift")
	ErrShiftAlreadyOpen    = errors.New("shift already open")
	ErrOpenSalesExist      = errors.New("open sales exist")
	ErrNoBranchAssigned    = errors.New("no branch assigned")
	ErrWarehouseNotFound   = errors.New("warehouse not found")
	ErrProductNotAvailable = errors.New("product not available")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrNegativeStock       = errors.New("negative stock")
)

// Repository is the persistence boundary. Implementations must enforce the
// multi-step invariants (non-negative stock with the StockMove written in the
// same atomic unit, one open shift per seller, per-day sale numbering,
// default-warehouse uniqueness, all-or-nothing checkout) inside their own
// transactions so they hold under concurrent callers.
type Repository interface {
	// Branches.
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	GetBranch(ctx context.Context, id string) (*domain.Branch, error)
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	// DeleteBranch fails with ErrHasDependents when users, warehouses or
	// sales still reference the branch.
	DeleteBranch(ctx context.Context, id string) error

	// Warehouses. Create/Update clear other defaults in the target branch in
	// the same transaction whenever the warehouse ends up default there.
	CreateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error)
	GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error)
	ListWarehouses(ctx context.Context) ([]domain.Warehouse, error)
	UpdateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error)
	// DeleteWarehouse moves remaining stock to targetID inside one
	// transaction; with stock present and no usable target it fails with
	// ErrHasDependents.
	DeleteWarehouse(ctx context.Context, id string, targetID string) error
	FindDefaultWarehouse(ctx context.Context, branchID string) (*domain.Warehouse, error)

	// Categories.
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	// Products.
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// Users.
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error

	// Inventory ledger. AdjustStock upserts the (product, warehouse) row to
	// current+delta and records move in the same atomic unit; it fails with
	// ErrNegativeStock when the result would go below zero, leaving the row
	// unchanged. ReceiveStock applies every adjustment or none.
	AdjustStock(ctx context.Context, move domain.StockMove) (int, error)
	ReceiveStock(ctx context.Context, warehouseID string, items []domain.ReceiptItem, userID string) ([]domain.ReceiptResult, error)
	AvailableQty(ctx context.Context, productID string, warehouseID string) (int, error)
	// StockByProduct sums quantities per product across warehouses, scoped to
	// a branch when branchID is non-empty.
	StockByProduct(ctx context.Context, branchID string) (map[string]int, error)
	ListStockMoves(ctx context.Context, filter domain.StockMoveFilter) ([]domain.StockMove, error)

	// Shifts. CreateShift fails with ErrShiftAlreadyOpen when the seller has
	// an open shift. CloseShift fails with ErrOpenSalesExist while any of the
	// seller's sales are still OPEN.
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetOpenShift(ctx context.Context, sellerID string) (*domain.Shift, error)
	CloseShift(ctx context.Context, sellerID string, closingNote string, closingCash int64, at time.Time) (*domain.Shift, error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
	ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]domain.Shift, error)

	// Sales. CreateSale assigns the next (day, branch) number atomically.
	CreateSale(ctx context.Context, sellerID string, branchID string, day string) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	// AddSaleItem re-checks that the sale is OPEN inside the transaction.
	AddSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error)
	UpdateSaleItem(ctx context.Context, saleID string, itemID string, qty int) (*domain.SaleItem, error)
	// RemoveSaleItem is idempotent: it reports how many rows were deleted.
	RemoveSaleItem(ctx context.Context, saleID string, itemID string) (int, error)
	CancelSale(ctx context.Context, saleID string, at time.Time) (*domain.Sale, error)
	// CompleteSale is the checkout commit: inside one transaction it locks
	// the sale and the touched inventory rows, re-asserts non-negative stock,
	// decrements per product, records a SALE StockMove per decrement and
	// marks the sale COMPLETED with total, closedAt and shiftID. Any
	// violation aborts the whole unit with ErrInsufficientStock naming the
	// product, leaving the sale OPEN.
	CompleteSale(ctx context.Context, saleID string, shiftID string, warehouseID string, userID string, at time.Time) (*domain.Sale, error)

	// Audit.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	// Reports.
	RevenueByDay(ctx context.Context, branchID string, from *time.Time, to *time.Time) ([]domain.RevenueByDayRow, error)
	TodayStats(ctx context.Context, branchID string, day string) (domain.TodayStats, error)
}
