package domain

import "time"

const (
	RoleAdmin  = "ADMIN"
	RoleSeller = "SELLER"
)

const (
	SaleStatusOpen      = "OPEN"
	SaleStatusCompleted = "COMPLETED"
	SaleStatusCancelled = "CANCELLED"
)

const (
	MoveTypeReceipt    = "RECEIPT"
	MoveTypeAdjustment = "ADJUSTMENT"
	MoveTypeSale       = "SALE"
)

type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Warehouse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BranchID  string    `json:"branch_id"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku,omitempty"`
	Price      int64     `json:"price"`
	CategoryID string    `json:"category_id"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	BranchID     string    `json:"branch_id,omitempty"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type StockMove struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	WarehouseID string    `json:"warehouse_id"`
	Delta       int       `json:"delta"`
	Type        string    `json:"type"`
	Reason      string    `json:"reason"`
	Note        string    `json:"note,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Shift struct {
	ID          string     `json:"id"`
	SellerID    string     `json:"seller_id"`
	BranchID    string     `json:"branch_id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	OpeningNote string     `json:"opening_note,omitempty"`
	ClosingNote string     `json:"closing_note,omitempty"`
	OpeningCash int64      `json:"opening_cash"`
	ClosingCash int64      `json:"closing_cash"`
}

type Sale struct {
	ID        string     `json:"id"`
	Number    int        `json:"number"`
	Day       string     `json:"day"`
	SellerID  string     `json:"seller_id"`
	BranchID  string     `json:"branch_id"`
	ShiftID   string     `json:"shift_id,omitempty"`
	Status    string     `json:"status"`
	Total     int64      `json:"total"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Items     []SaleItem `json:"items"`
}

type SaleItem struct {
	ID           string `json:"id"`
	SaleID       string `json:"sale_id"`
	ProductID    string `json:"product_id"`
	NameSnapshot string `json:"name_snapshot"`
	Price        int64  `json:"price"`
	Qty          int    `json:"qty"`
	Subtotal     int64  `json:"subtotal"`
}

type AuditLog struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	Meta      string    `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated caller, carried through context.
type Actor struct {
	UserID   string
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

type BranchCreateRequest struct {
	Name string `json:"name"`
}

type BranchUpdateRequest struct {
	Name *string `json:"name,omitempty"`
}

type WarehouseCreateRequest struct {
	Name      string `json:"name"`
	BranchID  string `json:"branch_id"`
	IsDefault bool   `json:"is_default"`
}

type WarehouseUpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	BranchID  *string `json:"branch_id,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	Price      int64  `json:"price"`
	CategoryID string `json:"category_id"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	SKU        *string `json:"sku,omitempty"`
	Price      *int64  `json:"price,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id"`
}

type UserUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	BranchID *string `json:"branch_id,omitempty"`
	Password *string `json:"password,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type ShiftOpenRequest struct {
	OpeningNote string `json:"opening_note"`
	OpeningCash int64  `json:"opening_cash"`
}

type ShiftCloseRequest struct {
	ClosingNote string `json:"closing_note"`
	ClosingCash int64  `json:"closing_cash"`
}

type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type UpdateItemRequest struct {
	Qty *int `json:"qty,omitempty"`
}

type RemoveItemResult struct {
	Deleted int `json:"deleted"`
}

type CompleteSaleResult struct {
	Total int64 `json:"total"`
}

type ReceiptItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Note      string `json:"note,omitempty"`
}

type ReceiptRequest struct {
	WarehouseID string        `json:"warehouse_id"`
	Items       []ReceiptItem `json:"items"`
}

type ReceiptResult struct {
	ProductID string `json:"product_id"`
	QtyAfter  int    `json:"qty_after"`
}

type AdjustRequest struct {
	WarehouseID string `json:"warehouse_id"`
	ProductID   string `json:"product_id"`
	Delta       int    `json:"delta"`
	Reason      string `json:"reason"`
	Note        string `json:"note"`
}

type AdjustResult struct {
	WarehouseID string `json:"warehouse_id"`
	ProductID   string `json:"product_id"`
	QtyAfter    int    `json:"qty_after"`
}

// CatalogProduct is what a POS terminal sees: an active product plus its
// availability in the seller's branch default warehouse.
type CatalogProduct struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	Price     int64  `json:"price"`
	Category  string `json:"category"`
	Available int    `json:"available"`
}

type SaleFilter struct {
	SellerID string
	BranchID string
	ShiftID  string
	Status   string
	From     *time.Time
	To       *time.Time
	Limit    int
}

type StockMoveFilter struct {
	ProductID   string
	WarehouseID string
	Type        string
	Limit       int
}

type ShiftFilter struct {
	SellerID string
	BranchID string
	OpenOnly bool
	From     *time.Time
	To       *time.Time
	Limit    int
}

type SaleReportRow struct {
	ID     string    `json:"id"`
	Number int       `json:"number"`
	Day    string    `json:"day"`
	Date   time.Time `json:"date"`
	Seller string    `json:"seller"`
	Items  int       `json:"items"`
	Total  int64     `json:"total"`
	Status string    `json:"status"`
}

type RevenueByDayRow struct {
	Date   string `json:"date"`
	Sum    int64  `json:"sum"`
	Checks int    `json:"checks"`
	Avg    int64  `json:"avg"`
}

type LowStockItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	SKU   string `json:"sku,omitempty"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

type TodayStats struct {
	Day      string `json:"day"`
	BranchID string `json:"branch_id,omitempty"`
	Revenue  int64  `json:"revenue"`
	Checks   int    `json:"checks"`
	Avg      int64  `json:"avg"`
}
