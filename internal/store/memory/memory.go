package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
	"github.com/abdukhamidov/pos-admin/internal/xid"
)

// Store is a mutex-guarded in-memory Repository used by tests and dev mode.
// The single lock gives the same serialization the Postgres store gets from
// row locks, so every invariant test exercises the same code paths.
type Store struct {
	mu sync.RWMutex

	branches   map[string]domain.Branch
	warehouses map[string]domain.Warehouse
	categories map[string]domain.Category
	products   map[string]domain.Product
	users      map[string]domain.User
	inventory  map[string]map[string]int // warehouseID -> productID -> qty
	stockMoves []domain.StockMove
	shifts     map[string]domain.Shift
	sales      map[string]domain.Sale
	auditLogs  []domain.AuditLog
}

func New() *Store {
	return &Store{
		branches:   make(map[string]domain.Branch),
		warehouses: make(map[string]domain.Warehouse),
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		users:      make(map[string]domain.User),
		inventory:  make(map[string]map[string]int),
		shifts:     make(map[string]domain.Shift),
		sales:      make(map[string]domain.Sale),
	}
}

// NewSeeded returns a store pre-populated with one branch, its default
// warehouse, an admin and a seller account, and a small catalog with stock.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	branch := domain.Branch{ID: "branch-main", Name: "Main", CreatedAt: now}
	s.branches[branch.ID] = branch

	warehouse := domain.Warehouse{ID: "wh-main", Name: "Main Warehouse", BranchID: branch.ID, IsDefault: true, CreatedAt: now}
	s.warehouses[warehouse.ID] = warehouse

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	s.users["user-admin"] = domain.User{
		ID: "user-admin", Username: "admin", Name: "Administrator",
		Role: domain.RoleAdmin, PasswordHash: mustHash(adminPwd), IsActive: true, CreatedAt: now,
	}
	s.users["user-seller"] = domain.User{
		ID: "user-seller", Username: "seller", Name: "Default Seller",
		Role: domain.RoleSeller, BranchID: branch.ID, PasswordHash: mustHash(sellerPwd), IsActive: true, CreatedAt: now,
	}

	drinks := domain.Category{ID: "cat-drinks", Name: "Drinks", Description: "Beverages", CreatedAt: now}
	snacks := domain.Category{ID: "cat-snacks", Name: "Snacks", Description: "Snack foods", CreatedAt: now}
	s.categories[drinks.ID] = drinks
	s.categories[snacks.ID] = snacks

	cola := domain.Product{ID: "prod-cola", Name: "Cola 0.5L", SKU: "COLA-05L", Price: 12000, CategoryID: drinks.ID, IsActive: true, CreatedAt: now, UpdatedAt: now}
	chips := domain.Product{ID: "prod-chips", Name: "Chips 90g", SKU: "CHIPS-90G", Price: 15000, CategoryID: snacks.ID, IsActive: true, CreatedAt: now, UpdatedAt: now}
	s.products[cola.ID] = cola
	s.products[chips.ID] = chips

	s.inventory[warehouse.ID] = map[string]int{cola.ID: 50, chips.ID: 30}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return string(hash)
}

// Branches.

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.branches {
		if strings.EqualFold(b.Name, branch.Name) {
			return nil, store.ErrDuplicateKey
		}
	}
	if branch.ID == "" {
		branch.ID = xid.New("branch")
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	s.branches[branch.ID] = branch
	created := branch
	return &created, nil
}

func (s *Store) GetBranch(_ context.Context, id string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, ok := s.branches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := branch
	return &found, nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) UpdateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.branches[branch.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, b := range s.branches {
		if b.ID != branch.ID && strings.EqualFold(b.Name, branch.Name) {
			return nil, store.ErrDuplicateKey
		}
	}
	existing.Name = branch.Name
	s.branches[branch.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteBranch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branches[id]; !ok {
		return store.ErrNotFound
	}
	for _, u := range s.users {
		if u.BranchID == id {
			return fmt.Errorf("%w: branch has users", store.ErrHasDependents)
		}
	}
	for _, w := range s.warehouses {
		if w.BranchID == id {
			return fmt.Errorf("%w: branch has warehouses", store.ErrHasDependents)
		}
	}
	for _, sale := range s.sales {
		if sale.BranchID == id {
			return fmt.Errorf("%w: branch has sales", store.ErrHasDependents)
		}
	}
	delete(s.branches, id)
	return nil
}

// Warehouses.

func (s *Store) CreateWarehouse(_ context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branches[warehouse.BranchID]; !ok {
		return nil, store.ErrNotFound
	}
	if warehouse.ID == "" {
		warehouse.ID = xid.New("wh")
	}
	if warehouse.CreatedAt.IsZero() {
		warehouse.CreatedAt = time.Now().UTC()
	}
	if warehouse.IsDefault {
		s.clearDefaultLocked(warehouse.BranchID)
	}
	s.warehouses[warehouse.ID] = warehouse
	created := warehouse
	return &created, nil
}

// clearDefaultLocked unsets isDefault on every warehouse of the branch.
// Callers must hold the write lock.
func (s *Store) clearDefaultLocked(branchID string) {
	for id, w := range s.warehouses {
		if w.BranchID == branchID && w.IsDefault {
			w.IsDefault = false
			s.warehouses[id] = w
		}
	}
}

func (s *Store) GetWarehouse(_ context.Context, id string) (*domain.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	warehouse, ok := s.warehouses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := warehouse
	return &found, nil
}

func (s *Store) ListWarehouses(_ context.Context) ([]domain.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Warehouse, 0, len(s.warehouses))
	for _, w := range s.warehouses {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BranchID != result[j].BranchID {
			return result[i].BranchID < result[j].BranchID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) UpdateWarehouse(_ context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.warehouses[warehouse.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.branches[warehouse.BranchID]; !ok {
		return nil, store.ErrNotFound
	}
	if warehouse.IsDefault {
		s.clearDefaultLocked(warehouse.BranchID)
	}
	existing.Name = warehouse.Name
	existing.BranchID = warehouse.BranchID
	existing.IsDefault = warehouse.IsDefault
	s.warehouses[warehouse.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteWarehouse(_ context.Context, id string, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	warehouse, ok := s.warehouses[id]
	if !ok {
		return store.ErrNotFound
	}

	stock := s.inventory[id]
	hasStock := false
	for _, qty := range stock {
		if qty > 0 {
			hasStock = true
			break
		}
	}

	if hasStock {
		if targetID == "" {
			// Prefer the branch default, then any sibling warehouse.
			for _, w := range s.warehouses {
				if w.ID == id || w.BranchID != warehouse.BranchID {
					continue
				}
				if targetID == "" || w.IsDefault {
					targetID = w.ID
				}
			}
		}
		if targetID == "" {
			return fmt.Errorf("%w: warehouse has stock", store.ErrHasDependents)
		}
		target, ok := s.warehouses[targetID]
		if !ok || target.BranchID != warehouse.BranchID || target.ID == id {
			return store.ErrValidation
		}
		dest := s.inventory[target.ID]
		if dest == nil {
			dest = make(map[string]int)
			s.inventory[target.ID] = dest
		}
		for productID, qty := range stock {
			dest[productID] += qty
		}
	}

	delete(s.inventory, id)
	delete(s.warehouses, id)
	return nil
}

func (s *Store) FindDefaultWarehouse(_ context.Context, branchID string) (*domain.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.warehouses {
		if w.BranchID == branchID && w.IsDefault {
			found := w
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

// Categories.

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if strings.EqualFold(c.Name, category.Name) {
			return nil, store.ErrDuplicateKey
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := category
	return &found, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.categories[category.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, c := range s.categories {
		if c.ID != category.ID && strings.EqualFold(c.Name, category.Name) {
			return nil, store.ErrDuplicateKey
		}
	}
	existing.Name = category.Name
	existing.Description = category.Description
	s.categories[category.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return fmt.Errorf("%w: category has products", store.ErrHasDependents)
		}
	}
	delete(s.categories, id)
	return nil
}

// Products.

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[product.CategoryID]; !ok {
		return nil, store.ErrNotFound
	}
	if product.SKU != "" {
		for _, p := range s.products {
			if p.SKU != "" && strings.EqualFold(p.SKU, product.SKU) {
				return nil, store.ErrDuplicateKey
			}
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) ListProducts(_ context.Context, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.categories[product.CategoryID]; !ok {
		return nil, store.ErrNotFound
	}
	if product.SKU != "" {
		for _, p := range s.products {
			if p.ID != product.ID && p.SKU != "" && strings.EqualFold(p.SKU, product.SKU) {
				return nil, store.ErrDuplicateKey
			}
		}
	}
	existing.Name = product.Name
	existing.SKU = product.SKU
	existing.Price = product.Price
	existing.CategoryID = product.CategoryID
	existing.IsActive = product.IsActive
	existing.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return fmt.Errorf("%w: product has sale items", store.ErrHasDependents)
			}
		}
	}
	for _, stock := range s.inventory {
		if stock[id] > 0 {
			return fmt.Errorf("%w: product has stock", store.ErrHasDependents)
		}
	}
	for _, stock := range s.inventory {
		delete(stock, id)
	}
	delete(s.products, id)
	return nil
}

// Users.

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) {
			return nil, store.ErrDuplicateKey
		}
	}
	if user.BranchID != "" {
		if _, ok := s.branches[user.BranchID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if user.BranchID != "" {
		if _, ok := s.branches[user.BranchID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	existing.Name = user.Name
	existing.Role = user.Role
	existing.BranchID = user.BranchID
	existing.PasswordHash = user.PasswordHash
	existing.IsActive = user.IsActive
	s.users[user.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		if sale.SellerID == id {
			return fmt.Errorf("%w: user has sales", store.ErrHasDependents)
		}
	}
	for _, shift := range s.shifts {
		if shift.SellerID == id {
			return fmt.Errorf("%w: user has shifts", store.ErrHasDependents)
		}
	}
	delete(s.users, id)
	return nil
}

// Inventory ledger.

func (s *Store) AdjustStock(_ context.Context, move domain.StockMove) (int, error) {
	if move.Delta == 0 {
		return 0, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adjustLocked(move)
}

// adjustLocked applies one stock delta and appends the matching move record.
// Callers must hold the write lock; nothing is mutated on failure.
func (s *Store) adjustLocked(move domain.StockMove) (int, error) {
	if _, ok := s.warehouses[move.WarehouseID]; !ok {
		return 0, store.ErrWarehouseNotFound
	}
	if _, ok := s.products[move.ProductID]; !ok {
		return 0, store.ErrNotFound
	}

	stock := s.inventory[move.WarehouseID]
	current := stock[move.ProductID]
	next := current + move.Delta
	if next < 0 {
		return 0, fmt.Errorf("%w: product %s", store.ErrNegativeStock, move.ProductID)
	}

	if stock == nil {
		stock = make(map[string]int)
		s.inventory[move.WarehouseID] = stock
	}
	stock[move.ProductID] = next

	if move.ID == "" {
		move.ID = xid.New("move")
	}
	if move.CreatedAt.IsZero() {
		move.CreatedAt = time.Now().UTC()
	}
	s.stockMoves = append(s.stockMoves, move)
	return next, nil
}

func (s *Store) ReceiveStock(_ context.Context, warehouseID string, items []domain.ReceiptItem, userID string) ([]domain.ReceiptResult, error) {
	if len(items) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Dry-run validation first so a failing item leaves nothing applied.
	if _, ok := s.warehouses[warehouseID]; !ok {
		return nil, store.ErrWarehouseNotFound
	}
	for _, item := range items {
		if item.Qty < 1 {
			return nil, store.ErrValidation
		}
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	results := make([]domain.ReceiptResult, 0, len(items))
	for _, item := range items {
		qtyAfter, err := s.adjustLocked(domain.StockMove{
			ProductID:   item.ProductID,
			WarehouseID: warehouseID,
			Delta:       item.Qty,
			Type:        domain.MoveTypeReceipt,
			Reason:      "receipt",
			Note:        item.Note,
			UserID:      userID,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, domain.ReceiptResult{ProductID: item.ProductID, QtyAfter: qtyAfter})
	}
	return results, nil
}

func (s *Store) AvailableQty(_ context.Context, productID string, warehouseID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.inventory[warehouseID][productID], nil
}

func (s *Store) StockByProduct(_ context.Context, branchID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int)
	for warehouseID, stock := range s.inventory {
		if branchID != "" {
			warehouse, ok := s.warehouses[warehouseID]
			if !ok || warehouse.BranchID != branchID {
				continue
			}
		}
		for productID, qty := range stock {
			totals[productID] += qty
		}
	}
	return totals, nil
}

func (s *Store) ListStockMoves(_ context.Context, filter domain.StockMoveFilter) ([]domain.StockMove, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	result := make([]domain.StockMove, 0, limit)
	for i := len(s.stockMoves) - 1; i >= 0 && len(result) < limit; i-- {
		move := s.stockMoves[i]
		if filter.ProductID != "" && move.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != "" && move.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.Type != "" && move.Type != filter.Type {
			continue
		}
		result = append(result, move)
	}
	return result, nil
}

// Shifts.

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.shifts {
		if existing.SellerID == shift.SellerID && existing.EndedAt == nil {
			return nil, store.ErrShiftAlreadyOpen
		}
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}
	s.shifts[shift.ID] = shift
	created := shift
	return &created, nil
}

func (s *Store) GetOpenShift(_ context.Context, sellerID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, shift := range s.shifts {
		if shift.SellerID == sellerID && shift.EndedAt == nil {
			found := shift
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CloseShift(_ context.Context, sellerID string, closingNote string, closingCash int64, at time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open *domain.Shift
	for id := range s.shifts {
		shift := s.shifts[id]
		if shift.SellerID == sellerID && shift.EndedAt == nil {
			open = &shift
			break
		}
	}
	if open == nil {
		return nil, store.ErrNoActiveShift
	}
	for _, sale := range s.sales {
		if sale.SellerID == sellerID && sale.Status == domain.SaleStatusOpen {
			return nil, store.ErrOpenSalesExist
		}
	}

	endedAt := at.UTC()
	open.EndedAt = &endedAt
	open.ClosingNote = closingNote
	open.ClosingCash = closingCash
	s.shifts[open.ID] = *open
	closed := *open
	return &closed, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shifts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := shift
	return &found, nil
}

func (s *Store) ListShifts(_ context.Context, filter domain.ShiftFilter) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	result := make([]domain.Shift, 0, limit)
	for _, shift := range s.shifts {
		if filter.SellerID != "" && shift.SellerID != filter.SellerID {
			continue
		}
		if filter.BranchID != "" && shift.BranchID != filter.BranchID {
			continue
		}
		if filter.OpenOnly && shift.EndedAt != nil {
			continue
		}
		if filter.From != nil && shift.StartedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && shift.StartedAt.After(*filter.To) {
			continue
		}
		result = append(result, shift)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Sales.

func (s *Store) CreateSale(_ context.Context, sellerID string, branchID string, day string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	number := 1
	for _, sale := range s.sales {
		if sale.Day == day && sale.BranchID == branchID && sale.Number >= number {
			number = sale.Number + 1
		}
	}

	sale := domain.Sale{
		ID:        xid.New("sale"),
		Number:    number,
		Day:       day,
		SellerID:  sellerID,
		BranchID:  branchID,
		Status:    domain.SaleStatusOpen,
		Total:     0,
		CreatedAt: time.Now().UTC(),
		Items:     []domain.SaleItem{},
	}
	s.sales[sale.ID] = sale
	created := cloneSale(sale)
	return &created, nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.Items = make([]domain.SaleItem, len(sale.Items))
	copy(out.Items, sale.Items)
	return out
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneSale(sale)
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 500
	}

	result := make([]domain.Sale, 0, limit)
	for _, sale := range s.sales {
		if filter.SellerID != "" && sale.SellerID != filter.SellerID {
			continue
		}
		if filter.BranchID != "" && sale.BranchID != filter.BranchID {
			continue
		}
		if filter.ShiftID != "" && sale.ShiftID != filter.ShiftID {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && sale.CreatedAt.After(*filter.To) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AddSaleItem(_ context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[item.SaleID]
	if !ok || sale.Status != domain.SaleStatusOpen {
		return nil, store.ErrSaleNotOpen
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	sale.Items = append(sale.Items, item)
	s.sales[sale.ID] = sale
	created := item
	return &created, nil
}

func (s *Store) UpdateSaleItem(_ context.Context, saleID string, itemID string, qty int) (*domain.SaleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok || sale.Status != domain.SaleStatusOpen {
		return nil, store.ErrSaleNotOpen
	}
	for i := range sale.Items {
		if sale.Items[i].ID != itemID {
			continue
		}
		sale.Items[i].Qty = qty
		sale.Items[i].Subtotal = int64(qty) * sale.Items[i].Price
		s.sales[sale.ID] = sale
		updated := sale.Items[i]
		return &updated, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) RemoveSaleItem(_ context.Context, saleID string, itemID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok || sale.Status != domain.SaleStatusOpen {
		return 0, store.ErrSaleNotOpen
	}
	kept := sale.Items[:0]
	deleted := 0
	for _, item := range sale.Items {
		if item.ID == itemID {
			deleted++
			continue
		}
		kept = append(kept, item)
	}
	sale.Items = kept
	s.sales[sale.ID] = sale
	return deleted, nil
}

func (s *Store) CancelSale(_ context.Context, saleID string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok || sale.Status != domain.SaleStatusOpen {
		return nil, store.ErrSaleNotOpen
	}
	closedAt := at.UTC()
	sale.Status = domain.SaleStatusCancelled
	sale.ClosedAt = &closedAt
	s.sales[sale.ID] = sale
	cancelled := cloneSale(sale)
	return &cancelled, nil
}

func (s *Store) CompleteSale(_ context.Context, saleID string, shiftID string, warehouseID string, userID string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok || sale.Status != domain.SaleStatusOpen {
		return nil, store.ErrSaleNotOpen
	}
	if _, ok := s.warehouses[warehouseID]; !ok {
		return nil, store.ErrWarehouseNotFound
	}

	// Required quantity per distinct product.
	required := make(map[string]int)
	order := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		if _, seen := required[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		required[item.ProductID] += item.Qty
	}

	// The single lock makes check-then-decrement atomic here; the negative
	// guard in adjustLocked stays as the invariant of record.
	stock := s.inventory[warehouseID]
	for _, productID := range order {
		if stock[productID] < required[productID] {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
		}
	}

	total := int64(0)
	for _, item := range sale.Items {
		total += item.Subtotal
	}

	for _, productID := range order {
		if _, err := s.adjustLocked(domain.StockMove{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Delta:       -required[productID],
			Type:        domain.MoveTypeSale,
			Reason:      "sale",
			Note:        saleID,
			UserID:      userID,
		}); err != nil {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
		}
	}

	closedAt := at.UTC()
	sale.Status = domain.SaleStatusCompleted
	sale.Total = total
	sale.ClosedAt = &closedAt
	sale.ShiftID = shiftID
	s.sales[sale.ID] = sale
	completed := cloneSale(sale)
	return &completed, nil
}

// Audit.

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.auditLogs[i])
	}
	return result, nil
}

// Reports.

func (s *Store) RevenueByDay(_ context.Context, branchID string, from *time.Time, to *time.Time) ([]domain.RevenueByDayRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		sum    int64
		checks int
	}
	buckets := make(map[string]*bucket)
	for _, sale := range s.sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		if from != nil && sale.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && sale.CreatedAt.After(*to) {
			continue
		}
		b := buckets[sale.Day]
		if b == nil {
			b = &bucket{}
			buckets[sale.Day] = b
		}
		b.sum += sale.Total
		b.checks++
	}

	rows := make([]domain.RevenueByDayRow, 0, len(buckets))
	for day, b := range buckets {
		avg := int64(0)
		if b.checks > 0 {
			avg = b.sum / int64(b.checks)
		}
		rows = append(rows, domain.RevenueByDayRow{Date: day, Sum: b.sum, Checks: b.checks, Avg: avg})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows, nil
}

func (s *Store) TodayStats(_ context.Context, branchID string, day string) (domain.TodayStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.TodayStats{Day: day, BranchID: branchID}
	for _, sale := range s.sales {
		if sale.Status != domain.SaleStatusCompleted || sale.Day != day {
			continue
		}
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		stats.Revenue += sale.Total
		stats.Checks++
	}
	if stats.Checks > 0 {
		stats.Avg = stats.Revenue / int64(stats.Checks)
	}
	return stats, nil
}
