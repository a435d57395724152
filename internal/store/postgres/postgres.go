package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/abdukhamidov/pos-admin/internal/domain"
	"github.com/abdukhamidov/pos-admin/internal/store"
	"github.com/abdukhamidov/pos-admin/internal/xid"
)

// Store is the Postgres-backed Repository. Invariants that span rows are
// enforced inside serializable transactions with FOR UPDATE locks, backed by
// the unique indexes:
//
//	inventory_stocks (product_id, warehouse_id)
//	sales (day, branch_id, number)
//	shifts (seller_id) WHERE ended_at IS NULL
//	warehouses (branch_id) WHERE is_default
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Branches.

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if branch.ID == "" {
		branch.ID = xid.New("branch")
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, created_at)
		VALUES ($1,$2,$3)
	`, branch.ID, branch.Name, branch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}
	created := branch
	return &created, nil
}

func (s *Store) GetBranch(ctx context.Context, id string) (*domain.Branch, error) {
	var branch domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at
		FROM branches
		WHERE id = $1
	`, id).Scan(&branch.ID, &branch.Name, &branch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &branch, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM branches
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 16)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (s *Store) UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE branches SET name = $2 WHERE id = $1
	`, branch.ID, branch.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetBranch(ctx, branch.ID)
}

func (s *Store) DeleteBranch(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	checks := []struct {
		query string
		what  string
	}{
		{`SELECT EXISTS (SELECT 1 FROM users WHERE branch_id = $1)`, "users"},
		{`SELECT EXISTS (SELECT 1 FROM warehouses WHERE branch_id = $1)`, "warehouses"},
		{`SELECT EXISTS (SELECT 1 FROM sales WHERE branch_id = $1)`, "sales"},
	}
	for _, check := range checks {
		var exists bool
		if err := tx.QueryRowContext(ctx, check.query, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: branch has %s", store.ErrHasDependents, check.what)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

// Warehouses.

func (s *Store) CreateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	if warehouse.ID == "" {
		warehouse.ID = xid.New("wh")
	}
	if warehouse.CreatedAt.IsZero() {
		warehouse.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)`, warehouse.BranchID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	if warehouse.IsDefault {
		if _, err := tx.ExecContext(ctx, `
			UPDATE warehouses SET is_default = false WHERE branch_id = $1 AND is_default = true
		`, warehouse.BranchID); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO warehouses (id, name, branch_id, is_default, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, warehouse.ID, warehouse.Name, warehouse.BranchID, warehouse.IsDefault, warehouse.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := warehouse
	return &created, nil
}

func (s *Store) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	var warehouse domain.Warehouse
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, branch_id, is_default, created_at
		FROM warehouses
		WHERE id = $1
	`, id).Scan(&warehouse.ID, &warehouse.Name, &warehouse.BranchID, &warehouse.IsDefault, &warehouse.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &warehouse, nil
}

func (s *Store) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, branch_id, is_default, created_at
		FROM warehouses
		ORDER BY branch_id, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	warehouses := make([]domain.Warehouse, 0, 16)
	for rows.Next() {
		var w domain.Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.BranchID, &w.IsDefault, &w.CreatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

func (s *Store) UpdateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)`, warehouse.BranchID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	if warehouse.IsDefault {
		if _, err := tx.ExecContext(ctx, `
			UPDATE warehouses SET is_default = false
			WHERE branch_id = $1 AND is_default = true AND id <> $2
		`, warehouse.BranchID, warehouse.ID); err != nil {
			return nil, err
		}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE warehouses SET name = $2, branch_id = $3, is_default = $4 WHERE id = $1
	`, warehouse.ID, warehouse.Name, warehouse.BranchID, warehouse.IsDefault)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetWarehouse(ctx, warehouse.ID)
}

func (s *Store) DeleteWarehouse(ctx context.Context, id string, targetID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var branchID string
	err = tx.QueryRowContext(ctx, `
		SELECT branch_id FROM warehouses WHERE id = $1 FOR UPDATE
	`, id).Scan(&branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	var hasStock bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM inventory_stocks WHERE warehouse_id = $1 AND qty > 0)
	`, id).Scan(&hasStock); err != nil {
		return err
	}

	if hasStock {
		if targetID == "" {
			// Prefer the branch default, then any sibling warehouse.
			err = tx.QueryRowContext(ctx, `
				SELECT id FROM warehouses
				WHERE branch_id = $1 AND id <> $2
				ORDER BY is_default DESC, name
				LIMIT 1
			`, branchID, id).Scan(&targetID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: warehouse has stock", store.ErrHasDependents)
			}
			if err != nil {
				return err
			}
		} else {
			var targetBranch string
			err = tx.QueryRowContext(ctx, `
				SELECT branch_id FROM warehouses WHERE id = $1
			`, targetID).Scan(&targetBranch)
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrValidation
			}
			if err != nil {
				return err
			}
			if targetBranch != branchID || targetID == id {
				return store.ErrValidation
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_stocks (product_id, warehouse_id, qty)
			SELECT product_id, $2, qty FROM inventory_stocks WHERE warehouse_id = $1
			ON CONFLICT (product_id, warehouse_id)
			DO UPDATE SET qty = inventory_stocks.qty + EXCLUDED.qty
		`, id, targetID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_stocks WHERE warehouse_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM warehouses WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) FindDefaultWarehouse(ctx context.Context, branchID string) (*domain.Warehouse, error) {
	var warehouse domain.Warehouse
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, branch_id, is_default, created_at
		FROM warehouses
		WHERE branch_id = $1 AND is_default = true
	`, branchID).Scan(&warehouse.ID, &warehouse.Name, &warehouse.BranchID, &warehouse.IsDefault, &warehouse.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &warehouse, nil
}

// Categories.

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, created_at)
		VALUES ($1,$2,$3,$4)
	`, category.ID, category.Name, nullString(category.Description), category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var category domain.Category
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&category.ID, &category.Name, &description, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	category.Description = description.String
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		var description sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &description, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Description = description.String
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = $2, description = $3 WHERE id = $1
	`, category.ID, category.Name, nullString(category.Description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCategory(ctx, category.ID)
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE category_id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: category has products", store.ErrHasDependents)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

// Products.

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, price, category_id, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, nullString(product.SKU), product.Price, product.CategoryID, product.IsActive, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	var sku sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, sku, price, category_id, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &sku, &product.Price, &product.CategoryID, &product.IsActive, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.SKU = sku.String
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	query := `
		SELECT id, name, sku, price, category_id, is_active, created_at, updated_at
		FROM products
	`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		var sku sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &sku, &p.Price, &p.CategoryID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.SKU = sku.String
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, price = $4, category_id = $5, is_active = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullString(product.SKU), product.Price, product.CategoryID, product.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: product has sale items", store.ErrHasDependents)
	}
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_stocks WHERE product_id = $1 AND qty > 0)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: product has stock", store.ErrHasDependents)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_stocks WHERE product_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

// Users.

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, name, role, branch_id, password_hash, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.Username, user.Name, user.Role, nullString(user.BranchID), user.PasswordHash, user.IsActive, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := user
	return &created, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, "id", id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser(ctx, "username", username)
}

func (s *Store) findUser(ctx context.Context, column string, value string) (*domain.User, error) {
	var user domain.User
	var branchID sql.NullString
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, username, name, role, branch_id, password_hash, is_active, created_at
		FROM users
		WHERE %s = $1
	`, column), value).Scan(&user.ID, &user.Username, &user.Name, &user.Role, &branchID, &user.PasswordHash, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.BranchID = branchID.String
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, name, role, branch_id, password_hash, is_active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 32)
	for rows.Next() {
		var u domain.User
		var branchID sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.Role, &branchID, &u.PasswordHash, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.BranchID = branchID.String
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, role = $3, branch_id = $4, password_hash = $5, is_active = $6
		WHERE id = $1
	`, user.ID, user.Name, user.Role, nullString(user.BranchID), user.PasswordHash, user.IsActive)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUser(ctx, user.ID)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE seller_id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: user has sales", store.ErrHasDependents)
	}
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM shifts WHERE seller_id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: user has shifts", store.ErrHasDependents)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

// Inventory ledger.

func (s *Store) AdjustStock(ctx context.Context, move domain.StockMove) (int, error) {
	if move.Delta == 0 {
		return 0, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	qtyAfter, err := adjustStockTx(ctx, tx, move)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return qtyAfter, nil
}

// adjustStockTx locks the (product, warehouse) row, applies the delta and
// writes the matching stock_moves row in the caller's transaction.
func adjustStockTx(ctx context.Context, tx *sql.Tx, move domain.StockMove) (int, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE id = $1)`, move.WarehouseID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrWarehouseNotFound
	}
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, move.ProductID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	current := 0
	err := tx.QueryRowContext(ctx, `
		SELECT qty FROM inventory_stocks
		WHERE product_id = $1 AND warehouse_id = $2
		FOR UPDATE
	`, move.ProductID, move.WarehouseID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	next := current + move.Delta
	if next < 0 {
		return 0, fmt.Errorf("%w: product %s", store.ErrNegativeStock, move.ProductID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_stocks (product_id, warehouse_id, qty)
		VALUES ($1,$2,$3)
		ON CONFLICT (product_id, warehouse_id) DO UPDATE SET qty = $3
	`, move.ProductID, move.WarehouseID, next); err != nil {
		return 0, err
	}

	if move.ID == "" {
		move.ID = xid.New("move")
	}
	if move.CreatedAt.IsZero() {
		move.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_moves (id, product_id, warehouse_id, delta, type, reason, note, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, move.ID, move.ProductID, move.WarehouseID, move.Delta, move.Type, move.Reason, nullString(move.Note), nullString(move.UserID), move.CreatedAt); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) ReceiveStock(ctx context.Context, warehouseID string, items []domain.ReceiptItem, userID string) ([]domain.ReceiptResult, error) {
	if len(items) == 0 {
		return nil, store.ErrValidation
	}
	for _, item := range items {
		if item.Qty < 1 {
			return nil, store.ErrValidation
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	results := make([]domain.ReceiptResult, 0, len(items))
	for _, item := range items {
		qtyAfter, err := adjustStockTx(ctx, tx, domain.StockMove{
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
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) AvailableQty(ctx context.Context, productID string, warehouseID string) (int, error) {
	qty := 0
	err := s.db.QueryRowContext(ctx, `
		SELECT qty FROM inventory_stocks
		WHERE product_id = $1 AND warehouse_id = $2
	`, productID, warehouseID).Scan(&qty)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return qty, nil
}

func (s *Store) StockByProduct(ctx context.Context, branchID string) (map[string]int, error) {
	query := `
		SELECT s.product_id, COALESCE(SUM(s.qty), 0)
		FROM inventory_stocks s
	`
	args := []any{}
	if branchID != "" {
		query += `
		JOIN warehouses w ON w.id = s.warehouse_id
		WHERE w.branch_id = $1
		`
		args = append(args, branchID)
	}
	query += ` GROUP BY s.product_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int, 128)
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		totals[productID] = qty
	}
	return totals, rows.Err()
}

func (s *Store) ListStockMoves(ctx context.Context, filter domain.StockMoveFilter) ([]domain.StockMove, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	query := `
		SELECT id, product_id, warehouse_id, delta, type, reason, note, user_id, created_at
		FROM stock_moves
		WHERE 1=1
	`
	args := []any{}
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		query += fmt.Sprintf(" AND product_id = $%d", len(args))
	}
	if filter.WarehouseID != "" {
		args = append(args, filter.WarehouseID)
		query += fmt.Sprintf(" AND warehouse_id = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moves := make([]domain.StockMove, 0, limit)
	for rows.Next() {
		var m domain.StockMove
		var note, userID sql.NullString
		if err := rows.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.Delta, &m.Type, &m.Reason, &note, &userID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Note = note.String
		m.UserID = userID.String
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// Shifts.

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}
	// The partial unique index on (seller_id) WHERE ended_at IS NULL turns a
	// concurrent double-open into a unique violation.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, seller_id, branch_id, started_at, opening_note, opening_cash)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, shift.ID, shift.SellerID, shift.BranchID, shift.StartedAt, nullString(shift.OpeningNote), shift.OpeningCash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrShiftAlreadyOpen
		}
		return nil, err
	}
	created := shift
	return &created, nil
}

func (s *Store) GetOpenShift(ctx context.Context, sellerID string) (*domain.Shift, error) {
	return s.scanShift(s.db.QueryRowContext(ctx, `
		SELECT id, seller_id, branch_id, started_at, ended_at, opening_note, closing_note, opening_cash, closing_cash
		FROM shifts
		WHERE seller_id = $1 AND ended_at IS NULL
	`, sellerID))
}

func (s *Store) CloseShift(ctx context.Context, sellerID string, closingNote string, closingCash int64, at time.Time) (*domain.Shift, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var shiftID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM shifts
		WHERE seller_id = $1 AND ended_at IS NULL
		FOR UPDATE
	`, sellerID).Scan(&shiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoActiveShift
		}
		return nil, err
	}

	var openSales bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sales WHERE seller_id = $1 AND status = $2)
	`, sellerID, domain.SaleStatusOpen).Scan(&openSales); err != nil {
		return nil, err
	}
	if openSales {
		return nil, store.ErrOpenSalesExist
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE shifts SET ended_at = $2, closing_note = $3, closing_cash = $4 WHERE id = $1
	`, shiftID, at.UTC(), nullString(closingNote), closingCash); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetShift(ctx, shiftID)
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	return s.scanShift(s.db.QueryRowContext(ctx, `
		SELECT id, seller_id, branch_id, started_at, ended_at, opening_note, closing_note, opening_cash, closing_cash
		FROM shifts
		WHERE id = $1
	`, id))
}

func (s *Store) scanShift(row *sql.Row) (*domain.Shift, error) {
	var shift domain.Shift
	var endedAt sql.NullTime
	var openingNote, closingNote sql.NullString
	err := row.Scan(&shift.ID, &shift.SellerID, &shift.BranchID, &shift.StartedAt, &endedAt, &openingNote, &closingNote, &shift.OpeningCash, &shift.ClosingCash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		shift.EndedAt = &t
	}
	shift.OpeningNote = openingNote.String
	shift.ClosingNote = closingNote.String
	return &shift, nil
}

func (s *Store) ListShifts(ctx context.Context, filter domain.ShiftFilter) ([]domain.Shift, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	query := `
		SELECT id, seller_id, branch_id, started_at, ended_at, opening_note, closing_note, opening_cash, closing_cash
		FROM shifts
		WHERE 1=1
	`
	args := []any{}
	if filter.SellerID != "" {
		args = append(args, filter.SellerID)
		query += fmt.Sprintf(" AND seller_id = $%d", len(args))
	}
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		query += fmt.Sprintf(" AND branch_id = $%d", len(args))
	}
	if filter.OpenOnly {
		query += " AND ended_at IS NULL"
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND started_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND started_at <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, limit)
	for rows.Next() {
		var shift domain.Shift
		var endedAt sql.NullTime
		var openingNote, closingNote sql.NullString
		if err := rows.Scan(&shift.ID, &shift.SellerID, &shift.BranchID, &shift.StartedAt, &endedAt, &openingNote, &closingNote, &shift.OpeningCash, &shift.ClosingCash); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			t := endedAt.Time.UTC()
			shift.EndedAt = &t
		}
		shift.OpeningNote = openingNote.String
		shift.ClosingNote = closingNote.String
		shifts = append(shifts, shift)
	}
	return shifts, rows.Err()
}

// Sales.

func (s *Store) CreateSale(ctx context.Context, sellerID string, branchID string, day string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	number := 0
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(number), 0) FROM sales WHERE day = $1 AND branch_id = $2
	`, day, branchID).Scan(&number); err != nil {
		return nil, err
	}
	number++

	sale := domain.Sale{
		ID:        xid.New("sale"),
		Number:    number,
		Day:       day,
		SellerID:  sellerID,
		BranchID:  branchID,
		Status:    domain.SaleStatusOpen,
		CreatedAt: time.Now().UTC(),
		Items:     []domain.SaleItem{},
	}
	// The unique index on (day, branch_id, number) catches a concurrent
	// writer that grabbed the same number.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, number, day, seller_id, branch_id, status, total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7)
	`, sale.ID, sale.Number, sale.Day, sale.SellerID, sale.BranchID, sale.Status, sale.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var shiftID sql.NullString
	var closedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, day, seller_id, branch_id, shift_id, status, total, created_at, closed_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.Number, &sale.Day, &sale.SellerID, &sale.BranchID, &shiftID, &sale.Status, &sale.Total, &sale.CreatedAt, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.ShiftID = shiftID.String
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		sale.ClosedAt = &t
	}

	items, err := s.listSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, name_snapshot, price, qty, subtotal
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.NameSnapshot, &item.Price, &item.Qty, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 500
	}

	query := `
		SELECT id, number, day, seller_id, branch_id, shift_id, status, total, created_at, closed_at
		FROM sales
		WHERE 1=1
	`
	args := []any{}
	if filter.SellerID != "" {
		args = append(args, filter.SellerID)
		query += fmt.Sprintf(" AND seller_id = $%d", len(args))
	}
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		query += fmt.Sprintf(" AND branch_id = $%d", len(args))
	}
	if filter.ShiftID != "" {
		args = append(args, filter.ShiftID)
		query += fmt.Sprintf(" AND shift_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var shiftID sql.NullString
		var closedAt sql.NullTime
		if err := rows.Scan(&sale.ID, &sale.Number, &sale.Day, &sale.SellerID, &sale.BranchID, &shiftID, &sale.Status, &sale.Total, &sale.CreatedAt, &closedAt); err != nil {
			return nil, err
		}
		sale.ShiftID = shiftID.String
		if closedAt.Valid {
			t := closedAt.Time.UTC()
			sale.ClosedAt = &t
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := s.listSaleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}
	return sales, nil
}

// lockOpenSale locks the sale row and fails with ErrSaleNotOpen unless the
// sale is still OPEN.
func lockOpenSale(ctx context.Context, tx *sql.Tx, saleID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM sales WHERE id = $1 FOR UPDATE
	`, saleID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrSaleNotOpen
		}
		return err
	}
	if status != domain.SaleStatusOpen {
		return store.ErrSaleNotOpen
	}
	return nil
}

func (s *Store) AddSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenSale(ctx, tx, item.SaleID); err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sale_items (id, sale_id, product_id, name_snapshot, price, qty, subtotal)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, item.ID, item.SaleID, item.ProductID, item.NameSnapshot, item.Price, item.Qty, item.Subtotal); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := item
	return &created, nil
}

func (s *Store) UpdateSaleItem(ctx context.Context, saleID string, itemID string, qty int) (*domain.SaleItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenSale(ctx, tx, saleID); err != nil {
		return nil, err
	}

	var item domain.SaleItem
	err = tx.QueryRowContext(ctx, `
		UPDATE sale_items
		SET qty = $3, subtotal = price * $3
		WHERE id = $2 AND sale_id = $1
		RETURNING id, sale_id, product_id, name_snapshot, price, qty, subtotal
	`, saleID, itemID, qty).Scan(&item.ID, &item.SaleID, &item.ProductID, &item.NameSnapshot, &item.Price, &item.Qty, &item.Subtotal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) RemoveSaleItem(ctx context.Context, saleID string, itemID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenSale(ctx, tx, saleID); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM sale_items WHERE id = $2 AND sale_id = $1
	`, saleID, itemID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) CancelSale(ctx context.Context, saleID string, at time.Time) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenSale(ctx, tx, saleID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sales SET status = $2, closed_at = $3 WHERE id = $1
	`, saleID, domain.SaleStatusCancelled, at.UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

func (s *Store) CompleteSale(ctx context.Context, saleID string, shiftID string, warehouseID string, userID string, at time.Time) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenSale(ctx, tx, saleID); err != nil {
		return nil, err
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT product_id, qty, subtotal
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	required := make(map[string]int, 8)
	order := make([]string, 0, 8)
	total := int64(0)
	for itemRows.Next() {
		var productID string
		var qty int
		var subtotal int64
		if err := itemRows.Scan(&productID, &qty, &subtotal); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		if _, seen := required[productID]; !seen {
			order = append(order, productID)
		}
		required[productID] += qty
		total += subtotal
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for _, productID := range order {
		if _, err := adjustStockTx(ctx, tx, domain.StockMove{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Delta:       -required[productID],
			Type:        domain.MoveTypeSale,
			Reason:      "sale",
			Note:        saleID,
			UserID:      userID,
		}); err != nil {
			if errors.Is(err, store.ErrNegativeStock) {
				return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
			}
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sales SET status = $2, total = $3, closed_at = $4, shift_id = $5 WHERE id = $1
	`, saleID, domain.SaleStatusCompleted, total, at.UTC(), nullString(shiftID)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

// Audit.

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, user_id, meta, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.Action, nullString(entry.UserID), nullString(entry.Meta), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, user_id, meta, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var userID, meta sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Action, &userID, &meta, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.UserID = userID.String
		entry.Meta = meta.String
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// Reports.

func (s *Store) RevenueByDay(ctx context.Context, branchID string, from *time.Time, to *time.Time) ([]domain.RevenueByDayRow, error) {
	query := `
		SELECT day, COALESCE(SUM(total), 0), COUNT(*)
		FROM sales
		WHERE status = $1
	`
	args := []any{domain.SaleStatusCompleted}
	if branchID != "" {
		args = append(args, branchID)
		query += fmt.Sprintf(" AND branch_id = $%d", len(args))
	}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += ` GROUP BY day ORDER BY day`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.RevenueByDayRow, 0, 32)
	for rows.Next() {
		var row domain.RevenueByDayRow
		if err := rows.Scan(&row.Date, &row.Sum, &row.Checks); err != nil {
			return nil, err
		}
		if row.Checks > 0 {
			row.Avg = row.Sum / int64(row.Checks)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) TodayStats(ctx context.Context, branchID string, day string) (domain.TodayStats, error) {
	stats := domain.TodayStats{Day: day, BranchID: branchID}

	query := `
		SELECT COALESCE(SUM(total), 0), COUNT(*)
		FROM sales
		WHERE status = $1 AND day = $2
	`
	args := []any{domain.SaleStatusCompleted, day}
	if branchID != "" {
		args = append(args, branchID)
		query += fmt.Sprintf(" AND branch_id = $%d", len(args))
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.Revenue, &stats.Checks); err != nil {
		return stats, err
	}
	if stats.Checks > 0 {
		stats.Avg = stats.Revenue / int64(stats.Checks)
	}
	return stats, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
