package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"farmapos/internal/domain"
	"farmapos/internal/store"
	"farmapos/internal/xid"
)

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

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, description, price)
		VALUES ($1,$2,$3)
		RETURNING id
	`, product.Name, product.Description, product.Price).Scan(&product.ID)
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, price
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, price
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListRecentProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 3
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, price
		FROM products
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error) {
	if batch.Quantity < 0 {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory_batches (product_id, batch_no, quantity, expiry_date)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, batch.ProductID, batch.BatchNo, batch.Quantity, nullTime(batch.ExpiryDate)).Scan(&batch.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := batch
	return &created, nil
}

func (s *Store) ListBatches(ctx context.Context, productID int64) ([]domain.InventoryBatch, error) {
	query := `
		SELECT id, product_id, batch_no, quantity, expiry_date
		FROM inventory_batches
		ORDER BY id
	`
	args := []any{}
	if productID != 0 {
		query = `
			SELECT id, product_id, batch_no, quantity, expiry_date
			FROM inventory_batches
			WHERE product_id = $1
			ORDER BY id
		`
		args = append(args, productID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.InventoryBatch, 0, 64)
	for rows.Next() {
		var b domain.InventoryBatch
		var expiry sql.NullTime
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BatchNo, &b.Quantity, &expiry); err != nil {
			return nil, err
		}
		if expiry.Valid {
			e := expiry.Time.UTC()
			b.ExpiryDate = &e
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, phone)
		VALUES ($1,$2)
		RETURNING id
	`, customer.Name, customer.Phone).Scan(&customer.ID)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone
		FROM customers
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateBill runs the whole sale in one serializable transaction. For each
// item in order it locks the lowest-id batch of the product with FOR UPDATE,
// checks the remaining quantity and deducts, so concurrent bills against the
// same batch cannot oversell and earlier deductions in this call are seen by
// later items. Any failure rolls everything back through the deferred
// Rollback.
func (s *Store) CreateBill(ctx context.Context, bill domain.Bill, items []domain.BillItem) (*domain.Bill, error) {
	if len(items) == 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM customers WHERE id = $1
	`, bill.CustomerID).Scan(&customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, item := range items {
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}

		// FIFO by insertion: the lowest-id batch for the product, regardless
		// of expiry date and regardless of whether a later batch could cover
		// the quantity.
		var batchID int64
		var available int
		err := tx.QueryRowContext(ctx, `
			SELECT id, quantity
			FROM inventory_batches
			WHERE product_id = $1
			ORDER BY id
			LIMIT 1
			FOR UPDATE
		`, item.ProductID).Scan(&batchID, &available)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, &store.InsufficientStockError{ProductID: item.ProductID}
			}
			return nil, err
		}
		if available < item.Quantity {
			return nil, &store.InsufficientStockError{ProductID: item.ProductID}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_batches
			SET quantity = quantity - $1
			WHERE id = $2
		`, item.Quantity, batchID)
		if err != nil {
			return nil, err
		}
	}

	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO bills (customer_id, total_amount, tax, discount, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, bill.CustomerID, bill.TotalAmount, bill.Tax, bill.Discount, bill.CreatedAt).Scan(&bill.ID)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bill_items (bill_id, product_id, quantity, price)
			VALUES ($1,$2,$3,$4)
		`, bill.ID, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := bill
	return &created, nil
}

func (s *Store) GetBill(ctx context.Context, id int64) (*domain.Bill, error) {
	var b domain.Bill
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, total_amount, tax, discount, created_at
		FROM bills
		WHERE id = $1
	`, id).Scan(&b.ID, &b.CustomerID, &b.TotalAmount, &b.Tax, &b.Discount, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func (s *Store) GetBillItems(ctx context.Context, billID int64) ([]domain.BillItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, product_id, quantity, price
		FROM bill_items
		WHERE bill_id = $1
		ORDER BY id
	`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.BillItem, 0, 8)
	for rows.Next() {
		var item domain.BillItem
		if err := rows.Scan(&item.ID, &item.BillID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) AverageBillTotal(ctx context.Context) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(total_amount), 0)
		FROM bills
	`).Scan(&avg)
	if err != nil {
		return decimal.Zero, err
	}
	return avg, nil
}

func (s *Store) DailySalesTotals(ctx context.Context, days int) ([]domain.DailySales, error) {
	query := `
		SELECT created_at::date AS day, SUM(total_amount)
		FROM bills
		GROUP BY 1
		ORDER BY 1
	`
	args := []any{}
	if days > 0 {
		query = `
			SELECT created_at::date AS day, SUM(total_amount)
			FROM bills
			WHERE created_at >= now() - make_interval(days => $1)
			GROUP BY 1
			ORDER BY 1
		`
		args = append(args, days)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.DailySales, 0, 32)
	for rows.Next() {
		var entry domain.DailySales
		if err := rows.Scan(&entry.Day, &entry.Total); err != nil {
			return nil, err
		}
		entry.Day = entry.Day.UTC()
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
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
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
