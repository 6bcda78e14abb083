// Package memory is an in-memory Repository used for unit tests and as the
// dev fallback when no DATABASE_URL is configured.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"farmapos/internal/domain"
	"farmapos/internal/store"
	"farmapos/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[int64]domain.Product
	batches         map[int64]domain.InventoryBatch
	customers       map[int64]domain.Customer
	bills           map[int64]domain.Bill
	billItems       map[int64][]domain.BillItem
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount

	nextProductID  int64
	nextBatchID    int64
	nextCustomerID int64
	nextBillID     int64
	nextItemID     int64
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func price(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func datePtr(year int, month time.Month, daynum int) *time.Time {
	d := time.Date(year, month, daynum, 0, 0, 0, 0, time.UTC)
	return &d
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: 1, Name: "Paracetamol 500mg", Description: "Pain and fever relief tablet", Price: price("10.00")},
		{ID: 2, Name: "Amoxicillin 250mg", Description: "Antibiotic capsule, strip of 10", Price: price("25.50")},
		{ID: 3, Name: "Cough Syrup 100ml", Description: "Dextromethorphan cough syrup", Price: price("48.00")},
		{ID: 4, Name: "Vitamin C 500mg", Description: "Immunity supplement tablet", Price: price("15.75")},
		{ID: 5, Name: "ORS Sachet", Description: "Oral rehydration salts", Price: price("3.20")},
	}

	batches := []domain.InventoryBatch{
		{ID: 1, ProductID: 1, BatchNo: "PARA-2601", Quantity: 10, ExpiryDate: datePtr(2027, time.March, 31)},
		{ID: 2, ProductID: 1, BatchNo: "PARA-2602", Quantity: 50, ExpiryDate: datePtr(2027, time.September, 30)},
		{ID: 3, ProductID: 2, BatchNo: "AMOX-2601", Quantity: 40, ExpiryDate: datePtr(2026, time.December, 31)},
		{ID: 4, ProductID: 3, BatchNo: "SYR-2601", Quantity: 25, ExpiryDate: datePtr(2027, time.June, 30)},
		{ID: 5, ProductID: 4, BatchNo: "VITC-2601", Quantity: 60, ExpiryDate: nil},
		{ID: 6, ProductID: 5, BatchNo: "ORS-2601", Quantity: 200, ExpiryDate: datePtr(2028, time.January, 31)},
	}

	customers := []domain.Customer{
		{ID: 1, Name: "Ravi Kumar", Phone: "98450-12345"},
		{ID: 2, Name: "Meera Nair", Phone: "98470-67890"},
	}

	productMap := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	batchMap := make(map[int64]domain.InventoryBatch, len(batches))
	for _, b := range batches {
		batchMap[b.ID] = b
	}
	customerMap := make(map[int64]domain.Customer, len(customers))
	for _, c := range customers {
		customerMap[c.ID] = c
	}

	return &Store{
		products:        productMap,
		batches:         batchMap,
		customers:       customerMap,
		bills:           make(map[int64]domain.Bill),
		billItems:       make(map[int64][]domain.BillItem),
		usersByUsername: seedUsers(),
		nextProductID:   int64(len(products)),
		nextBatchID:     int64(len(batches)),
		nextCustomerID:  int64(len(customers)),
	}
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	product.ID = s.nextProductID
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ListRecentProducts(_ context.Context, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID > products[j].ID })
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error) {
	if batch.Quantity < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[batch.ProductID]; !ok {
		return nil, store.ErrNotFound
	}

	s.nextBatchID++
	batch.ID = s.nextBatchID
	s.batches[batch.ID] = batch

	created := batch
	return &created, nil
}

func (s *Store) ListBatches(_ context.Context, productID int64) ([]domain.InventoryBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := make([]domain.InventoryBatch, 0, len(s.batches))
	for _, b := range s.batches {
		if productID != 0 && b.ProductID != productID {
			continue
		}
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCustomerID++
	customer.ID = s.nextCustomerID
	s.customers[customer.ID] = customer

	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].ID < customers[j].ID })
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

// CreateBill validates and stages every deduction before touching the maps,
// so a failing item leaves no partial writes behind. Items are checked in
// order against the staged quantities: a deduction made for an earlier item
// is visible to the stock check of a later item in the same call.
func (s *Store) CreateBill(_ context.Context, bill domain.Bill, items []domain.BillItem) (*domain.Bill, error) {
	if len(items) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[bill.CustomerID]; !ok {
		return nil, store.ErrNotFound
	}

	staged := make(map[int64]int)
	type deduction struct {
		batchID int64
		qty     int
	}
	deductions := make([]deduction, 0, len(items))

	for _, item := range items {
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrValidation
		}

		// FIFO by insertion: the lowest-id batch for the product, not the
		// first batch that still has enough stock and not the one expiring
		// soonest.
		batch, ok := s.earliestBatch(item.ProductID)
		if !ok {
			return nil, &store.InsufficientStockError{ProductID: item.ProductID}
		}

		remaining, ok := staged[batch.ID]
		if !ok {
			remaining = batch.Quantity
		}
		if remaining < item.Quantity {
			return nil, &store.InsufficientStockError{ProductID: item.ProductID}
		}
		staged[batch.ID] = remaining - item.Quantity
		deductions = append(deductions, deduction{batchID: batch.ID, qty: item.Quantity})
	}

	for _, d := range deductions {
		b := s.batches[d.batchID]
		b.Quantity -= d.qty
		s.batches[d.batchID] = b
	}

	s.nextBillID++
	bill.ID = s.nextBillID
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}
	s.bills[bill.ID] = bill

	stored := make([]domain.BillItem, 0, len(items))
	for _, item := range items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.BillID = bill.ID
		stored = append(stored, item)
	}
	s.billItems[bill.ID] = stored

	created := bill
	return &created, nil
}

func (s *Store) earliestBatch(productID int64) (domain.InventoryBatch, bool) {
	var earliest domain.InventoryBatch
	found := false
	for _, b := range s.batches {
		if b.ProductID != productID {
			continue
		}
		if !found || b.ID < earliest.ID {
			earliest = b
			found = true
		}
	}
	return earliest, found
}

func (s *Store) GetBill(_ context.Context, id int64) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.bills[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &bill, nil
}

func (s *Store) GetBillItems(_ context.Context, billID int64) ([]domain.BillItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.billItems[billID]
	out := make([]domain.BillItem, len(items))
	copy(out, items)
	return out, nil
}

func (s *Store) AverageBillTotal(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.bills) == 0 {
		return decimal.Zero, nil
	}

	sum := decimal.Zero
	for _, b := range s.bills {
		sum = sum.Add(b.TotalAmount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(s.bills)))), nil
}

func (s *Store) DailySalesTotals(_ context.Context, days int) ([]domain.DailySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff time.Time
	if days > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -days)
	}

	totalsByDay := make(map[time.Time]decimal.Decimal)
	for _, b := range s.bills {
		if days > 0 && b.CreatedAt.Before(cutoff) {
			continue
		}
		day := b.CreatedAt.UTC().Truncate(24 * time.Hour)
		totalsByDay[day] = totalsByDay[day].Add(b.TotalAmount)
	}

	out := make([]domain.DailySales, 0, len(totalsByDay))
	for day, total := range totalsByDay {
		out = append(out, domain.DailySales{Day: day, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.auditLogs[i])
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
