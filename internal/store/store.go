package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"farmapos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError identifies the product whose batch could not cover
// the requested quantity. It unwraps to ErrInsufficientStock.
type InsufficientStockError struct {
	ProductID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Repository is the catalog store. CreateBill is transactional: the bill,
// its items and every batch deduction commit together or not at all.
type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListRecentProducts(ctx context.Context, limit int) ([]domain.Product, error)
	CreateBatch(ctx context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error)
	ListBatches(ctx context.Context, productID int64) ([]domain.InventoryBatch, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	CreateBill(ctx context.Context, bill domain.Bill, items []domain.BillItem) (*domain.Bill, error)
	GetBill(ctx context.Context, id int64) (*domain.Bill, error)
	GetBillItems(ctx context.Context, billID int64) ([]domain.BillItem, error)
	AverageBillTotal(ctx context.Context) (decimal.Decimal, error)
	DailySalesTotals(ctx context.Context, days int) ([]domain.DailySales, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
