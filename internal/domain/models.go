package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type ProductCreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// InventoryBatch tracks one received quantity of a product. A product may
// have many batches; billing deducts from the lowest-id batch first.
type InventoryBatch struct {
	ID         int64      `json:"id"`
	ProductID  int64      `json:"product_id"`
	BatchNo    string     `json:"batch_no"`
	Quantity   int        `json:"quantity"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

type BatchCreateRequest struct {
	ProductID  int64  `json:"product_id"`
	BatchNo    string `json:"batch_no"`
	Quantity   int    `json:"quantity"`
	ExpiryDate string `json:"expiry_date,omitempty"`
}

type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Bill is an immutable record of a completed sale. TotalAmount, Tax and
// Discount are computed once at creation and never recomputed.
type Bill struct {
	ID          int64           `json:"id"`
	CustomerID  int64           `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Tax         decimal.Decimal `json:"tax"`
	Discount    decimal.Decimal `json:"discount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BillItem snapshots the unit price at sale time.
type BillItem struct {
	ID        int64           `json:"id"`
	BillID    int64           `json:"bill_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type BillItemInput struct {
	ProductID int64           `json:"product_id"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

type BillCreateRequest struct {
	CustomerID int64           `json:"customer_id"`
	Items      []BillItemInput `json:"items"`
}

type BillCreateResponse struct {
	BillID int64           `json:"bill_id"`
	Total  decimal.Decimal `json:"total"`
}

// InvoiceResponse bundles a bill with its line items and customer, fetched
// via explicit lookups rather than relationship traversal.
type InvoiceResponse struct {
	Bill       Bill       `json:"bill"`
	Items      []BillItem `json:"items"`
	Customer   Customer   `json:"customer"`
	Suspicious bool       `json:"suspicious"`
}

// DailySales is one day's billed revenue, used by the sales forecast.
type DailySales struct {
	Day   time.Time       `json:"day"`
	Total decimal.Decimal `json:"total"`
}

type SalesForecast struct {
	DaysObserved  int     `json:"days_observed"`
	NextDaySales  float64 `json:"next_day_sales"`
	AvgDailySales float64 `json:"avg_daily_sales"`
	LeadTimeDays  int     `json:"lead_time_days"`
	ReorderLevel  float64 `json:"reorder_level"`
	GeneratedAt   string  `json:"generated_at"`
}

type RecommendationResponse struct {
	Products    []Product `json:"products"`
	GeneratedAt string    `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
