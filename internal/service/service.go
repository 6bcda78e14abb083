package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"farmapos/internal/billing"
	"farmapos/internal/domain"
	"farmapos/internal/insights"
	"farmapos/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	insight *insights.Engine
}

func New(repo store.Repository, insight *insights.Engine) *Service {
	return &Service{
		repo:    repo,
		insight: insight,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)

	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrValidation)
	}
	if req.Price.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", fmt.Sprintf("%d", created.ID), fmt.Sprintf("name=%s,price=%s", created.Name, created.Price))
	return *created, nil
}

func (s *Service) ListBatches(ctx context.Context, productID int64) ([]domain.InventoryBatch, error) {
	return s.repo.ListBatches(ctx, productID)
}

func (s *Service) AddBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.InventoryBatch, error) {
	if req.ProductID < 1 {
		return domain.InventoryBatch{}, fmt.Errorf("%w: product_id required", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return domain.InventoryBatch{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}

	var expiry *time.Time
	if strings.TrimSpace(req.ExpiryDate) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.ExpiryDate))
		if err != nil {
			return domain.InventoryBatch{}, fmt.Errorf("%w: expiry_date must be YYYY-MM-DD", store.ErrValidation)
		}
		expiry = &parsed
	}

	if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.InventoryBatch{}, fmt.Errorf("product %d: %w", req.ProductID, store.ErrNotFound)
		}
		return domain.InventoryBatch{}, err
	}

	created, err := s.repo.CreateBatch(ctx, domain.InventoryBatch{
		ProductID:  req.ProductID,
		BatchNo:    strings.TrimSpace(req.BatchNo),
		Quantity:   req.Quantity,
		ExpiryDate: expiry,
	})
	if err != nil {
		return domain.InventoryBatch{}, err
	}

	s.logAudit(ctx, "batch_receive", "inventory_batch", fmt.Sprintf("%d", created.ID), fmt.Sprintf("product=%d,batch_no=%s,qty=%d", created.ProductID, created.BatchNo, created.Quantity))
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer name required", store.ErrValidation)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", fmt.Sprintf("%d", created.ID), fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

// GenerateBill computes the totals for the cart and persists the bill, its
// line items and every batch deduction in one store transaction. Either all
// of it commits or none of it does.
func (s *Service) GenerateBill(ctx context.Context, req domain.BillCreateRequest) (domain.BillCreateResponse, error) {
	if len(req.Items) == 0 {
		return domain.BillCreateResponse{}, fmt.Errorf("%w: no items selected", store.ErrValidation)
	}
	if req.CustomerID < 1 {
		return domain.BillCreateResponse{}, fmt.Errorf("%w: customer_id required", store.ErrValidation)
	}
	for _, item := range req.Items {
		if item.ProductID < 1 {
			return domain.BillCreateResponse{}, fmt.Errorf("%w: product_id required", store.ErrValidation)
		}
		if item.Qty < 1 {
			return domain.BillCreateResponse{}, fmt.Errorf("%w: qty must be at least 1", store.ErrValidation)
		}
		if item.Price.IsNegative() {
			return domain.BillCreateResponse{}, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
		}
	}

	if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.BillCreateResponse{}, fmt.Errorf("customer %d: %w", req.CustomerID, store.ErrNotFound)
		}
		return domain.BillCreateResponse{}, err
	}

	totals := billing.ComputeTotals(req.Items)

	items := make([]domain.BillItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.BillItem{
			ProductID: item.ProductID,
			Quantity:  item.Qty,
			Price:     item.Price,
		})
	}

	created, err := s.repo.CreateBill(ctx, domain.Bill{
		CustomerID:  req.CustomerID,
		TotalAmount: totals.Total,
		Tax:         totals.Tax,
		Discount:    totals.Discount,
		CreatedAt:   time.Now().UTC(),
	}, items)
	if err != nil {
		return domain.BillCreateResponse{}, err
	}

	s.logAudit(ctx, "bill_generate", "bill", fmt.Sprintf("%d", created.ID), fmt.Sprintf("customer=%d,total=%s,items=%d", created.CustomerID, created.TotalAmount, len(items)))

	return domain.BillCreateResponse{
		BillID: created.ID,
		Total:  created.TotalAmount,
	}, nil
}

// GetInvoice fetches a bill with its items and customer through explicit
// lookups. The suspicious flag compares the bill against the storewide
// average total.
func (s *Service) GetInvoice(ctx context.Context, billID int64) (domain.InvoiceResponse, error) {
	bill, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}

	items, err := s.repo.GetBillItems(ctx, bill.ID)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}

	customer, err := s.repo.GetCustomer(ctx, bill.CustomerID)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}

	avg, err := s.repo.AverageBillTotal(ctx)
	if err != nil {
		return domain.InvoiceResponse{}, err
	}

	return domain.InvoiceResponse{
		Bill:       *bill,
		Items:      items,
		Customer:   *customer,
		Suspicious: insights.IsSuspiciousBill(bill.TotalAmount, avg),
	}, nil
}

func (s *Service) Recommendations(ctx context.Context) (domain.RecommendationResponse, error) {
	products, err := s.repo.ListRecentProducts(ctx, 3)
	if err != nil {
		return domain.RecommendationResponse{}, err
	}
	return s.insight.Recommend(ctx, products), nil
}

func (s *Service) SalesForecast(ctx context.Context, leadTimeDays int) (domain.SalesForecast, error) {
	daily, err := s.repo.DailySalesTotals(ctx, 0)
	if err != nil {
		return domain.SalesForecast{}, err
	}

	forecast, err := s.insight.Forecast(ctx, daily, leadTimeDays)
	if err != nil {
		if errors.Is(err, insights.ErrNotEnoughHistory) {
			return domain.SalesForecast{}, fmt.Errorf("%w: %s", store.ErrValidation, err)
		}
		return domain.SalesForecast{}, err
	}
	return forecast, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
