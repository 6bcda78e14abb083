// Package insights implements the store analytics: a next-day sales forecast
// fit by linear regression over a day index, recently-added product
// recommendations, reorder levels and the suspicious-bill check.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"farmapos/internal/cache"
	"farmapos/internal/domain"
)

// ErrNotEnoughHistory is returned when fewer than two days of sales exist,
// which is too little to fit a trend line.
var ErrNotEnoughHistory = errors.New("not enough sales history")

type Engine struct {
	cache    cache.InsightsCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.InsightsCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopInsightsCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 20 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Forecast predicts the next day's sales from the observed daily totals.
// Days are indexed 0..n-1 in order and the prediction point is n+1. The
// reorder level is the average daily sales times the supplier lead time.
func (e *Engine) Forecast(ctx context.Context, daily []domain.DailySales, leadTimeDays int) (domain.SalesForecast, error) {
	if leadTimeDays < 1 {
		leadTimeDays = 7
	}

	cacheKey := fmt.Sprintf("farmapos:insights:forecast:lead:%d", leadTimeDays)
	if payload, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		var cached domain.SalesForecast
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}

	if len(daily) < 2 {
		return domain.SalesForecast{}, ErrNotEnoughHistory
	}

	totals := make([]float64, 0, len(daily))
	sum := 0.0
	for _, day := range daily {
		val, _ := day.Total.Float64()
		totals = append(totals, val)
		sum += val
	}

	slope, intercept := fitLine(totals)
	next := intercept + slope*float64(len(totals)+1)
	avg := sum / float64(len(totals))

	forecast := domain.SalesForecast{
		DaysObserved:  len(totals),
		NextDaySales:  round2(next),
		AvgDailySales: round2(avg),
		LeadTimeDays:  leadTimeDays,
		ReorderLevel:  round2(ReorderLevel(avg, leadTimeDays)),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	if payload, err := json.Marshal(forecast); err == nil {
		_ = e.cache.Set(ctx, cacheKey, payload, e.cacheTTL)
	}
	return forecast, nil
}

// Recommend wraps the given recently-added products into a response and
// caches it. Selection (most recent first) is done by the store query.
func (e *Engine) Recommend(ctx context.Context, products []domain.Product) domain.RecommendationResponse {
	cacheKey := "farmapos:insights:recent-products"
	if payload, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		var cached domain.RecommendationResponse
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached
		}
	}

	resp := domain.RecommendationResponse{
		Products:    products,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if payload, err := json.Marshal(resp); err == nil {
		_ = e.cache.Set(ctx, cacheKey, payload, e.cacheTTL)
	}
	return resp
}

// ReorderLevel is the stock level at which a product should be reordered.
func ReorderLevel(avgDailySales float64, leadTimeDays int) float64 {
	return avgDailySales * float64(leadTimeDays)
}

// IsSuspiciousBill flags a bill whose total is more than twice the average
// bill total. A non-positive average (no history) never flags.
func IsSuspiciousBill(total decimal.Decimal, avgBill decimal.Decimal) bool {
	if !avgBill.IsPositive() {
		return false
	}
	return total.GreaterThan(avgBill.Mul(decimal.NewFromInt(2)))
}

// fitLine computes the least-squares slope and intercept of y over the index
// 0..len(y)-1. Callers must pass at least two points.
func fitLine(y []float64) (slope float64, intercept float64) {
	n := float64(len(y))
	xBar := (n - 1) / 2

	yBar := 0.0
	for _, val := range y {
		yBar += val
	}
	yBar /= n

	cov := 0.0
	variance := 0.0
	for i, val := range y {
		dx := float64(i) - xBar
		cov += dx * (val - yBar)
		variance += dx * dx
	}
	if variance == 0 {
		return 0, yBar
	}
	return cov / variance, yBar - (cov/variance)*xBar
}

func round2(val float64) float64 {
	scaled := decimal.NewFromFloat(val).Round(2)
	out, _ := scaled.Float64()
	return out
}
