package insights

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"farmapos/internal/domain"
)

func day(offset int, total string) domain.DailySales {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return domain.DailySales{
		Day:   base.AddDate(0, 0, offset),
		Total: decimal.RequireFromString(total),
	}
}

func TestForecastLinearTrend(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	forecast, err := engine.Forecast(context.Background(), []domain.DailySales{
		day(0, "10.00"),
		day(1, "20.00"),
		day(2, "30.00"),
	}, 7)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}

	// y = 10 + 10x fit over days 0..2, predicted at day index 4.
	if math.Abs(forecast.NextDaySales-50.0) > 1e-9 {
		t.Fatalf("expected next day sales 50, got %v", forecast.NextDaySales)
	}
	if math.Abs(forecast.AvgDailySales-20.0) > 1e-9 {
		t.Fatalf("expected avg daily sales 20, got %v", forecast.AvgDailySales)
	}
	if math.Abs(forecast.ReorderLevel-140.0) > 1e-9 {
		t.Fatalf("expected reorder level 140, got %v", forecast.ReorderLevel)
	}
	if forecast.DaysObserved != 3 {
		t.Fatalf("expected 3 observed days, got %d", forecast.DaysObserved)
	}
}

func TestForecastFlatHistory(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	forecast, err := engine.Forecast(context.Background(), []domain.DailySales{
		day(0, "75.00"),
		day(1, "75.00"),
	}, 3)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if math.Abs(forecast.NextDaySales-75.0) > 1e-9 {
		t.Fatalf("expected flat forecast 75, got %v", forecast.NextDaySales)
	}
	if math.Abs(forecast.ReorderLevel-225.0) > 1e-9 {
		t.Fatalf("expected reorder level 225, got %v", forecast.ReorderLevel)
	}
}

func TestForecastRequiresTwoDays(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	_, err := engine.Forecast(context.Background(), []domain.DailySales{day(0, "10.00")}, 7)
	if !errors.Is(err, ErrNotEnoughHistory) {
		t.Fatalf("expected ErrNotEnoughHistory, got %v", err)
	}
}

func TestRecommendPassesThroughProducts(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	products := []domain.Product{
		{ID: 3, Name: "Vitamin C", Price: decimal.RequireFromString("15.75")},
		{ID: 2, Name: "Cough Syrup", Price: decimal.RequireFromString("48.00")},
	}

	resp := engine.Recommend(context.Background(), products)
	if len(resp.Products) != 2 {
		t.Fatalf("expected 2 recommended products, got %d", len(resp.Products))
	}
	if resp.Products[0].ID != 3 {
		t.Fatalf("expected most recent product first, got id %d", resp.Products[0].ID)
	}
}

func TestIsSuspiciousBill(t *testing.T) {
	avg := decimal.RequireFromString("100.00")

	if IsSuspiciousBill(decimal.RequireFromString("150.00"), avg) {
		t.Fatalf("bill below twice the average should not be suspicious")
	}
	if IsSuspiciousBill(decimal.RequireFromString("200.00"), avg) {
		t.Fatalf("bill at exactly twice the average should not be suspicious")
	}
	if !IsSuspiciousBill(decimal.RequireFromString("200.01"), avg) {
		t.Fatalf("bill above twice the average should be suspicious")
	}
	if IsSuspiciousBill(decimal.RequireFromString("500.00"), decimal.Zero) {
		t.Fatalf("no history should never flag")
	}
}
