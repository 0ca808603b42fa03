package performance

import (
	"errors"
	"math"
	"testing"

	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
)

func TestEvaluateTwoPeriodScenario(t *testing.T) {
	scenario := model.ReturnMatrix{
		{0.01, 0.02},
		{-0.01, 0.0},
	}

	perf, err := Evaluate(scenario, []float64{0.5, 0.5}, 1000, 0.02, 30)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if len(perf.PeriodReturns) != 2 {
		t.Fatalf("expected 2 period returns, got %d", len(perf.PeriodReturns))
	}

	tests := []struct {
		name     string
		got      float64
		expected float64
		delta    float64
	}{
		{"First period dollar return", perf.PeriodReturns[0], 15.13, 0.005},
		{"Second period dollar return", perf.PeriodReturns[1], -4.98, 0.005},
		{"Annualized return", perf.AnnualizedReturn, 123.50, 0.005},
		{"Percent annualized volatility", perf.PercentAnnualizedVolatility, 0.0701, 0.00005},
		{"Sharpe ratio", perf.SharpeRatio, 1.48, 0.005},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.expected) > tt.delta {
				t.Errorf("got %.6f, expected %.4f (±%g)", tt.got, tt.expected, tt.delta)
			}
		})
	}
}

func TestEvaluateZeroVolatilityHasZeroSharpe(t *testing.T) {
	// All weight on the first asset, which returns the same every period.
	scenario := model.ReturnMatrix{
		{0.01, 0.05},
		{0.01, -0.03},
		{0.01, 0.02},
		{0.01, 0.00},
	}

	perf, err := Evaluate(scenario, []float64{1, 0}, 1000, 0.02, 30)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if perf.SharpeRatio != 0.0 {
		t.Errorf("expected Sharpe ratio of exactly 0, got %v", perf.SharpeRatio)
	}
	if math.IsNaN(perf.PercentAnnualizedVolatility) || perf.PercentAnnualizedVolatility > 1e-9 {
		t.Errorf("expected zero volatility, got %v", perf.PercentAnnualizedVolatility)
	}
	if perf.AnnualizedReturn <= 0 {
		t.Errorf("expected a positive annualized return, got %v", perf.AnnualizedReturn)
	}
}

func TestEvaluateIsOrderIndependent(t *testing.T) {
	forward := model.ReturnMatrix{{0.01, 0.02}, {-0.01, 0.0}, {0.03, -0.02}}
	reversed := model.ReturnMatrix{{0.03, -0.02}, {-0.01, 0.0}, {0.01, 0.02}}
	weights := []float64{0.3, 0.7}

	a, err := Evaluate(forward, weights, 5000, 0.01, 90)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	b, err := Evaluate(reversed, weights, 5000, 0.01, 90)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if math.Abs(a.AnnualizedReturn-b.AnnualizedReturn) > 1e-9 {
		t.Errorf("annualized return depends on order: %v vs %v", a.AnnualizedReturn, b.AnnualizedReturn)
	}
	if math.Abs(a.SharpeRatio-b.SharpeRatio) > 1e-9 {
		t.Errorf("Sharpe ratio depends on order: %v vs %v", a.SharpeRatio, b.SharpeRatio)
	}
}

func TestEvaluateErrors(t *testing.T) {
	valid := model.ReturnMatrix{{0.01, 0.02}, {-0.01, 0.0}}

	tests := []struct {
		name     string
		scenario model.ReturnMatrix
		weights  []float64
		money    float64
		horizon  float64
		wantErr  error
	}{
		{"Empty scenario", model.ReturnMatrix{}, []float64{0.5, 0.5}, 1000, 30, validation.ErrInsufficientData},
		{"Single period", model.ReturnMatrix{{0.01, 0.02}}, []float64{0.5, 0.5}, 1000, 30, validation.ErrInsufficientData},
		{"Zero money", valid, []float64{0.5, 0.5}, 0, 30, validation.ErrConfiguration},
		{"Zero horizon", valid, []float64{0.5, 0.5}, 1000, 0, validation.ErrConfiguration},
		{"Weight count mismatch", valid, []float64{1}, 1000, 30, validation.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.scenario, tt.weights, tt.money, 0.02, tt.horizon)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Evaluate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvaluateWithConfig(t *testing.T) {
	scenario := model.ReturnMatrix{{0.01, 0.02}, {-0.01, 0.0}}
	cfg := model.EvaluationConfig{MoneyToInvest: 1000, RiskFreeRate: 0.02, TimeHorizonInDays: 30}

	direct, err := Evaluate(scenario, []float64{0.5, 0.5}, 1000, 0.02, 30)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	viaConfig, err := EvaluateWithConfig(scenario, model.Portfolio{Weights: []float64{0.5, 0.5}}, cfg)
	if err != nil {
		t.Fatalf("EvaluateWithConfig() error = %v", err)
	}

	if direct.SharpeRatio != viaConfig.SharpeRatio || direct.AnnualizedReturn != viaConfig.AnnualizedReturn {
		t.Errorf("EvaluateWithConfig() = %+v, expected %+v", viaConfig, direct)
	}
}
