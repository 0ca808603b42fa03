// Package performance scores a single portfolio against a single scenario of
// simulated log returns.
package performance

import (
	"math"

	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"gonum.org/v1/gonum/stat"
)

// Evaluate converts the scenario's per-period log returns into the portfolio's
// realized dollar returns and annualizes their mean and sample volatility.
//
// A portfolio whose annualized volatility is within Epsilon of zero gets a
// Sharpe ratio of exactly 0: such portfolios are treated as non-comparable
// rather than infinitely good or bad.
func Evaluate(scenario model.ReturnMatrix, weights []float64, moneyToInvest, riskFreeRate, timeHorizonInDays float64) (model.PortfolioPerformance, error) {
	if err := validation.ValidateParams(moneyToInvest, timeHorizonInDays); err != nil {
		return model.PortfolioPerformance{}, err
	}
	if err := validation.ValidateScenario(scenario); err != nil {
		return model.PortfolioPerformance{}, err
	}
	if err := validation.ValidateDimensions(len(weights), scenario.Assets()); err != nil {
		return model.PortfolioPerformance{}, err
	}

	periodReturns := PeriodReturns(scenario, weights, moneyToInvest)

	periods := float64(len(periodReturns))
	meanReturn := stat.Mean(periodReturns, nil)
	volatility := math.Sqrt(stat.Variance(periodReturns, nil))

	periodsPerYear := periods / (timeHorizonInDays / constants.DaysPerYear)
	annualizedReturn := meanReturn * periodsPerYear
	annualizedVolatility := volatility * math.Sqrt(periodsPerYear)

	riskFreeReturn := moneyToInvest * riskFreeRate

	sharpe := 0.0
	if annualizedVolatility > constants.Epsilon {
		sharpe = (annualizedReturn - riskFreeReturn) / annualizedVolatility
	}

	return model.PortfolioPerformance{
		PeriodReturns:               periodReturns,
		AnnualizedReturn:            annualizedReturn,
		PercentAnnualizedVolatility: annualizedVolatility / moneyToInvest,
		SharpeRatio:                 sharpe,
	}, nil
}

// EvaluateWithConfig is Evaluate with the scalar parameters taken from cfg.
func EvaluateWithConfig(scenario model.ReturnMatrix, portfolio model.Portfolio, cfg model.EvaluationConfig) (model.PortfolioPerformance, error) {
	return Evaluate(scenario, portfolio.Weights, cfg.MoneyToInvest, cfg.RiskFreeRate, cfg.TimeHorizonInDays)
}

// PeriodReturns returns the realized dollar return of every period. Periods
// are independent of each other. Dimensions are not checked.
func PeriodReturns(scenario model.ReturnMatrix, weights []float64, moneyToInvest float64) []float64 {
	out := make([]float64, len(scenario))
	for t, row := range scenario {
		var weighted float64
		for a, logReturn := range row {
			weighted += weights[a] * math.Expm1(logReturn)
		}
		out[t] = weighted * moneyToInvest
	}
	return out
}
