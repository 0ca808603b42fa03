package model

import (
	"fmt"

	"github.com/iwvelando/portfolio-evaluator/pkg/mathutil"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
)

// PartialBatchResult holds unaveraged per-portfolio sums over Iterations
// trials. Results computed over disjoint trials for the same population and
// config merge by addition; dividing by the combined Iterations yields the
// averages of one combined run.
type PartialBatchResult struct {
	SumReturns      []float64    `json:"sumReturns" msgpack:"sum_returns"`
	SumVolatilities []float64    `json:"sumVolatilities" msgpack:"sum_volatilities"`
	SumSharpes      []float64    `json:"sumSharpes" msgpack:"sum_sharpes"`
	LastScenario    ReturnMatrix `json:"lastScenario" msgpack:"last_scenario"`
	Iterations      int          `json:"iterations" msgpack:"iterations"`
}

// NewPartialBatchResult returns zeroed sums for a population of size n.
func NewPartialBatchResult(n int) PartialBatchResult {
	return PartialBatchResult{
		SumReturns:      make([]float64, n),
		SumVolatilities: make([]float64, n),
		SumSharpes:      make([]float64, n),
	}
}

// Len returns the population size the sums are aligned with.
func (p PartialBatchResult) Len() int {
	return len(p.SumReturns)
}

// Aligned reports whether the three sum slices cover the same number of
// portfolios.
func (p PartialBatchResult) Aligned() bool {
	return len(p.SumVolatilities) == len(p.SumReturns) && len(p.SumSharpes) == len(p.SumReturns)
}

// Add accumulates the metrics of one portfolio for one trial.
func (p *PartialBatchResult) Add(idx int, perf PortfolioPerformance) {
	p.SumReturns[idx] += perf.AnnualizedReturn
	p.SumVolatilities[idx] += perf.PercentAnnualizedVolatility
	p.SumSharpes[idx] += perf.SharpeRatio
}

// Merge returns the element-wise sum of p and other. The last scenario of
// other wins when other covers at least one trial.
func (p PartialBatchResult) Merge(other PartialBatchResult) (PartialBatchResult, error) {
	if !p.Aligned() || !other.Aligned() {
		return PartialBatchResult{}, fmt.Errorf("%w: cannot merge partial results with ragged sums (%d/%d/%d and %d/%d/%d)",
			validation.ErrConfiguration,
			len(p.SumReturns), len(p.SumVolatilities), len(p.SumSharpes),
			len(other.SumReturns), len(other.SumVolatilities), len(other.SumSharpes))
	}
	if p.Len() != other.Len() {
		return PartialBatchResult{}, fmt.Errorf("%w: cannot merge partial results for %d and %d portfolios",
			validation.ErrConfiguration, p.Len(), other.Len())
	}

	merged := NewPartialBatchResult(p.Len())
	for i := 0; i < p.Len(); i++ {
		merged.SumReturns[i] = p.SumReturns[i] + other.SumReturns[i]
		merged.SumVolatilities[i] = p.SumVolatilities[i] + other.SumVolatilities[i]
		merged.SumSharpes[i] = p.SumSharpes[i] + other.SumSharpes[i]
	}
	merged.Iterations = p.Iterations + other.Iterations
	merged.LastScenario = p.LastScenario
	if other.Iterations > 0 {
		merged.LastScenario = other.LastScenario
	}
	return merged, nil
}

// Averages divides every sum by Iterations.
func (p PartialBatchResult) Averages() (returns, volatilities, sharpes []float64, err error) {
	if !p.Aligned() {
		return nil, nil, nil, fmt.Errorf("%w: cannot average a partial result with ragged sums",
			validation.ErrConfiguration)
	}
	if p.Iterations <= 0 {
		return nil, nil, nil, fmt.Errorf("%w: cannot average a partial result without iterations",
			validation.ErrConfiguration)
	}
	n := float64(p.Iterations)
	return mathutil.ScaleInto(p.SumReturns, n),
		mathutil.ScaleInto(p.SumVolatilities, n),
		mathutil.ScaleInto(p.SumSharpes, n),
		nil
}
