// Package model defines the data structures shared by the performance
// calculator, the population evaluator and the batch service.
package model

// Portfolio is an ordered set of asset weights. Weights are expected to sum to
// 1.0, which is the caller's responsibility.
type Portfolio struct {
	Name    string    `json:"name,omitempty" msgpack:"name,omitempty" yaml:"name,omitempty"`
	Weights []float64 `json:"weights" msgpack:"weights" yaml:"weights"`
}

// ReturnMatrix holds log returns: one row per period, one column per asset.
type ReturnMatrix [][]float64

// Periods returns the number of rows.
func (m ReturnMatrix) Periods() int {
	return len(m)
}

// Assets returns the number of columns of the first row, or 0 for an empty
// matrix.
func (m ReturnMatrix) Assets() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Rectangular reports whether every row has the same width.
func (m ReturnMatrix) Rectangular() bool {
	width := m.Assets()
	for _, row := range m {
		if len(row) != width {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the matrix.
func (m ReturnMatrix) Clone() ReturnMatrix {
	if m == nil {
		return nil
	}
	out := make(ReturnMatrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// EvaluationConfig carries the parameters shared by every trial of one
// evaluation call.
type EvaluationConfig struct {
	MoneyToInvest            float64 `json:"moneyToInvest" msgpack:"money_to_invest" mapstructure:"moneyToInvest"`
	RiskFreeRate             float64 `json:"riskFreeRate" msgpack:"risk_free_rate" mapstructure:"riskFreeRate"`
	TimeHorizonInDays        float64 `json:"timeHorizonInDays" msgpack:"time_horizon_in_days" mapstructure:"timeHorizonInDays"`
	SimulationsPerGeneration int     `json:"simulationsPerGeneration,omitempty" msgpack:"simulations_per_generation,omitempty" mapstructure:"simulationsPerGeneration"`
}

// PortfolioPerformance is the outcome of scoring one portfolio against one
// scenario.
type PortfolioPerformance struct {
	PeriodReturns               []float64
	AnnualizedReturn            float64
	PercentAnnualizedVolatility float64
	SharpeRatio                 float64
}

// PopulationEvaluationResult holds per-portfolio averages, aligned with the
// input population, and population-wide summary statistics.
type PopulationEvaluationResult struct {
	AverageReturns      []float64    `json:"averageReturns"`
	AverageVolatilities []float64    `json:"averageVolatilities"`
	AverageSharpeRatios []float64    `json:"averageSharpeRatios"`
	LastScenario        ReturnMatrix `json:"lastScenario"`

	BestReturn                  float64 `json:"bestReturn"`
	PopulationAverageReturn     float64 `json:"populationAverageReturn"`
	BestVolatility              float64 `json:"bestVolatility"`
	PopulationAverageVolatility float64 `json:"populationAverageVolatility"`
	BestSharpe                  float64 `json:"bestSharpe"`
	PopulationAverageSharpe     float64 `json:"populationAverageSharpe"`
}
