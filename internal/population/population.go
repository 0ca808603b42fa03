// Package population scores every portfolio of a population over a batch of
// simulated scenarios and summarizes the population.
package population

import (
	"context"
	"fmt"

	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/internal/sampler"
	"github.com/iwvelando/portfolio-evaluator/internal/simulation"
	"github.com/iwvelando/portfolio-evaluator/pkg/mathutil"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"go.uber.org/zap"
)

// Evaluate runs cfg.SimulationsPerGeneration trials against population and
// returns per-portfolio averages aligned with the input, plus the best and
// mean of each metric across the population. Best volatility is the lowest.
func Evaluate(ctx context.Context, population []model.Portfolio, cfg model.EvaluationConfig, s sampler.Sampler, opts simulation.Options) (model.PopulationEvaluationResult, error) {
	if len(population) == 0 {
		return model.PopulationEvaluationResult{}, fmt.Errorf("%w: no portfolios submitted", validation.ErrEmptyPopulation)
	}
	if cfg.SimulationsPerGeneration < 1 {
		return model.PopulationEvaluationResult{}, fmt.Errorf("%w: simulations per generation must be at least 1, got %d",
			validation.ErrConfiguration, cfg.SimulationsPerGeneration)
	}

	partial, err := simulation.Run(ctx, population, cfg, s, cfg.SimulationsPerGeneration, opts)
	if err != nil {
		return model.PopulationEvaluationResult{}, err
	}

	result, err := FromPartial(partial)
	if err != nil {
		return model.PopulationEvaluationResult{}, err
	}

	if opts.Logger != nil {
		opts.Logger.Debug("population evaluated",
			zap.String("op", "population.Evaluate"),
			zap.Int("portfolios", len(population)),
			zap.Int("simulations", cfg.SimulationsPerGeneration),
			zap.Float64("best_sharpe", result.BestSharpe),
		)
	}
	return result, nil
}

// FromPartial averages merged partial sums and reduces them to a population
// result. The sums must cover at least one trial.
func FromPartial(partial model.PartialBatchResult) (model.PopulationEvaluationResult, error) {
	if partial.Len() == 0 {
		return model.PopulationEvaluationResult{}, fmt.Errorf("%w: partial result covers no portfolios", validation.ErrEmptyPopulation)
	}
	returns, volatilities, sharpes, err := partial.Averages()
	if err != nil {
		return model.PopulationEvaluationResult{}, err
	}
	return Reduce(returns, volatilities, sharpes, partial.LastScenario), nil
}

// Reduce computes the population summary over already averaged metrics.
func Reduce(returns, volatilities, sharpes []float64, lastScenario model.ReturnMatrix) model.PopulationEvaluationResult {
	return model.PopulationEvaluationResult{
		AverageReturns:      returns,
		AverageVolatilities: volatilities,
		AverageSharpeRatios: sharpes,
		LastScenario:        lastScenario,

		BestReturn:                  mathutil.MaxOf(returns),
		PopulationAverageReturn:     mathutil.MeanOf(returns),
		BestVolatility:              mathutil.MinOf(volatilities),
		PopulationAverageVolatility: mathutil.MeanOf(volatilities),
		BestSharpe:                  mathutil.MaxOf(sharpes),
		PopulationAverageSharpe:     mathutil.MeanOf(sharpes),
	}
}
