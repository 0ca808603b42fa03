// Package simulation runs the Monte Carlo trial loop shared by the population
// evaluator and the batch service: draw a scenario, score the whole
// population against it in parallel, fold the metrics into per-portfolio sums.
package simulation

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/internal/performance"
	"github.com/iwvelando/portfolio-evaluator/internal/sampler"
	"github.com/iwvelando/portfolio-evaluator/pkg/mathutil"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tunes a run.
type Options struct {
	// Parallelism bounds the number of portfolios scored at once within a
	// trial. Zero means runtime.GOMAXPROCS(0).
	Parallelism int

	// Cancelable makes Run check ctx between trials. Batch computations leave
	// it unset: once started they run to completion.
	Cancelable bool

	Logger *zap.Logger
}

func (o Options) parallelism() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

// Validate runs the precondition checks of Run without doing any work.
func Validate(population []model.Portfolio, cfg model.EvaluationConfig, iterations int) error {
	if len(population) == 0 {
		return fmt.Errorf("%w: no portfolios submitted", validation.ErrEmptyPopulation)
	}
	if err := validation.ValidateParams(cfg.MoneyToInvest, cfg.TimeHorizonInDays); err != nil {
		return err
	}
	return validation.ValidateIterations(iterations)
}

// Run performs iterations trials and returns the unaveraged sums of every
// portfolio's annualized return, volatility and Sharpe ratio, aligned with
// population, together with the scenario of the last trial.
func Run(ctx context.Context, population []model.Portfolio, cfg model.EvaluationConfig, s sampler.Sampler, iterations int, opts Options) (result model.PartialBatchResult, err error) {
	if err := Validate(population, cfg, iterations); err != nil {
		return model.PartialBatchResult{}, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	defer func() {
		if r := recover(); r != nil {
			result = model.PartialBatchResult{}
			err = validation.Fault("simulation.Run", r)
		}
	}()

	start := time.Now()
	sums := model.NewPartialBatchResult(len(population))
	var last model.ReturnMatrix
	for trial := 0; trial < iterations; trial++ {
		if opts.Cancelable {
			if err := ctx.Err(); err != nil {
				return model.PartialBatchResult{}, err
			}
		}

		scenario := s.SampleReturns()
		if err := validation.ValidateScenario(scenario); err != nil {
			return model.PartialBatchResult{}, fmt.Errorf("trial %d: %w", trial, err)
		}

		scores, err := ScoreTrial(scenario, population, cfg, opts.parallelism())
		if err != nil {
			return model.PartialBatchResult{}, fmt.Errorf("trial %d: %w", trial, err)
		}
		for idx, perf := range scores {
			sums.Add(idx, perf)
		}
		last = scenario
	}
	sums.LastScenario = last
	sums.Iterations = iterations

	logger.Debug("simulation trials completed",
		zap.String("op", "simulation.Run"),
		zap.Int("portfolios", len(population)),
		zap.Int("iterations", iterations),
		zap.Duration("duration", time.Since(start)),
	)
	return sums, nil
}

// ScoreTrial evaluates every portfolio against one scenario, at most
// parallelism at a time. Results are aligned with population; the per-period
// return vectors are dropped. A NaN or infinite metric fails the trial with
// ErrComputation, since it would poison every sum it is folded into.
func ScoreTrial(scenario model.ReturnMatrix, population []model.Portfolio, cfg model.EvaluationConfig, parallelism int) ([]model.PortfolioPerformance, error) {
	scores := make([]model.PortfolioPerformance, len(population))

	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for idx := range population {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = validation.Fault(fmt.Sprintf("portfolio %d", idx), r)
				}
			}()

			perf, err := performance.EvaluateWithConfig(scenario, population[idx], cfg)
			if err != nil {
				return fmt.Errorf("portfolio %d: %w", idx, err)
			}
			if !mathutil.AllFinite(perf.AnnualizedReturn, perf.PercentAnnualizedVolatility, perf.SharpeRatio) {
				return fmt.Errorf("%w: portfolio %d: non-finite metrics (return %v, volatility %v, sharpe %v)",
					validation.ErrComputation, idx, perf.AnnualizedReturn, perf.PercentAnnualizedVolatility, perf.SharpeRatio)
			}
			perf.PeriodReturns = nil
			scores[idx] = perf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
