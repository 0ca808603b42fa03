// Package batch exposes the batch evaluation service: it scores a population
// over a fixed number of trials and returns unaveraged sums, so that results
// from several shards can be merged before averaging.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/iwvelando/portfolio-evaluator/internal/codec"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/internal/population"
	"github.com/iwvelando/portfolio-evaluator/internal/sampler"
	"github.com/iwvelando/portfolio-evaluator/internal/simulation"
	"github.com/iwvelando/portfolio-evaluator/internal/workers"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"go.uber.org/zap"
)

// Request is one batch evaluation call. The population is taken from
// PortfoliosBlob when it is non-empty and from Portfolios otherwise.
type Request struct {
	Portfolios     []model.Portfolio      `json:"portfolios,omitempty" msgpack:"portfolios,omitempty"`
	PortfoliosBlob []byte                 `json:"portfoliosBlob,omitempty" msgpack:"portfolios_blob,omitempty"`
	Config         model.EvaluationConfig `json:"config" msgpack:"config"`
	Iterations     int                    `json:"iterations" msgpack:"iterations"`
}

// Population resolves the request's portfolios, decoding the blob if set.
func (r Request) Population() ([]model.Portfolio, error) {
	if len(r.PortfoliosBlob) > 0 {
		return codec.DecodePortfolios(r.PortfoliosBlob)
	}
	return r.Portfolios, nil
}

// Service runs batch and population evaluations on a shared worker pool.
type Service struct {
	logger      *zap.Logger
	sampler     sampler.Sampler
	pool        *workers.Pool
	parallelism int
}

// NewService creates a batch service. parallelism bounds the number of
// portfolios scored at once inside a single computation; zero means
// GOMAXPROCS.
func NewService(logger *zap.Logger, s sampler.Sampler, pool *workers.Pool, parallelism int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:      logger,
		sampler:     s,
		pool:        pool,
		parallelism: parallelism,
	}
}

// Pool returns the worker pool the service submits to.
func (s *Service) Pool() *workers.Pool {
	return s.pool
}

// RunBatch validates req, then runs req.Iterations trials on the worker pool
// and returns the per-portfolio sums. Rejections are returned before any
// work is submitted. If ctx ends after the computation started, the
// computation still completes but its result is discarded.
func (s *Service) RunBatch(ctx context.Context, req Request) (model.PartialBatchResult, error) {
	portfolios, err := s.prepare(req.Population, req.Config, req.Iterations)
	if err != nil {
		s.logger.Debug("batch request rejected",
			zap.String("op", "batch.RunBatch"),
			zap.Error(err),
		)
		return model.PartialBatchResult{}, err
	}

	start := time.Now()
	result, err := workers.Do(ctx, s.pool, func() (model.PartialBatchResult, error) {
		return simulation.Run(context.Background(), portfolios, req.Config, s.sampler, req.Iterations, s.options())
	})
	if err != nil {
		s.logger.Error("batch evaluation failed",
			zap.String("op", "batch.RunBatch"),
			zap.Int("portfolios", len(portfolios)),
			zap.Int("iterations", req.Iterations),
			zap.Error(err),
		)
		return model.PartialBatchResult{}, err
	}

	s.logger.Info("batch evaluation completed",
		zap.String("op", "batch.RunBatch"),
		zap.Int("portfolios", len(portfolios)),
		zap.Int("iterations", req.Iterations),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// EvaluatePopulation runs the population evaluator on the worker pool.
func (s *Service) EvaluatePopulation(ctx context.Context, portfolios []model.Portfolio, cfg model.EvaluationConfig) (model.PopulationEvaluationResult, error) {
	if cfg.SimulationsPerGeneration < 1 {
		return model.PopulationEvaluationResult{}, fmt.Errorf("%w: simulations per generation must be at least 1, got %d",
			validation.ErrConfiguration, cfg.SimulationsPerGeneration)
	}
	resolve := func() ([]model.Portfolio, error) { return portfolios, nil }
	if _, err := s.prepare(resolve, cfg, cfg.SimulationsPerGeneration); err != nil {
		return model.PopulationEvaluationResult{}, err
	}

	start := time.Now()
	result, err := workers.Do(ctx, s.pool, func() (model.PopulationEvaluationResult, error) {
		return population.Evaluate(context.Background(), portfolios, cfg, s.sampler, s.options())
	})
	if err != nil {
		s.logger.Error("population evaluation failed",
			zap.String("op", "batch.EvaluatePopulation"),
			zap.Int("portfolios", len(portfolios)),
			zap.Error(err),
		)
		return model.PopulationEvaluationResult{}, err
	}

	s.logger.Info("population evaluation completed",
		zap.String("op", "batch.EvaluatePopulation"),
		zap.Int("portfolios", len(portfolios)),
		zap.Int("simulations", cfg.SimulationsPerGeneration),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *Service) options() simulation.Options {
	return simulation.Options{
		Parallelism: s.parallelism,
		Logger:      s.logger,
	}
}

// prepare performs every check that can be done without sampling: decoding,
// population size, scalar parameters, iteration count and, when the sampler
// reports its shape, the weight count of every portfolio.
func (s *Service) prepare(resolve func() ([]model.Portfolio, error), cfg model.EvaluationConfig, iterations int) ([]model.Portfolio, error) {
	portfolios, err := resolve()
	if err != nil {
		return nil, err
	}
	if len(portfolios) > constants.MaxBatchPortfolios {
		return nil, fmt.Errorf("%w: %d portfolios exceed the limit of %d",
			validation.ErrConfiguration, len(portfolios), constants.MaxBatchPortfolios)
	}
	if err := simulation.Validate(portfolios, cfg, iterations); err != nil {
		return nil, err
	}
	if _, assets, ok := sampler.ShapeOf(s.sampler); ok {
		weights := make([][]float64, len(portfolios))
		for i, p := range portfolios {
			weights[i] = p.Weights
		}
		if err := validation.ValidatePopulation(weights, assets); err != nil {
			return nil, err
		}
	}
	return portfolios, nil
}

// Merge adds partial results computed over disjoint trials for the same
// population. All inputs must be aligned with the same population.
func Merge(results ...model.PartialBatchResult) (model.PartialBatchResult, error) {
	if len(results) == 0 {
		return model.PartialBatchResult{}, fmt.Errorf("%w: nothing to merge", validation.ErrConfiguration)
	}
	merged := results[0]
	for _, r := range results[1:] {
		var err error
		if merged, err = merged.Merge(r); err != nil {
			return model.PartialBatchResult{}, err
		}
	}
	return merged, nil
}
