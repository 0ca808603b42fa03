// Package shard splits a population evaluation across several batch runners,
// local or remote, and merges their partial sums into one result.
package shard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/portfolio-evaluator/internal/batch"
	"github.com/iwvelando/portfolio-evaluator/internal/codec"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/internal/population"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchRunner runs a batch of trials and returns unaveraged sums. It is
// implemented by *batch.Service and *rpc.Client.
type BatchRunner interface {
	RunBatch(ctx context.Context, req batch.Request) (model.PartialBatchResult, error)
}

// Coordinator fans one evaluation out to its runners.
type Coordinator struct {
	runners []BatchRunner
	logger  *zap.Logger
}

// NewCoordinator creates a coordinator over runners.
func NewCoordinator(logger *zap.Logger, runners ...BatchRunner) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{runners: runners, logger: logger}
}

// Split divides total trials over n shards, spreading the remainder over the
// first shards.
func Split(total, n int) []int {
	if n <= 0 {
		return nil
	}
	counts := make([]int, n)
	for i := range counts {
		counts[i] = total / n
		if i < total%n {
			counts[i]++
		}
	}
	return counts
}

// Evaluate runs cfg.SimulationsPerGeneration trials spread across the
// runners and reduces the merged sums like population.Evaluate does.
func (c *Coordinator) Evaluate(ctx context.Context, portfolios []model.Portfolio, cfg model.EvaluationConfig) (model.PopulationEvaluationResult, error) {
	if len(c.runners) == 0 {
		return model.PopulationEvaluationResult{}, fmt.Errorf("%w: no shards configured", validation.ErrConfiguration)
	}
	if len(portfolios) == 0 {
		return model.PopulationEvaluationResult{}, fmt.Errorf("%w: no portfolios submitted", validation.ErrEmptyPopulation)
	}
	if cfg.SimulationsPerGeneration < 1 {
		return model.PopulationEvaluationResult{}, fmt.Errorf("%w: simulations per generation must be at least 1, got %d",
			validation.ErrConfiguration, cfg.SimulationsPerGeneration)
	}

	blob, err := codec.EncodePortfolios(portfolios)
	if err != nil {
		return model.PopulationEvaluationResult{}, err
	}

	runID := uuid.NewString()
	logger := c.logger.With(zap.String("run_id", runID))
	start := time.Now()

	counts := Split(cfg.SimulationsPerGeneration, len(c.runners))
	partials := make([]model.PartialBatchResult, len(c.runners))

	g, gctx := errgroup.WithContext(ctx)
	for i, runner := range c.runners {
		if counts[i] == 0 {
			partials[i] = model.NewPartialBatchResult(len(portfolios))
			continue
		}
		g.Go(func() error {
			shardStart := time.Now()
			partial, err := runner.RunBatch(gctx, batch.Request{
				PortfoliosBlob: blob,
				Config:         cfg,
				Iterations:     counts[i],
			})
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			if !partial.Aligned() || partial.Len() != len(portfolios) {
				return fmt.Errorf("%w: shard %d returned %d/%d/%d sums for %d portfolios",
					validation.ErrComputation, i, len(partial.SumReturns), len(partial.SumVolatilities),
					len(partial.SumSharpes), len(portfolios))
			}
			if partial.Iterations != counts[i] {
				return fmt.Errorf("%w: shard %d reported %d iterations, %d were requested",
					validation.ErrComputation, i, partial.Iterations, counts[i])
			}
			logger.Debug("shard completed",
				zap.String("op", "shard.Evaluate"),
				zap.Int("shard", i),
				zap.Int("iterations", counts[i]),
				zap.Duration("duration", time.Since(shardStart)),
			)
			partials[i] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("sharded evaluation failed",
			zap.String("op", "shard.Evaluate"),
			zap.Error(err),
		)
		return model.PopulationEvaluationResult{}, err
	}

	merged, err := batch.Merge(partials...)
	if err != nil {
		return model.PopulationEvaluationResult{}, err
	}
	result, err := population.FromPartial(merged)
	if err != nil {
		return model.PopulationEvaluationResult{}, err
	}

	logger.Info("sharded evaluation completed",
		zap.String("op", "shard.Evaluate"),
		zap.Int("shards", len(c.runners)),
		zap.Int("portfolios", len(portfolios)),
		zap.Int("simulations", cfg.SimulationsPerGeneration),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}
