package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
)

// Validate returns an error for configurations that cannot be evaluated.
func (c *Configuration) Validate() error {
	if err := validation.ValidateParams(c.Evaluation.MoneyToInvest, c.Evaluation.TimeHorizonInDays); err != nil {
		return err
	}
	if c.Evaluation.SimulationsPerGeneration < 1 {
		return fmt.Errorf("%w: simulationsPerGeneration must be at least 1, got %d",
			validation.ErrConfiguration, c.Evaluation.SimulationsPerGeneration)
	}
	if c.Evaluation.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism must be non-negative, got %d",
			validation.ErrConfiguration, c.Evaluation.Parallelism)
	}

	weights := make([][]float64, len(c.Population))
	for i, p := range c.Population {
		weights[i] = p.Weights
	}
	if err := validation.ValidatePopulation(weights, c.Sampler.AssetCount()); err != nil {
		return err
	}

	return c.Sampler.Validate()
}

// Validate checks the sampler section on its own.
func (s SamplerConfig) Validate() error {
	if s.Periods < constants.MinScenarioPeriods {
		return fmt.Errorf("%w: sampler must draw at least %d periods, got %d",
			validation.ErrInsufficientData, constants.MinScenarioPeriods, s.Periods)
	}

	switch strings.ToLower(s.Model) {
	case constants.SamplerModelGBM:
		if len(s.Assets) == 0 {
			return fmt.Errorf("%w: gbm sampler needs at least one asset", validation.ErrConfiguration)
		}
		for _, asset := range s.Assets {
			if asset.Volatility < 0 {
				return fmt.Errorf("%w: asset %q has negative volatility", validation.ErrConfiguration, asset.Name)
			}
		}
		if len(s.Correlations) > 0 {
			if len(s.Correlations) != len(s.Assets) {
				return fmt.Errorf("%w: correlation matrix has %d rows for %d assets",
					validation.ErrConfiguration, len(s.Correlations), len(s.Assets))
			}
			for i, row := range s.Correlations {
				if len(row) != len(s.Assets) {
					return fmt.Errorf("%w: correlation row %d has %d entries for %d assets",
						validation.ErrConfiguration, i, len(row), len(s.Assets))
				}
			}
		}
	case constants.SamplerModelBootstrap:
		if len(s.History) == 0 && s.HistoryFile == "" {
			return fmt.Errorf("%w: bootstrap sampler needs history or historyFile", validation.ErrConfiguration)
		}
		if len(s.History) > 0 {
			if err := validation.ValidateScenario(s.History); err != nil {
				return fmt.Errorf("bootstrap history: %w", err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown sampler model %q", validation.ErrConfiguration, s.Model)
	}
	return nil
}

// AssetCount returns the number of assets the sampler produces, or 0 when it
// is only known after loading a history file.
func (s SamplerConfig) AssetCount() int {
	switch strings.ToLower(s.Model) {
	case constants.SamplerModelGBM:
		return len(s.Assets)
	case constants.SamplerModelBootstrap:
		if len(s.History) > 0 {
			return len(s.History[0])
		}
	}
	return 0
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	names := c.PortfolioNames()
	for i, p := range c.Population {
		if strings.TrimSpace(p.Name) == "" {
			warnings = append(warnings, fmt.Sprintf("Portfolio %d has no name, using %q", i+1, names[i]))
		}

		sum := 0.0
		negative := false
		for _, w := range p.Weights {
			sum += w
			if w < 0 && !negative {
				negative = true
				warnings = append(warnings, fmt.Sprintf("Portfolio '%s' has a negative weight (%.4f)", names[i], w))
			}
		}
		if math.Abs(sum-1) > constants.WeightSumTolerance {
			warnings = append(warnings, fmt.Sprintf("Portfolio '%s' weights sum to %.6f, not 1", names[i], sum))
		}
	}

	if c.Evaluation.RiskFreeRate > 1 {
		warnings = append(warnings, fmt.Sprintf("Risk-free rate %.2f looks like a percentage; it is applied as a fraction",
			c.Evaluation.RiskFreeRate))
	}
	if c.Sampler.Seed == 0 {
		warnings = append(warnings, "Sampler seed is 0; scenarios will differ between runs")
	}
	if len(c.Shards) > 0 && c.Evaluation.SimulationsPerGeneration < len(c.Shards) {
		warnings = append(warnings, fmt.Sprintf("%d simulations spread over %d shards leaves some shards idle",
			c.Evaluation.SimulationsPerGeneration, len(c.Shards)))
	}

	return warnings
}
