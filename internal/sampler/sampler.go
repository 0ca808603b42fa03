// Package sampler provides the scenario generators that feed the Monte Carlo
// engine. The engine only depends on the Sampler interface; the generators
// here cover the correlated geometric Brownian motion and historical
// bootstrap models.
package sampler

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/iwvelando/portfolio-evaluator/internal/config"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
)

// Sampler draws one independent scenario of log returns per call.
// Implementations must be safe for concurrent use.
type Sampler interface {
	SampleReturns() model.ReturnMatrix
}

// Shaped is implemented by samplers that know the dimensions of the
// scenarios they draw, which lets callers reject mismatched portfolios
// before any simulation work.
type Shaped interface {
	Shape() (periods, assets int)
}

// ShapeOf returns the dimensions of s when it reports them.
func ShapeOf(s Sampler) (periods, assets int, ok bool) {
	shaped, ok := s.(Shaped)
	if !ok {
		return 0, 0, false
	}
	periods, assets = shaped.Shape()
	return periods, assets, true
}

// New builds the sampler described by cfg. horizonDays is the time span one
// scenario covers.
func New(cfg config.SamplerConfig, horizonDays float64) (Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Model) {
	case constants.SamplerModelGBM:
		return NewGBM(cfg.Assets, cfg.Correlations, cfg.Periods, horizonDays, cfg.Seed)
	case constants.SamplerModelBootstrap:
		history := cfg.History
		if len(history) == 0 {
			loaded, err := LoadHistoryCSV(cfg.HistoryFile)
			if err != nil {
				return nil, err
			}
			history = loaded
		}
		return NewBootstrap(history, cfg.Periods, cfg.Seed)
	default:
		return nil, fmt.Errorf("%w: unknown sampler model %q", validation.ErrConfiguration, cfg.Model)
	}
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
