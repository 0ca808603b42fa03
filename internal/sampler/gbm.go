package sampler

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/iwvelando/portfolio-evaluator/internal/config"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/mathutil"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"gonum.org/v1/gonum/mat"
)

// GBM draws per-period log returns of correlated geometric Brownian motions:
//
//	r = (mu - sigma^2/2) dt + sigma sqrt(dt) z
//
// where z is a standard normal vector correlated through the Cholesky factor
// of the configured correlation matrix.
type GBM struct {
	mu      sync.Mutex
	rng     *rand.Rand
	periods int
	drift   []float64
	scale   []float64
	chol    *mat.TriDense // nil when assets are uncorrelated
	shocks  []float64
}

// NewGBM builds a GBM sampler. correlations may be nil for independent assets.
func NewGBM(assets []config.AssetConfig, correlations [][]float64, periods int, horizonDays float64, seed uint64) (*GBM, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: gbm sampler needs at least one asset", validation.ErrConfiguration)
	}
	if periods < constants.MinScenarioPeriods {
		return nil, fmt.Errorf("%w: gbm sampler must draw at least %d periods, got %d",
			validation.ErrInsufficientData, constants.MinScenarioPeriods, periods)
	}
	if mathutil.IsZero(horizonDays) || horizonDays < 0 {
		return nil, fmt.Errorf("%w: gbm sampler needs a positive horizon, got %v", validation.ErrConfiguration, horizonDays)
	}

	dt := horizonDays / constants.DaysPerYear / float64(periods)
	g := &GBM{
		rng:     newRand(seed),
		periods: periods,
		drift:   make([]float64, len(assets)),
		scale:   make([]float64, len(assets)),
		shocks:  make([]float64, len(assets)),
	}
	for i, asset := range assets {
		g.drift[i] = (asset.Drift - 0.5*asset.Volatility*asset.Volatility) * dt
		g.scale[i] = asset.Volatility * math.Sqrt(dt)
	}

	if len(correlations) > 0 {
		chol, err := choleskyFactor(correlations, len(assets))
		if err != nil {
			return nil, err
		}
		g.chol = chol
	}
	return g, nil
}

func choleskyFactor(correlations [][]float64, n int) (*mat.TriDense, error) {
	if len(correlations) != n {
		return nil, fmt.Errorf("%w: correlation matrix has %d rows for %d assets",
			validation.ErrConfiguration, len(correlations), n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range correlations {
		if len(row) != n {
			return nil, fmt.Errorf("%w: correlation row %d has %d entries for %d assets",
				validation.ErrConfiguration, i, len(row), n)
		}
		data = append(data, row...)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, data)); !ok {
		return nil, fmt.Errorf("%w: correlation matrix is not positive definite", validation.ErrConfiguration)
	}
	var lower mat.TriDense
	chol.LTo(&lower)
	return &lower, nil
}

// SampleReturns draws one scenario.
func (g *GBM) SampleReturns() model.ReturnMatrix {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.drift)
	scenario := make(model.ReturnMatrix, g.periods)
	for t := range scenario {
		for i := 0; i < n; i++ {
			g.shocks[i] = g.rng.NormFloat64()
		}
		row := make([]float64, n)
		for i := 0; i < n; i++ {
			z := g.shocks[i]
			if g.chol != nil {
				z = 0
				for j := 0; j <= i; j++ {
					z += g.chol.At(i, j) * g.shocks[j]
				}
			}
			row[i] = g.drift[i] + g.scale[i]*z
		}
		scenario[t] = row
	}
	return scenario
}

// Shape reports the scenario dimensions.
func (g *GBM) Shape() (periods, assets int) {
	return g.periods, len(g.drift)
}
