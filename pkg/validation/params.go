package validation

import (
	"fmt"

	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/mathutil"
)

// ValidateParams checks the scalar evaluation parameters.
func ValidateParams(moneyToInvest, timeHorizonInDays float64) error {
	if mathutil.IsZero(timeHorizonInDays) {
		return fmt.Errorf("%w: time horizon in days must be non-zero", ErrConfiguration)
	}
	if mathutil.IsZero(moneyToInvest) {
		return fmt.Errorf("%w: money to invest must be non-zero", ErrConfiguration)
	}
	return nil
}

// ValidateScenario checks that a return matrix has enough periods for a
// sample variance and that every row has the same width.
func ValidateScenario(scenario [][]float64) error {
	if len(scenario) < constants.MinScenarioPeriods {
		return fmt.Errorf("%w: scenario has %d periods, need at least %d",
			ErrInsufficientData, len(scenario), constants.MinScenarioPeriods)
	}
	width := len(scenario[0])
	for i, row := range scenario {
		if len(row) != width {
			return fmt.Errorf("%w: scenario row %d has %d assets, row 0 has %d",
				ErrInsufficientData, i, len(row), width)
		}
	}
	return nil
}

// ValidateDimensions checks that a weight vector matches the scenario width.
func ValidateDimensions(weights int, assets int) error {
	if weights != assets {
		return fmt.Errorf("%w: portfolio has %d weights, scenario has %d assets",
			ErrConfiguration, weights, assets)
	}
	return nil
}

// ValidatePopulation checks that the population is non-empty and, when assets
// is positive, that every portfolio has exactly that many weights.
func ValidatePopulation(weights [][]float64, assets int) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: no portfolios submitted", ErrEmptyPopulation)
	}
	if assets <= 0 {
		return nil
	}
	for i, w := range weights {
		if err := ValidateDimensions(len(w), assets); err != nil {
			return fmt.Errorf("portfolio %d: %w", i, err)
		}
	}
	return nil
}

// ValidateIterations rejects negative iteration counts.
func ValidateIterations(iterations int) error {
	if iterations < 0 {
		return fmt.Errorf("%w: iteration count must be non-negative, got %d", ErrConfiguration, iterations)
	}
	return nil
}
