package sampler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
)

// Bootstrap resamples rows of a historical log-return matrix with
// replacement.
type Bootstrap struct {
	mu      sync.Mutex
	rng     *rand.Rand
	history model.ReturnMatrix
	periods int
}

// NewBootstrap builds a bootstrap sampler over history.
func NewBootstrap(history [][]float64, periods int, seed uint64) (*Bootstrap, error) {
	if err := validation.ValidateScenario(history); err != nil {
		return nil, fmt.Errorf("bootstrap history: %w", err)
	}
	if periods < constants.MinScenarioPeriods {
		return nil, fmt.Errorf("%w: bootstrap sampler must draw at least %d periods, got %d",
			validation.ErrInsufficientData, constants.MinScenarioPeriods, periods)
	}
	return &Bootstrap{
		rng:     newRand(seed),
		history: model.ReturnMatrix(history).Clone(),
		periods: periods,
	}, nil
}

// SampleReturns draws one scenario.
func (b *Bootstrap) SampleReturns() model.ReturnMatrix {
	b.mu.Lock()
	defer b.mu.Unlock()

	scenario := make(model.ReturnMatrix, b.periods)
	for t := range scenario {
		row := b.history[b.rng.IntN(len(b.history))]
		scenario[t] = append([]float64(nil), row...)
	}
	return scenario
}

// Shape reports the scenario dimensions.
func (b *Bootstrap) Shape() (periods, assets int) {
	return b.periods, b.history.Assets()
}

// LoadHistoryCSV reads a matrix of log returns, one period per line. A first
// line that does not parse as numbers is treated as a header.
func LoadHistoryCSV(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadHistoryCSV(f)
}

// ReadHistoryCSV is LoadHistoryCSV for an already opened reader.
func ReadHistoryCSV(r io.Reader) ([][]float64, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	var history [][]float64
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: history line %d: %v", validation.ErrConfiguration, line, err)
		}

		row, err := parseRow(record)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("%w: history line %d: %v", validation.ErrConfiguration, line, err)
		}
		history = append(history, row)
	}
	return history, nil
}

func parseRow(record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}
