// Package testutil provides common utility functions for testing.
package testutil

import (
	"sync"

	"github.com/iwvelando/portfolio-evaluator/internal/model"
)

// SequenceSampler hands out a fixed list of scenarios in order, wrapping
// around at the end. It is safe for concurrent use.
type SequenceSampler struct {
	mu        sync.Mutex
	scenarios []model.ReturnMatrix
	next      int
	calls     int
}

// NewSequenceSampler returns a sampler cycling through scenarios.
func NewSequenceSampler(scenarios ...model.ReturnMatrix) *SequenceSampler {
	return &SequenceSampler{scenarios: scenarios}
}

// SampleReturns returns a copy of the next scenario.
func (s *SequenceSampler) SampleReturns() model.ReturnMatrix {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.scenarios) == 0 {
		return nil
	}
	scenario := s.scenarios[s.next%len(s.scenarios)]
	s.next++
	return scenario.Clone()
}

// Calls reports how many scenarios were drawn.
func (s *SequenceSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Skip advances the sequence by n draws without returning them.
func (s *SequenceSampler) Skip(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next += n
}

// PanicSampler panics on every draw.
type PanicSampler struct{}

// SampleReturns always panics.
func (PanicSampler) SampleReturns() model.ReturnMatrix {
	panic("sampler exploded")
}

// FindPortfolio finds a portfolio by name in a population.
// Returns its index, or -1 if it is not present.
func FindPortfolio(population []model.Portfolio, name string) int {
	for i := range population {
		if population[i].Name == name {
			return i
		}
	}
	return -1
}

// Scenarios returns n distinct two-asset scenarios with three periods each.
func Scenarios(n int) []model.ReturnMatrix {
	out := make([]model.ReturnMatrix, n)
	for i := 0; i < n; i++ {
		shift := float64(i) * 0.001
		out[i] = model.ReturnMatrix{
			{0.010 + shift, 0.020 - shift},
			{-0.010 + shift, 0.000 + shift},
			{0.005 - shift, -0.015 + 2*shift},
		}
	}
	return out
}

// Population returns a small two-asset population with distinct profiles.
func Population() []model.Portfolio {
	return []model.Portfolio{
		{Name: "balanced", Weights: []float64{0.5, 0.5}},
		{Name: "first-heavy", Weights: []float64{0.8, 0.2}},
		{Name: "second-only", Weights: []float64{0.0, 1.0}},
	}
}
