package server

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iwvelando/portfolio-evaluator/internal/batch"
	"github.com/iwvelando/portfolio-evaluator/internal/codec"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/internal/sampler"
	"github.com/iwvelando/portfolio-evaluator/internal/workers"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/testutil"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, s sampler.Sampler, maxRequestSize int64) http.Handler {
	t.Helper()
	pool := workers.NewPool(2)
	t.Cleanup(pool.Close)
	svc := batch.NewService(zap.NewNop(), s, pool, 2)
	return NewHandler(zap.NewNop(), svc, Options{MaxRequestSize: maxRequestSize, Version: "1.2.3"})
}

func performJSON(t *testing.T, handler http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func testConfig() model.EvaluationConfig {
	return model.EvaluationConfig{MoneyToInvest: 10000, RiskFreeRate: 0.02, TimeHorizonInDays: 30}
}

func TestHandleBatchSuccess(t *testing.T) {
	handler := newTestHandler(t, testutil.NewSequenceSampler(testutil.Scenarios(3)...), 0)

	rr := performJSON(t, handler, http.MethodPost, "/api/v1/batch", batch.Request{
		Portfolios: testutil.Population(),
		Config:     testConfig(),
		Iterations: 3,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp batchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Iterations != 3 {
		t.Errorf("expected 3 iterations, got %d", resp.Iterations)
	}
	if len(resp.SumReturns) != 3 || len(resp.SumVolatilities) != 3 || len(resp.SumSharpes) != 3 {
		t.Errorf("expected sums for 3 portfolios, got %+v", resp.PartialBatchResult)
	}
	if len(resp.LastScenario) != 3 {
		t.Errorf("expected the last scenario in the response, got %v", resp.LastScenario)
	}
	if resp.Duration == "" {
		t.Error("expected duration in response")
	}
}

func TestHandleBatchBlob(t *testing.T) {
	handler := newTestHandler(t, testutil.NewSequenceSampler(testutil.Scenarios(1)...), 0)

	blob, err := codec.EncodePortfolios(testutil.Population())
	if err != nil {
		t.Fatalf("failed to encode portfolios: %v", err)
	}

	rr := performJSON(t, handler, http.MethodPost, "/api/v1/batch", batch.Request{
		PortfoliosBlob: blob,
		Config:         testConfig(),
		Iterations:     1,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleBatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		sampler sampler.Sampler
		body    interface{}
		status  int
	}{
		{
			name:    "Empty population",
			sampler: testutil.NewSequenceSampler(testutil.Scenarios(1)...),
			body:    batch.Request{Config: testConfig(), Iterations: 1},
			status:  http.StatusBadRequest,
		},
		{
			name:    "Malformed blob",
			sampler: testutil.NewSequenceSampler(testutil.Scenarios(1)...),
			body:    batch.Request{PortfoliosBlob: []byte{0xc1}, Config: testConfig(), Iterations: 1},
			status:  http.StatusBadRequest,
		},
		{
			name:    "Zero money",
			sampler: testutil.NewSequenceSampler(testutil.Scenarios(1)...),
			body:    batch.Request{Portfolios: testutil.Population(), Config: model.EvaluationConfig{TimeHorizonInDays: 30}, Iterations: 1},
			status:  http.StatusBadRequest,
		},
		{
			name:    "Invalid JSON",
			sampler: testutil.NewSequenceSampler(testutil.Scenarios(1)...),
			body:    "not an object",
			status:  http.StatusBadRequest,
		},
		{
			name:    "Negative horizon",
			sampler: testutil.NewSequenceSampler(testutil.Scenarios(1)...),
			body:    batch.Request{Portfolios: testutil.Population(), Config: model.EvaluationConfig{MoneyToInvest: 10000, TimeHorizonInDays: -30}, Iterations: 1},
			status:  http.StatusInternalServerError,
		},
		{
			name:    "Computation fault",
			sampler: testutil.PanicSampler{},
			body:    batch.Request{Portfolios: testutil.Population(), Config: testConfig(), Iterations: 1},
			status:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(t, tt.sampler, 0)
			rr := performJSON(t, handler, http.MethodPost, "/api/v1/batch", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}

			var resp map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if resp["error"] == "" {
				t.Error("expected error message in response")
			}
		})
	}
}

func TestHandleBatchBlobOverPortfolioLimit(t *testing.T) {
	portfolios := make([]model.Portfolio, constants.MaxBatchPortfolios+1)
	for i := range portfolios {
		portfolios[i] = model.Portfolio{Weights: []float64{0.5, 0.5}}
	}
	blob, err := codec.EncodePortfolios(portfolios)
	if err != nil {
		t.Fatalf("failed to encode portfolios: %v", err)
	}

	sampler := testutil.NewSequenceSampler(testutil.Scenarios(1)...)
	handler := newTestHandler(t, sampler, 0)
	rr := performJSON(t, handler, http.MethodPost, "/api/v1/batch", batch.Request{
		PortfoliosBlob: blob,
		Config:         testConfig(),
		Iterations:     1,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "exceed the limit") {
		t.Errorf("expected portfolio limit error, got %s", rr.Body.String())
	}
	if sampler.Calls() != 0 {
		t.Errorf("expected no trials to run, sampler was called %d times", sampler.Calls())
	}
}

func TestHandleBatchRequestTooLarge(t *testing.T) {
	handler := newTestHandler(t, testutil.NewSequenceSampler(testutil.Scenarios(1)...), 64)

	rr := performJSON(t, handler, http.MethodPost, "/api/v1/batch", batch.Request{
		Portfolios: testutil.Population(),
		Config:     testConfig(),
		Iterations: 1,
	})
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandlePopulation(t *testing.T) {
	handler := newTestHandler(t, testutil.NewSequenceSampler(testutil.Scenarios(4)...), 0)

	cfg := testConfig()
	cfg.SimulationsPerGeneration = 4
	rr := performJSON(t, handler, http.MethodPost, "/api/v1/population", populationRequest{
		Portfolios: testutil.Population(),
		Config:     cfg,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp populationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.AverageReturns) != 3 {
		t.Fatalf("expected 3 averages, got %d", len(resp.AverageReturns))
	}
	if resp.BestVolatility > resp.PopulationAverageVolatility {
		t.Errorf("best volatility %v exceeds the population average %v", resp.BestVolatility, resp.PopulationAverageVolatility)
	}
	if resp.Names[1] != "first-heavy" {
		t.Errorf("expected names aligned with the population, got %v", resp.Names)
	}
	if !strings.HasPrefix(resp.CSV, `"portfolio"`) {
		t.Errorf("expected CSV in response, got %q", resp.CSV)
	}
}

func TestHandlePopulationEmpty(t *testing.T) {
	handler := newTestHandler(t, testutil.NewSequenceSampler(testutil.Scenarios(1)...), 0)

	rr := performJSON(t, handler, http.MethodPost, "/api/v1/population", populationRequest{Config: testConfig()})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleVersion(t *testing.T) {
	handler := newTestHandler(t, testutil.NewSequenceSampler(testutil.Scenarios(1)...), 0)

	rr := performJSON(t, handler, http.MethodGet, "/api/v1/version", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["version"] != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", resp["version"])
	}
}

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler(t, testutil.NewSequenceSampler(testutil.Scenarios(1)...), 0)

	rr := performJSON(t, handler, http.MethodGet, "/api/v1/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	if resp.Workers.Size != 2 {
		t.Errorf("expected 2 workers, got %d", resp.Workers.Size)
	}
}

func TestWriteJSONNonFinite(t *testing.T) {
	h := &handler{logger: zap.NewNop()}
	rr := httptest.NewRecorder()

	h.writeJSON(rr, http.StatusOK, map[string]float64{"volatility": math.NaN()})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response %q: %v", rr.Body.String(), err)
	}
	if !strings.Contains(resp["error"], "computation fault") {
		t.Errorf("expected computation fault in error, got %q", resp["error"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, testutil.NewSequenceSampler(testutil.Scenarios(1)...), 0)

	rr := performJSON(t, handler, http.MethodGet, "/api/v1/batch", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
}
