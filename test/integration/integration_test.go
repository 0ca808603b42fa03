package integration

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/iwvelando/portfolio-evaluator/internal/batch"
	"github.com/iwvelando/portfolio-evaluator/internal/config"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/internal/population"
	"github.com/iwvelando/portfolio-evaluator/internal/rpc"
	"github.com/iwvelando/portfolio-evaluator/internal/sampler"
	"github.com/iwvelando/portfolio-evaluator/internal/shard"
	"github.com/iwvelando/portfolio-evaluator/internal/simulation"
	"github.com/iwvelando/portfolio-evaluator/internal/workers"
	"github.com/iwvelando/portfolio-evaluator/pkg/output"
	"go.uber.org/zap"
)

const testConfigPath = "../test_config.yaml"

func loadTestConfig(t *testing.T) *config.Configuration {
	t.Helper()

	conf, err := config.LoadConfiguration(testConfigPath)
	if err != nil {
		t.Fatalf("LoadConfiguration failed: %v", err)
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return conf
}

func evaluateLocal(t *testing.T, conf *config.Configuration) model.PopulationEvaluationResult {
	t.Helper()

	s, err := sampler.New(conf.Sampler, conf.Evaluation.TimeHorizonInDays)
	if err != nil {
		t.Fatalf("sampler.New failed: %v", err)
	}
	result, err := population.Evaluate(context.Background(), conf.Population, conf.EvaluationConfig(), s, simulation.Options{
		Parallelism: conf.Evaluation.Parallelism,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("population.Evaluate failed: %v", err)
	}
	return result
}

// TestEndToEndLocal runs the configuration the way the command-line tool does.
func TestEndToEndLocal(t *testing.T) {
	conf := loadTestConfig(t)

	if warnings := conf.ValidateConfiguration(); len(warnings) != 0 {
		t.Errorf("expected no configuration warnings, got %v", warnings)
	}

	result := evaluateLocal(t, conf)

	if len(result.AverageReturns) != len(conf.Population) {
		t.Fatalf("expected %d averages, got %d", len(conf.Population), len(result.AverageReturns))
	}
	if len(result.LastScenario) != conf.Sampler.Periods {
		t.Errorf("expected last scenario with %d periods, got %d", conf.Sampler.Periods, len(result.LastScenario))
	}
	if result.BestReturn < result.PopulationAverageReturn {
		t.Errorf("best return %v below population average %v", result.BestReturn, result.PopulationAverageReturn)
	}
	if result.BestVolatility > result.PopulationAverageVolatility {
		t.Errorf("best volatility %v above population average %v", result.BestVolatility, result.PopulationAverageVolatility)
	}
	if result.BestSharpe < result.PopulationAverageSharpe {
		t.Errorf("best Sharpe %v below population average %v", result.BestSharpe, result.PopulationAverageSharpe)
	}

	names := conf.PortfolioNames()
	treasuries := result.AverageVolatilities[indexOf(names, "treasuries-only")]
	equities := result.AverageVolatilities[indexOf(names, "all-equity")]
	if treasuries >= equities {
		t.Errorf("expected treasuries (%v) to be less volatile than equities (%v)", treasuries, equities)
	}
}

func TestOutputFormats(t *testing.T) {
	conf := loadTestConfig(t)
	result := evaluateLocal(t, conf)
	names := conf.PortfolioNames()

	csv := output.CsvString(names, result)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != len(names)+1 {
		t.Fatalf("expected %d CSV lines, got %d", len(names)+1, len(lines))
	}
	if !strings.HasPrefix(lines[1], `"sixty-forty",`) {
		t.Errorf("expected first row for sixty-forty, got %q", lines[1])
	}

	var pretty bytes.Buffer
	output.PrettyFormat(&pretty, names, result)
	for _, name := range names {
		if !strings.Contains(pretty.String(), name+" | $") {
			t.Errorf("pretty output missing row for %s", name)
		}
	}
}

// TestDataConsistency validates that a seeded configuration reproduces its
// results exactly.
func TestDataConsistency(t *testing.T) {
	var first model.PopulationEvaluationResult
	for run := 0; run < 3; run++ {
		result := evaluateLocal(t, loadTestConfig(t))
		if run == 0 {
			first = result
			continue
		}

		for i := range result.AverageReturns {
			if result.AverageReturns[i] != first.AverageReturns[i] ||
				result.AverageVolatilities[i] != first.AverageVolatilities[i] ||
				result.AverageSharpeRatios[i] != first.AverageSharpeRatios[i] {
				t.Errorf("run %d, portfolio %d differs from the first run", run, i)
			}
		}
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("PORTFOLIO_EVALUATOR_EVALUATION_SIMULATIONSPERGENERATION", "7")

	conf := loadTestConfig(t)
	if conf.Evaluation.SimulationsPerGeneration != 7 {
		t.Fatalf("expected environment override to 7, got %d", conf.Evaluation.SimulationsPerGeneration)
	}
}

// TestShardedAcrossRPC runs the population through two evaluator processes'
// worth of RPC servers and checks the merged result.
func TestShardedAcrossRPC(t *testing.T) {
	conf := loadTestConfig(t)

	var runners []shard.BatchRunner
	for i := 0; i < 2; i++ {
		samplerConfig := conf.Sampler
		samplerConfig.Seed += uint64(i)
		s, err := sampler.New(samplerConfig, conf.Evaluation.TimeHorizonInDays)
		if err != nil {
			t.Fatalf("sampler.New failed: %v", err)
		}
		runners = append(runners, startEvaluator(t, s))
	}

	result, err := shard.NewCoordinator(zap.NewNop(), runners...).Evaluate(context.Background(), conf.Population, conf.EvaluationConfig())
	if err != nil {
		t.Fatalf("sharded Evaluate failed: %v", err)
	}

	if len(result.AverageSharpeRatios) != len(conf.Population) {
		t.Fatalf("expected %d averages, got %d", len(conf.Population), len(result.AverageSharpeRatios))
	}
	if result.BestVolatility > result.PopulationAverageVolatility {
		t.Errorf("best volatility %v above population average %v", result.BestVolatility, result.PopulationAverageVolatility)
	}
	if len(result.LastScenario) != conf.Sampler.Periods {
		t.Errorf("expected last scenario with %d periods, got %d", conf.Sampler.Periods, len(result.LastScenario))
	}
}

func startEvaluator(t *testing.T, s sampler.Sampler) *rpc.Client {
	t.Helper()

	pool := workers.NewPool(2)
	t.Cleanup(pool.Close)

	srv, err := rpc.NewServer(zap.NewNop(), batch.NewService(zap.NewNop(), s, pool, 0))
	if err != nil {
		t.Fatalf("rpc.NewServer failed: %v", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, l)
	}()

	client, err := rpc.Dial(context.Background(), l.Addr().String())
	if err != nil {
		t.Fatalf("rpc.Dial failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("rpc server did not stop")
		}
	})
	return client
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
