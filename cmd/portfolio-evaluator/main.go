package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iwvelando/portfolio-evaluator/internal/config"
	"github.com/iwvelando/portfolio-evaluator/internal/logging"
	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/internal/population"
	"github.com/iwvelando/portfolio-evaluator/internal/rpc"
	"github.com/iwvelando/portfolio-evaluator/internal/sampler"
	"github.com/iwvelando/portfolio-evaluator/internal/shard"
	"github.com/iwvelando/portfolio-evaluator/internal/simulation"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/iwvelando/portfolio-evaluator/pkg/output"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Environment overrides may come from a .env file
	_ = godotenv.Load()

	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	shardsFlag := flag.String("shards", "", "comma-separated evaluator RPC addresses, overrides the configured shards")
	flag.Parse()

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := logging.New(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// CLI override takes precedence over config
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	if *shardsFlag != "" {
		conf.Shards = splitAddresses(*shardsFlag)
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}
	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result model.PopulationEvaluationResult
	if len(conf.Shards) > 0 {
		result, err = evaluateSharded(ctx, logger, conf)
	} else {
		result, err = evaluateLocal(ctx, logger, conf)
	}
	if err != nil {
		logger.Fatal("failed to evaluate population",
			zap.String("op", "main"),
			zap.String("code", validation.Code(err)),
			zap.Error(err),
		)
	}

	switch outputFormat {
	case constants.OutputFormatPretty:
		output.PrettyFormat(os.Stdout, conf.PortfolioNames(), result)
	case constants.OutputFormatCSV:
		output.CsvFormat(os.Stdout, conf.PortfolioNames(), result)
	}
}

func evaluateLocal(ctx context.Context, logger *zap.Logger, conf *config.Configuration) (model.PopulationEvaluationResult, error) {
	s, err := sampler.New(conf.Sampler, conf.Evaluation.TimeHorizonInDays)
	if err != nil {
		return model.PopulationEvaluationResult{}, fmt.Errorf("failed to build sampler: %w", err)
	}

	return population.Evaluate(ctx, conf.Population, conf.EvaluationConfig(), s, simulation.Options{
		Parallelism: conf.Evaluation.Parallelism,
		Cancelable:  true,
		Logger:      logger,
	})
}

func evaluateSharded(ctx context.Context, logger *zap.Logger, conf *config.Configuration) (model.PopulationEvaluationResult, error) {
	runners := make([]shard.BatchRunner, 0, len(conf.Shards))
	for _, addr := range conf.Shards {
		client, err := rpc.Dial(ctx, addr)
		if err != nil {
			return model.PopulationEvaluationResult{}, err
		}
		defer func() {
			_ = client.Close()
		}()
		runners = append(runners, client)
	}

	logger.Info("evaluating across shards",
		zap.String("op", "main.evaluateSharded"),
		zap.Strings("shards", conf.Shards),
	)
	return shard.NewCoordinator(logger, runners...).Evaluate(ctx, conf.Population, conf.EvaluationConfig())
}

func splitAddresses(value string) []string {
	var addrs []string
	for _, addr := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	return addrs
}
