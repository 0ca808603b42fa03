// Package constants provides shared constants for the portfolio-evaluator application.
package constants

// Numeric constants
const (
	// Epsilon is the tolerance used for zero checks on invested capital,
	// time horizons and volatilities.
	Epsilon = 1e-9

	// DaysPerYear is the day count used to annualize per-period statistics.
	DaysPerYear = 365.0

	// MinScenarioPeriods is the smallest number of periods for which a sample
	// variance is defined.
	MinScenarioPeriods = 2

	// DecimalPrecision is the precision for currency rounding (2 decimal places)
	DecimalPrecision = 100

	// WeightSumTolerance is how far a portfolio's weights may drift from 1.0
	// before configuration validation warns about it.
	WeightSumTolerance = 1e-6
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Sampler model names
const (
	SamplerModelGBM       = "gbm"
	SamplerModelBootstrap = "bootstrap"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "PORTFOLIO_EVALUATOR"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultRPCAddress is the default listen address of the msgpack RPC endpoint
	DefaultRPCAddress = ":9090"

	// DefaultMaxRequestSizeBytes is the default maximum request body size (8 MB)
	DefaultMaxRequestSizeBytes int64 = 8 * 1024 * 1024

	// MaxBatchPortfolios bounds the population size of a single batch request.
	MaxBatchPortfolios = 100000
)

// Simulation defaults
const (
	// DefaultSimulationsPerGeneration is used when the configuration omits it.
	DefaultSimulationsPerGeneration = 100

	// DefaultSampledPeriods is the number of periods a sampler draws when the
	// configuration omits it.
	DefaultSampledPeriods = 30

	// DefaultSamplerHorizonDays is the time span one scenario covers when the
	// server configuration omits it.
	DefaultSamplerHorizonDays = 30.0
)
