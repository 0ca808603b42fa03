// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for portfolio-evaluator.
type Configuration struct {
	Evaluation EvaluationSettings `yaml:"evaluation" mapstructure:"evaluation"`
	Sampler    SamplerConfig      `yaml:"sampler" mapstructure:"sampler"`
	Population []model.Portfolio  `yaml:"population" mapstructure:"population"`
	Shards     []string           `yaml:"shards,omitempty" mapstructure:"shards"`
	Logging    LoggingConfig      `yaml:"logging,omitempty" mapstructure:"logging"`
	Output     OutputConfig       `yaml:"output,omitempty" mapstructure:"output"`
}

// EvaluationSettings holds the parameters of one population evaluation.
type EvaluationSettings struct {
	MoneyToInvest            float64 `yaml:"moneyToInvest" mapstructure:"moneyToInvest"`
	RiskFreeRate             float64 `yaml:"riskFreeRate" mapstructure:"riskFreeRate"`
	TimeHorizonInDays        float64 `yaml:"timeHorizonInDays" mapstructure:"timeHorizonInDays"`
	SimulationsPerGeneration int     `yaml:"simulationsPerGeneration" mapstructure:"simulationsPerGeneration"`
	Parallelism              int     `yaml:"parallelism,omitempty" mapstructure:"parallelism"` // 0 means GOMAXPROCS
}

// SamplerConfig selects and parameterizes the scenario generator.
type SamplerConfig struct {
	Model        string        `yaml:"model" mapstructure:"model"` // gbm, bootstrap
	Periods      int           `yaml:"periods" mapstructure:"periods"`
	Seed         uint64        `yaml:"seed,omitempty" mapstructure:"seed"` // 0 seeds from the clock
	Assets       []AssetConfig `yaml:"assets,omitempty" mapstructure:"assets"`
	Correlations [][]float64   `yaml:"correlations,omitempty" mapstructure:"correlations"`
	History      [][]float64   `yaml:"history,omitempty" mapstructure:"history"`
	HistoryFile  string        `yaml:"historyFile,omitempty" mapstructure:"historyFile"`
}

// AssetConfig describes one asset of the geometric Brownian motion model.
// Drift and Volatility are annual figures.
type AssetConfig struct {
	Name       string  `yaml:"name" mapstructure:"name"`
	Drift      float64 `yaml:"drift" mapstructure:"drift"`
	Volatility float64 `yaml:"volatility" mapstructure:"volatility"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads a YAML-formatted configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("evaluation.simulationsPerGeneration", constants.DefaultSimulationsPerGeneration)
	v.SetDefault("sampler.model", constants.SamplerModelGBM)
	v.SetDefault("sampler.periods", constants.DefaultSampledPeriods)
	v.SetDefault("output.format", constants.OutputFormatPretty)
	return v
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	return &configuration, nil
}

// EvaluationConfig returns the evaluation parameters in the engine's form.
func (c *Configuration) EvaluationConfig() model.EvaluationConfig {
	return model.EvaluationConfig{
		MoneyToInvest:            c.Evaluation.MoneyToInvest,
		RiskFreeRate:             c.Evaluation.RiskFreeRate,
		TimeHorizonInDays:        c.Evaluation.TimeHorizonInDays,
		SimulationsPerGeneration: c.Evaluation.SimulationsPerGeneration,
	}
}

// PortfolioNames returns the population's names, substituting the position
// for unnamed portfolios.
func (c *Configuration) PortfolioNames() []string {
	names := make([]string, len(c.Population))
	for i, p := range c.Population {
		names[i] = p.Name
		if strings.TrimSpace(p.Name) == "" {
			names[i] = fmt.Sprintf("portfolio-%d", i+1)
		}
	}
	return names
}
