package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/iwvelando/portfolio-evaluator/internal/config"
	"github.com/iwvelando/portfolio-evaluator/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Config defines runtime parameters for the HTTP and RPC servers.
type Config struct {
	Address        string               `yaml:"address"`
	RPCAddress     string               `yaml:"rpcAddress"`
	MaxRequestSize string               `yaml:"maxRequestSize"`
	Workers        int                  `yaml:"workers"`     // 0 means one per CPU
	Parallelism    int                  `yaml:"parallelism"` // 0 means GOMAXPROCS
	AllowedOrigins []string             `yaml:"allowedOrigins"`
	HorizonInDays  float64              `yaml:"horizonInDays"` // time span of one sampled scenario
	Sampler        config.SamplerConfig `yaml:"sampler"`
	Logging        config.LoggingConfig `yaml:"logging"`

	requestSizeBytes int64
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Address:          constants.DefaultServerAddress,
		RPCAddress:       constants.DefaultRPCAddress,
		MaxRequestSize:   fmt.Sprintf("%d", constants.DefaultMaxRequestSizeBytes),
		AllowedOrigins:   []string{"*"},
		HorizonInDays:    constants.DefaultSamplerHorizonDays,
		Sampler:          config.SamplerConfig{Model: constants.SamplerModelGBM, Periods: constants.DefaultSampledPeriods},
		requestSizeBytes: constants.DefaultMaxRequestSizeBytes,
	}
}

// LoadConfig loads the server configuration from YAML. If the file does not exist,
// defaults are returned without error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequestSizeBytes returns the configured request body limit in bytes.
func (c *Config) RequestSizeBytes() int64 {
	return c.requestSizeBytes
}

// SetRequestSizeBytes overrides the configured request body limit.
func (c *Config) SetRequestSizeBytes(size int64) {
	if size > 0 {
		c.requestSizeBytes = size
		c.MaxRequestSize = fmt.Sprintf("%d", size)
	}
}

func (c *Config) normalize() error {
	if c.Address == "" {
		c.Address = constants.DefaultServerAddress
	}
	if c.RPCAddress == "" {
		c.RPCAddress = constants.DefaultRPCAddress
	}
	if c.Workers < 0 || c.Parallelism < 0 {
		return fmt.Errorf("workers and parallelism must be non-negative, got %d and %d", c.Workers, c.Parallelism)
	}
	if c.HorizonInDays <= 0 {
		c.HorizonInDays = constants.DefaultSamplerHorizonDays
	}
	if c.Sampler.Model == "" {
		c.Sampler.Model = constants.SamplerModelGBM
	}
	if c.Sampler.Periods == 0 {
		c.Sampler.Periods = constants.DefaultSampledPeriods
	}

	sizeStr := strings.TrimSpace(c.MaxRequestSize)
	if sizeStr == "" {
		c.requestSizeBytes = constants.DefaultMaxRequestSizeBytes
		c.MaxRequestSize = fmt.Sprintf("%d", constants.DefaultMaxRequestSizeBytes)
		return nil
	}

	bytes, err := ParseSize(sizeStr)
	if err != nil {
		return err
	}
	if bytes <= 0 {
		bytes = constants.DefaultMaxRequestSizeBytes
	}
	c.requestSizeBytes = bytes
	return nil
}

// ParseSize converts a human-friendly byte string (e.g., "256K", "10M") into bytes.
func ParseSize(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return constants.DefaultMaxRequestSizeBytes, nil
	}

	upper := strings.ToUpper(trimmed)
	idx := len(upper)
	for idx > 0 && !unicode.IsDigit(rune(upper[idx-1])) {
		idx--
	}
	if idx == 0 {
		return 0, fmt.Errorf("invalid size: %s", value)
	}
	numPart := strings.TrimSpace(upper[:idx])
	unitPart := strings.TrimSpace(upper[idx:])

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", value, err)
	}

	var multiplier int64
	switch unitPart {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unsupported size unit %q", unitPart)
	}

	result := n * multiplier
	if result < 0 || (n != 0 && result/multiplier != n) {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return result, nil
}
