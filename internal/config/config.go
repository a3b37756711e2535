package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gocombine/internal/compat"
	"gocombine/internal/errors"
	"gocombine/internal/likelihood"
)

// Config represents the complete application configuration
type Config struct {
	Combiner CombinerConfig
	Scan     ScanConfig
	Database DatabaseConfig
	Server   ServerConfig
}

// CombinerConfig holds likelihood and combination policy settings
type CombinerConfig struct {
	DRMax            float64
	CapLikelihoods   bool
	Underfluctuation likelihood.Underfluctuation
	Policy           string
	DictionaryFile   string
	Unknown          compat.Unknown
}

// ScanConfig holds selection and worker pool settings
type ScanConfig struct {
	NTop            int
	Workers         int
	MaxCombinations int
	Timeout         time.Duration
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory result store.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	combinerConfig, err := loadCombinerConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load combiner configuration")
	}
	config.Combiner = *combinerConfig

	config.Scan = *loadScanConfig()
	config.Database = *loadDatabaseConfig()
	config.Server = *loadServerConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Combiner: CombinerConfig{
			DRMax:            0.99,
			Underfluctuation: likelihood.UnderfluctNorm0,
			Policy:           "conservative",
			Unknown:          compat.UnknownConservative,
		},
		Scan:   ScanConfig{NTop: 1, Workers: runtime.NumCPU(), MaxCombinations: 100000},
		Server: ServerConfig{Port: "8080", GinMode: "debug"},
	}
}

func loadCombinerConfig() (*CombinerConfig, error) {
	underfluct, err := likelihood.ParseUnderfluctuation(getEnvOrDefault("COMBINER_UNDERFLUCT", string(likelihood.UnderfluctNorm0)))
	if err != nil {
		return nil, err
	}
	unknown, err := compat.ParseUnknown(getEnvOrDefault("COMBINER_UNKNOWN", "conservative"))
	if err != nil {
		return nil, err
	}

	return &CombinerConfig{
		DRMax:            getEnvFloatOrDefault("COMBINER_DRMAX", 0.99),
		CapLikelihoods:   getEnvBoolOrDefault("COMBINER_CAP_LIKELIHOODS", false),
		Underfluctuation: underfluct,
		Policy:           getEnvOrDefault("COMBINER_POLICY", "conservative"),
		DictionaryFile:   getEnvOrDefault("COMBINER_DICTIONARY", ""),
		Unknown:          unknown,
	}, nil
}

func loadScanConfig() *ScanConfig {
	return &ScanConfig{
		NTop:            getEnvIntOrDefault("COMBINER_NTOP", 1),
		Workers:         getEnvIntOrDefault("COMBINER_WORKERS", runtime.NumCPU()),
		MaxCombinations: getEnvIntOrDefault("COMBINER_MAX_COMBINATIONS", 100000),
		Timeout:         getEnvDurationOrDefault("COMBINER_SCAN_TIMEOUT", 0),
	}
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "debug"),
	}
}

func validateConfig(config *Config) error {
	if d := config.Combiner.DRMax; !(d > 0 && d < 2) {
		return errors.ConfigInvalid(fmt.Sprintf("COMBINER_DRMAX must lie in (0, 2), got %g", d))
	}
	switch config.Combiner.Policy {
	case "conservative":
	case "explicit", "aggressive":
		if config.Combiner.DictionaryFile == "" {
			return errors.ConfigInvalid(config.Combiner.Policy + " policy requires COMBINER_DICTIONARY")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown COMBINER_POLICY %q", config.Combiner.Policy))
	}
	if config.Scan.NTop < 1 {
		return errors.ConfigInvalid("COMBINER_NTOP must be at least 1")
	}
	if config.Scan.Workers < 1 {
		return errors.ConfigInvalid("COMBINER_WORKERS must be at least 1")
	}
	if config.Scan.MaxCombinations < 0 {
		return errors.ConfigInvalid("COMBINER_MAX_COMBINATIONS must not be negative")
	}
	switch config.Server.GinMode {
	case "", "debug", "release", "test":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("GIN_MODE must be debug, release or test, got %q", config.Server.GinMode))
	}
	return nil
}

// Validate re-checks a configuration assembled outside Load, e.g. from
// command-line flags.
func (c *Config) Validate() error {
	return validateConfig(c)
}

// LikelihoodOptions converts the combiner settings for likelihood binding.
func (c *Config) LikelihoodOptions() likelihood.Options {
	return likelihood.Options{
		DRMax:            c.Combiner.DRMax,
		CapLikelihoods:   c.Combiner.CapLikelihoods,
		Underfluctuation: c.Combiner.Underfluctuation,
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
