// Package config loads service configuration from a YAML or JSON file with
// ROUTEFLOW_ environment overrides. All fields have workable defaults so the
// binary runs with no file at all.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Solver   SolverConfig   `json:"solver"`
	Distance DistanceConfig `json:"distance"`
	Logging  LoggingConfig  `json:"logging"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
}

type DatabaseConfig struct {
	// URL is a Postgres DSN. Empty selects the in-memory store.
	URL string `json:"url"`
}

type RedisConfig struct {
	// URL enables the shared matrix cache and pub/sub broker when set.
	URL            string `json:"url"`
	MatrixTTLHours int    `json:"matrixTtlHours"`
}

type SolverConfig struct {
	TimeBudgetSeconds    float64 `json:"timeBudgetSeconds"`
	MaxTimeBudgetSeconds float64 `json:"maxTimeBudgetSeconds"`
	InitialTemp          float64 `json:"initTemp"`
	Cooling              float64 `json:"cooling"`
	UnassignedPenalty    float64 `json:"unassignedPenalty"`
	PriorityBonus        float64 `json:"priorityBonus"`
}

type DistanceConfig struct {
	// Metric is the default metric: euclidean or precise.
	Metric          string  `json:"metric"`
	AvgSpeedMph     float64 `json:"avgSpeedMph"`
	BackendURL      string  `json:"backendUrl"`
	BackendAPIKey   string  `json:"backendApiKey"`
	BackendRatePerS float64 `json:"backendRatePerSec"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Redis:    RedisConfig{MatrixTTLHours: 1},
		Solver:   SolverConfig{TimeBudgetSeconds: 30, MaxTimeBudgetSeconds: 120},
		Distance: DistanceConfig{Metric: "euclidean", AvgSpeedMph: 30, BackendRatePerS: 2},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads path (optional: "" loads defaults + env only) and applies
// ROUTEFLOW_ environment overrides, e.g. ROUTEFLOW_SERVER__ADDR=:9090.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = kyaml.Parser()
		case ".json":
			parser = kjson.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", path)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("ROUTEFLOW_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "routeflow_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Solver.TimeBudgetSeconds <= 0 {
		return fmt.Errorf("solver.timeBudgetSeconds must be > 0")
	}
	if c.Solver.MaxTimeBudgetSeconds < c.Solver.TimeBudgetSeconds {
		return fmt.Errorf("solver.maxTimeBudgetSeconds must be >= timeBudgetSeconds")
	}
	if c.Solver.Cooling != 0 && (c.Solver.Cooling <= 0 || c.Solver.Cooling >= 1) {
		return fmt.Errorf("solver.cooling must be in (0,1)")
	}
	switch c.Distance.Metric {
	case "euclidean", "precise":
	default:
		return fmt.Errorf("distance.metric must be euclidean or precise, got %q", c.Distance.Metric)
	}
	if c.Distance.AvgSpeedMph <= 0 {
		return fmt.Errorf("distance.avgSpeedMph must be > 0")
	}
	return nil
}
