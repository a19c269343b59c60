// Package config loads the searchd YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the searchd API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Ranking    RankingConfig    `yaml:"ranking"`
	Search     SearchConfig     `yaml:"search"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// PostgresConfig holds the portfolio database connection settings.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxConns     int    `yaml:"max_conns"`
	ConnectSec   int    `yaml:"connect_timeout_sec"`
	ReadinessSec int    `yaml:"readiness_timeout_sec"`
}

// RedisConfig holds the query store / embedding cache connection settings.
type RedisConfig struct {
	Addrs        []string `yaml:"addrs"`
	Password     string   `yaml:"password"`
	ReadinessSec int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey           string  `yaml:"api_key"`
	BaseURL          string  `yaml:"base_url"`
	Model            string  `yaml:"model"`
	ImageEndpoint    string  `yaml:"image_endpoint"` // CLIP image tower HTTP endpoint
	HybridTextWeight float64 `yaml:"hybrid_text_weight"`
}

// ClassifierConfig holds style classifier settings. Thresholds are
// per-style minimum confidences; styles without an entry use Fallback.
type ClassifierConfig struct {
	Endpoint   string             `yaml:"endpoint"`
	Thresholds map[string]float64 `yaml:"thresholds"`
	Fallback   float64            `yaml:"fallback_threshold"`
}

// RankingConfig holds the tunable ranking constants.
type RankingConfig struct {
	SimilarityFloor float64 `yaml:"similarity_floor"`
	StyleBoostCap   float64 `yaml:"style_boost_cap"`
	ColorBonus      float64 `yaml:"color_bonus"`
	ColorPenalty    float64 `yaml:"color_penalty"`
	TopImages       int     `yaml:"top_images"`
	MaxCandidates   int     `yaml:"max_candidates"`
}

// SearchConfig holds per-request search settings.
type SearchConfig struct {
	TimeoutSec    int `yaml:"timeout_sec"`
	QueryTTLHours int `yaml:"query_ttl_hours"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"*"}
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 10
	}
	if c.Postgres.ConnectSec <= 0 {
		c.Postgres.ConnectSec = 5
	}
	if c.Postgres.ReadinessSec <= 0 {
		c.Postgres.ReadinessSec = 10
	}
	if c.Redis.ReadinessSec <= 0 {
		c.Redis.ReadinessSec = 10
	}
	if c.Embedding.HybridTextWeight <= 0 {
		c.Embedding.HybridTextWeight = 0.3
	}
	if c.Classifier.Fallback <= 0 {
		c.Classifier.Fallback = 0.5
	}
	if c.Ranking.SimilarityFloor <= 0 {
		c.Ranking.SimilarityFloor = 0.15
	}
	if c.Ranking.StyleBoostCap <= 0 {
		c.Ranking.StyleBoostCap = 0.05
	}
	if c.Ranking.ColorBonus <= 0 {
		c.Ranking.ColorBonus = 0.02
	}
	if c.Ranking.ColorPenalty <= 0 {
		c.Ranking.ColorPenalty = 0.01
	}
	if c.Ranking.TopImages <= 0 {
		c.Ranking.TopImages = 3
	}
	if c.Ranking.MaxCandidates <= 0 {
		c.Ranking.MaxCandidates = 2000
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 3
	}
	if c.Search.QueryTTLHours <= 0 {
		c.Search.QueryTTLHours = 24
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
	}
	if c.Ranking.SimilarityFloor > 1 {
		return fmt.Errorf("ranking.similarity_floor must be in [0,1], got %v", c.Ranking.SimilarityFloor)
	}
	if c.Embedding.HybridTextWeight > 1 {
		return fmt.Errorf("embedding.hybrid_text_weight must be in [0,1], got %v", c.Embedding.HybridTextWeight)
	}
	for name, v := range c.Classifier.Thresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("classifier.thresholds.%s must be in [0,1], got %v", name, v)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
