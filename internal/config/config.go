package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	DBMinConns  int32  `envconfig:"SIFT_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"SIFT_DB_MAX_CONNS" default:"8"`

	DedupStrategy             string  `envconfig:"DEDUP_STRATEGY" default:"sequence"`
	DedupSequenceThreshold    float64 `envconfig:"DEDUP_SEQUENCE_THRESHOLD" default:"0.85"`
	DedupWordOverlapThreshold float64 `envconfig:"DEDUP_WORD_OVERLAP_THRESHOLD" default:"0.85"`
	DedupLengthBandRatio      float64 `envconfig:"DEDUP_LENGTH_BAND_RATIO" default:"0.2"`
	DedupMinFuzzyLength       int     `envconfig:"DEDUP_MIN_FUZZY_LENGTH" default:"10"`
	DedupBatchWindow          int     `envconfig:"DEDUP_BATCH_WINDOW" default:"1000"`
	DedupOwnerWorkers         int     `envconfig:"DEDUP_OWNER_WORKERS" default:"4"`

	APITokenHash       string `envconfig:"API_TOKEN_HASH" default:""`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBMinConns < 0 {
		return fmt.Errorf("SIFT_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("SIFT_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("SIFT_DB_MIN_CONNS (%d) cannot exceed SIFT_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	switch strings.TrimSpace(c.DedupStrategy) {
	case "sequence", "word_overlap":
	default:
		return fmt.Errorf("DEDUP_STRATEGY must be sequence or word_overlap, got %q", c.DedupStrategy)
	}
	if c.DedupSequenceThreshold < 0 || c.DedupSequenceThreshold > 1 {
		return fmt.Errorf("DEDUP_SEQUENCE_THRESHOLD must be in [0,1], got %v", c.DedupSequenceThreshold)
	}
	if c.DedupWordOverlapThreshold < 0 || c.DedupWordOverlapThreshold > 1 {
		return fmt.Errorf("DEDUP_WORD_OVERLAP_THRESHOLD must be in [0,1], got %v", c.DedupWordOverlapThreshold)
	}
	if c.DedupLengthBandRatio < 0 || c.DedupLengthBandRatio >= 1 {
		return fmt.Errorf("DEDUP_LENGTH_BAND_RATIO must be in [0,1), got %v", c.DedupLengthBandRatio)
	}
	if c.DedupMinFuzzyLength < 0 {
		return fmt.Errorf("DEDUP_MIN_FUZZY_LENGTH must be >= 0")
	}
	if c.DedupBatchWindow < 1 {
		return fmt.Errorf("DEDUP_BATCH_WINDOW must be >= 1")
	}
	if c.DedupOwnerWorkers < 1 {
		return fmt.Errorf("DEDUP_OWNER_WORKERS must be >= 1")
	}
	return nil
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
