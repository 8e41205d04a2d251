package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/social/retry"
	"github.com/vietddude/socialhub/internal/jobs"
	"github.com/vietddude/socialhub/internal/oauth"
	"github.com/vietddude/socialhub/internal/publishing"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML after expanding environment variables and fills in
// defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Platforms.HTTP.Timeout == 0 {
		c.Platforms.HTTP.Timeout = 30 * time.Second
	}
	if c.Platforms.HTTP.Breaker == (provider.BreakerConfig{}) {
		c.Platforms.HTTP.Breaker = provider.DefaultBreakerConfig
	}

	pubDefaults := publishing.DefaultConfig()
	if c.Publishing.RestrictedPlatforms == nil {
		c.Publishing.RestrictedPlatforms = pubDefaults.RestrictedPlatforms
	}
	if c.Publishing.MetricsDelay == 0 {
		c.Publishing.MetricsDelay = pubDefaults.MetricsDelay
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = retry.DefaultConfig.MaxAttempts
	}
	if len(c.Retry.Delays) == 0 {
		c.Retry.Delays = retry.DefaultConfig.Delays
	}

	jobDefaults := jobs.DefaultConfig()
	if c.Jobs.Workers == 0 {
		c.Jobs.Workers = jobDefaults.Workers
	}
	if c.Jobs.PollInterval == 0 {
		c.Jobs.PollInterval = jobDefaults.PollInterval
	}
	if c.Jobs.BatchSize == 0 {
		c.Jobs.BatchSize = jobDefaults.BatchSize
	}
	if c.Jobs.MaxAttempts == 0 {
		c.Jobs.MaxAttempts = jobDefaults.MaxAttempts
	}
	if len(c.Jobs.Backoff) == 0 {
		c.Jobs.Backoff = jobDefaults.Backoff
	}

	if c.OAuth.StateTTL == 0 {
		c.OAuth.StateTTL = oauth.DefaultStateTTL
	}
}
