package config

import (
	"time"

	redisclient "github.com/vietddude/socialhub/internal/infra/redis"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/social/retry"
	"github.com/vietddude/socialhub/internal/infra/storage/postgres"
	"github.com/vietddude/socialhub/internal/jobs"
	"github.com/vietddude/socialhub/internal/publishing"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
	Redis      redisclient.Config `yaml:"redis"`
	Platforms  PlatformsConfig    `yaml:"platforms"`
	Publishing publishing.Config  `yaml:"publishing"`
	Retry      retry.Config       `yaml:"retry"`
	Jobs       jobs.Config        `yaml:"jobs"`
	Webhooks   WebhookConfig      `yaml:"webhooks"`
	OAuth      OAuthConfig        `yaml:"oauth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"             validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"  validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// PlatformsConfig holds credentials per platform. A platform without an
// app or client id is not registered.
type PlatformsConfig struct {
	Facebook  provider.GraphConfig    `yaml:"facebook"`
	Instagram provider.GraphConfig    `yaml:"instagram"`
	LinkedIn  provider.LinkedInConfig `yaml:"linkedin"`
	HTTP      HTTPConfig              `yaml:"http"`
}

// HTTPConfig tunes the shared platform HTTP transport.
type HTTPConfig struct {
	Timeout time.Duration          `yaml:"timeout"`
	Breaker provider.BreakerConfig `yaml:"breaker"`
}

// WebhookConfig holds webhook settings.
type WebhookConfig struct {
	// VerifyToken answers the Graph subscription handshake.
	VerifyToken string `yaml:"verify_token"`
}

// OAuthConfig holds settings for the consent redirect.
type OAuthConfig struct {
	StateSecret string        `yaml:"state_secret"`
	StateTTL    time.Duration `yaml:"state_ttl"`
	// RedirectBaseURL is the public origin of this service, used to build
	// /oauth/{platform}/callback.
	RedirectBaseURL string `yaml:"redirect_base_url" validate:"omitempty,url"`
}
