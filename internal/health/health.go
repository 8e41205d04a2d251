// Package health provides system health monitoring, status reporting and
// the service's HTTP surface.
package health

import (
	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

func (s SystemStatus) rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

func worst(a, b SystemStatus) SystemStatus {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// PlatformHealth contains the health of one platform integration.
type PlatformHealth struct {
	Platform  domain.Platform          `json:"platform"`
	Status    SystemStatus             `json:"status"`
	API       provider.APIStatus       `json:"api"`
	RateLimit provider.RateLimitStatus `json:"rate_limit"`
}

// DependencyHealth is the result of pinging a backing service.
type DependencyHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                      `json:"system_status"`
	Platforms    map[domain.Platform]PlatformHealth `json:"platforms"`
	Dependencies map[string]DependencyHealth       `json:"dependencies"`
	QueueDepth   int64                             `json:"queue_depth"`
	Posts        map[domain.PostStatus]int         `json:"posts,omitempty"`
}
