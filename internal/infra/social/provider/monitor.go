package provider

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// UsageState is the quota health of a platform.
type UsageState int

const (
	UsageHealthy   UsageState = iota // well within quota
	UsageDegraded                    // slow responses or quota above the warn mark
	UsageThrottled                   // the platform is rate limiting us
)

func (s UsageState) String() string {
	switch s {
	case UsageHealthy:
		return "healthy"
	case UsageDegraded:
		return "degraded"
	case UsageThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// appUsage mirrors the Graph X-App-Usage header, values are percentages.
type appUsage struct {
	CallCount    float64 `json:"call_count"`
	TotalTime    float64 `json:"total_time"`
	TotalCPUTime float64 `json:"total_cputime"`
}

// UsageMonitor tracks latency, throttling and reported quota for one platform.
type UsageMonitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	throttleCount int
	throttledAt   time.Time
	retryAfter    time.Duration

	requestTimestamps []time.Time
	windowDuration    time.Duration

	usage          appUsage
	usageUpdatedAt time.Time

	slowResponseThreshold time.Duration
	warnUsagePct          float64

	now func() time.Time
}

// NewUsageMonitor creates a monitor with default thresholds.
func NewUsageMonitor() *UsageMonitor {
	return &UsageMonitor{
		recentLatencies:       make([]time.Duration, 0, 100),
		maxLatencyWindow:      100,
		windowDuration:        time.Hour,
		slowResponseThreshold: 3 * time.Second,
		warnUsagePct:          80,
		now:                   time.Now,
	}
}

// RecordRequest records a completed request and its latency.
func (m *UsageMonitor) RecordRequest(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}

	m.requestTimestamps = append(m.requestTimestamps, now)
	cutoff := now.Add(-m.windowDuration)
	i := 0
	for i < len(m.requestTimestamps) && !m.requestTimestamps[i].After(cutoff) {
		i++
	}
	m.requestTimestamps = m.requestTimestamps[i:]
}

// RecordThrottle records a rate limited response. A zero retryAfter keeps
// the platform marked throttled for one minute.
func (m *UsageMonitor) RecordThrottle(retryAfter time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	m.throttleCount++
	m.throttledAt = m.now()
	m.retryAfter = retryAfter
}

// ObserveHeaders captures usage headers. Graph reports X-App-Usage as JSON
// percentages; LinkedIn sends nothing comparable.
func (m *UsageMonitor) ObserveHeaders(h http.Header) {
	raw := h.Get("X-App-Usage")
	if raw == "" {
		return
	}
	var u appUsage
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = u
	m.usageUpdatedAt = m.now()
}

// State returns the current quota health.
func (m *UsageMonitor) State() UsageState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *UsageMonitor) stateLocked() UsageState {
	if m.throttleCount > 0 && m.now().Sub(m.throttledAt) < m.retryAfter {
		return UsageThrottled
	}
	if m.usage.CallCount >= 100 || m.usage.TotalTime >= 100 || m.usage.TotalCPUTime >= 100 {
		return UsageThrottled
	}
	if m.maxUsage() >= m.warnUsagePct {
		return UsageDegraded
	}
	if len(m.recentLatencies) > 10 && m.averageLatencyLocked() > m.slowResponseThreshold {
		return UsageDegraded
	}
	return UsageHealthy
}

func (m *UsageMonitor) maxUsage() float64 {
	return max(m.usage.CallCount, m.usage.TotalTime, m.usage.TotalCPUTime)
}

// RetryAfter returns the time left before the platform should be called again.
func (m *UsageMonitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.retryAfter > 0 {
		if remaining := m.retryAfter - m.now().Sub(m.throttledAt); remaining > 0 {
			return remaining
		}
	}
	return 0
}

// AverageLatency returns the mean of recent request latencies.
func (m *UsageMonitor) AverageLatency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.averageLatencyLocked()
}

func (m *UsageMonitor) averageLatencyLocked() time.Duration {
	if len(m.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range m.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(m.recentLatencies))
}

// RequestCount returns the number of requests seen within d (capped at one hour).
func (m *UsageMonitor) RequestCount(d time.Duration) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().Add(-d)
	count := 0
	for _, t := range m.requestTimestamps {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// Status snapshots the monitor for health reporting.
func (m *UsageMonitor) Status() RateLimitStatus {
	retryAfter := m.RetryAfter()
	lastHour := m.RequestCount(time.Hour)

	m.mu.RLock()
	defer m.mu.RUnlock()

	return RateLimitStatus{
		Status:           m.stateLocked().String(),
		CallCountPct:     m.usage.CallCount,
		TotalTimePct:     m.usage.TotalTime,
		TotalCPUTimePct:  m.usage.TotalCPUTime,
		ThrottleCount:    m.throttleCount,
		RequestsLastHour: lastHour,
		RetryAfter:       retryAfter,
		UpdatedAt:        m.usageUpdatedAt,
	}
}
