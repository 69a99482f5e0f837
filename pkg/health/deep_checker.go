package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/risk-engine/pkg/async"
	"github.com/richxcame/risk-engine/pkg/resilience"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// PingFunc probes one dependency.
type PingFunc func(ctx context.Context) error

// DependencyStatus is the outcome of a single probe.
type DependencyStatus struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Critical  bool          `json:"critical"`
	Latency   time.Duration `json:"latency_ms"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// BreakerStatus reports whether a signal-source breaker admits calls.
type BreakerStatus struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Allows bool   `json:"allows_requests"`
}

// DeepHealthStatus is the body served on /health/deep.
type DeepHealthStatus struct {
	Status       string                      `json:"status"`
	Version      string                      `json:"version,omitempty"`
	Uptime       time.Duration               `json:"uptime_seconds"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
	Breakers     map[string]BreakerStatus    `json:"circuit_breakers,omitempty"`
	CheckedAt    time.Time                   `json:"checked_at"`
}

// DeepCheckerConfig tunes probe timeouts and result caching.
type DeepCheckerConfig struct {
	Version  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

func DefaultDeepCheckerConfig() DeepCheckerConfig {
	return DeepCheckerConfig{Version: "unknown", Timeout: 2 * time.Second, CacheTTL: 10 * time.Second}
}

type probe struct {
	name     string
	ping     PingFunc
	critical bool
}

// DeepChecker probes registered dependencies concurrently. A failed critical
// probe makes the service unhealthy; a failed optional probe or an open
// breaker only degrades it, since assessments still answer fail-safe.
type DeepChecker struct {
	cfg     DeepCheckerConfig
	started time.Time

	mu       sync.RWMutex
	probes   map[string]probe
	breakers map[string]*resilience.CircuitBreaker
	cached   *DeepHealthStatus
	cachedAt time.Time
}

func NewDeepChecker(cfg DeepCheckerConfig) *DeepChecker {
	return &DeepChecker{
		cfg:      cfg,
		started:  time.Now(),
		probes:   make(map[string]probe),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// AddDependency registers a probe under name, replacing any previous one.
func (d *DeepChecker) AddDependency(name string, ping PingFunc, critical bool) {
	d.mu.Lock()
	d.probes[name] = probe{name: name, ping: ping, critical: critical}
	d.mu.Unlock()
}

func (d *DeepChecker) AddCircuitBreaker(name string, breaker *resilience.CircuitBreaker) {
	d.mu.Lock()
	d.breakers[name] = breaker
	d.mu.Unlock()
}

// Check returns the cached result while it is fresher than CacheTTL.
func (d *DeepChecker) Check(ctx context.Context) *DeepHealthStatus {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cachedAt) < d.cfg.CacheTTL {
		defer d.mu.RUnlock()
		return d.cached
	}
	probes := make([]probe, 0, len(d.probes))
	for _, p := range d.probes {
		probes = append(probes, p)
	}
	breakers := make(map[string]*resilience.CircuitBreaker, len(d.breakers))
	for name, b := range d.breakers {
		breakers[name] = b
	}
	d.mu.RUnlock()
	sort.Slice(probes, func(i, j int) bool { return probes[i].name < probes[j].name })

	results := make([]DependencyStatus, len(probes))
	tasks := make([]func(context.Context) error, len(probes))
	for i, p := range probes {
		i, p := i, p
		tasks[i] = func(ctx context.Context) error {
			results[i] = d.run(ctx, p)
			return nil
		}
	}
	async.Join(ctx, "health-probes", tasks...)

	status := &DeepHealthStatus{
		Status:       StatusHealthy,
		Version:      d.cfg.Version,
		Uptime:       time.Since(d.started),
		Dependencies: make(map[string]DependencyStatus, len(results)),
		Breakers:     make(map[string]BreakerStatus, len(breakers)),
		CheckedAt:    time.Now(),
	}
	for _, r := range results {
		status.Dependencies[r.Name] = r
		if r.Status != StatusHealthy {
			status.downgrade(r.Critical)
		}
	}
	for name, b := range breakers {
		bs := BreakerStatus{Name: name, State: "closed", Allows: b.Allow()}
		if !bs.Allows {
			bs.State = "open"
			status.downgrade(false)
		}
		status.Breakers[name] = bs
	}

	d.mu.Lock()
	d.cached, d.cachedAt = status, time.Now()
	d.mu.Unlock()
	return status
}

func (s *DeepHealthStatus) downgrade(critical bool) {
	switch {
	case critical:
		s.Status = StatusUnhealthy
	case s.Status == StatusHealthy:
		s.Status = StatusDegraded
	}
}

func (d *DeepChecker) run(ctx context.Context, p probe) DependencyStatus {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	res := DependencyStatus{Name: p.name, Critical: p.critical, Status: StatusHealthy, CheckedAt: start}
	if err := p.ping(probeCtx); err != nil {
		res.Status = StatusUnhealthy
		res.Message = "ping failed: " + err.Error()
	}
	res.Latency = time.Since(start)
	return res
}

// GinHandler serves Check, answering 503 only when unhealthy.
func (d *DeepChecker) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := d.Check(c.Request.Context())
		code := http.StatusOK
		if status.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

// IsReady reports whether every critical dependency answered.
func (d *DeepChecker) IsReady(ctx context.Context) bool {
	return d.Check(ctx).Status != StatusUnhealthy
}
