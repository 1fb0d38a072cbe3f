// Package health probes the gateway's dependencies (ledger RPC, pinning
// node, seed-index database) and reports readiness.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe is one dependency check. A degraded Critical probe makes the
// process not ready.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(probe string, success bool)

// ProbeStatus is the state of one probe.
type ProbeStatus struct {
	Name      string    `json:"name"`
	Critical  bool      `json:"critical"`
	Status    string    `json:"status"`
	FailCount int       `json:"fail_count"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthChecker runs periodic dependency probes.
type HealthChecker struct {
	probes    []Probe
	status    map[string]*ProbeStatus
	mu        sync.Mutex
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new HealthChecker. Every probe starts healthy.
func New(probes []Probe, cfg Config, logger *zap.Logger) *HealthChecker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	status := make(map[string]*ProbeStatus, len(probes))
	for _, p := range probes {
		status[p.Name] = &ProbeStatus{Name: p.Name, Critical: p.Critical, Status: "healthy"}
	}
	return &HealthChecker{
		probes: probes,
		status: status,
		cfg:    cfg,
		logger: logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *HealthChecker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the health check loop until ctx is cancelled.
func (h *HealthChecker) Start(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe concurrently, each bounded by ProbeTimeout.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range h.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := p.Check(pctx)
			cancel()
			h.record(p, err)
		}(p)
	}
	wg.Wait()
}

func (h *HealthChecker) record(p Probe, err error) {
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(p.Name, success)
	}

	h.mu.Lock()
	st := h.status[p.Name]
	prevCount := st.FailCount
	st.CheckedAt = time.Now().UTC()
	if success {
		st.FailCount = 0
		st.LastError = ""
		st.Status = "healthy"
	} else {
		st.FailCount++
		st.LastError = err.Error()
		if st.FailCount >= h.cfg.FailThreshold {
			st.Status = "degraded"
		}
	}
	count := st.FailCount
	h.mu.Unlock()

	switch {
	case success && prevCount >= h.cfg.FailThreshold:
		h.logger.Info("health: recovered", zap.String("probe", p.Name))
	case !success && count == h.cfg.FailThreshold:
		h.logger.Warn("health: degraded",
			zap.String("probe", p.Name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	}
}

// Ready reports whether no critical probe is degraded.
func (h *HealthChecker) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.status {
		if st.Critical && st.Status == "degraded" {
			return false
		}
	}
	return true
}

// Status returns a snapshot of every probe ordered by name.
func (h *HealthChecker) Status() []ProbeStatus {
	h.mu.Lock()
	out := make([]ProbeStatus, 0, len(h.status))
	for _, st := range h.status {
		out = append(out, *st)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HTTPProbe checks that endpoint answers 2xx to HEAD or, failing that, GET.
func HTTPProbe(client *http.Client, endpoint string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
		}

		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err = client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%s answered %d", endpoint, resp.StatusCode)
		}
		return nil
	}
}
