package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type scriptedProbe struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (s *scriptedProbe) Check(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return errors.New("unavailable")
	}
	return nil
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestHTTPProbe_success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := HTTPProbe(srv.Client(), srv.URL)(context.Background()); err != nil {
		t.Errorf("expected probe to succeed, got %v", err)
	}
}

func TestHTTPProbe_failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := HTTPProbe(srv.Client(), srv.URL)(context.Background()); err == nil {
		t.Error("expected probe to fail")
	}
}

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	ledger := &scriptedProbe{fails: 100}
	checker := New([]Probe{{Name: "ledger", Critical: true, Check: ledger.Check}}, Config{
		ProbeTimeout:  time.Second,
		FailThreshold: 3,
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		checker.CheckAll(context.Background())
	}
	if !checker.Ready() {
		t.Fatal("expected ready below the threshold")
	}

	checker.CheckAll(context.Background())
	if checker.Ready() {
		t.Error("expected not ready after threshold failures")
	}
	if st := checker.Status()[0]; st.Status != "degraded" || st.FailCount != 3 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestCheckAll_recoversOnSuccess(t *testing.T) {
	ledger := &scriptedProbe{fails: 3}
	checker := New([]Probe{{Name: "ledger", Critical: true, Check: ledger.Check}}, Config{
		ProbeTimeout:  time.Second,
		FailThreshold: 3,
	}, zap.NewNop())

	// Fail 3 times, then succeed.
	for i := 0; i < 4; i++ {
		checker.CheckAll(context.Background())
	}

	if st := checker.Status()[0]; st.Status != "healthy" || st.LastError != "" {
		t.Errorf("expected healthy after recovery, got %+v", st)
	}
	if !checker.Ready() {
		t.Error("expected ready after recovery")
	}
}

func TestReady_ignoresNonCriticalProbes(t *testing.T) {
	pin := &scriptedProbe{fails: 100}
	var recorded []bool
	checker := New([]Probe{{Name: "pinning", Check: pin.Check}}, Config{FailThreshold: 1}, zap.NewNop())
	checker.SetMetricsRecord(func(probe string, success bool) {
		recorded = append(recorded, success)
	})

	checker.CheckAll(context.Background())
	if !checker.Ready() {
		t.Error("a degraded non-critical probe must not affect readiness")
	}
	if len(recorded) != 1 || recorded[0] {
		t.Errorf("expected one failed metric, got %v", recorded)
	}
}
