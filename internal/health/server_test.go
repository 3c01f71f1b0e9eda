package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/crewguard/internal/core/retry"
)

func TestServer_Health(t *testing.T) {
	tests := []struct {
		failures int
		status   SystemStatus
		code     int
		delay    time.Duration
	}{
		{0, StatusHealthy, http.StatusOK, 3 * time.Second},
		{2, StatusDegraded, http.StatusOK, 12 * time.Second},
		{5, StatusCritical, http.StatusServiceUnavailable, 96 * time.Second},
	}

	for _, tt := range tests {
		ctx := context.Background()
		counter := retry.NewMemoryCounter()
		for range tt.failures {
			_, _ = counter.Increment(ctx)
		}
		controller := retry.NewController(retry.WithFailureCounter(counter), retry.WithAdaptiveDelay(retry.AdaptivePolicy))
		srv := NewServer(controller, 0)

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != tt.code {
			t.Errorf("failures=%d: code = %d, want %d", tt.failures, rec.Code, tt.code)
		}
		var report Report
		if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if report.Status != tt.status || report.ConsecutiveFailures != tt.failures {
			t.Errorf("failures=%d: report = %+v", tt.failures, report)
		}
		if report.AdaptiveDelaySecs != tt.delay.Seconds() {
			t.Errorf("failures=%d: delay = %v, want %v", tt.failures, report.AdaptiveDelaySecs, tt.delay.Seconds())
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	srv := NewServer(retry.NewController(), 0)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default registry metrics")
	}
}
