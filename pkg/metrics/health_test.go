package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func resetHealthChecker() {
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
}

func TestRegisterComponent(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("coordinator", true, "raft group leader elected")

	if len(healthChecker.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(healthChecker.components))
	}

	comp := healthChecker.components["coordinator"]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}

	if comp.Message != "raft group leader elected" {
		t.Errorf("unexpected message: %q", comp.Message)
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealthChecker()
	healthChecker.version = "1.0.0"

	RegisterComponent("coordinator", true, "")
	RegisterComponent("metrics-server", true, "")

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}

	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}

	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("metrics-server", true, "")
	RegisterComponent("coordinator", false, "raft leader lost")

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}

	if health.Components["coordinator"] != "unhealthy: raft leader lost" {
		t.Errorf("unexpected coordinator status: %s", health.Components["coordinator"])
	}
}

func TestGetReadiness(t *testing.T) {
	cases := []struct {
		name       string
		setup      func()
		wantStatus string
	}{
		{
			name: "coordinator ready",
			setup: func() {
				RegisterComponent("coordinator", true, "")
			},
			wantStatus: "ready",
		},
		{
			name:       "coordinator not registered",
			setup:      func() {},
			wantStatus: "not_ready",
		},
		{
			name: "coordinator unhealthy",
			setup: func() {
				RegisterComponent("coordinator", false, "leader not elected")
			},
			wantStatus: "not_ready",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resetHealthChecker()
			tc.setup()

			readiness := GetReadiness()
			if readiness.Status != tc.wantStatus {
				t.Errorf("expected status %q, got %q", tc.wantStatus, readiness.Status)
			}
			if tc.wantStatus == "not_ready" && readiness.Message == "" {
				t.Error("expected message explaining why not ready")
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealthChecker()
	healthChecker.version = "test"

	RegisterComponent("coordinator", true, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	HealthHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}

	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("coordinator", false, "store unavailable")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	HealthHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("metrics-server", true, "")
	// coordinator never registered

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	ReadyHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", readiness.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	resetHealthChecker()

	req := httptest.NewRequest("GET", "/live", nil)
	w := httptest.NewRecorder()

	LivenessHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}
}

func TestUpdateComponent(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("coordinator", true, "ok")
	UpdateComponent("coordinator", false, "raft apply timeout")

	comp := healthChecker.components["coordinator"]
	if comp.Healthy {
		t.Error("component should be unhealthy after update")
	}

	if comp.Message != "raft apply timeout" {
		t.Errorf("unexpected message: %q", comp.Message)
	}
}
