package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpdateComponent(t *testing.T) {
	h := NewHealthChecker("store")
	h.Update("store", true, "open")

	if len(h.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(h.components))
	}

	comp := h.components["store"]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}
	if comp.Message != "open" {
		t.Errorf("expected message 'open', got '%s'", comp.Message)
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		expected   string
	}{
		{
			name:       "all healthy",
			components: map[string]bool{"store": true, "projector": true},
			expected:   "healthy",
		},
		{
			name:       "one unhealthy",
			components: map[string]bool{"store": true, "projector": false},
			expected:   "unhealthy",
		},
		{
			name:       "nothing registered",
			components: map[string]bool{},
			expected:   "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker()
			for name, healthy := range tt.components {
				h.Update(name, healthy, "")
			}

			st := h.Status()
			if st.Status != tt.expected {
				t.Errorf("expected status '%s', got '%s'", tt.expected, st.Status)
			}
			if len(st.Components) != len(tt.components) {
				t.Errorf("expected %d components, got %d", len(tt.components), len(st.Components))
			}
		})
	}
}

func TestReadiness(t *testing.T) {
	h := NewHealthChecker("projector", "store")
	h.SetVersion("1.0.0")

	st := h.Readiness()
	if st.Status != "not_ready" {
		t.Errorf("expected 'not_ready' before registration, got '%s'", st.Status)
	}
	if st.Message != "waiting for projector" {
		t.Errorf("unexpected message '%s'", st.Message)
	}

	h.Update("store", true, "")
	h.Update("projector", false, "starting")
	if st := h.Readiness(); st.Status != "not_ready" {
		t.Errorf("expected 'not_ready' with an unhealthy component, got '%s'", st.Status)
	}

	h.Update("projector", true, "")
	st = h.Readiness()
	if st.Status != "ready" {
		t.Errorf("expected 'ready', got '%s'", st.Status)
	}
	if st.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", st.Version)
	}
}

func TestHandlers(t *testing.T) {
	h := NewHealthChecker("store")

	w := httptest.NewRecorder()
	h.ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	h.Update("store", true, "")
	w = httptest.NewRecorder()
	h.ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var st HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if st.Components["store"] != "healthy" {
		t.Errorf("expected store healthy, got '%s'", st.Components["store"])
	}
}
