package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newRouter(checkers map[string]Checker) http.Handler {
	agg := NewAggregator()
	for name, c := range checkers {
		agg.Register(name, c)
	}
	r := chi.NewRouter()
	Mount(r, agg)
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveness(t *testing.T) {
	rec := get(t, newRouter(nil), "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		status Status
		code   int
		body   string
	}{
		{StatusHealthy, http.StatusOK, "OK"},
		{StatusDegraded, http.StatusOK, "DEGRADED"},
		{StatusUnhealthy, http.StatusServiceUnavailable, "UNHEALTHY"},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			rec := get(t, newRouter(map[string]Checker{"c": fixed(tt.status)}), "/readyz")
			if rec.Code != tt.code || rec.Body.String() != tt.body {
				t.Errorf("got %d %q, want %d %q", rec.Code, rec.Body.String(), tt.code, tt.body)
			}
		})
	}
}

func TestDetailed(t *testing.T) {
	h := newRouter(map[string]Checker{
		"store": NewStoreChecker(fakeSizer{entries: 3, bytes: 120}, StoreCheckerConfig{MaxEntries: 10}),
		"down":  fixed(StatusUnhealthy),
	})
	rec := get(t, h, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d", rec.Code)
	}

	var resp struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status  string         `json:"status"`
			Error   string         `json:"error"`
			Details map[string]any `json:"details"`
		} `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Checks["store"].Status != "healthy" || resp.Checks["store"].Details["entries"] != float64(3) {
		t.Errorf("store check = %+v", resp.Checks["store"])
	}
	if resp.Checks["down"].Error != ErrCheckFailed.Error() {
		t.Errorf("down error = %q", resp.Checks["down"].Error)
	}
}

func TestSingleCheck(t *testing.T) {
	h := newRouter(map[string]Checker{"slow": fixed(StatusDegraded)})

	rec := get(t, h, "/health/slow")
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
	var resp map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v", resp["status"])
	}

	if rec := get(t, h, "/health/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing code = %d", rec.Code)
	}
}
