package inspect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/health"
	"github.com/jonwraymond/nodecache/plugin"
	"github.com/jonwraymond/nodecache/value"
)

type fakeLister []plugin.Info

func (f fakeLister) Plugins() []plugin.Info { return f }

func seeded(t *testing.T) *cache.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := cache.NewMemoryStore()
	entries := map[cache.Key]value.Value{
		cache.NewKey("math", 2, 0):                value.Float(4),
		cache.NewKey("math", 1, 0):                value.Float(2),
		cache.NewStageKey("usd", 7, "load", 0):    value.String("a"),
		cache.NewStageKey("usd", 7, "process", 0): value.String("b"),
		cache.NewStageKey("usd", 8, "load", 0):    value.String("c"),
	}
	for k, v := range entries {
		if err := st.Insert(ctx, k, v); err != nil {
			t.Fatalf("Insert(%s) error = %v", k, err)
		}
	}
	st.Get(ctx, cache.NewKey("math", 1, 0))
	st.Get(ctx, cache.NewKey("math", 9, 0))
	return st
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestStats(t *testing.T) {
	h := New(Deps{Store: seeded(t)})

	rec := do(t, h, http.MethodGet, "/v1/plugins/math/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[StatsResponse](t, rec)
	if got.PluginID != "math" || got.TotalEntries != 2 || got.SingleStageEntries != 2 {
		t.Errorf("stats = %+v", got.Statistics)
	}
	if got.Hits != 1 || got.Misses != 1 || got.HitRatio != 0.5 {
		t.Errorf("hits/misses/ratio = %d/%d/%v, want 1/1/0.5", got.Hits, got.Misses, got.HitRatio)
	}
	if got.EstimatedMemory <= 0 || got.Memory == "" {
		t.Errorf("memory = %d %q", got.EstimatedMemory, got.Memory)
	}
}

func TestStats_UnknownPluginIsEmpty(t *testing.T) {
	h := New(Deps{Store: seeded(t)})

	got := decode[StatsResponse](t, do(t, h, http.MethodGet, "/v1/plugins/nope/stats"))
	if got.TotalEntries != 0 || got.HitRatio != 0 || got.AvgMemoryPerEntry != 0 {
		t.Errorf("stats = %+v, want zero", got)
	}
}

func TestKeys_Sorted(t *testing.T) {
	h := New(Deps{Store: seeded(t)})

	got := decode[[]cache.Key](t, do(t, h, http.MethodGet, "/v1/plugins/usd/keys"))
	want := []cache.Key{
		cache.NewStageKey("usd", 7, "load", 0),
		cache.NewStageKey("usd", 7, "process", 0),
		cache.NewStageKey("usd", 8, "load", 0),
	}
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	rec := do(t, h, http.MethodGet, "/v1/plugins/nope/keys")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty keys body = %q, want []", body)
	}
}

func TestInvalidate(t *testing.T) {
	st := seeded(t)
	h := New(Deps{Store: st})
	ctx := context.Background()

	rec := do(t, h, http.MethodPost, "/v1/plugins/usd/nodes/7/invalidate?stage=process")
	got := decode[RemovedResponse](t, rec)
	if got.Removed != 1 || got.Pattern != "stage(usd,7,process)" {
		t.Errorf("stage invalidate = %+v", got)
	}
	if !st.Contains(ctx, cache.NewStageKey("usd", 7, "load", 0)) {
		t.Error("load stage should survive a process-stage invalidation")
	}

	got = decode[RemovedResponse](t, do(t, h, http.MethodPost, "/v1/plugins/usd/nodes/7/invalidate"))
	if got.Removed != 1 || got.Pattern != "node(usd,7)" {
		t.Errorf("node invalidate = %+v", got)
	}
	if !st.Contains(ctx, cache.NewStageKey("usd", 8, "load", 0)) {
		t.Error("other nodes should survive")
	}
}

func TestInvalidate_BadNode(t *testing.T) {
	h := New(Deps{Store: seeded(t)})

	for _, node := range []string{"abc", "-1", "4294967296"} {
		rec := do(t, h, http.MethodPost, "/v1/plugins/usd/nodes/"+node+"/invalidate")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("node %q: status = %d, want 400", node, rec.Code)
		}
	}
}

func TestClearPlugin(t *testing.T) {
	st := seeded(t)
	h := New(Deps{Store: st})

	got := decode[RemovedResponse](t, do(t, h, http.MethodDelete, "/v1/plugins/usd"))
	if got.Removed != 3 {
		t.Errorf("removed = %d, want 3", got.Removed)
	}
	if n := len(st.PluginKeys(context.Background(), "math")); n != 2 {
		t.Errorf("math keys = %d, want 2 untouched", n)
	}
}

func TestListPlugins(t *testing.T) {
	lister := fakeLister{{Name: "math", Version: "1.0.0"}, {Name: "usd", Version: "0.2.0"}}
	h := New(Deps{Store: seeded(t), Plugins: lister})

	got := decode[[]PluginSummary](t, do(t, h, http.MethodGet, "/v1/plugins"))
	if len(got) != 2 {
		t.Fatalf("plugins = %+v, want 2", got)
	}
	if got[0].Name != "math" || got[0].Entries != 2 || got[1].Entries != 3 {
		t.Errorf("plugins = %+v", got)
	}

	// Without a lister the listing route is absent.
	if rec := do(t, New(Deps{Store: seeded(t)}), http.MethodGet, "/v1/plugins"); rec.Code != http.StatusNotFound {
		t.Errorf("status without lister = %d, want 404", rec.Code)
	}
}

func TestHealthRoutes(t *testing.T) {
	st := seeded(t)
	agg := health.NewAggregator()
	agg.Register("store", health.NewStoreChecker(st, health.StoreCheckerConfig{MaxEntries: 100}))
	h := New(Deps{Store: st, Health: agg})

	if rec := do(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/readyz")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("/readyz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	st := seeded(t)
	reg := prometheus.NewRegistry()
	h := New(Deps{
		Store:          st,
		Metrics:        NewMetrics(reg, st),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	do(t, h, http.MethodGet, "/v1/plugins/math/stats")

	rec := do(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`nodecache_inspect_requests_total{method="GET",path="/v1/plugins/{plugin}/stats",status="200"} 1`,
		"nodecache_inspect_request_duration_seconds",
		"nodecache_store_entries 5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
