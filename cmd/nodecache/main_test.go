package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/config"
	"github.com/jonwraymond/nodecache/value"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("nodecache %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestSimulate(t *testing.T) {
	out := run(t, "simulate", "--iterations", "4")

	if !strings.Contains(out, "PLUGIN") {
		t.Fatalf("missing header:\n%s", out)
	}
	for _, id := range []string{"const", "math", "usd"} {
		if !strings.Contains(out, "\n"+id+" ") {
			t.Errorf("missing row for %s:\n%s", id, out)
		}
	}
}

func TestSimulate_RejectsZeroIterations(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"simulate", "-n", "0"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for zero iterations")
	}
}

func TestSimulateSnapshot_Inspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.snap")
	run(t, "simulate", "--snapshot", path)

	out := run(t, "inspect", path)
	if !strings.Contains(out, "Entries:     3") {
		t.Errorf("want 3 entries (1 multiply result, 2 reader stages):\n%s", out)
	}
	if !strings.Contains(out, "\nmath ") || !strings.Contains(out, "\nusd ") {
		t.Errorf("missing plugin rows:\n%s", out)
	}
	if strings.Contains(out, "\nconst ") {
		t.Errorf("const stores nothing and should not be listed:\n%s", out)
	}
}

func TestInspect_MissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"inspect", filepath.Join(t.TempDir(), "nope.snap")})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Execute() error = %v, want os.ErrNotExist", err)
	}
}

func TestRootOptions_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodecache.yaml")
	if err := os.WriteFile(path, []byte("store:\n  backend: lru\n  max_entries: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	opts := &rootOptions{configPath: path, verbose: true}
	cfg, err := opts.load()
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Store.Backend != config.BackendLRU || cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("cfg = %+v / %+v", cfg.Store, cfg.Telemetry.Logging)
	}
}

func TestAppOptions_Validate(t *testing.T) {
	if err := fx.ValidateApp(appOptions(config.Default())); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

// testApp builds the serve app on a loopback port with a private Prometheus
// registry.
func testApp(t *testing.T, cfg *config.Config, store *config.Store) *fxtest.App {
	t.Helper()
	reg := prometheus.NewRegistry()
	return fxtest.New(t,
		appOptions(cfg),
		fx.Decorate(func(prometheus.Registerer) prometheus.Registerer { return reg }),
		fx.Decorate(func(prometheus.Gatherer) prometheus.Gatherer { return reg }),
		fx.Populate(store),
	)
}

func TestServe_SnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Telemetry.Metrics.Enabled = false
	cfg.Telemetry.Logging.Level = "error"
	cfg.Snapshot = config.SnapshotConfig{
		Path:           filepath.Join(t.TempDir(), "cache.snap"),
		RestoreOnStart: true,
		WriteOnStop:    true,
	}

	// First run: nothing to restore; the entry is written on stop, before the
	// session clears the math plugin.
	var store config.Store
	app := testApp(t, cfg, &store)
	app.RequireStart()
	key := cache.NewKey("math", 7, 0)
	if err := store.Insert(ctx, key, value.Float(3)); err != nil {
		t.Fatal(err)
	}
	app.RequireStop()

	if _, err := os.Stat(cfg.Snapshot.Path); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	// Second run restores it.
	var restored config.Store
	app = testApp(t, cfg, &restored)
	app.RequireStart()
	got, ok := restored.Get(ctx, key)
	if !ok || got != value.Float(3) {
		t.Errorf("restored Get() = %v, %v; want 3, true", got, ok)
	}
	app.RequireStop()
}

func TestWriteSnapshot_Replaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.snap")
	st := cache.NewMemoryStore()

	for i := range 2 {
		_ = st.Insert(ctx, cache.NewKey("p", uint32(i), 0), value.Integer(int32(i)))
		n, err := writeSnapshot(ctx, st, path)
		if err != nil {
			t.Fatalf("writeSnapshot() error = %v", err)
		}
		if n != i+1 {
			t.Errorf("writeSnapshot() = %d, want %d", n, i+1)
		}
	}

	dst := cache.NewMemoryStore()
	if n, err := restoreSnapshot(ctx, dst, path); err != nil || n != 2 {
		t.Errorf("restoreSnapshot() = %d, %v; want 2, nil", n, err)
	}
	matches, _ := filepath.Glob(path + ".*")
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}
