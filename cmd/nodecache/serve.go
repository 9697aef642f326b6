package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/config"
	"github.com/jonwraymond/nodecache/health"
	"github.com/jonwraymond/nodecache/host"
	"github.com/jonwraymond/nodecache/inspect"
	"github.com/jonwraymond/nodecache/observe"
	"github.com/jonwraymond/nodecache/plugins/assetloader"
	"github.com/jonwraymond/nodecache/watch"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache inspection API",
		Long: `Start a host session with the bundled plugins loaded and serve the
inspection API, health probes and Prometheus metrics.

With snapshot.path set, the store is restored from the snapshot on start and
written back on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	app := fx.New(appOptions(cfg))
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-app.Wait():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return app.Stop(stopCtx)
}

// appOptions wires the serve application. Invoke order fixes lifecycle order:
// on stop the server drains first, then the snapshot is written, then the
// session clears its plugins' entries.
func appOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			newObserver,
			newLogger,
			newStore,
			newSession,
			newWatcher,
			newHealth,
			newPrometheus,
			newHTTPServer,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(
			loadPlugins,
			registerSnapshot,
			startServer,
		),
	)
}

func newObserver(lc fx.Lifecycle, cfg *config.Config) (observe.Observer, error) {
	obs, err := observe.NewObserver(context.Background(), cfg.Telemetry.ObserveConfig(host.Version))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: obs.Shutdown})
	return obs, nil
}

func newLogger(obs observe.Observer) *zap.Logger {
	return observe.Zap(obs.Logger())
}

func newStore(cfg *config.Config, obs observe.Observer) (config.Store, error) {
	metrics, err := observe.NewCacheMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return cfg.Store.Build(cache.WithRecorder(metrics))
}

func newSession(lc fx.Lifecycle, cfg *config.Config, store config.Store, obs observe.Observer) (*host.Session, error) {
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, err
	}
	s, err := host.New(host.Config{
		Store:       store,
		Logger:      obs.Logger(),
		Middleware:  mw,
		Workers:     cfg.Host.Workers,
		HostVersion: cfg.Host.Version,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: s.Close})
	return s, nil
}

// newWatcher returns nil when file watching is disabled.
func newWatcher(lc fx.Lifecycle, cfg *config.Config, obs observe.Observer) (*watch.Watcher, error) {
	if !cfg.Plugins.WatchFiles {
		return nil, nil
	}
	w, err := watch.New(obs.Logger())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() { _ = w.Run(ctx) }()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return w.Close()
		},
	})
	return w, nil
}

func newHealth(cfg *config.Config, store config.Store) *health.Aggregator {
	agg := health.NewAggregator(health.AggregatorConfig{Timeout: cfg.Health.Timeout, Parallel: true})
	agg.Register("store", health.NewStoreChecker(store, health.StoreCheckerConfig{
		MaxEntries:        cfg.Store.MaxEntries,
		MaxBytes:          cfg.Store.MaxBytes,
		WarningThreshold:  cfg.Health.WarningThreshold,
		CriticalThreshold: cfg.Health.CriticalThreshold,
	}))
	return agg
}

// newPrometheus returns the registry shared with the OpenTelemetry Prometheus
// exporter.
func newPrometheus() (prometheus.Registerer, prometheus.Gatherer) {
	return prometheus.DefaultRegisterer, prometheus.DefaultGatherer
}

type httpParams struct {
	fx.In

	Config     *config.Config
	Store      config.Store
	Session    *host.Session
	Health     *health.Aggregator
	Observer   observe.Observer
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

func newHTTPServer(p httpParams) *http.Server {
	var auth *inspect.KeyAuth
	if len(p.Config.Server.APIKeyHashes) > 0 {
		auth = inspect.NewKeyAuth(p.Config.Server.APIKeyHeader, p.Config.Server.APIKeyHashes...)
	}
	handler := inspect.New(inspect.Deps{
		Store:          p.Store,
		Plugins:        p.Session,
		Health:         p.Health,
		Metrics:        inspect.NewMetrics(p.Registerer, p.Store),
		MetricsHandler: promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}),
		Logger:         p.Observer.Logger(),
		Auth:           auth,
	})
	return &http.Server{
		Addr:         p.Config.Server.Addr,
		Handler:      handler,
		ReadTimeout:  p.Config.Server.ReadTimeout,
		WriteTimeout: p.Config.Server.WriteTimeout,
	}
}

func loadPlugins(lc fx.Lifecycle, s *host.Session, w *watch.Watcher) {
	var loaderOpts []assetloader.Option
	if w != nil {
		loaderOpts = append(loaderOpts, assetloader.WithWatcher(w))
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, p := range bundledPlugins(loaderOpts...) {
				if _, err := s.LoadPlugin(ctx, p); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func registerSnapshot(lc fx.Lifecycle, cfg *config.Config, store config.Store, log *zap.Logger) {
	path := cfg.Snapshot.Path
	if path == "" {
		return
	}
	log = log.Named("snapshot").With(zap.String("path", path))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.Snapshot.RestoreOnStart {
				return nil
			}
			n, err := restoreSnapshot(ctx, store, path)
			if errors.Is(err, os.ErrNotExist) {
				log.Info("no snapshot to restore")
				return nil
			}
			if err != nil {
				return err
			}
			log.Info("snapshot restored", zap.Int("entries", n))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if !cfg.Snapshot.WriteOnStop {
				return nil
			}
			n, err := writeSnapshot(ctx, store, path)
			if err != nil {
				return err
			}
			log.Info("snapshot written", zap.Int("entries", n))
			return nil
		},
	})
}

func restoreSnapshot(ctx context.Context, dst cache.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return cache.ReadSnapshot(ctx, dst, f)
}

// writeSnapshot replaces path atomically.
func writeSnapshot(ctx context.Context, src cache.Ranger, path string) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := cache.WriteSnapshot(ctx, src, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("replace snapshot: %w", err)
	}
	return n, nil
}

func startServer(lc fx.Lifecycle, srv *http.Server, log *zap.Logger) {
	log = log.Named("http")
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("inspection server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("inspection server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
