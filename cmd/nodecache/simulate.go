package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/host"
	"github.com/jonwraymond/nodecache/observe"
	"github.com/jonwraymond/nodecache/plugin"
	"github.com/jonwraymond/nodecache/plugins/assetloader"
	"github.com/jonwraymond/nodecache/plugins/constant"
	"github.com/jonwraymond/nodecache/plugins/multiply"
	"github.com/jonwraymond/nodecache/value"
)

// bundledPlugins returns the plugins every host session loads.
func bundledPlugins(loaderOpts ...assetloader.Option) []plugin.Plugin {
	return []plugin.Plugin{
		constant.New(),
		multiply.New(),
		assetloader.New(loaderOpts...),
	}
}

const samplePrims = `# sample stage
/World
/World/Geo/Cube
/World/Geo/Sphere
/World/Lights/Key
/World/Lights/Fill
`

type simulateOptions struct {
	iterations int
	stageFile  string
	snapshot   string
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Exercise the bundled plugins and print cache statistics",
		Long: `Build a small graph (constant -> multiply, plus a stage reader), execute
it repeatedly while editing parameters halfway through, and print the
per-plugin cache statistics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger, err := observe.NewLoggerWithFormat(cfg.Telemetry.Logging.Level, cfg.Telemetry.Logging.Format)
			if err != nil {
				return err
			}
			store, err := cfg.Store.Build()
			if err != nil {
				return err
			}
			s, err := host.New(host.Config{
				Store:       store,
				Logger:      logger,
				Workers:     cfg.Host.Workers,
				HostVersion: cfg.Host.Version,
			})
			if err != nil {
				return err
			}
			defer s.Close(context.WithoutCancel(cmd.Context()))

			if err := simulate(cmd.Context(), s, opts); err != nil {
				return err
			}
			if opts.snapshot != "" {
				n, err := writeSnapshot(cmd.Context(), store, opts.snapshot)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot:    %s entries -> %s\n", humanize.Comma(int64(n)), opts.snapshot)
			}
			printStats(cmd.OutOrStdout(), s.Store(), []string{constant.PluginID, multiply.PluginID, assetloader.PluginID})
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.iterations, "iterations", "n", 4, "executions per node")
	cmd.Flags().StringVar(&opts.stageFile, "stage-file", "", "prim listing for the stage reader (default: a generated sample)")
	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "write a snapshot of the store to this path before exiting")
	return cmd
}

// simulate runs the graph opts.iterations times. Halfway through it changes
// the constant and the reader's filter, which invalidates the multiply result
// and the reader's process stage but keeps its load stage.
func simulate(ctx context.Context, s *host.Session, opts *simulateOptions) error {
	if opts.iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", opts.iterations)
	}
	for _, p := range bundledPlugins() {
		if _, err := s.LoadPlugin(ctx, p); err != nil {
			return err
		}
	}

	stageFile := opts.stageFile
	if stageFile == "" {
		dir, err := os.MkdirTemp("", "nodecache-sim-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		stageFile = filepath.Join(dir, "sample.prims")
		if err := os.WriteFile(stageFile, []byte(samplePrims), 0o600); err != nil {
			return err
		}
	}

	src, err := s.CreateNode(ctx, constant.NodeType)
	if err != nil {
		return err
	}
	mul, err := s.CreateNode(ctx, multiply.NodeType)
	if err != nil {
		return err
	}
	reader, err := s.CreateNode(ctx, assetloader.NodeType)
	if err != nil {
		return err
	}

	steps := []func() error{
		func() error { return s.SetParameter(ctx, src, constant.ParamValue, value.Float(2)) },
		func() error { return s.SetParameter(ctx, mul, multiply.ParamFactor, value.Float(3)) },
		func() error { return s.SetParameter(ctx, reader, assetloader.ParamFilePath, value.String(stageFile)) },
		func() error {
			return s.Connect(ctx, host.Edge{From: src, FromPort: constant.OutputPort, To: mul, ToPort: multiply.InputPort})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	for i := range opts.iterations {
		if i == opts.iterations/2 && i > 0 {
			if err := s.SetParameter(ctx, src, constant.ParamValue, value.Float(5)); err != nil {
				return err
			}
			if err := s.SetParameter(ctx, reader, assetloader.ParamFilter, value.String("Lights")); err != nil {
				return err
			}
		}
		if _, err := s.Execute(ctx, src); err != nil {
			return err
		}
		for _, r := range s.ExecuteAll(ctx, []uint32{mul, reader}) {
			if r.Err != nil {
				return r.Err
			}
		}
	}
	return nil
}

func printStats(w io.Writer, store cache.Store, pluginIDs []string) {
	ctx := context.Background()
	fmt.Fprintf(w, "%-8s %8s %8s %8s %8s %7s %10s\n", "PLUGIN", "ENTRIES", "HITS", "MISSES", "INVAL", "RATIO", "MEMORY")
	fmt.Fprintln(w, strings.Repeat("-", 64))
	for _, id := range pluginIDs {
		st := store.PluginStatistics(ctx, id)
		fmt.Fprintf(w, "%-8s %8s %8s %8s %8s %6.1f%% %10s\n",
			id,
			humanize.Comma(int64(st.TotalEntries)),
			humanize.Comma(st.Hits),
			humanize.Comma(st.Misses),
			humanize.Comma(st.Invalidations),
			st.HitRatio()*100,
			humanize.IBytes(uint64(st.EstimatedMemory)),
		)
	}
}
