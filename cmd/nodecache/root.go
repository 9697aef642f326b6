package main

import (
	"github.com/spf13/cobra"

	"github.com/jonwraymond/nodecache/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "nodecache",
		Short: "Cache and lifecycle host for plugin graph nodes",
		Long: `nodecache hosts the shared cache that plugin nodes of a node-graph engine
store their outputs in, and keeps those entries coherent with node lifecycle
events.

Examples:
  # Serve the inspection API with a config file
  nodecache serve --config nodecache.yaml

  # Run the bundled plugins through a few executions and print cache stats
  nodecache simulate --iterations 10

  # Report per-plugin statistics of a snapshot
  nodecache inspect /var/lib/nodecache/cache.snap`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newSimulateCmd(opts),
		newInspectCmd(opts),
	)
	return cmd
}

// load returns the config at the --config path, or the defaults.
func (o *rootOptions) load() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}
