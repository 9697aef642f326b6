package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/value"
)

func newInspectCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect SNAPSHOT",
		Short: "Report per-plugin statistics of a cache snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cache.NewMemoryStore()
			n, err := restoreSnapshot(cmd.Context(), store, args[0])
			if err != nil {
				return fmt.Errorf("read snapshot %q: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Snapshot:    %s\n", args[0])
			fmt.Fprintf(out, "Entries:     %s\n", humanize.Comma(int64(n)))
			fmt.Fprintf(out, "Payload:     %s\n\n", humanize.IBytes(uint64(store.EstimatedBytes())))
			if n == 0 {
				return nil
			}
			printStats(out, store, snapshotPlugins(cmd.Context(), store))
			return nil
		},
	}
}

// snapshotPlugins lists the plugin ids present in store, sorted.
func snapshotPlugins(ctx context.Context, store cache.Ranger) []string {
	var ids []string
	store.Range(ctx, func(k cache.Key, _ value.Value) bool {
		if !slices.Contains(ids, k.PluginID) {
			ids = append(ids, k.PluginID)
		}
		return true
	})
	slices.Sort(ids)
	return ids
}
