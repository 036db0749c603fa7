package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/runcache"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage stored runs",
	}

	clearCmd := &cobra.Command{
		Use:   "clear TAG...",
		Short: "Remove stored runs so the next reuse recomputes them",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCacheClear,
	}
	clearCmd.Flags().String("cache-dir", "", "run cache directory")

	cmd.AddCommand(clearCmd)
	return cmd
}

func runCacheClear(cmd *cobra.Command, tags []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("cache-dir") {
		cfg.Cache.Dir, _ = cmd.Flags().GetString("cache-dir")
	}

	cache, err := runcache.New(cfg.Cache)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	log.Debug("Clearing runs", "cache", cfg.Cache.Type, "tags", len(tags))
	return clearRuns(cmd.Context(), cmd.OutOrStdout(), cache, tags)
}

// clearRuns deletes every tag, stopping at the first failure.
func clearRuns(ctx context.Context, w io.Writer, cache runcache.Cache, tags []string) error {
	for _, tag := range tags {
		if err := runcache.ValidateTag(tag); err != nil {
			return err
		}
		if err := cache.Delete(ctx, tag); err != nil {
			return err
		}
		fmt.Fprintf(w, "cleared %s\n", tag)
	}
	return nil
}
