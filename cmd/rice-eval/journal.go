package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/config"
)

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect or replay the event journal",
		Long: `Inspect or replay the JSONL event journal written when bus.journal
is configured.

Examples:
  rice-eval journal list --since 24h
  rice-eval journal replay --since 1h`,
	}
	cmd.PersistentFlags().String("journal", "", "journal file (defaults to bus.journal)")
	cmd.PersistentFlags().Duration("since", 0, "only entries newer than this (0 = all)")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print journaled events",
		RunE:  runJournalList,
	}
	list.Flags().Int("limit", 0, "maximum entries to print (0 = all)")

	replay := &cobra.Command{
		Use:   "replay",
		Short: "Republish journaled events on the configured bus",
		RunE:  runJournalReplay,
	}

	cmd.AddCommand(list, replay)
	return cmd
}

func openJournal(cmd *cobra.Command, cfg *config.Config) (*bus.Journal, time.Time, error) {
	path, _ := cmd.Flags().GetString("journal")
	if path == "" {
		path = cfg.Bus.Journal
	}
	if path == "" {
		return nil, time.Time{}, fmt.Errorf("no journal configured: set bus.journal or --journal")
	}

	var since time.Time
	if d, _ := cmd.Flags().GetDuration("since"); d > 0 {
		since = time.Now().Add(-d)
	}

	journal, err := bus.OpenJournal(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return journal, since, nil
}

func runJournalList(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	journal, since, err := openJournal(cmd, cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := journal.Entries(since, limit)
	if err != nil {
		return err
	}
	return writeJournalEntries(cmd.OutOrStdout(), entries)
}

func runJournalReplay(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	journal, since, err := openJournal(cmd, cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	// Replayed events must not be journaled a second time
	busCfg := cfg.Bus
	busCfg.Journal = ""
	if busCfg.Type == "none" || busCfg.Type == "" {
		return fmt.Errorf("replay needs a bus transport: set bus.type to memory or kafka")
	}

	eventBus, err := bus.NewBus(busCfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = eventBus.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := journal.Replay(ctx, eventBus, since); err != nil {
		return err
	}
	log.Info("Journal replayed", "bus", busCfg.Type, "since", since)
	return nil
}

func writeJournalEntries(w io.Writer, entries []bus.JournalEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no journaled events")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("time", "topic", "source", "experiment")
	for _, e := range entries {
		t.Row(e.Timestamp.UTC().Format(time.RFC3339), e.Topic, e.Event.Source, e.Event.CorrelationID)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
