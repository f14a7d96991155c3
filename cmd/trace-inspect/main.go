package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/adapters/intake"
	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/eventstore"
	"github.com/mikey/doc-router/internal/factory"
	"github.com/mikey/doc-router/internal/logging"
)

var (
	configFile  = flag.String("config", "", "Path to config file")
	journalType = flag.String("journal", "", "Journal type; overrides journal.type")
	journalPath = flag.String("path", "", "Journal file or SQLite path; overrides the configured path")
	jsonOutput  = flag.Bool("json", false, "Print events as JSON")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [correlation-id ...]\n\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "Without ids, lists every correlation with its last status.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, flag.Args()); err != nil {
		logger.Error("Inspection failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, ids []string) error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *journalType != "" {
		cfg.Set("journal.type", *journalType)
	}
	if *journalPath != "" {
		cfg.Set("journal.path", *journalPath)
		cfg.Set("journal.sqlite_path", *journalPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	journal, err := factory.NewJournalFactory(cfg, logger).OpenReadOnly(ctx)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	store, err := eventstore.Open(ctx, journal, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(ids) == 0 {
		return list(store)
	}

	for _, id := range ids {
		events := store.Summary(id)
		if len(events) == 0 {
			fmt.Fprintf(os.Stderr, "%s: no events\n", id)
			continue
		}
		if *jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(events); err != nil {
				return err
			}
			continue
		}
		fmt.Printf("=== %s (%s) ===\n", id, events[0].Source)
		for _, e := range events {
			intake.WriteEvent(os.Stdout, e)
		}
	}
	return nil
}

func list(store *eventstore.Store) error {
	ids := store.AllCorrelations()
	if len(ids) == 0 {
		fmt.Println("No correlations recorded")
		return nil
	}
	for _, id := range ids {
		last, ok := store.Last(id)
		if !ok {
			continue
		}
		fmt.Printf("%s  %-10s %-20s %s  %s\n",
			id, last.Status, last.Component, last.Timestamp.Format(time.RFC3339), last.Source)
	}
	return nil
}
