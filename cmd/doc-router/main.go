package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/di"
	"github.com/mikey/doc-router/internal/eventstore"
	"github.com/mikey/doc-router/internal/factory"
)

func main() {
	flags, err := di.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		os.Exit(2)
	}

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	flags *di.CLIFlags,
	cfg *config.Config,
	logger *zap.Logger,
	intakes *factory.IntakeFactory,
	store *eventstore.Store,
	llmClient core.LLMClient,
) (err error) {
	defer logger.Sync()
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("Failed to close event store", zap.Error(closeErr))
		}
		if closer, ok := llmClient.(interface{ Close() error }); ok {
			if closeErr := closer.Close(); closeErr != nil {
				logger.Error("Failed to close LLM client", zap.Error(closeErr))
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch intakeType := cfg.GetIntake().Type; intakeType {
	case "cli":
		return runCLI(ctx, flags, intakes, store, logger)
	case "smtp":
		return runSMTP(ctx, intakes, logger)
	default:
		return fmt.Errorf("unsupported intake type: %s", intakeType)
	}
}

func runCLI(ctx context.Context, flags *di.CLIFlags, intakes *factory.IntakeFactory, store *eventstore.Store, logger *zap.Logger) error {
	cli := intakes.CreateCLIIntake(os.Stdout, flags.Verbose)
	cli.AddFiles(flags.Files...)
	if flags.Text != "" {
		cli.AddText("inline", flags.Text, flags.DeclaredKind())
	}

	err := cli.Start(ctx)

	failed := 0
	for _, outcome := range cli.Outcomes() {
		if outcome.Status == core.StatusFailed {
			failed++
		}
	}
	if n := store.WriteFailures(); n > 0 {
		logger.Warn("Some events could not be persisted", zap.Int64("write_failures", n))
	}
	if failed > 0 {
		err = errors.Join(err, fmt.Errorf("%d of %d input(s) failed", failed, len(cli.Outcomes())))
	}
	return err
}

func runSMTP(ctx context.Context, intakes *factory.IntakeFactory, logger *zap.Logger) error {
	smtpIntake := intakes.CreateSMTPIntake()
	if err := smtpIntake.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	if err := smtpIntake.Stop(); err != nil {
		logger.Error("Failed to stop SMTP intake", zap.Error(err))
	}
	logger.Info("Shutdown complete")
	return nil
}
