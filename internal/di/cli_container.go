package di

import (
	"flag"
	"fmt"
	"strings"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/logging"
)

// CLIFlags contains all command line flags for the doc-router binary
type CLIFlags struct {
	ConfigFile string
	Intake     string
	Provider   string
	Journal    string
	Verbose    bool
	JSONLog    bool

	// Inline input
	Text string
	Kind string

	// Files are the remaining positional arguments
	Files []string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags(fs *flag.FlagSet, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}

	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file")
	fs.StringVar(&flags.Intake, "intake", "", "Intake type (cli, smtp); overrides intake.type")
	fs.StringVar(&flags.Provider, "provider", "", "LLM provider (openai, gemini, bedrock); overrides llm.provider")
	fs.StringVar(&flags.Journal, "journal", "", "Journal type (file, sqlite, mysql, postgres, memory); overrides journal.type")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.Text, "text", "", "Inline text to process")
	fs.StringVar(&flags.Kind, "kind", "", "Declared kind of the inline text (structured, message, plain_text, document)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	flags.Files = fs.Args()

	if flags.Kind != "" && core.ParseFormat(strings.ToLower(flags.Kind)) == core.FormatAuto {
		return nil, fmt.Errorf("unknown kind %q", flags.Kind)
	}
	return flags, nil
}

// DeclaredKind returns the format named by -kind
func (f *CLIFlags) DeclaredKind() core.Format {
	return core.ParseFormat(strings.ToLower(f.Kind))
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}
	return container, nil
}

// applyFlags overrides configuration with explicitly set flags
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	if flags.Intake != "" {
		cfg.Set("intake.type", flags.Intake)
	}
	if flags.Provider != "" {
		cfg.Set("llm.provider", flags.Provider)
	}
	if flags.Journal != "" {
		cfg.Set("journal.type", flags.Journal)
	}
}
