package factory

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/adapters/intake"
	"github.com/mikey/doc-router/internal/allowlist"
	"github.com/mikey/doc-router/internal/config"
	"github.com/mikey/doc-router/internal/ports"
)

// IntakeFactory creates intakes based on configuration
type IntakeFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline ports.Pipeline
}

// NewIntakeFactory creates a new intake factory
func NewIntakeFactory(cfg *config.Config, logger *zap.Logger, pipeline ports.Pipeline) *IntakeFactory {
	return &IntakeFactory{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
	}
}

// CreateCLIIntake creates an intake for files and inline text
func (f *IntakeFactory) CreateCLIIntake(out io.Writer, verbose bool) *intake.CLIIntake {
	return intake.NewCLIIntake(f.pipeline, intake.SidecarExtractor{}, f.logger, out, verbose)
}

// CreateSMTPIntake creates the SMTP listener intake
func (f *IntakeFactory) CreateSMTPIntake() *intake.SMTPIntake {
	smtpCfg := f.cfg.GetIntake().SMTP
	return intake.NewSMTPIntake(
		f.pipeline,
		allowlist.NewChecker(smtpCfg.AllowedDomains, f.logger),
		smtpCfg,
		f.logger,
	)
}

// CreateIntake creates the intake named by intake.type
func (f *IntakeFactory) CreateIntake(out io.Writer, verbose bool) (ports.Intake, error) {
	intakeType := f.cfg.GetIntake().Type
	switch intakeType {
	case "cli":
		return f.CreateCLIIntake(out, verbose), nil
	case "smtp":
		return f.CreateSMTPIntake(), nil
	default:
		return nil, fmt.Errorf("unsupported intake type: %s", intakeType)
	}
}
