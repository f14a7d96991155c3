package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/ports"
	"github.com/mikey/doc-router/internal/router"
)

// CLIIntake processes files and inline text given on the command line
type CLIIntake struct {
	pipeline  ports.Pipeline
	documents ports.DocumentExtractor
	logger    *zap.Logger
	out       io.Writer
	verbose   bool

	paths    []string
	inline   []core.Input
	outcomes []*router.Outcome
}

// NewCLIIntake creates a new CLI intake writing summaries to out
func NewCLIIntake(pipeline ports.Pipeline, documents ports.DocumentExtractor, logger *zap.Logger, out io.Writer, verbose bool) *CLIIntake {
	if documents == nil {
		documents = SidecarExtractor{}
	}
	if out == nil {
		out = os.Stdout
	}
	return &CLIIntake{
		pipeline:  pipeline,
		documents: documents,
		logger:    logger,
		out:       out,
		verbose:   verbose,
	}
}

// AddFiles queues files for processing
func (c *CLIIntake) AddFiles(paths ...string) {
	c.paths = append(c.paths, paths...)
}

// AddText queues inline text with a declared kind
func (c *CLIIntake) AddText(source, text string, kind core.Format) {
	if source == "" {
		source = fmt.Sprintf("inline-%d", len(c.inline)+1)
	}
	c.inline = append(c.inline, core.Input{Source: source, Payload: []byte(text), Kind: kind})
}

// Start loads every queued input, processes them as one batch and prints a summary of each.
// Files that cannot be read are reported in the returned error; the rest are still processed.
func (c *CLIIntake) Start(ctx context.Context) error {
	var loadErrs []error
	inputs := make([]core.Input, 0, len(c.paths)+len(c.inline))
	for _, path := range c.paths {
		input, err := c.LoadFile(ctx, path)
		if err != nil {
			c.logger.Error("Failed to load input", zap.String("file", path), zap.Error(err))
			loadErrs = append(loadErrs, err)
			continue
		}
		inputs = append(inputs, input)
	}
	inputs = append(inputs, c.inline...)

	if len(inputs) == 0 {
		if len(loadErrs) > 0 {
			return errors.Join(loadErrs...)
		}
		return errors.New("no inputs given")
	}

	startTime := time.Now()
	c.outcomes = c.pipeline.ProcessBatch(ctx, inputs)
	duration := time.Since(startTime)

	for _, outcome := range c.outcomes {
		WriteOutcome(c.out, outcome, c.verbose)
	}
	fmt.Fprintf(c.out, "\nProcessed %d input(s) in %v\n", len(c.outcomes), duration.Round(time.Millisecond))

	return errors.Join(loadErrs...)
}

// Outcomes returns the results of the last Start
func (c *CLIIntake) Outcomes() []*router.Outcome {
	return c.outcomes
}

// Stop is a no-op for the CLI intake
func (c *CLIIntake) Stop() error {
	return nil
}

// LoadFile reads a file and declares its kind from the extension
func (c *CLIIntake) LoadFile(ctx context.Context, path string) (core.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Input{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	input := core.Input{Source: filepath.Base(path), Payload: data}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		input.Kind = core.FormatStructured
	case ".eml":
		input.Kind = core.FormatMessage
	case ".pdf":
		input.Kind = core.FormatDocument
		text, err := c.documents.ExtractText(ctx, path, data)
		if err != nil {
			// The raw bytes still go through so the failure is on record
			c.logger.Warn("Document text extraction failed", zap.String("file", path), zap.Error(err))
			break
		}
		input.Payload = []byte(text)
	default:
		input.Kind = core.FormatAuto
	}

	c.logger.Debug("Loaded input",
		zap.String("file", path),
		zap.String("declared_kind", string(input.Kind)),
		zap.Int("bytes", len(input.Payload)))
	return input, nil
}
