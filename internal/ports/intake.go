package ports

import (
	"context"

	"github.com/mikey/doc-router/internal/core"
	"github.com/mikey/doc-router/internal/router"
)

// Intake defines how inputs enter the pipeline
type Intake interface {
	// Start begins accepting inputs. File-based intakes process everything
	// and return; listeners return once they are serving.
	Start(ctx context.Context) error

	// Stop stops accepting inputs
	Stop() error
}

// Pipeline processes inputs to their terminal event
type Pipeline interface {
	Process(ctx context.Context, input core.Input) *router.Outcome
	ProcessBatch(ctx context.Context, inputs []core.Input) []*router.Outcome
}

// DocumentExtractor turns a binary document into plain text
type DocumentExtractor interface {
	ExtractText(ctx context.Context, path string, data []byte) (string, error)
}
