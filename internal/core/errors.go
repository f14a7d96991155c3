package core

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy. Only ErrFormatUndetectable ever stops a pipeline run early;
// the others degrade the result and are recorded on events.
var (
	ErrFormatUndetectable = errors.New("format undetectable")
	ErrServiceTransient   = errors.New("service transient failure")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrNormalization      = errors.New("response normalization failed")
	ErrSchemaAnomaly      = errors.New("schema anomaly")
	ErrStoreWrite         = errors.New("event store write failed")
)

// Transient marks err as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrServiceTransient, err)
}

// IsTransient reports whether err may succeed on retry
func IsTransient(err error) bool {
	return errors.Is(err, ErrServiceTransient)
}

// FailureKind returns the taxonomy name of err for event details
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFormatUndetectable):
		return "FormatUndetectable"
	case errors.Is(err, ErrServiceUnavailable):
		return "ServiceUnavailable"
	case errors.Is(err, ErrServiceTransient):
		return "ServiceTransient"
	case errors.Is(err, ErrNormalization):
		return "NormalizationFailure"
	case errors.Is(err, ErrSchemaAnomaly):
		return "SchemaAnomaly"
	case errors.Is(err, ErrStoreWrite):
		return "StoreWriteFailure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	}
	return "Internal"
}

// FailureDetail is the details payload recorded for a degraded step
func FailureDetail(err error) map[string]any {
	return map[string]any{
		"kind":  FailureKind(err),
		"error": err.Error(),
	}
}
