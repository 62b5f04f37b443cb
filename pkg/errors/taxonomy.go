package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Kind classifies a pipeline failure. Callers above a component boundary
// only ever see one of these kinds.
type Kind string

const (
	// KindConfiguration covers bad fold counts, missing columns, schema
	// mismatches and invalid settings. Never retried.
	KindConfiguration Kind = "configuration"
	// KindTraining means a fold or the final refit produced no usable model.
	KindTraining Kind = "training"
	// KindNoCandidates means selection ran before any fold completed.
	KindNoCandidates Kind = "no_candidates"
	// KindIO covers artifact store read/write failures.
	KindIO Kind = "io"
)

// PipelineError is the error type returned across component boundaries.
type PipelineError struct {
	Kind    Kind
	Op      string
	Message string
	Key     string // artifact key, set for KindIO
	Err     error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("salescv: %s: %s error", e.Op, e.Kind)
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *PipelineError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("kind", string(e.Kind)).
		Str("operation", e.Op).
		Str("message", e.Message).
		Str("type", "PipelineError")
	if e.Key != "" {
		event.Str("key", e.Key)
	}
}

// NewConfigurationError reports an invalid setting or input shape.
func NewConfigurationError(op, message string) error {
	return errors.WithStack(&PipelineError{Kind: KindConfiguration, Op: op, Message: message})
}

// NewConfigurationErrorf is NewConfigurationError with formatting.
func NewConfigurationErrorf(op, format string, args ...interface{}) error {
	return errors.WithStack(&PipelineError{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)})
}

// NewTrainingError reports a stage that could not produce any model.
func NewTrainingError(op, message string, err error) error {
	return errors.WithStack(&PipelineError{Kind: KindTraining, Op: op, Message: message, Err: err})
}

// NewNoCandidatesError reports a selection attempted with no completed folds.
func NewNoCandidatesError(op, message string) error {
	return errors.WithStack(&PipelineError{Kind: KindNoCandidates, Op: op, Message: message})
}

// NewIOError reports a failed artifact read or write.
func NewIOError(op, key string, err error) error {
	return errors.WithStack(&PipelineError{Kind: KindIO, Op: op, Key: key, Err: err})
}

// KindOf returns the pipeline kind of err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

func isKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool { return isKind(err, KindConfiguration) }

// IsTraining reports whether err is a TrainingError.
func IsTraining(err error) bool { return isKind(err, KindTraining) }

// IsNoCandidates reports whether err is a NoCandidatesError.
func IsNoCandidates(err error) bool { return isKind(err, KindNoCandidates) }

// IsIO reports whether err is an IOError.
func IsIO(err error) bool { return isKind(err, KindIO) }
