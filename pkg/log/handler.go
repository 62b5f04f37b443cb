package log

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/salescv/pkg/errors"
)

var stackOnce sync.Once

// installStackMarshaler makes zerolog emit the cockroachdb/errors stack of
// an error logged with Stack().Err(err) under the "stack" field.
func installStackMarshaler() {
	stackOnce.Do(func() {
		zerolog.ErrorStackMarshaler = extractStacktrace
	})
}

func extractStacktrace(err error) interface{} {
	if st := errors.StackTrace(err); st != "" {
		return st
	}
	return nil
}
