package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/rs/zerolog"
)

var (
	warnMu      sync.Mutex
	warnHandler = defaultWarnHandler
)

func defaultWarnHandler(w error) {
	log.Printf("salescv-warning: %v", w)
}

// SetWarningHandler routes warnings raised by Warn. pkg/log installs a
// handler that writes them as structured log lines; nil restores the
// standard-library logger.
func SetWarningHandler(h func(w error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	if h == nil {
		h = defaultWarnHandler
	}
	warnHandler = h
}

// Warn reports a non-fatal condition, such as an undefined metric.
func Warn(w error) {
	warnMu.Lock()
	h := warnHandler
	warnMu.Unlock()
	h(w)
}

// UndefinedMetricWarning is raised when a metric has no defined value for
// the input, e.g. R² on a constant target or precision for a class that is
// never predicted. Result is the value substituted.
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("%s is undefined (%s); using %g", w.Metric, w.Condition, w.Result)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "UndefinedMetricWarning").
		Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result)
}

// NewUndefinedMetricWarning builds an UndefinedMetricWarning.
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}
