package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestPipelineErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		is   func(error) bool
		msg  string
	}{
		{
			name: "configuration",
			err:  NewConfigurationErrorf("Splitter.Split", "k=%d exceeds %d distinct groups", 6, 5),
			kind: KindConfiguration,
			is:   IsConfiguration,
			msg:  "salescv: Splitter.Split: configuration error: k=6 exceeds 5 distinct groups",
		},
		{
			name: "training",
			err:  NewTrainingError("CandidateTrainer.TrainFold", "all 4 trials failed", fmt.Errorf("singular matrix")),
			kind: KindTraining,
			is:   IsTraining,
			msg:  "salescv: CandidateTrainer.TrainFold: training error: all 4 trials failed: singular matrix",
		},
		{
			name: "no candidates",
			err:  NewNoCandidatesError("Selector.SelectBest", "no fold metrics found"),
			kind: KindNoCandidates,
			is:   IsNoCandidates,
			msg:  "salescv: Selector.SelectBest: no_candidates error: no fold metrics found",
		},
		{
			name: "io",
			err:  NewIOError("FileStore.Get", "cross_val/fold_1/metrics", fmt.Errorf("permission denied")),
			kind: KindIO,
			is:   IsIO,
			msg:  `salescv: FileStore.Get: io error (key "cross_val/fold_1/metrics"): permission denied`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.msg)
			}
			kind, ok := KindOf(tt.err)
			if !ok || kind != tt.kind {
				t.Errorf("KindOf() = %v, %v; want %v", kind, ok, tt.kind)
			}
			if !tt.is(tt.err) {
				t.Errorf("Is%s() = false", tt.kind)
			}
		})
	}
}

func TestPipelineErrorSurvivesWrapping(t *testing.T) {
	base := fmt.Errorf("disk full")
	err := Wrap(NewIOError("FileStore.Put", "final/model", base), "persisting final model")

	if !IsIO(err) {
		t.Fatal("expected wrapped error to keep the io kind")
	}
	if IsTraining(err) {
		t.Error("io error must not classify as training")
	}
	if !Is(err, base) {
		t.Error("expected cause to be reachable through the chain")
	}
	if !strings.Contains(fmt.Sprintf("%+v", err), "taxonomy_test.go") {
		t.Error("expected stack trace in verbose format")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if _, ok := KindOf(fmt.Errorf("plain")); ok {
		t.Error("plain errors carry no pipeline kind")
	}
}
