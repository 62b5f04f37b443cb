package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Classifier combines interfaces for classification models.
// Class labels are the integer codes produced by preprocessing.LabelEncoder.
type Classifier interface {
	Estimator

	// PredictProba returns probability estimates for each class.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the unique classes seen during fitting.
	Classes() []int
}

// ContextFitter is implemented by models whose training can be interrupted.
// Implementations check ctx between units of work (trees, iterations) and
// return ctx.Err() once it is done.
type ContextFitter interface {
	FitContext(ctx context.Context, X, y mat.Matrix) error
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}

// FitWithContext fits est, honouring ctx when the model supports it.
func FitWithContext(ctx context.Context, est Fitter, X, y mat.Matrix) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cf, ok := est.(ContextFitter); ok {
		return cf.FitContext(ctx, X, y)
	}
	return est.Fit(X, y)
}
