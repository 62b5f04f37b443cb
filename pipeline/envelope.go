package pipeline

import (
	"encoding/json"

	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// Envelope scopes.
const (
	ScopeFold  = "fold"
	ScopeFinal = "final"
)

// Envelope is the stored form of a fitted model. It records where the model
// came from next to the gob payload of the estimator itself. Params are kept
// as JSON so the encoding does not depend on map order.
type Envelope struct {
	Family   string
	Task     string
	Scope    string
	FoldID   int
	Params   []byte
	NSamples int
	Payload  []byte
}

// HyperParams decodes the recorded hyperparameters.
func (e *Envelope) HyperParams() (model.Params, error) {
	var p model.Params
	if len(e.Params) == 0 {
		return model.Params{}, nil
	}
	if err := json.Unmarshal(e.Params, &p); err != nil {
		return nil, errors.Wrap(err, "decode envelope params")
	}
	return p, nil
}

// EncodeModel wraps est in an envelope and serialises it.
func EncodeModel(env Envelope, params model.Params, est model.Estimator) ([]byte, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope params")
	}
	payload, err := model.MarshalModel(est)
	if err != nil {
		return nil, err
	}
	env.Params = p
	env.Payload = payload
	return model.MarshalModel(&env)
}

// DecodeModel restores an envelope and the estimator inside it.
func DecodeModel(data []byte) (*Envelope, model.Estimator, error) {
	var env Envelope
	if err := model.UnmarshalModel(data, &env); err != nil {
		return nil, nil, err
	}
	f, err := LookupFamily(env.Family)
	if err != nil {
		return nil, nil, err
	}
	if _, err := f.ParamSpecs(env.Task); err != nil {
		return nil, nil, err
	}
	est := f.build(env.Task)
	if err := model.UnmarshalModel(env.Payload, est); err != nil {
		return nil, nil, errors.Wrapf(err, "decode %s model", env.Family)
	}
	return &env, est, nil
}
