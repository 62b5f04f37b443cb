package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsAccessorsAfterJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Params{"n_estimators": 50, "alpha": 0.5, "criterion": "mse"})
	require.NoError(t, err)

	var p Params
	require.NoError(t, json.Unmarshal(data, &p))

	n, err := p.Int("n_estimators", 0)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	a, err := p.Float("alpha", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, a)

	c, err := p.Str("criterion", "")
	require.NoError(t, err)
	assert.Equal(t, "mse", c)

	d, err := p.Int("max_depth", -1)
	require.NoError(t, err)
	assert.Equal(t, -1, d, "missing key falls back to default")
}

func TestParamsIntRejectsFraction(t *testing.T) {
	_, err := Params{"max_depth": 2.5}.Int("max_depth", 0)
	assert.Error(t, err)
}

func TestValidateParams(t *testing.T) {
	specs := []ParamSpec{
		{Name: "n_estimators", Kind: ParamInt},
		{Name: "alpha", Kind: ParamFloat},
		{Name: "criterion", Kind: ParamString, Choices: []string{"gini", "entropy"}},
	}

	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"valid", Params{"n_estimators": 10.0, "alpha": 1, "criterion": "gini"}, false},
		{"empty", Params{}, false},
		{"unknown key", Params{"learning_rate": 0.1}, true},
		{"wrong int type", Params{"n_estimators": "ten"}, true},
		{"fractional int", Params{"n_estimators": 1.5}, true},
		{"wrong float type", Params{"alpha": "high"}, true},
		{"bad choice", Params{"criterion": "mse"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(specs, tt.params)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParamsCloneAndKeys(t *testing.T) {
	p := Params{"b": 1, "a": 2}
	c := p.Clone()
	c["c"] = 3

	assert.Len(t, p, 2)
	assert.Equal(t, []string{"a", "b", "c"}, c.Keys())
}
