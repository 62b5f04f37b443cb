package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// Params はハイパーパラメータのフラットなマップ。
// JSON で永続化されるため、値は int / float64 / string / bool のいずれか。
// JSON から読み戻した数値は float64 になるので、取得は型変換付きのメソッドで行う。
type Params map[string]interface{}

// Clone はシャローコピーを返す
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys はソート済みのキー一覧を返す
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Int は整数パラメータを返す。キーが無ければ def を返す
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := asInt(v)
	if !ok {
		return 0, errors.NewValidationError(key, "must be an integer", v)
	}
	return n, nil
}

// Float は実数パラメータを返す。キーが無ければ def を返す
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, errors.NewValidationError(key, "must be a number", v)
	}
	return f, nil
}

// Str は文字列パラメータを返す。キーが無ければ def を返す
func (p Params) Str(key string, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.NewValidationError(key, "must be a string", v)
	}
	return s, nil
}

// ParamKind はパラメータの型
type ParamKind int

const (
	ParamInt ParamKind = iota
	ParamFloat
	ParamString
)

func (k ParamKind) String() string {
	switch k {
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamString:
		return "string"
	default:
		return "unknown"
	}
}

// ParamSpec はモデルファミリーが受け付けるパラメータの宣言
type ParamSpec struct {
	Name    string
	Kind    ParamKind
	Choices []string // ParamString の場合の許容値（空なら任意）
}

// ValidateParams は params の全キーが specs に宣言されており、型が一致するかを検証する。
// モデル構築前に呼ぶことで、不正なパラメータでの学習を防ぐ。
func ValidateParams(specs []ParamSpec, params Params) error {
	byName := make(map[string]ParamSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	for _, key := range params.Keys() {
		spec, ok := byName[key]
		if !ok {
			return errors.NewValidationError(key, "unknown parameter", params[key])
		}
		v := params[key]
		switch spec.Kind {
		case ParamInt:
			if _, ok := asInt(v); !ok {
				return errors.NewValidationError(key, "must be an integer", v)
			}
		case ParamFloat:
			if _, ok := asFloat(v); !ok {
				return errors.NewValidationError(key, "must be a number", v)
			}
		case ParamString:
			s, ok := v.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", v)
			}
			if len(spec.Choices) > 0 && !contains(spec.Choices, s) {
				return errors.NewValidationError(key, fmt.Sprintf("must be one of %v", spec.Choices), v)
			}
		}
	}
	return nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
