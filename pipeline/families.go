package pipeline

import (
	"sort"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/core/model"
	"github.com/YuminosukeSato/salescv/linear"
	"github.com/YuminosukeSato/salescv/pkg/errors"
	"github.com/YuminosukeSato/salescv/sklearn/ensemble"
	"github.com/YuminosukeSato/salescv/sklearn/tree"
)

// Family is a named learner with a declared hyperparameter space.
type Family struct {
	Name string

	specs func(task string) ([]model.ParamSpec, bool)
	build func(task string) model.Estimator
}

// families is the registry consulted by the trainers. Tests register extra
// families here.
var families = map[string]Family{
	"random_forest": {
		Name:  "random_forest",
		specs: byTask(ensemble.ParamSpecs(), ensemble.ClassifierParamSpecs()),
		build: func(task string) model.Estimator {
			if task == config.TaskClassification {
				return ensemble.NewRandomForestClassifier()
			}
			return ensemble.NewRandomForestRegressor()
		},
	},
	"decision_tree": {
		Name:  "decision_tree",
		specs: byTask(tree.ParamSpecs(), tree.ClassifierParamSpecs()),
		build: func(task string) model.Estimator {
			if task == config.TaskClassification {
				return tree.NewDecisionTreeClassifier()
			}
			return tree.NewDecisionTreeRegressor()
		},
	},
	"ridge": {
		Name:  "ridge",
		specs: byTask(linear.ParamSpecs(), nil),
		build: func(string) model.Estimator { return linear.NewRidge() },
	},
}

// byTask returns a spec lookup; a nil classification list means the family
// is regression only.
func byTask(regression, classification []model.ParamSpec) func(string) ([]model.ParamSpec, bool) {
	return func(task string) ([]model.ParamSpec, bool) {
		switch task {
		case config.TaskRegression:
			return regression, true
		case config.TaskClassification:
			return classification, classification != nil
		}
		return nil, false
	}
}

// LookupFamily returns the registered family called name.
func LookupFamily(name string) (Family, error) {
	f, ok := families[name]
	if !ok {
		return Family{}, errors.NewConfigurationErrorf("pipeline.LookupFamily", "unknown model family %q (known: %v)", name, FamilyNames())
	}
	return f, nil
}

// FamilyNames lists the registered families in sorted order.
func FamilyNames() []string {
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamSpecs returns the hyperparameters the family accepts for task.
func (f Family) ParamSpecs(task string) ([]model.ParamSpec, error) {
	specs, ok := f.specs(task)
	if !ok {
		return nil, errors.NewConfigurationErrorf("pipeline.Family.ParamSpecs", "family %q does not support task %q", f.Name, task)
	}
	return specs, nil
}

// New validates params against the family's specs and returns an unfitted
// estimator configured with them.
func (f Family) New(task string, params model.Params) (model.Estimator, error) {
	specs, err := f.ParamSpecs(task)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateParams(specs, params); err != nil {
		return nil, errors.NewConfigurationErrorf("pipeline.Family.New", "family %q: %v", f.Name, err)
	}
	est := f.build(task)
	if len(params) == 0 {
		return est, nil
	}
	setter, ok := est.(model.ParameterSetter)
	if !ok {
		return nil, errors.NewConfigurationErrorf("pipeline.Family.New", "family %q takes no parameters", f.Name)
	}
	if err := setter.SetParams(params); err != nil {
		return nil, errors.NewConfigurationErrorf("pipeline.Family.New", "family %q: %v", f.Name, err)
	}
	return est, nil
}

// seeded returns params with random_state set to seed when the family
// declares it and the search space left it open.
func (f Family) seeded(task string, params model.Params, seed uint64) model.Params {
	out := params.Clone()
	if _, ok := out["random_state"]; ok {
		return out
	}
	specs, err := f.ParamSpecs(task)
	if err != nil {
		return out
	}
	for _, s := range specs {
		if s.Name == "random_state" {
			out["random_state"] = int(seed % (1 << 31))
			break
		}
	}
	return out
}

// checkFamilies verifies every searched family exists and supports task.
func checkFamilies(search config.SearchConfig, task string) error {
	for name := range search.Families {
		f, err := LookupFamily(name)
		if err != nil {
			return err
		}
		if _, err := f.ParamSpecs(task); err != nil {
			return err
		}
	}
	return nil
}
