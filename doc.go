// Package salescv trains and serves sales-forecasting models using grouped
// cross-validation with hyperparameter search.
//
// The repository is organized as a set of small packages that the
// pipeline stitches together:
//
//   - config: YAML configuration, defaults and validation
//   - dataset: CSV loading, schema checks and group extraction
//   - storage: artifact stores (local files, memory, S3)
//   - pipeline: featurize, split, per-fold search, selection, final refit, evaluation
//   - serving: HTTP prediction endpoints backed by the stored artifacts
//   - preprocessing: imputers, scaler, one-hot encoder, PCA
//   - sklearn/tree, sklearn/ensemble, linear: model families
//   - sklearn/model_selection: KFold, GroupKFold, parameter grids and samplers
//   - metrics: regression and classification reports
//   - core/model, core/parallel: estimator interfaces and bounded fan-out
//   - pkg/errors, pkg/log: error taxonomy and structured logging
//
// # Quick Start
//
// Run every stage from the command line:
//
//	salescv --config salescv.yaml run
//
// or drive the pipeline from Go:
//
//	cfg, err := config.Load("salescv.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := storage.Open(cfg.Store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	runner, err := pipeline.NewRunner(cfg, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := runner.Run(ctx)
//
// Once a final model exists, `salescv serve` exposes it over HTTP.
package salescv
