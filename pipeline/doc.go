// Package pipeline runs grouped cross-validation with hyperparameter search
// over tabular sales data.
//
// The stages run in a fixed order and hand state to each other through a
// storage.Store:
//
//	dataset ─▶ FeatureTransformer ─▶ Splitter ─▶ CandidateTrainer (×K)
//	        ─▶ Selector ─▶ FinalTrainer ─▶ Evaluator
//
// Each fold writes cross_val/fold_<id>/{model,params,metrics}; metrics is
// written last and marks the fold complete. The Selector only reads what is
// in the store, so it can be re-run at any time and returns the same
// answer. The final model is always refitted from scratch on the whole
// train split using the selected family and hyperparameters.
//
// Basic usage:
//
//	cfg, _ := config.Load("salescv.yaml")
//	store, _ := storage.Open(cfg.Store)
//	runner, err := pipeline.NewRunner(cfg, store)
//	if err != nil {
//		return err
//	}
//	report, err := runner.Run(ctx)
package pipeline
