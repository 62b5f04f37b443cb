// Command salescv runs the sales cross-validation pipeline stage by stage
// or end to end, and serves predictions from the trained model.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/salescv/config"
	"github.com/YuminosukeSato/salescv/pipeline"
	"github.com/YuminosukeSato/salescv/pkg/log"
	"github.com/YuminosukeSato/salescv/serving"
	"github.com/YuminosukeSato/salescv/storage"
)

type app struct {
	configPath string

	cfg    config.Config
	store  storage.Store
	runner *pipeline.Runner
}

// setup loads the configuration, configures logging and opens the store.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	var err error
	if a.configPath == "" {
		a.cfg, err = config.Parse(nil)
	} else {
		a.cfg, err = config.Load(a.configPath)
	}
	if err != nil {
		return err
	}
	log.Setup(a.cfg.Log.Level, a.cfg.Log.Format)

	if a.store, err = storage.Open(a.cfg.Store); err != nil {
		return err
	}
	a.runner, err = pipeline.NewRunner(a.cfg, a.store)
	return err
}

// ingestedPath is where the ingest stage leaves the dataset.
func (a *app) ingestedPath() string {
	return filepath.Join(a.cfg.Data.IngestDir, filepath.Base(a.cfg.Data.Source))
}

func ingestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "copy the raw dataset into the ingestion directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.runner.Ingest(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func validateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [CSV_PATH]",
		Short: "check the dataset against the configured schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.ingestedPath()
			if len(args) == 1 {
				path = args[0]
			}
			_, err := a.runner.Validate(cmd.Context(), path)
			return err
		},
	}
}

func crossValCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "crossval [CSV_PATH]",
		Short: "build features and folds, train every fold and select the best candidate",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.ingestedPath()
			if len(args) == 1 {
				path = args[0]
			}
			ds, err := a.runner.Validate(cmd.Context(), path)
			if err != nil {
				return err
			}
			split, err := a.runner.Featurize(cmd.Context(), ds)
			if err != nil {
				return err
			}
			sel, err := a.runner.CrossValidate(cmd.Context(), split)
			if err != nil {
				return err
			}
			return printJSON(cmd, sel)
		},
	}
}

func trainFinalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "train-final",
		Short: "refit the selected candidate on the whole train split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			split, err := a.runner.LoadSplit(cmd.Context())
			if err != nil {
				return err
			}
			sel, err := a.runner.Select(cmd.Context())
			if err != nil {
				return err
			}
			fm, err := a.runner.TrainFinal(cmd.Context(), sel, split.Train)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"family":    fm.Family,
				"params":    fm.Params,
				"n_samples": fm.NSamples,
			})
		},
	}
}

func evaluateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "score the final model on the held-out test split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			split, err := a.runner.LoadSplit(cmd.Context())
			if err != nil {
				return err
			}
			fm, err := pipeline.LoadFinalModel(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			report, err := a.runner.Evaluate(cmd.Context(), fm, split.Test)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func runCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run every stage from ingestion to evaluation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve predictions from the final model over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Serve
			if addr != "" {
				cfg.Addr = addr
			}
			return serving.NewServer(a.store, cfg, nil).ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides serve.addr)")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "salescv",
		Short:             "grouped cross-validation pipeline for retail sales data",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the YAML configuration (defaults when empty)")

	root.AddCommand(ingestCmd(a))
	root.AddCommand(validateCmd(a))
	root.AddCommand(crossValCmd(a))
	root.AddCommand(trainFinalCmd(a))
	root.AddCommand(evaluateCmd(a))
	root.AddCommand(runCmd(a))
	root.AddCommand(serveCmd(a))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.GetLoggerWithName("salescv").Error("command failed", err)
		stop()
		os.Exit(1)
	}
}
