package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/experiment"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/report"
	"github.com/ricesearch/rice-eval/internal/run"
	"github.com/ricesearch/rice-eval/internal/runcache"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score TREC run files against qrels",
		Long: `Score one or more TREC run files against a qrels file and compare
every system with the baseline.

Examples:
  rice-eval evaluate --qrels test.qrels --run bm25=bm25.res --run dense=dense.res
  rice-eval evaluate --qrels test.qrels --run bm25=bm25.res --run dense=dense.res \
      --fuse hybrid=bm25,dense --metric nDCG@10 --metric "RR(rel=2)@10" \
      --correction holm --format csv`,
		RunE: runEvaluate,
	}

	cmd.Flags().String("qrels", "", "TREC qrels file (required)")
	cmd.Flags().String("topics", "", "topics file (qid<TAB>text)")
	cmd.Flags().StringArray("run", nil, "system run as NAME=FILE (repeatable, first is baseline by default)")
	cmd.Flags().StringArray("fuse", nil, "fused system as NAME=A,B or NAME=A:0.7,B:0.3 (repeatable)")
	cmd.Flags().Int("fuse-k", 0, "reciprocal rank fusion constant (default 60)")
	cmd.Flags().StringArray("metric", nil, "metric such as nDCG@10 or R(rel=2)@100 (repeatable)")
	cmd.Flags().Int("baseline", 0, "index of the baseline system")
	cmd.Flags().String("test", "", "significance test (ttest, wilcoxon, permutation)")
	cmd.Flags().String("correction", "", "multiple comparison correction (none, bonferroni, holm)")
	cmd.Flags().Float64("alpha", 0, "significance level")
	cmd.Flags().Int("relevance-threshold", 0, "minimum grade counted as relevant")
	cmd.Flags().String("duplicates", "", "duplicate judgment policy (first, last, error)")
	cmd.Flags().String("missing", "", "queries absent from a run (zero, skip)")
	cmd.Flags().Bool("per-query", false, "include per-query values")
	cmd.Flags().StringP("format", "f", "text", "report format (text, json, csv)")
	cmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().String("cache-mode", "", "run cache mode for fused systems (off, reuse, overwrite)")
	cmd.Flags().String("cache-dir", "", "run cache directory")
	_ = cmd.MarkFlagRequired("qrels")

	return cmd
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyEvalFlags(cmd, cfg); err != nil {
		return err
	}

	format, err := report.ParseFormat(mustString(cmd, "format"))
	if err != nil {
		return err
	}

	policy, err := qrels.ParseDuplicatePolicy(cfg.Eval.DuplicatePolicy)
	if err != nil {
		return err
	}
	q, err := qrels.ReadQrelsFile(mustString(cmd, "qrels"), policy)
	if err != nil {
		return err
	}

	var topics []qrels.Query
	if path := mustString(cmd, "topics"); path != "" {
		topics, err = qrels.ReadTopicsFile(path)
		if err != nil {
			return err
		}
	}

	runFlags, _ := cmd.Flags().GetStringArray("run")
	if len(runFlags) == 0 {
		return fmt.Errorf("at least one --run is required")
	}
	names := make([]string, len(runFlags))
	paths := make([]string, len(runFlags))
	for i, v := range runFlags {
		names[i], paths[i], err = parseRunFlag(v)
		if err != nil {
			return err
		}
	}

	fuseK, _ := cmd.Flags().GetInt("fuse-k")
	fuseFlags, _ := cmd.Flags().GetStringArray("fuse")
	fusions := make([]experiment.FusionSpec, len(fuseFlags))
	for i, v := range fuseFlags {
		fusions[i], err = parseFuseFlag(v)
		if err != nil {
			return err
		}
		fusions[i].K = fuseK
	}

	if err := validateSystems(names, fusions, cfg.Eval.Metrics); err != nil {
		return err
	}

	systems := loadSystems(names, paths, log)
	for _, spec := range fusions {
		sys, err := experiment.FusionSystem(spec, systems)
		if err != nil {
			return err
		}
		systems = append(systems, sys)
	}

	engine, opts, err := experiment.Setup(cfg.Eval, cfg.Cache.Mode, log)
	if err != nil {
		return err
	}

	var cache runcache.Cache
	if opts.CacheMode != runcache.ModeOff {
		cache, err = runcache.New(cfg.Cache)
		if err != nil {
			return err
		}
		defer func() { _ = cache.Close() }()
	}

	eventBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return err
	}
	defer func() { _ = eventBus.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := experiment.NewRunner(engine, cache, eventBus, log, opts)
	result, err := runner.Run(ctx, systems, q, topics)
	if err != nil {
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), mustString(cmd, "output"), result.Report, format); err != nil {
		return err
	}

	if n := len(result.Failures); n > 0 {
		return fmt.Errorf("%d of %d systems failed", n, len(systems))
	}
	return nil
}

// applyEvalFlags overrides the configuration with flags the user set.
func applyEvalFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("metric") {
		cfg.Eval.Metrics, _ = flags.GetStringArray("metric")
	}
	if flags.Changed("baseline") {
		cfg.Eval.Baseline, _ = flags.GetInt("baseline")
	}
	if flags.Changed("test") {
		cfg.Eval.Test, _ = flags.GetString("test")
	}
	if flags.Changed("correction") {
		cfg.Eval.Correction, _ = flags.GetString("correction")
	}
	if flags.Changed("alpha") {
		cfg.Eval.Alpha, _ = flags.GetFloat64("alpha")
	}
	if flags.Changed("relevance-threshold") {
		cfg.Eval.RelevanceThreshold, _ = flags.GetInt("relevance-threshold")
	}
	if flags.Changed("duplicates") {
		cfg.Eval.DuplicatePolicy, _ = flags.GetString("duplicates")
	}
	if flags.Changed("missing") {
		cfg.Eval.MissingPolicy, _ = flags.GetString("missing")
	}
	if flags.Changed("per-query") {
		cfg.Eval.PerQuery, _ = flags.GetBool("per-query")
	}
	if flags.Changed("cache-mode") {
		cfg.Cache.Mode, _ = flags.GetString("cache-mode")
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir, _ = flags.GetString("cache-dir")
	}
	return cfg.Validate()
}

// loadSystems reads each run file. A file that cannot be read becomes a
// failed system so the others are still evaluated.
func loadSystems(names, paths []string, log *logger.Logger) []experiment.System {
	systems := make([]experiment.System, len(names))
	for i, name := range names {
		r, err := run.ReadFile(paths[i])
		if err != nil {
			log.WithError(err).Warn("Failed to load run", "system", name, "path", paths[i])
			systems[i] = experiment.System{Name: name, Err: err}
			continue
		}
		systems[i] = experiment.System{Name: name, Run: r}
	}
	return systems
}

func validateSystems(names []string, fusions []experiment.FusionSpec, metrics []string) error {
	v := security.EvaluateRequestValidator{
		Systems: names,
		Fusions: make([]security.FusionInput, len(fusions)),
		Metrics: len(metrics),
	}
	for i, f := range fusions {
		v.Fusions[i] = security.FusionInput{Name: f.Name, Inputs: f.Inputs, Weights: f.Weights}
	}
	return v.Validate()
}

func writeReport(stdout io.Writer, path string, rep *report.Report, format report.Format) (err error) {
	if path == "" {
		return report.Write(stdout, rep, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return report.Write(f, rep, format)
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
