package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/config"
	"github.com/foodnutrition/pipeline/internal/app"
	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/logger"
	"github.com/foodnutrition/pipeline/internal/usecase"
)

const (
	exitOK    = 0
	exitError = 1
)

// command is one pipeline stage. It returns the process exit code.
type command struct {
	summary string
	run     func(ctx context.Context, env *env, args []string) int
}

type env struct {
	app    *app.App
	log    *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

var commands = map[string]command{
	"consolidate":  {"merge scraped source files into the record store", runConsolidate},
	"migrate":      {"remap categories per the taxonomy (dry run unless --apply)", runMigrate},
	"categories":   {"show taxonomy statistics and structural issues", runCategories},
	"enrich":       {"estimate nutrition for a single product", runEnrich},
	"batch-create": {"write a batch input file of records lacking nutrition", runBatchCreate},
	"batch-enrich": {"enrich a batch input file with the provider chain", runBatchEnrich},
	"validate":     {"grade an enriched batch file (exit 0 PASS, 1 FAIL, 2 WARN)", runValidate},
	"integrate":    {"validate and merge an enriched batch into the record store", runIntegrate},
	"cache-stats":  {"show enrichment cache statistics", runCacheStats},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: pipeline <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-13s %s\n", name, commands[name].summary)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stderr)
		if len(args) == 0 {
			return exitError
		}
		return exitOK
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return exitError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitError
	}

	log, err := logger.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "failed to build logger: %v\n", err)
		return exitError
	}
	defer log.Sync()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to wire application", zap.Error(err))
		return exitError
	}

	return cmd.run(ctx, &env{app: a, log: log, stdout: stdout, stderr: stderr}, args[1:])
}

// report writes v to stdout as indented JSON
func (e *env) report(v any) int {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		e.log.Error("failed to write report", zap.Error(err))
		return exitError
	}
	return exitOK
}

func (e *env) fail(msg string, err error) int {
	e.log.Error(msg, zap.Error(err))
	return exitError
}

func (e *env) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// parse reports flag errors on stderr; --help prints the flag list
func (e *env) parse(fs *pflag.FlagSet, args []string) bool {
	if err := fs.Parse(args); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(e.stderr, "%s: %v\n", fs.Name(), err)
			fs.PrintDefaults()
		}
		return false
	}
	return true
}

func runConsolidate(ctx context.Context, e *env, args []string) int {
	fs := e.flags("consolidate")
	sources := fs.StringToString("source", nil, "source file as name=path; repeatable (defaults to consolidation.sources)")
	if !e.parse(fs, args) {
		return exitError
	}

	files := *sources
	if len(files) == 0 {
		files = e.app.Config.Consolidation.Sources
	}
	if len(files) == 0 {
		e.log.Error("no source files configured; pass --source name=path")
		return exitError
	}

	rep, err := e.app.Consolidation().Consolidate(ctx, files)
	if err != nil {
		return e.fail("consolidation failed", err)
	}
	return e.report(rep)
}

func runMigrate(ctx context.Context, e *env, args []string) int {
	fs := e.flags("migrate")
	apply := fs.Bool("apply", false, "write the migrated records (default is a dry run)")
	if !e.parse(fs, args) {
		return exitError
	}

	svc, err := e.app.Migration()
	if err != nil {
		return e.fail("failed to load category taxonomy", err)
	}

	rep, err := svc.Run(ctx, !*apply)
	if rep != nil {
		e.report(rep)
	}
	if err != nil {
		return e.fail("migration failed", err)
	}
	if rep.DryRun && rep.Analysis.TotalAffected > 0 {
		e.log.Info("dry run only; rerun with --apply to write changes")
	}
	return exitOK
}

func runCategories(_ context.Context, e *env, args []string) int {
	fs := e.flags("categories")
	if !e.parse(fs, args) {
		return exitError
	}

	m, err := e.app.Categories()
	if err != nil {
		return e.fail("failed to load category taxonomy", err)
	}
	issues := m.ValidateStructure()
	code := e.report(struct {
		Stats  any      `json:"stats"`
		Issues []string `json:"issues"`
	}{m.Stats(), issues})
	if len(issues) > 0 {
		return exitError
	}
	return code
}

func runEnrich(ctx context.Context, e *env, args []string) int {
	fs := e.flags("enrich")
	var req domain.EnrichRequest
	fs.StringVar(&req.ProductName, "name", "", "product name (required)")
	fs.StringVar(&req.Brand, "brand", "", "brand")
	fs.StringVar(&req.Category, "category", "", "category")
	fs.StringVar(&req.SizeUnit, "size-unit", "", "pack size unit")
	size := fs.Float64("size", 0, "pack size value")
	force := fs.Bool("force", false, "bypass the enrichment cache")
	validate := fs.Bool("validate", false, "sanity-check the estimate")
	if !e.parse(fs, args) {
		return exitError
	}
	if fs.Changed("size") {
		req.SizeValue = size
	}

	result, err := e.app.Enrichment.Enrich(ctx, req, *force)
	if err != nil {
		return e.fail("enrichment failed", err)
	}
	if result == nil {
		e.log.Warn("no provider produced an estimate", zap.String("product", req.ProductName))
		return exitError
	}

	out := struct {
		Result     *domain.EnrichmentResult     `json:"result"`
		Validation *usecase.NutritionValidation `json:"validation,omitempty"`
	}{Result: result}
	if *validate {
		out.Validation = e.app.NutritionValidator.Validate(ctx, result, req.ProductName, req.Brand)
	}
	return e.report(out)
}

func runBatchCreate(ctx context.Context, e *env, args []string) int {
	fs := e.flags("batch-create")
	category := fs.String("category", "", "only select records in this category")
	size := fs.Int("size", e.app.Config.Enrichment.BatchSize, "maximum products in the batch")
	if !e.parse(fs, args) {
		return exitError
	}

	created, err := e.app.Batches().CreateBatch(ctx, *category, *size)
	if err != nil {
		return e.fail("batch creation failed", err)
	}
	return e.report(created)
}

func runBatchEnrich(ctx context.Context, e *env, args []string) int {
	fs := e.flags("batch-enrich")
	input := fs.String("input", "", "batch input file (required)")
	limit := fs.Int("limit", 0, "process at most this many rows (0 means all)")
	if !e.parse(fs, args) {
		return exitError
	}
	if *input == "" {
		e.log.Error("--input is required")
		return exitError
	}

	rep, err := e.app.Batches().EnrichBatch(ctx, *input, *limit)
	if err != nil {
		return e.fail("batch enrichment failed", err)
	}
	return e.report(rep)
}

func runValidate(_ context.Context, e *env, args []string) int {
	fs := e.flags("validate")
	if !e.parse(fs, args) {
		return exitError
	}
	if fs.NArg() != 1 {
		e.log.Error("validate takes exactly one batch file")
		return exitError
	}

	res := e.app.BatchValidator.Validate(fs.Arg(0))
	e.report(res)
	return usecase.ExitCode(res.Status)
}

func runIntegrate(ctx context.Context, e *env, args []string) int {
	fs := e.flags("integrate")
	minConfidence := fs.Float64("min-confidence", e.app.Config.Integration.MinConfidence, "skip rows below this confidence")
	if !e.parse(fs, args) {
		return exitError
	}
	if fs.NArg() != 1 {
		e.log.Error("integrate takes exactly one batch file")
		return exitError
	}
	if *minConfidence < 0 || *minConfidence > 1 {
		e.log.Error("--min-confidence must be within [0, 1]", zap.Float64("min_confidence", *minConfidence))
		return exitError
	}

	rep, err := e.app.Integration().Integrate(ctx, fs.Arg(0), *minConfidence)
	if rep != nil {
		e.report(rep)
	}
	if err != nil {
		if errors.Is(err, domain.ErrValidationFailed) {
			e.log.Error("batch rejected by validation", zap.Error(err))
			return exitError
		}
		return e.fail("integration failed", err)
	}
	return exitOK
}

func runCacheStats(ctx context.Context, e *env, args []string) int {
	fs := e.flags("cache-stats")
	if !e.parse(fs, args) {
		return exitError
	}

	stats, err := e.app.Enrichment.CacheStats(ctx)
	if err != nil {
		return e.fail("failed to read cache stats", err)
	}
	return e.report(stats)
}
