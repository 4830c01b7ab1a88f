package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/geosplit/internal/config"
	"github.com/ppiankov/geosplit/internal/metrics"
	"github.com/ppiankov/geosplit/internal/model"
	"github.com/ppiankov/geosplit/internal/pipeline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	dataset        string
	boundariesDir  string
	category       string
	inputDir       string
	outputDir      string
	geometryColumn string
	compression    string
	ogr2ogrBin     string
	sozipBin       string
	toolTimeout    time.Duration
	onFilterError  string
	onConvertError string
	onArchiveError string
	noCache        bool
	strict         bool
	metricsFile    string
	dryRun         bool
)

// ExitError carries a process exit code out of a command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// splitCmd represents the split command
var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split the dataset by every boundary file",
	Long: `Split runs the filter, convert, archive and cleanup stages for each
boundary file, one boundary at a time, in file name order.

What happens when a stage fails is set per stage:
  abort   stop the whole run
  skip    mark the boundary failed and continue with the next one
  ignore  record the failure and continue with the next stage

Example:
  geosplit split
  geosplit split --dataset inputs/buildings/overture.parquet --category buildings
  geosplit split --on-filter-error abort --tool-timeout 30m
  geosplit split --dry-run`,
	Args: cobra.NoArgs,
}

func init() {
	splitCmd.RunE = runSplit
	addSplitFlags(splitCmd)
	rootCmd.AddCommand(splitCmd)
}

func addSplitFlags(cmd *cobra.Command) {
	d := model.DefaultConfig()
	f := cmd.Flags()

	// Input flags
	f.StringVar(&dataset, "dataset", d.Input.Dataset, "dataset GeoParquet file to split")
	f.StringVar(&boundariesDir, "boundaries", d.Input.Boundaries, "directory of boundary GeoParquet files")
	f.StringVar(&category, "category", d.Input.Category, "category label used in output paths")
	f.StringVar(&inputDir, "input-dir", d.Input.Root, "input root created at startup")
	f.StringVar(&outputDir, "output-dir", d.Output.Root, "output root")

	// Engine flags
	f.StringVar(&geometryColumn, "geometry-column", d.Spatial.GeometryColumn, "geometry column name in dataset and boundaries")
	f.StringVar(&compression, "compression", d.Spatial.Compression, "parquet codec (zstd, snappy, gzip, lz4, brotli, uncompressed)")

	// Tool flags
	f.StringVar(&ogr2ogrBin, "ogr2ogr", d.Tools.Ogr2ogr, "ogr2ogr binary")
	f.StringVar(&sozipBin, "sozip", d.Tools.Sozip, "sozip binary")
	f.DurationVar(&toolTimeout, "tool-timeout", d.Tools.Timeout, "timeout per external tool run (0 = none)")

	// Policy flags
	f.StringVar(&onFilterError, "on-filter-error", string(d.Policy.Filter), "filter failure policy: abort, skip, ignore")
	f.StringVar(&onConvertError, "on-convert-error", string(d.Policy.Convert), "convert failure policy: abort, skip, ignore")
	f.StringVar(&onArchiveError, "on-archive-error", string(d.Policy.Archive), "archive failure policy: abort, skip, ignore")

	// Run flags
	f.BoolVar(&noCache, "no-cache", false, "process every boundary even if its inputs are unchanged")
	f.BoolVar(&strict, "strict", false, "exit with status 2 if any boundary failed")
	f.StringVar(&metricsFile, "metrics-file", d.Metrics.File, "write Prometheus metrics to this file after the run")
	f.BoolVar(&dryRun, "dry-run", false, "list boundaries and output paths without running anything")
}

// applySplitFlags copies explicitly set flags over the loaded config
func applySplitFlags(cmd *cobra.Command, cfg *model.Config) error {
	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}

	set("dataset", func() { cfg.Input.Dataset = dataset })
	set("boundaries", func() { cfg.Input.Boundaries = boundariesDir })
	set("category", func() { cfg.Input.Category = category })
	set("input-dir", func() { cfg.Input.Root = inputDir })
	set("output-dir", func() { cfg.Output.Root = outputDir })
	set("geometry-column", func() { cfg.Spatial.GeometryColumn = geometryColumn })
	set("compression", func() { cfg.Spatial.Compression = compression })
	set("ogr2ogr", func() { cfg.Tools.Ogr2ogr = ogr2ogrBin })
	set("sozip", func() { cfg.Tools.Sozip = sozipBin })
	set("tool-timeout", func() { cfg.Tools.Timeout = toolTimeout })
	set("metrics-file", func() { cfg.Metrics.File = metricsFile })
	set("no-cache", func() { cfg.Cache.Enabled = !noCache })

	policies := []struct {
		flag  string
		value string
		dst   *model.Action
	}{
		{"on-filter-error", onFilterError, &cfg.Policy.Filter},
		{"on-convert-error", onConvertError, &cfg.Policy.Convert},
		{"on-archive-error", onArchiveError, &cfg.Policy.Archive},
	}
	for _, p := range policies {
		if !f.Changed(p.flag) {
			continue
		}
		action, err := model.ParseAction(p.value)
		if err != nil {
			return fmt.Errorf("--%s: %w", p.flag, err)
		}
		*p.dst = action
	}

	return config.Validate(cfg)
}

func runSplit(cmd *cobra.Command, args []string) error {
	cfg := currentConfig()
	if err := applySplitFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.NewPipeline(cfg, &log)
	if err != nil {
		return err
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.File != "" {
		recorder = metrics.New()
	}

	orch := pipeline.NewOrchestrator(cfg, p, recorder, &log)

	if dryRun {
		plan, err := orch.Plan()
		if err != nil {
			return err
		}
		return renderPlan(cmd.OutOrStdout(), plan)
	}

	summary, runErr := orch.Run(ctx)
	renderSummary(cmd.ErrOrStderr(), cfg, summary)

	if recorder != nil {
		if err := recorder.WriteFile(cfg.Metrics.File); err != nil {
			log.Warn().Err(err).Msg("could not write metrics file")
		}
	}

	if runErr != nil {
		return &ExitError{Code: 1, Err: runErr}
	}
	if strict {
		if failed := summary.Count(model.OutcomeFailed); failed > 0 {
			return &ExitError{Code: 2, Err: fmt.Errorf("%d of %d boundaries failed", failed, len(summary.Results))}
		}
	}
	return nil
}

func renderPlan(w io.Writer, plan []pipeline.PlanItem) error {
	if len(plan) == 0 {
		_, err := fmt.Fprintln(w, "# no boundary files found")
		return err
	}
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func renderSummary(w io.Writer, cfg *model.Config, s *model.RunSummary) {
	if s == nil {
		return
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	if s.Aborted {
		fmt.Fprintf(w, "  Split Aborted\n")
	} else {
		fmt.Fprintf(w, "  Split Complete\n")
	}
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")

	for _, r := range s.Results {
		mark := "✓"
		switch r.Outcome {
		case model.OutcomeFailed:
			mark = "✗"
		case model.OutcomeDegraded:
			mark = "!"
		case model.OutcomeCached:
			mark = "="
		}
		fmt.Fprintf(w, "  %s %-24s %-9s %10d rows\n", mark, model.Stem(r.Boundary), r.Outcome, r.Rows)
		for _, st := range r.Stages {
			if st.Status == model.StatusOK {
				continue
			}
			fmt.Fprintf(w, "      %-8s %-7s %s\n", st.Stage, st.Status, st.Reason)
		}
	}
	if len(s.Results) > 0 {
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "  Dataset:    %s\n", s.Dataset)
	fmt.Fprintf(w, "  Category:   %s\n", s.Category)
	fmt.Fprintf(w, "  Total:      %d boundaries\n", len(s.Results))
	fmt.Fprintf(w, "  Succeeded:  %d\n", s.Count(model.OutcomeSucceeded))
	fmt.Fprintf(w, "  Degraded:   %d\n", s.Count(model.OutcomeDegraded))
	fmt.Fprintf(w, "  Failed:     %d\n", s.Count(model.OutcomeFailed))
	fmt.Fprintf(w, "  Unchanged:  %d\n", s.Count(model.OutcomeCached))
	fmt.Fprintf(w, "  Rows:       %d\n", s.Rows())
	fmt.Fprintf(w, "  Elapsed:    %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  Output:     %s\n", cfg.Output.Root)
	fmt.Fprintf(w, "\n")
}

// ExitCode maps a command error to a process exit status
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
