package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/epicenter-detector/internal/adapter/sqlite"
	"github.com/couchcryptid/epicenter-detector/internal/config"
	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/observability"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
	"github.com/couchcryptid/epicenter-detector/internal/report"
)

// analysisFlags are shared by analyze and batch. Tuning file values apply
// first; flags the user set override them.
type analysisFlags struct {
	stride     int
	percentile float64
	decay      float64
	top        int
	estimator  string
	backend    backendOptions
	format     string
	store      string
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.stride, "stride", 1, "Process every Nth frame (1 processes all)")
	flags.Float64Var(&f.percentile, "percentile", 95, "Threshold percentile of the smoothed combined map")
	flags.Float64Var(&f.decay, "decay", 10, "Temporal decay constant in processed frames")
	flags.IntVar(&f.top, "top", 5, "Number of candidates to report")
	flags.StringVar(&f.estimator, "estimator", estimatorAuto, "Motion estimator (auto, farneback, horn-schunck)")
	flags.StringVar(&f.backend.backend, "backend", config.BackendAuto, "Video backend (auto, opencv, ffmpeg, frames)")
	flags.StringVar(&f.backend.ffmpeg, "ffmpeg", "ffmpeg", "ffmpeg binary")
	flags.StringVar(&f.backend.ffprobe, "ffprobe", "ffprobe", "ffprobe binary")
	flags.Float64Var(&f.backend.framesFPS, "fps", 30, "Frame rate reported for frame directories")
	flags.StringVar(&f.format, "format", formatAuto, "Output format (auto, json, table, text)")
	flags.StringVar(&f.store, "store", "", "SQLite result store to record results in")
}

func (f *analysisFlags) settings(cmd *cobra.Command, tuning *config.Tuning) (pipeline.Settings, error) {
	s, err := settingsFromTuning(tuning)
	if err != nil {
		return pipeline.Settings{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("stride") {
		s.Stride = f.stride
	}
	if flags.Changed("percentile") {
		s.Extract.Percentile = f.percentile
	}
	if flags.Changed("decay") {
		s.DecayFrames = f.decay
	}
	if flags.Changed("top") {
		s.TopK = f.top
	}
	return s, s.Validate()
}

func (f *analysisFlags) engine(cmd *cobra.Command, globals *globalFlags, logger *slog.Logger) (*engine, error) {
	tuning, err := loadTuning(globals.tuning)
	if err != nil {
		return nil, err
	}
	settings, err := f.settings(cmd, tuning)
	if err != nil {
		return nil, err
	}
	if f.backend.framesFPS <= 0 {
		return nil, fmt.Errorf("--fps must be > 0, got %g", f.backend.framesFPS)
	}
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	return newEngine(settings, tuning, f.estimator, f.backend, metrics, logger)
}

func loadTuning(path string) (*config.Tuning, error) {
	if path == "" {
		return config.DefaultTuning(), nil
	}
	return config.LoadTuning(path)
}

// storeResults records results in the SQLite store at path.
func storeResults(ctx context.Context, path string, results []domain.AnalysisResult, logger *slog.Logger) error {
	store, err := sqlite.Open(ctx, path, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.LoadBatch(ctx, results); err != nil {
		return err
	}
	logger.Info("results stored", "path", path, "count", len(results))
	return nil
}

func newAnalyzeCommand(globals *globalFlags) *cobra.Command {
	var (
		flags   analysisFlags
		heatmap string
	)

	cmd := &cobra.Command{
		Use:   "analyze VIDEO",
		Short: "Find the energetic epicenters of one video or frame directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := globals.logger(cmd)
			format, err := resolveFormat(cmd, flags.format)
			if err != nil {
				return err
			}
			eng, err := flags.engine(cmd, globals, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			req := domain.AnalysisRequest{VideoPath: args[0]}
			analysis, err := pipeline.AnalyzeVideo(ctx, eng.analyzer, eng.opener, req)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", args[0], err)
			}

			if heatmap != "" {
				if err := report.WriteHeatmap(heatmap, analysis.Fields, analysis.Detection.Combined, analysis.Result.Epicenters); err != nil {
					return err
				}
				logger.Info("heatmap written", "path", heatmap)
			}
			if flags.store != "" {
				if err := storeResults(ctx, flags.store, []domain.AnalysisResult{analysis.Result}, logger); err != nil {
					return err
				}
			}
			return printResult(cmd, format, analysis.Result)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&heatmap, "heatmap", "", "Write a PNG heatmap of the accumulated maps to this path")
	return cmd
}

func newBatchCommand(globals *globalFlags) *cobra.Command {
	var (
		flags   analysisFlags
		workers int
	)

	cmd := &cobra.Command{
		Use:   "batch VIDEO...",
		Short: "Analyze several videos, one independent run each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := globals.logger(cmd)
			format, err := resolveFormat(cmd, flags.format)
			if err != nil {
				return err
			}
			eng, err := flags.engine(cmd, globals, logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			reqs := make([]domain.AnalysisRequest, len(args))
			for i, path := range args {
				reqs[i] = domain.AnalysisRequest{VideoPath: path}
			}
			results := pipeline.BatchAnalyze(ctx, eng.analyzer, eng.opener, reqs, workers, logger)
			if err := ctx.Err(); err != nil {
				return err
			}

			if flags.store != "" {
				if err := storeResults(ctx, flags.store, results, logger); err != nil {
					return err
				}
			}
			if err := printResults(cmd, format, results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Failed() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d analyses failed", failed, len(results))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&workers, "workers", 1, "Maximum number of videos analyzed in parallel")
	return cmd
}
