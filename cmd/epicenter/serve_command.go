package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/epicenter-detector/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/epicenter-detector/internal/adapter/kafka"
	"github.com/couchcryptid/epicenter-detector/internal/adapter/sqlite"
	"github.com/couchcryptid/epicenter-detector/internal/config"
	"github.com/couchcryptid/epicenter-detector/internal/observability"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
)

func newServeCommand(globals *globalFlags) *cobra.Command {
	var estimator string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume analysis requests from Kafka and publish results",
		Long: "Runs the analysis worker. Settings come from the environment " +
			"(KAFKA_BROKERS, KAFKA_REQUEST_TOPIC, KAFKA_RESULT_TOPIC, HTTP_ADDR, " +
			"VIDEO_BACKEND, RESULT_STORE_PATH, TUNING_FILE, ...).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if globals.tuning != "" {
				if cfg.Tuning, err = config.LoadTuning(globals.tuning); err != nil {
					return err
				}
			}
			return serve(cmd.Context(), cfg, estimator)
		},
	}

	cmd.Flags().StringVar(&estimator, "estimator", estimatorAuto, "Motion estimator (auto, farneback, horn-schunck)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, estimatorName string) error {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	settings, err := settingsFromTuning(cfg.Tuning)
	if err != nil {
		return err
	}
	eng, err := newEngine(settings, cfg.Tuning, estimatorName, backendOptions{
		backend:   cfg.VideoBackend,
		ffmpeg:    cfg.FFmpegBin,
		ffprobe:   cfg.FFprobeBin,
		framesFPS: cfg.FramesFPS,
	}, metrics, logger)
	if err != nil {
		return err
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(eng.analyzer, eng.opener, logger)

	// Results land in the store before Kafka; redelivered batches overwrite
	// by ID.
	loader := pipeline.FanoutLoader{writer}
	var results httpadapter.ResultStore
	if cfg.ResultStorePath != "" {
		store, err := sqlite.Open(ctx, cfg.ResultStorePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if cfg.ResultCacheSize > 0 {
			cached := sqlite.NewCachedStore(store, cfg.ResultCacheSize)
			loader = pipeline.FanoutLoader{cached, writer}
			results = cached
		} else {
			loader = pipeline.FanoutLoader{store, writer}
			results = store
		}
		logger.Info("result store enabled", "path", cfg.ResultStorePath, "cache_size", cfg.ResultCacheSize)
	}

	p := pipeline.New(reader, transformer, loader, logger, metrics, cfg.BatchSize)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, results, nil, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	waitPipeline := runInBackground(ctx, p.Run, logger)

	logger.Info("epicenter worker started",
		"request_topic", cfg.KafkaRequestTopic,
		"result_topic", cfg.KafkaResultTopic,
		"http_addr", cfg.HTTPAddr,
		"backend", cfg.VideoBackend,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	// The in-flight batch finishes before its reader, writer and store close.
	if !waitPipeline(shutdownCtx) {
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	closeAll(shutdownCtx, logger, srv, reader, writer)
	logger.Info("shutdown complete")
	return nil
}

// runInBackground starts run in its own goroutine. The returned wait blocks
// until run has returned, or until its own context ends, and reports whether
// run finished.
func runInBackground(ctx context.Context, run func(context.Context) error, logger *slog.Logger) func(context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()
	return func(waitCtx context.Context) bool {
		select {
		case <-done:
			return true
		case <-waitCtx.Done():
			return false
		}
	}
}

func closeAll(ctx context.Context, logger *slog.Logger, srv *httpadapter.Server, reader *kafkaadapter.Reader, writer *kafkaadapter.Writer) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}
