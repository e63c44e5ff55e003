package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Video backends.
const (
	BackendAuto   = "auto"
	BackendOpenCV = "opencv"
	BackendFFmpeg = "ffmpeg"
	BackendFrames = "frames"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers      []string
	KafkaRequestTopic string
	KafkaResultTopic  string
	KafkaGroupID      string
	HTTPAddr          string
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Video decoding.
	VideoBackend string
	FFmpegBin    string
	FFprobeBin   string
	FramesFPS    float64

	// ResultStorePath enables the SQLite result store when set.
	ResultStorePath string
	// ResultCacheSize bounds the in-memory cache of stored results; 0
	// disables it.
	ResultCacheSize int

	TuningFile string
	Tuning     *Tuning
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	framesFPS, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("FRAMES_FPS", "30"), 64)
	if err != nil || framesFPS <= 0 {
		return nil, errors.New("invalid FRAMES_FPS: must be a positive number")
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaRequestTopic:  sharedcfg.EnvOrDefault("KAFKA_REQUEST_TOPIC", "epicenter-analysis-requests"),
		KafkaResultTopic:   sharedcfg.EnvOrDefault("KAFKA_RESULT_TOPIC", "epicenter-analysis-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "epicenter-detector"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		VideoBackend:    sharedcfg.EnvOrDefault("VIDEO_BACKEND", BackendAuto),
		FFmpegBin:       sharedcfg.EnvOrDefault("FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:      sharedcfg.EnvOrDefault("FFPROBE_BIN", "ffprobe"),
		FramesFPS:       framesFPS,
		ResultStorePath: sharedcfg.EnvOrDefault("RESULT_STORE_PATH", ""),
		ResultCacheSize: parseResultCacheSize(),
		TuningFile:      sharedcfg.EnvOrDefault("TUNING_FILE", ""),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaRequestTopic == "" {
		return nil, errors.New("KAFKA_REQUEST_TOPIC is required")
	}
	if cfg.KafkaResultTopic == "" {
		return nil, errors.New("KAFKA_RESULT_TOPIC is required")
	}
	if err := ValidateBackend(cfg.VideoBackend); err != nil {
		return nil, fmt.Errorf("invalid VIDEO_BACKEND: %w", err)
	}

	cfg.Tuning = DefaultTuning()
	if cfg.TuningFile != "" {
		tuning, err := LoadTuning(cfg.TuningFile)
		if err != nil {
			return nil, fmt.Errorf("TUNING_FILE: %w", err)
		}
		cfg.Tuning = tuning
	}

	return cfg, nil
}

// defaultResultCacheSize applies when RESULT_CACHE_SIZE is unset or invalid.
const defaultResultCacheSize = 256

func parseResultCacheSize() int {
	if n, err := strconv.Atoi(sharedcfg.EnvOrDefault("RESULT_CACHE_SIZE", "")); err == nil && n >= 0 {
		return n
	}
	return defaultResultCacheSize
}

// ValidateBackend accepts auto, opencv, ffmpeg and frames.
func ValidateBackend(name string) error {
	switch name {
	case BackendAuto, BackendOpenCV, BackendFFmpeg, BackendFrames:
		return nil
	default:
		return fmt.Errorf("unknown backend %q (want auto, opencv, ffmpeg or frames)", name)
	}
}
