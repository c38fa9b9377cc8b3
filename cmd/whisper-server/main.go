// KotoType Whisper server
// Line-oriented speech-to-text worker driven by the desktop app over
// stdin/stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"kototype-whisper/internal/asr"
	"kototype-whisper/internal/audio"
	"kototype-whisper/internal/config"
	"kototype-whisper/internal/coordinator"
	"kototype-whisper/internal/logging"
	"kototype-whisper/internal/metrics"
	"kototype-whisper/internal/rabbitmq"
	"kototype-whisper/internal/worker"
)

const (
	exitOK = iota
	exitConfig
	exitAdmission
	exitEngine
	exitIO
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return exitConfig
	}
	defer logger.Sync()

	logger.Infow("Server started",
		"pid", os.Getpid(),
		"state_dir", cfg.StateDir,
		"model", cfg.WhisperModel,
		"device", cfg.WhisperDevice,
		"compute_type", cfg.WhisperComputeType,
		"noise_reduction", cfg.NoiseReduction,
		"vad_strict", cfg.VADStrict,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profile, err := asr.LoadProfile(cfg.EngineProfilePath)
	if err != nil {
		logger.Errorw("Engine profile error", "error", err)
		return exitConfig
	}

	coord := coordinator.New(cfg.CoordinatorStatePath(), cfg.CoordinatorLockPath(), logger.Named("coordinator"))
	session, err := worker.StartSession(ctx, coord, os.Getpid(), worker.Limits{
		MaxActiveServers:      cfg.MaxActiveServers,
		MaxParallelModelLoads: cfg.MaxParallelModelLoads,
		ModelLoadWaitTimeout:  cfg.ModelLoadWaitTimeout,
	}, logger)
	if err != nil {
		if !errors.Is(err, coordinator.ErrAdmissionRejected) && !errors.Is(err, coordinator.ErrAdmissionTimeout) {
			logger.Errorw("Coordinator error", "error", err)
		}
		return exitAdmission
	}
	defer session.Close()

	m := metrics.NewMetrics(cfg.MetricsTextfile)

	var engine *asr.ProcessEngine
	loadStarted := time.Now()
	err = session.LoadModel(ctx, func(ctx context.Context) error {
		var startErr error
		engine, startErr = asr.StartProcessEngine(ctx, asr.EngineCommand{
			Path: cfg.PythonPath,
			Args: []string{cfg.EngineScript},
			Env:  cfg.EngineEnv(),
		}, logger.Named("engine"))
		return startErr
	})
	if err != nil {
		logger.Errorw("Engine start failed", "error", err)
		return exitEngine
	}
	defer engine.Close()
	m.ModelLoadDuration.Set(time.Since(loadStarted).Seconds())

	var publisher worker.Publisher
	if cfg.ResultsAMQPURL != "" {
		conn, producer := connectPublisher(ctx, cfg, logger)
		if producer != nil {
			defer conn.Close()
			defer producer.Close()
			publisher = producer
		}
	}

	preprocessor := audio.NewPreprocessor(
		audio.NewFFmpegEngine(cfg.FFmpegPath),
		cfg.NoiseReduction,
		audio.GainPolicy(cfg.AutoGain),
		logger.Named("preprocess"),
	)
	orchestrator := asr.NewOrchestrator(engine, profile, logger.Named("asr"))
	handler := worker.NewHandler(worker.HandlerConfig{
		VADStrict:          cfg.VADStrict,
		UserDictionaryPath: cfg.UserDictionaryPath,
		Model:              cfg.WhisperModel,
	}, preprocessor, orchestrator, m, publisher, logger)

	done := make(chan error, 1)
	go func() {
		done <- worker.Serve(ctx, os.Stdin, os.Stdout, handler, logger)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("Request loop failed", "error", err)
			return exitIO
		}
	case <-ctx.Done():
		logger.Infow("Shutdown signal received")
	}

	logger.Infow("Shutting down")
	return exitOK
}

// connectPublisher returns a nil producer when the broker is unreachable;
// transcript events are optional.
func connectPublisher(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*amqp.Connection, *rabbitmq.Producer) {
	log := logger.Named("rabbitmq")
	conn, err := rabbitmq.Connect(ctx, cfg.ResultsAMQPURL, log)
	if err != nil {
		log.Warnw("Transcript events disabled", "error", err)
		return nil, nil
	}
	producer, err := rabbitmq.NewProducer(conn, cfg.WhisperModel)
	if err != nil {
		log.Warnw("Transcript events disabled", "error", err)
		conn.Close()
		return nil, nil
	}
	return conn, producer
}
