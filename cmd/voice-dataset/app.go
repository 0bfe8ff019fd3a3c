package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sjawhar/voice-dataset/internal/audio"
	"github.com/sjawhar/voice-dataset/internal/config"
	"github.com/sjawhar/voice-dataset/internal/gdrive"
	"github.com/sjawhar/voice-dataset/internal/logging"
	"github.com/sjawhar/voice-dataset/internal/storage"
	"github.com/sjawhar/voice-dataset/internal/verify"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

// surface is a control surface: it observes the workflow and hears about
// verification results.
type surface interface {
	workflow.Events
	verify.Notifier
}

// app wires the recording workflow to its devices, journal and optional
// background workers.
type app struct {
	cfg      config.Config
	warnings []string
	log      *zap.SugaredLogger

	store    *storage.SQLiteStore
	devices  audio.DeviceLister
	workflow *workflow.Workflow
	checker  *verify.Checker
	mirror   *gdrive.Mirror

	closers []func()
}

func loadConfig(path string, console bool) (config.Config, []string, *zap.SugaredLogger, func(), error) {
	cfg, warnings, err := config.Load(path)
	if err != nil {
		return cfg, nil, nil, nil, fmt.Errorf("config: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: console})
	if err != nil {
		return cfg, nil, nil, nil, fmt.Errorf("logging: %w", err)
	}
	for _, w := range warnings {
		logger.Warnw("config warning", "warning", w)
	}
	return cfg, warnings, logger, closeLog, nil
}

func newApp(ctx context.Context, cfg config.Config, warnings []string, logger *zap.SugaredLogger, events surface) (*app, error) {
	a := &app{cfg: cfg, warnings: warnings, log: logger, devices: audio.PortAudio{}}

	terminate, err := audio.InitPortAudio()
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := terminate(); err != nil {
			logger.Warnw("portaudio terminate failed", "error", err)
		}
	})

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("storage init failed: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	capture := audio.NewCapture(audio.PortAudio{}, events, logger.Named("capture"))

	opts := []workflow.Option{workflow.WithDevice(cfg.DeviceIndex)}

	if cfg.VerificationEnabled() {
		transcriber, err := verify.NewTranscriber(cfg.VerifyProvider, cfg.VerifyAPIKey(), cfg.VerifyModel)
		if err != nil {
			a.warn("take verification disabled: %v", err)
		} else {
			a.checker = verify.NewChecker(transcriber, store, events, cfg.VerifyThreshold, cfg.ParsedVerifyTimeout(), logger.Named("verify"))
			opts = append(opts, workflow.WithAfterSave(a.checker.Enqueue))
		}
	}

	if cfg.MirrorEnabled() {
		mirror, err := gdrive.NewMirror(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID, logger.Named("gdrive"))
		if err != nil {
			a.warn("drive mirror disabled: %v", err)
		} else {
			a.mirror = mirror
			opts = append(opts, workflow.WithAfterSave(mirror.Enqueue))
		}
	}

	a.workflow = workflow.New(workflow.Deps{
		Recorder: capture,
		Events:   events,
		Journal:  store,
		Logger:   logger.Named("workflow"),
	}, opts...)

	return a, nil
}

// run starts the background workers; they stop with ctx.
func (a *app) run(ctx context.Context) {
	if a.checker != nil {
		go a.checker.Run(ctx)
	}
	if a.mirror != nil {
		go a.mirror.Run(ctx)
	}
}

// startConfigured starts the session named by the config or flags, if any.
func (a *app) startConfigured(promptsPath, speaker, outputRoot string) error {
	if promptsPath == "" && speaker == "" {
		return nil
	}
	return a.workflow.StartSession(workflow.StartRequest{
		PromptsPath: promptsPath,
		Speaker:     speaker,
		OutputRoot:  outputRoot,
		Seed:        a.cfg.ShuffleSeed,
	})
}

// shutdown ends any running session so the device is released and the
// journal records the end, then tears down in reverse order.
func (a *app) shutdown() {
	if a.workflow != nil {
		if err := a.workflow.EndSession(true); err != nil && !errors.Is(err, workflow.ErrNoSession) {
			a.log.Warnw("end session on shutdown failed", "error", err)
		}
	}
	a.close()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.warnings = append(a.warnings, msg)
	a.log.Warnw(msg)
}

func (a *app) Warnings() []string {
	return append([]string(nil), a.warnings...)
}
