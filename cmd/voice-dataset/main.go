package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sjawhar/voice-dataset/internal/audio"
	"github.com/sjawhar/voice-dataset/internal/server"
	"github.com/sjawhar/voice-dataset/internal/tui"
	"github.com/sjawhar/voice-dataset/internal/workflow"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "voice-dataset",
		Short:        "Record prompted speech into a TTS training dataset",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "voice-dataset.yaml", "path to the YAML config file")

	root.AddCommand(newServeCmd(&configPath), newTUICmd(&configPath), newDevicesCmd())
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, warnings, logger, closeLog, err := loadConfig(*configPath, true)
			if err != nil {
				return err
			}
			defer closeLog()

			assets, err := fs.Sub(staticFiles, "static")
			if err != nil {
				return fmt.Errorf("static assets init failed: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			hub := server.NewHub(logger.Named("hub"))
			a, err := newApp(ctx, cfg, warnings, logger, hub)
			if err != nil {
				return err
			}
			defer a.shutdown()
			a.run(ctx)

			if err := a.startConfigured(cfg.PromptsPath, cfg.Speaker, cfg.OutputRoot); err != nil {
				logger.Warnw("configured session not started", "error", workflow.Describe(err))
			}

			handler, err := server.Handler(server.Deps{
				Control:  a.workflow,
				Store:    a.store,
				Devices:  a.devices,
				Hub:      hub,
				Static:   assets,
				Warnings: a.Warnings,
				Logger:   logger.Named("http"),
			})
			if err != nil {
				return fmt.Errorf("build http handler failed: %w", err)
			}

			httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorw("http server error", "error", err)
					cancel()
				}
			}()
			logger.Infow("control surface listening", "addr", cfg.ListenAddr)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sig:
			case <-ctx.Done():
			}

			logger.Infow("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warnw("http shutdown failed", "error", err)
			}
			return nil
		},
	}
}

func newTUICmd(configPath *string) *cobra.Command {
	var promptsPath, speaker, outputRoot string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Record from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The terminal belongs to the UI; logs only go to the log file.
			cfg, warnings, logger, closeLog, err := loadConfig(*configPath, false)
			if err != nil {
				return err
			}
			defer closeLog()

			if promptsPath == "" {
				promptsPath = cfg.PromptsPath
			}
			if speaker == "" {
				speaker = cfg.Speaker
			}
			if outputRoot == "" {
				outputRoot = cfg.OutputRoot
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			bridge := tui.NewBridge()
			a, err := newApp(ctx, cfg, warnings, logger, bridge)
			if err != nil {
				return err
			}
			defer a.shutdown()
			a.run(ctx)

			if err := a.workflow.StartSession(workflow.StartRequest{
				PromptsPath: promptsPath,
				Speaker:     speaker,
				OutputRoot:  outputRoot,
				Seed:        cfg.ShuffleSeed,
			}); err != nil {
				return errors.New(workflow.Describe(err))
			}

			devices, err := a.devices.InputDevices()
			if err != nil {
				logger.Warnw("device enumeration failed", "error", err)
			}

			model := tui.New(a.workflow, bridge.Messages(), devices)
			if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("terminal ui: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&promptsPath, "prompts", "", "CSV file with unique_id and text_sentences columns")
	cmd.Flags().StringVar(&speaker, "speaker", "", "speaker name, used for the output directory and file names")
	cmd.Flags().StringVar(&outputRoot, "output", "", "dataset root (defaults to the prompts file's directory)")
	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			terminate, err := audio.InitPortAudio()
			if err != nil {
				return err
			}
			defer func() { _ = terminate() }()

			devices, err := audio.PortAudio{}.InputDevices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				_, _ = fmt.Fprintln(out, "No input devices found.")
				return nil
			}
			for _, d := range devices {
				_, _ = fmt.Fprintf(out, "%s, %d channels, %.0f Hz\n", d, d.MaxInputChannels, d.DefaultSampleRate)
			}
			return nil
		},
	}
}
