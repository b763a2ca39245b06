package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/kitchen-buddy/internal/config"
	"github.com/teslashibe/kitchen-buddy/internal/log"
	"github.com/teslashibe/kitchen-buddy/pkg/metrics"
	"github.com/teslashibe/kitchen-buddy/pkg/server"
)

const shutdownTimeout = 10 * time.Second

var (
	servePort         int
	serveSegmentation string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebSocket voice server",
	Long: `Start the voice server.

Clients connect to /ws and stream binary audio. A segment ends when the client
sends {"type":"end_speech"} or, with --segmentation server, after a window of
silence. Health is served on /health and Prometheus metrics on /metrics.

Examples:
  kitchen-buddy serve
  kitchen-buddy serve --config kitchen-buddy.yaml --port 8080
  GEMINI_API_KEY=... kitchen-buddy serve --segmentation server`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides config and PORT)")
	serveCmd.Flags().StringVar(&serveSegmentation, "segmentation", "", "segmentation mode: client or server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveSegmentation != "" {
		cfg.Voice.Segmentation = serveSegmentation
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.Init(cfg.Log.Level)
	logger.Info("kitchen-buddy starting",
		"version", version,
		"segmentation", cfg.Voice.Segmentation,
		"stt", cfg.STT.Providers,
		"llm", cfg.LLM.Providers,
		"tts", cfg.TTS.Providers,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("closing providers", "error", err)
		}
	}()

	srv, err := server.New(server.Options{
		Voice:        voiceConfig(cfg),
		Services:     svc.Services,
		Metrics:      metrics.New(""),
		Logger:       logger,
		Version:      version,
		AllowOrigins: cfg.Server.AllowOrigins,
		Debug:        cfg.Server.Debug,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.Addr(),
			"ws", fmt.Sprintf("ws://localhost:%d/ws", cfg.Server.Port),
			"health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
		)
		errCh <- srv.Listen(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
