package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/airmirror/internal/api"
	"github.com/bryanchriswhite/airmirror/internal/capture"
	"github.com/bryanchriswhite/airmirror/internal/config"
	"github.com/bryanchriswhite/airmirror/internal/logger"
	"github.com/bryanchriswhite/airmirror/internal/metrics"
	"github.com/bryanchriswhite/airmirror/internal/receiver"
	"github.com/bryanchriswhite/airmirror/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AirMirror server",
	Long: `Start the receiver processes, the window reconciler and the HTTP
server serving the viewer page and the per-source MJPEG streams.`,
	Example: `  # Start with the default config
  airmirror serve

  # Start on a custom port
  airmirror serve --port 9090

  # Start without launching receivers (mirror windows already running)
  airmirror serve --no-receivers

  # Start with debug logging
  airmirror serve --log-level debug`,
	RunE: runServe,
}

var serveNoReceivers bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveNoReceivers, "no-receivers", false, "do not launch receiver processes")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Flag overrides
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("serve")
	log.Info().Str("config", configMgr.GetConfigPath()).Msg("Configuration loaded")

	// Shutdown signal observed by every loop in the system
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, err := window.NewX11Backend()
	if err != nil {
		return fmt.Errorf("failed to connect to X11: %w", err)
	}
	defer backend.Close()

	capturer, err := capture.NewX11Capturer()
	if err != nil {
		return fmt.Errorf("failed to initialize capturer: %w", err)
	}
	if err := capturer.Start(); err != nil {
		return fmt.Errorf("failed to start capturer: %w", err)
	}
	defer capturer.Stop()

	m := metrics.New()

	var supervisor *receiver.Supervisor
	if cfg.Receiver.Enabled && !serveNoReceivers {
		supervisor = receiver.NewSupervisor(cfg.Receiver, cfg.Sources, m)
		if err := supervisor.Start(); err != nil {
			return fmt.Errorf("failed to start receivers: %w", err)
		}
		defer supervisor.Stop()
		log.Info().
			Dur("grace", cfg.Receiver.StartupGrace()).
			Msg("Receivers launched, waiting for windows to appear")
	}

	var reconciler *window.Reconciler
	if cfg.Positioning.Enabled {
		reconciler = window.NewReconciler(backend, cfg.Sources, cfg.Positioning.Interval(), m)
		go reconciler.Run(ctx)
	}

	server := api.NewServer(ctx, cfg, backend, capturer, reconciler, supervisor, m)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.ServerPort)
	}()

	log.Info().Int("port", cfg.ServerPort).Msg("AirMirror is running")
	for _, src := range cfg.Sources {
		log.Info().
			Str("source", src.ID).
			Str("airplay_name", src.Name).
			Str("stream", fmt.Sprintf("http://localhost:%d/stream/%s", cfg.ServerPort, src.ID)).
			Msg("Source configured")
	}

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	return nil
}
