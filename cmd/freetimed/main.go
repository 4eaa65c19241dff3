// Package main provides the timer daemon entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/freetime/internal/api/connect"
	"github.com/osa030/freetime/internal/app/hook"
	"github.com/osa030/freetime/internal/app/notification"
	"github.com/osa030/freetime/internal/app/settings"
	"github.com/osa030/freetime/internal/app/timer"
	"github.com/osa030/freetime/internal/infra/checkpoint"
	"github.com/osa030/freetime/internal/infra/clock"
	"github.com/osa030/freetime/internal/infra/config"
	"github.com/osa030/freetime/internal/infra/logger"
)

var (
	app        = kingpin.New("freetimed", "freetime focus timer daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/freetime.yaml").Envar("FREETIME_CONFIG").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// Console logger until the config file has been read
	bootLevel := "info"
	if *verbose {
		bootLevel = "debug"
	}
	if _, err := logger.Init(logger.Config{Level: bootLevel}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	logCloser, err := initLogger(cfg)
	if err != nil {
		zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
	}

	err = run(cfg)
	_ = logCloser.Close()
	if err != nil {
		zlog.Error().Msgf("Daemon error: %v", err)
		os.Exit(1)
	}
}

// initLogger applies the configured log settings. Command-line flags win.
func initLogger(cfg *config.Config) (io.Closer, error) {
	logCfg := logger.Config{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	}
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logfile != "" {
		logCfg.File = *logfile
	}
	return logger.Init(logCfg)
}

// run executes the main daemon logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	store, err := checkpoint.NewFromConfig(ctx, cfg.Store)
	if err != nil {
		return errors.Wrap(err, "failed to create checkpoint store")
	}
	// Closed last, after the controller has written its final checkpoint.
	defer func() {
		if err := store.Close(); err != nil {
			zlog.Error().Err(err).Msg("Failed to close checkpoint store")
		}
	}()

	source := settings.New(cfg.Session)
	observers := notification.NewManager(cfg.ObserverTimeout())
	defer observers.Close()

	hooks := hook.NewRunner()
	defer hooks.Wait()

	ctrl := timer.New(timer.Config{
		TickInterval:  cfg.TickInterval(),
		RetryInterval: cfg.RetryInterval(),
	}, timer.Deps{
		Clock:     clock.NewReal(),
		Store:     store,
		Settings:  source,
		Observers: observers,
	})
	completeHookID := ctrl.AddNotifier(hooks.Notifier(cfg.Hooks.OnComplete))

	snap, err := ctrl.Recover(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to recover timer")
	}
	zlog.Info().Msgf("Timer ready: phase=%s remaining=%ds status=%s", snap.Phase, snap.RemainingSeconds, snap.Status)

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loopErrCh := make(chan error, 1)
	go func() {
		loopErrCh <- ctrl.Run(loopCtx)
	}()

	// Create HTTP mux and register the control API
	mux := http.NewServeMux()
	path, handler := apiconnect.NewHandler(
		apiconnect.NewTimerService(ctrl),
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(cfg.Server.Token)),
	)
	mux.Handle(path, handler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		_ = ctrl.Shutdown(ctx)
		return errors.Wrapf(err, "failed to listen on %s", cfg.Server.Addr)
	}
	if cfg.Server.Token == "" {
		zlog.Warn().Msg("Control API token not set, authentication disabled")
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", listener.Addr())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Execute startup hook if configured (after server is running)
	hooks.RunStage("on_started", cfg.Hooks.OnStarted)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var runErr error
wait:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				completeHookID = reload(ctrl, source, hooks, completeHookID)
				continue
			}
			zlog.Info().Msgf("Received %s, shutting down...", sig)
			break wait
		case err := <-serverErrCh:
			runErr = errors.Wrap(err, "server error")
			break wait
		case err := <-loopErrCh:
			runErr = errors.Wrap(err, "timer loop ended")
			break wait
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop the timer first: this halts ticking, writes the final checkpoint
	// and ends open watch streams.
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown timer: %v", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	hooks.RunStage("on_stopped", cfg.Hooks.OnStopped)

	return runErr
}

// reload re-reads the config file and applies the session settings and the
// completion hooks. Changed durations take effect from the next phase.
func reload(ctrl *timer.Controller, source *settings.Source, hooks *hook.Runner, hookID string) string {
	zlog.Info().Msgf("Reloading config from %s", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Error().Err(err).Msg("Config reload failed, keeping current settings")
		return hookID
	}
	if err := source.Update(cfg.Session); err != nil {
		zlog.Error().Err(err).Msg("Session settings rejected, keeping current settings")
		return hookID
	}

	ctrl.RemoveNotifier(hookID)
	return ctrl.AddNotifier(hooks.Notifier(cfg.Hooks.OnComplete))
}
