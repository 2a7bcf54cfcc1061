package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/itrack/internal/api"
	"github.com/joescharf/itrack/internal/config"
	"github.com/joescharf/itrack/internal/pidfile"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  "Start the issue tracker HTTP API.\nBy default it listens on port 5000. Use --port to change it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return serveRun(ctx)
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a server is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 5000, "port to listen on")
	serveCmd.Flags().String("addr", "", "address to bind (default all interfaces)")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

// serverPIDFile returns the PID file kept in the config directory.
func serverPIDFile() (*pidfile.File, error) {
	dir, err := configDirFunc()
	if err != nil {
		return nil, err
	}
	return pidfile.New(filepath.Join(dir, "server.pid")), nil
}

func serveStatusRun() error {
	pf, err := serverPIDFile()
	if err != nil {
		return err
	}
	if pid, ok := pf.Running(); ok {
		ui.Success("Server running (pid %d)", pid)
		return nil
	}
	ui.Info("Server not running")
	return nil
}

func serveStopRun() error {
	pf, err := serverPIDFile()
	if err != nil {
		return err
	}
	pid, ok := pf.Running()
	if !ok {
		ui.Info("Server not running")
		return nil
	}
	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}
	if err := pf.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	ui.Success("Sent stop signal to pid %d", pid)
	return nil
}

// newHTTPServer wires handler into an http.Server configured from cfg.
func newHTTPServer(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}

// serveRun runs the API until ctx is cancelled, then drains connections.
func serveRun(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	pf, err := serverPIDFile()
	if err != nil {
		return err
	}
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	srv := newHTTPServer(cfg.Server, api.NewServer(s, logger).Router(), logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving API",
			"addr", srv.Addr,
			"driver", cfg.DB.Driver,
			"timezone", cfg.Location.String(),
		)
		errCh <- srv.ListenAndServe()
	}()
	ui.Success("Serving API at http://localhost:%d", cfg.Server.Port)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
