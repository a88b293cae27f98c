package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mattcodi/fleet-updater/internal/config"
	"github.com/mattcodi/fleet-updater/internal/github"
	"github.com/mattcodi/fleet-updater/internal/gitops"
	"github.com/mattcodi/fleet-updater/internal/logger"
	repository "github.com/mattcodi/fleet-updater/internal/repository/state"
	"github.com/mattcodi/fleet-updater/internal/service/distributor"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// context is canceled.
const shutdownTimeout = 10 * time.Second

// readHeaderTimeout guards against clients that open a connection and
// never send a request.
const readHeaderTimeout = 15 * time.Second

// Options controls the fleet-updater serve process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the HTTP server.
	ListenAddress string
	// StateFile specifies the path to persist apply records JSON.
	StateFile string
}

// ErrNoListenAddress indicates missing server configuration.
var ErrNoListenAddress = errors.New("no listen address configured")

// Run starts the HTTP server and blocks until context is canceled or the
// server stops. Loads configuration first, then determines the listen address
// from config or override.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "fleet-updater-server")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Use StateFile from config unless overridden by command line option.
	stateFile := settings.StateFile
	if opts.StateFile != "" {
		stateFile = opts.StateFile
	}

	listenAddress, err := resolveListenAddress(settings.ListenAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	repo := repository.NewFileRepository(stateFile)
	git := gitops.NewExecRunner()
	dist := distributor.NewService(settings, git, repo)
	client := github.NewClient(settings.Owner, github.TokenFromEnvironment(),
		github.WithCallTimeout(settings.Timeout))

	svc := newService(dist, client, git, repo)

	// Listen through the context-aware config so startup honors cancellation.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	httpServer := &http.Server{
		Handler:           svc.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.InfoKV(ctx, "Update server listening",
		"listen_address", listenAddress, "state_file", stateFile)

	// Done channel is closed after Shutdown finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.WarnKV(ctx, "Shutdown did not finish cleanly", "error", shutdownErr)
		}

		close(done)
	}()

	if err = httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done
	logger.Info(ctx, "HTTP server stopped")

	return nil
}

// resolveListenAddress determines the listen address for the HTTP server.
// If override is provided, uses it directly. Otherwise normalizes the
// configured address to a port-only binding.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoListenAddress
	}

	// Accept both ":9010" and "host:9010" forms from the config file.
	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address format %q: %w", configAddr, err)
	}

	return ":" + port, nil
}
