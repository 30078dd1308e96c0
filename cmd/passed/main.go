// Package main initializes and starts the passe daemon: a loopback-only
// HTTP server exposing the vault registry and one session to a desktop
// widget, backed by the same store as the passe command line tool.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/atinyakov/passe/internal/config"
	"github.com/atinyakov/passe/internal/gateway"
	"github.com/atinyakov/passe/internal/logger"
	"github.com/atinyakov/passe/internal/repository"
	"github.com/atinyakov/passe/internal/server/handler/http"
	"github.com/atinyakov/passe/internal/service"
	"github.com/atinyakov/passe/internal/session"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Parse command-line, config file and environment configuration.
	options, _, err := config.Parse("passed", os.Args[1:], func(o *config.Options, fs *pflag.FlagSet) {
		o.Flags(fs)
		o.ServerFlags(fs)
	})
	if errors.Is(err, pflag.ErrHelp) {
		printUsage()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "passed: %v\n", err)
		os.Exit(2)
	}
	if err := options.CheckLoopback(); err != nil {
		fmt.Fprintf(os.Stderr, "passed: %v\n", err)
		os.Exit(2)
	}
	secretMode, err := gateway.ParseSecretMode(options.SpectreSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "passed: %v\n", err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "passed: %v\n", err)
		os.Exit(2)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the registry store shared with the command line tool.
	store, err := repository.Open(ctx, options.Store, options.Location())
	if err != nil {
		zapLogger.Fatal("cannot open registry store", zap.String("store", options.Store), zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	registry, err := service.NewRegistry(ctx, store, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot load registry", zap.Error(err))
	}

	// Pick up edits made by the command line tool.
	service.StartAutoReload(ctx, registry, time.Duration(options.ReloadInterval), zapLogger)

	gw := gateway.New(gateway.Spectre{Path: options.Spectre, Secret: secretMode}, time.Duration(options.DeriveTimeout))
	// A hangup only locks the daemon; a terminal stop locks and then
	// suspends it.
	lockSigs := make(chan os.Signal, 1)
	signal.Notify(lockSigs, session.LockSignals...)
	sess := session.New(registry, gw,
		session.WithLogger(zapLogger),
		session.WithIdleTimeout(time.Duration(options.IdleLock)),
		session.WithAfterSignal(session.RaiseDefault(lockSigs, session.SuspendSignals...)),
	)
	defer sess.Lock()
	sess.LockOnSignal(ctx, lockSigs)

	// Build the router with middleware and routes. Requests must name the
	// listen host or a loopback name, which shuts out DNS rebinding pages.
	listenHost, _, _ := net.SplitHostPort(options.Addr)
	router := http.NewRouter(
		&http.RegistryHandler{Registry: registry},
		&http.SessionHandler{Session: sess},
		zapLogger,
		listenHost,
	)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sess.Lock()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Addr), zap.String("store", options.Store))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Error("HTTP server failed", zap.Error(err))
		return
	}
	zapLogger.Info("server stopped")
}

func printUsage() {
	fs := pflag.NewFlagSet("passed", pflag.ContinueOnError)
	o := config.Default()
	o.Flags(fs)
	o.ServerFlags(fs)
	fmt.Println("usage: passed [flags]")
	fmt.Println()
	fmt.Print(fs.FlagUsages())
}
