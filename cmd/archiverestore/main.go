package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/archiverestore/internal/adapter/driven/conversations"
	httphandler "github.com/ericfisherdev/archiverestore/internal/adapter/driving/http"
	"github.com/ericfisherdev/archiverestore/internal/adapter/driving/intercept"
	"github.com/ericfisherdev/archiverestore/internal/application"
	"github.com/ericfisherdev/archiverestore/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"upstream_url", cfg.UpstreamURL,
		"page_size", cfg.PageSize,
		"list_delay", cfg.ListDelay,
		"restore_delay", cfg.RestoreDelay,
	)

	upstreamURL, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return err
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM). Restore jobs run under
	// it and are aborted on shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Credential holder, fed by the intercepting proxy.
	holder := application.NewCredentialHolder()

	// 4. Upstream client (httpcache -> rate limit -> timeout).
	client, err := conversations.NewClient(cfg.UpstreamURL, cfg.HTTPTimeout)
	if err != nil {
		return err
	}

	// 5. Event hub and restore services.
	hub := httphandler.NewEventHub(slog.Default())
	defer hub.Close()

	discoverySvc := application.NewDiscoveryService(client, cfg.PageSize, application.FixedDelay{Interval: cfg.ListDelay})
	mutator := application.NewBatchMutator(client, application.FixedDelay{Interval: cfg.RestoreDelay})
	restoreSvc := application.NewRestoreService(holder, discoverySvc, mutator, application.RestoreObservers{
		OnProgress: hub.PublishProgress,
		OnResult:   hub.PublishResult,
	})

	go func() {
		select {
		case <-holder.Ready():
			if cred, ok := holder.Credential(); ok {
				hub.PublishCredential(cred)
			}
		case <-ctx.Done():
		}
	}()

	// 6. Intercepting proxy: host traffic to /upstream/ is forwarded through
	// the credential observer.
	proxy := intercept.NewProxy(upstreamURL, intercept.Wrap(http.DefaultTransport, holder), slog.Default())

	// 7. HTTP handler with all routes and middleware.
	apiHandler := httphandler.NewHandler(ctx, restoreSvc, holder, hub, proxy, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.HTTPTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("archiverestore started",
		"listen_addr", cfg.ListenAddr,
		"proxy_prefix", "/upstream/",
	)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	if jobID, ok := restoreSvc.Cancel(); ok {
		slog.Info("active restore job cancelled", "job", jobID)
	}

	// 9. Graceful shutdown with 10s timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
