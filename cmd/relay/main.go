package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/basel-ax/tunerelay/internal/config"
	"github.com/basel-ax/tunerelay/internal/infrastructure/astria"
	"github.com/basel-ax/tunerelay/internal/infrastructure/logging"
	"github.com/basel-ax/tunerelay/internal/infrastructure/metrics"
	"github.com/basel-ax/tunerelay/internal/infrastructure/web"
	"github.com/basel-ax/tunerelay/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	logger := logging.New(cfg.Log, cfg.Dev)
	if !cfg.HasCredential() {
		logger.Warn().Msg("ASTRIA_API_KEY is not set, train and generate requests will fail")
	}

	metrics.MustRegister()

	client := astria.NewClient(cfg)
	relay := service.NewRelayService(cfg, client, logger)
	probe := service.NewProviderProbe(cfg, client, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           web.NewServer(cfg, relay, probe, logger).Routes(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("provider", cfg.Astria.BaseURL).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return startProbe(gctx, probe, cfg.ProbeCron, logger)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// generation waits may outlast the window; they are cut off here
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("shutdown window elapsed with requests in flight")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped")
}

// startProbe runs the provider probe once, then on schedule until ctx is done.
func startProbe(ctx context.Context, probe *service.ProviderProbe, spec string, logger *zerolog.Logger) error {
	if spec == "" {
		logger.Info().Msg("provider probe disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { _ = probe.Run(ctx) }); err != nil {
		return err
	}

	_ = probe.Run(ctx)
	c.Start()
	logger.Info().Str("schedule", spec).Msg("provider probe scheduled")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
