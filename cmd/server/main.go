package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Canvas/internal/adapters/http"
	"github.com/dkeye/Canvas/internal/bus"
	"github.com/dkeye/Canvas/internal/config"
	"github.com/dkeye/Canvas/internal/discovery"
	"github.com/dkeye/Canvas/internal/relay"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	policy, err := relay.PolicyByName(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid backpressure policy")
	}
	opts := []relay.Option{
		relay.WithPolicy(policy),
		relay.WithScreenshotLimit(cfg.Screenshot.Limit, cfg.Screenshot.Interval),
	}

	var fanout *bus.Redis
	if cfg.Redis.Addr != "" {
		fanout, err = bus.NewRedis(&redis.Options{Addr: cfg.Redis.Addr}, cfg.Redis.Channel)
		if err != nil {
			log.Fatal().Err(err).Msg("redis bus")
		}
		if err := fanout.Ping(ctx); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
		}
		opts = append(opts, relay.WithPublisher(fanout))
	}

	hub := relay.NewHub(opts...)

	if fanout != nil {
		sub, err := fanout.Subscribe(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("redis subscribe")
		}
		defer fanout.Close()
		defer sub.Close()
		go bus.Pump(sub, hub)
		log.Info().Str("channel", cfg.Redis.Channel).Str("instance", fanout.Instance()).Msg("relay bus joined")
	}

	if cfg.MDNS.Enabled {
		adv, err := discovery.Advertise(cfg.MDNS.Service, cfg.Port)
		if err != nil {
			log.Warn().Err(err).Msg("mdns advertise failed")
		} else {
			defer adv.Shutdown()
			log.Info().Str("service", cfg.MDNS.Service).Int("port", cfg.Port).Msg("advertising on mdns")
		}
	}

	r := router.SetupRouter(ctx, cfg, hub)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Canvas relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Close()
	log.Info().Msg("Server exited gracefully")
}
