package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/webhook-pipeline/breaker"
	"github.com/marcelsud/webhook-pipeline/config"
	"github.com/marcelsud/webhook-pipeline/idempotency"
	idemmemory "github.com/marcelsud/webhook-pipeline/idempotency/memory"
	idemredis "github.com/marcelsud/webhook-pipeline/idempotency/redis"
	chihttp "github.com/marcelsud/webhook-pipeline/internal/http/chi"
	"github.com/marcelsud/webhook-pipeline/metrics"
	"github.com/marcelsud/webhook-pipeline/retry"
	retrymemory "github.com/marcelsud/webhook-pipeline/retry/memory"
	retryredis "github.com/marcelsud/webhook-pipeline/retry/redis"
	"github.com/marcelsud/webhook-pipeline/sources"
	"github.com/marcelsud/webhook-pipeline/webhook"
	"github.com/rs/zerolog"
)

const TIMEOUT = 30 * time.Second

/* main is where the pipeline is wired together: configuration, stores,
 * breaker, retry scheduler, and the HTTP surface. Imports flow one way:
 * the application imports business packages, which import storage.
 */

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.GetConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Loading configuration")
		return
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	queue, store, err := buildStores(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Connecting to backing store")
		return
	}

	router := webhook.NewRouter(logger)
	handler := webhook.NewHandler(router, logger)
	if err := registerSources(handler, cfg.SourcesFile); err != nil {
		logger.Error().Err(err).Msg("Loading source configuration")
		return
	}

	manager := retry.NewManager(queue, retry.Policy{
		MaxAttempts:  cfg.RetryMaxAttempts,
		BaseDelay:    time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		Multiplier:   cfg.RetryMultiplier,
		JitterFactor: cfg.RetryJitter,
	}, logger)
	manager.AttachBreaker(breaker.New(breaker.Config{
		FailureThreshold:    cfg.BreakerFailureThreshold,
		SuccessThreshold:    cfg.BreakerSuccessThreshold,
		OpenDuration:        time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		HalfOpenMaxRequests: 1,
	}))
	handler.AttachRetryManager(manager)

	scheduler := retry.NewScheduler(manager, reroute(router), retry.SchedulerConfig{
		PollInterval: time.Duration(cfg.RetryPollSeconds) * time.Second,
		BatchSize:    cfg.RetryBatchSize,
	}, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	idem := idempotency.New(store, idempotency.Config{
		TTL:         time.Duration(cfg.IdempotencyTTLHours) * time.Hour,
		LockTimeout: time.Duration(cfg.IdempotencyLockSeconds) * time.Second,
		MaxRetries:  cfg.IdempotencyMaxRetries,
	}, logger)
	idem.StartCleanup(ctx)
	defer idem.Stop()

	exporter, err := metrics.NewOTelExporter(metrics.NewPipelineCollector(manager))
	if err != nil {
		logger.Error().Err(err).Msg("Creating metrics exporter")
		return
	}
	defer exporter.Shutdown(context.Background())

	r := chihttp.WebhookHandlers(ctx, handler, manager, idem, exporter.ServeHTTP())
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	logger.Info().Str("port", cfg.Port).Msg("Listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("Server failed")
		return
	}
	if err := <-errShutdown; err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
}

// buildStores selects the retry queue and idempotency store backends
func buildStores(cfg *config.Config) (retry.Queue, idempotency.Store, error) {
	switch cfg.Store {
	case "redis":
		queue, err := retryredis.NewQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis retry queue: %w", err)
		}
		store, err := idemredis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis idempotency store: %w", err)
		}
		return queue, store, nil
	case "memory", "":
		return retrymemory.NewQueue(), idemmemory.NewStore(), nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", cfg.Store)
	}
}

// registerSources loads sources.yaml into the handler's source table
func registerSources(handler *webhook.Handler, path string) error {
	loader := sources.NewLoader()
	if err := loader.Load(path); err != nil {
		return err
	}
	for _, source := range loader.List() {
		if err := handler.RegisterSource(source.HandlerConfig()); err != nil {
			return err
		}
	}
	return nil
}

// reroute feeds a due retry entry back through the event router
func reroute(router *webhook.Router) retry.Handler {
	return func(ctx context.Context, entry retry.Entry) error {
		var payload map[string]interface{}
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return fmt.Errorf("decoding retry payload: %w", err)
		}
		return router.Route(ctx, webhook.Event{
			ID:        entry.EventID,
			Type:      entry.EventType,
			Source:    entry.Source,
			Timestamp: entry.CreatedAt,
			Version:   "1.0",
			Payload:   payload,
			Metadata:  entry.Metadata,
		})
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing server close")
	default:
		errShutdown <- fmt.Errorf("forcing server close")
	}
}
