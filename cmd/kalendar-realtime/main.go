package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	khttp "github.com/lucylow/kale-ndar-sub000/internal/adapter/http"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/marketmap"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/memstore"
	knats "github.com/lucylow/kale-ndar-sub000/internal/adapter/nats"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/natskv"
	kotel "github.com/lucylow/kale-ndar-sub000/internal/adapter/otel"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/postgres"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/ristretto"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/tiered"
	"github.com/lucylow/kale-ndar-sub000/internal/adapter/ws"
	"github.com/lucylow/kale-ndar-sub000/internal/config"
	"github.com/lucylow/kale-ndar-sub000/internal/domain/stream"
	"github.com/lucylow/kale-ndar-sub000/internal/logger"
	"github.com/lucylow/kale-ndar-sub000/internal/port/cache"
	"github.com/lucylow/kale-ndar-sub000/internal/port/push"
	"github.com/lucylow/kale-ndar-sub000/internal/port/store"
	"github.com/lucylow/kale-ndar-sub000/internal/schedule"
	"github.com/lucylow/kale-ndar-sub000/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"store_backend", cfg.Store.Backend,
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	otelShutdown, err := kotel.Setup(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	// --- Infrastructure ---

	queue, err := knats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	kv, cleanupStore, err := openStore(ctx, cfg, queue)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer cleanupStore()

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("event cache: %w", err)
	}
	defer l1.Close()
	var events cache.Cache = tiered.New(l1, kv, cfg.Realtime.EventTTL)

	// --- Services ---

	hub := ws.NewHub(cfg.Realtime.MaxConnections)
	if u, err := url.Parse(cfg.Server.CORSOrigin); err == nil && u.Host != "" {
		hub.AllowOrigins(u.Host)
	}
	registry := service.NewRegistry()

	bus := service.NewBroadcaster(registry, hub, queue, events,
		cfg.Realtime.EventTTL, cfg.Logging.Service)

	scheduler := service.NewScheduler(bus, stream.Cadence{
		Price:  cfg.Stream.PriceInterval,
		Odds:   cfg.Stream.OddsInterval,
		Volume: cfg.Stream.VolumeInterval,
	})
	defer scheduler.Close()
	bus.SetStreamStopper(scheduler)

	pusher, err := push.New(cfg.Push.Provider, cfg.Push.Options)
	if err != nil {
		return fmt.Errorf("push provider: %w", err)
	}

	notifications := service.NewNotificationService(kv, registry, hub, pusher,
		cfg.Realtime.NotificationTTL)
	bus.SetNotifier(notifications)

	chatSvc := service.NewChatService(kv, bus, cfg.Realtime.ChatTTL)

	resolver := marketmap.NewResolver()
	webhook := service.NewWebhookService(resolver, bus)

	session := service.NewSession(registry, hub, chatSvc, notifications)
	hub.OnConnect(session.HandleConnect)
	hub.OnDisconnect(session.HandleDisconnect)
	hub.OnMessage(session.HandleMessage)
	hub.StartHeartbeat(cfg.Realtime.HeartbeatInterval)

	if cfg.Otel.Enabled {
		metrics, err := kotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		bus.SetInstrumentation(metrics)
		notifications.SetInstrumentation(metrics)
		if err := kotel.RegisterConnectionGauge(hub.ConnectionCount); err != nil {
			return fmt.Errorf("connection gauge: %w", err)
		}
	}

	cancelRemote, err := bus.StartRemoteSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("remote subscriber: %w", err)
	}
	defer cancelRemote()

	cleanup := service.NewCleanup(kv,
		cfg.Realtime.EventTTL, cfg.Realtime.NotificationTTL, cfg.Realtime.ChatTTL)
	cleanupTask := schedule.Every(cfg.Realtime.CleanupInterval, func() {
		cleanup.Run(context.Background())
	})
	defer cleanupTask.Stop()

	// --- HTTP ---

	handlers := khttp.NewHandlers(hub, bus, registry, scheduler, webhook,
		chatSvc, notifications, resolver, queue)

	r := chi.NewRouter()
	r.Use(khttp.CORS(cfg.Server.CORSOrigin))
	r.Use(khttp.RequestID)
	r.Use(khttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Otel.Enabled {
		r.Use(kotel.HTTPMiddleware(cfg.Logging.Service))
	}
	khttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}

		scheduler.Close()
		hub.Close()
		if err := queue.Drain(); err != nil {
			slog.Error("nats drain failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// openStore selects the shared record store backend. The returned cleanup
// function releases backend resources.
func openStore(ctx context.Context, cfg *config.Config, queue *knats.Queue) (store.KV, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return memstore.New(), func() {}, nil

	case "natskv":
		bucket, err := queue.KeyValue(ctx, cfg.NATS.KVBucket)
		if err != nil {
			return nil, nil, err
		}
		return natskv.New(bucket), func() {}, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
