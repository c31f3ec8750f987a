package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	allocationstore "tidemark/internal/allocation/store/allocation"
	correctionhandler "tidemark/internal/correction/handler"
	correctionservice "tidemark/internal/correction/service"
	correctionstore "tidemark/internal/correction/store/correction"
	"tidemark/internal/ingest/dedupe"
	ingesthandler "tidemark/internal/ingest/handler"
	ingestmetrics "tidemark/internal/ingest/metrics"
	ingestservice "tidemark/internal/ingest/service"
	deadletterstore "tidemark/internal/ingest/store/deadletter"
	eventstore "tidemark/internal/ingest/store/event"
	"tidemark/internal/outbox"
	"tidemark/internal/platform/config"
	"tidemark/internal/platform/httpserver"
	"tidemark/internal/platform/logger"
	"tidemark/internal/platform/middleware"
	"tidemark/internal/platform/postgres"
	platformredis "tidemark/internal/platform/redis"
	taxonomyhandler "tidemark/internal/taxonomy/handler"
	taxonomymetrics "tidemark/internal/taxonomy/metrics"
	taxonomyservice "tidemark/internal/taxonomy/service"
	taxonomystore "tidemark/internal/taxonomy/store/taxonomy"
	transitionstore "tidemark/internal/taxonomy/store/transition"
	tenanthandler "tidemark/internal/tenant/handler"
	tenantservice "tidemark/internal/tenant/service"
	tenantstore "tidemark/internal/tenant/store/tenant"
	httptransport "tidemark/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// canonicalEventStore is the union of what admission and corrections need
// from the events table. Both memory and postgres stores satisfy it.
type canonicalEventStore interface {
	ingestservice.EventStore
	correctionservice.EventStore
}

type quarantineStore interface {
	ingestservice.DeadLetterStore
	ingestservice.RemediationStore
}

type channelStore interface {
	taxonomyservice.ChannelStore
	correctionservice.ChannelStore
}

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err.Error())
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		if err := postgres.EnsureSchema(context.Background(), db); err != nil {
			log.Error("schema setup failed", "error", err.Error())
			os.Exit(1)
		}
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		tenants     tenantservice.TenantStore
		events      canonicalEventStore
		dead        quarantineStore
		channels    channelStore
		transitions taxonomyservice.TransitionStore
		allocations correctionservice.AllocationStore
		corrections correctionservice.CorrectionStore
		outboxStore outbox.Store
		txRunner    taxonomyservice.TxRunner
	)
	if db != nil {
		tenants = tenantstore.NewPostgres(db)
		events = eventstore.NewPostgres(db)
		dead = deadletterstore.NewPostgres(db)
		channels = taxonomystore.NewPostgres(db)
		transitions = transitionstore.NewPostgres(db)
		allocations = allocationstore.NewPostgres(db)
		corrections = correctionstore.NewPostgres(db)
		outboxStore = outbox.NewPostgresStore(db)
		txRunner = newPostgresTx(db)
		log.Info("using postgres stores")
	} else {
		tenants = tenantstore.NewInMemory()
		events = eventstore.NewInMemory()
		dead = deadletterstore.NewInMemory()
		channels = taxonomystore.NewInMemory()
		transitions = transitionstore.NewInMemory()
		allocations = allocationstore.NewInMemory()
		corrections = correctionstore.NewInMemory()
		outboxStore = outbox.NewInMemoryStore()
		txRunner = taxonomyservice.NewMemoryTx()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	ingMetrics := ingestmetrics.New()
	taxMetrics := taxonomymetrics.New()
	notifier := outbox.NewNotifier(outboxStore)

	tenantSvc := tenantservice.New(tenants, tenantservice.WithLogger(log))

	ingestOpts := []ingestservice.Option{
		ingestservice.WithLogger(log),
		ingestservice.WithMetrics(ingMetrics),
		ingestservice.WithNotifier(notifier),
	}
	if redisClient != nil {
		ingestOpts = append(ingestOpts, ingestservice.WithDedupeCache(dedupe.New(redisClient.Client)))
	}
	ingestSvc := ingestservice.New(events, dead, ingestOpts...)
	remediationSvc := ingestservice.NewRemediation(dead, log)
	taxonomySvc := taxonomyservice.New(channels, transitions, txRunner,
		taxonomyservice.WithLogger(log), taxonomyservice.WithMetrics(taxMetrics),
		taxonomyservice.WithNotifier(notifier))
	correctionSvc := correctionservice.New(events, allocations, channels, corrections, txRunner,
		correctionservice.WithLogger(log), correctionservice.WithMetrics(taxMetrics))

	if err := taxonomySvc.Bootstrap(context.Background()); err != nil {
		log.Error("taxonomy bootstrap failed", "error", err.Error())
		os.Exit(1)
	}

	validator := middleware.NewActorValidator(cfg.JWTSigningKey)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:            log,
		RedactInbound:     cfg.RedactInbound,
		RedactionObserver: ingMetrics,
		Ingest:            ingesthandler.New(ingestSvc, tenantSvc, log),
		AdminRegistrars: []httptransport.Registrar{
			tenanthandler.New(tenantSvc, validator, log),
			ingesthandler.NewRemediation(remediationSvc, tenantSvc, validator, log),
			taxonomyhandler.New(taxonomySvc, validator, log),
			correctionhandler.New(correctionSvc, tenantSvc, validator, log),
		},
		Health: healthCheck(db, redisClient),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	srv := httpserver.New(cfg.Addr, router)
	g.Go(func() error {
		log.Info("starting tidemark", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka publisher init failed", "error", err.Error())
			os.Exit(1)
		}
		defer publisher.Close()

		worker := outbox.NewWorker(outboxStore, publisher, log,
			outbox.WithPollInterval(cfg.Kafka.PollInterval))
		g.Go(func() error {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		log.Info("outbox worker started", "topic", cfg.Kafka.Topic, "poll_interval", cfg.Kafka.PollInterval.String())
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox entries will accumulate unpublished")
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func healthCheck(db *sql.DB, redisClient *platformredis.Client) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
