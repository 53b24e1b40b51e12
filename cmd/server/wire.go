package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audittrail/internal/audit/chain"
	"audittrail/internal/audit/coverage"
	"audittrail/internal/audit/handler"
	auditmetrics "audittrail/internal/audit/metrics"
	"audittrail/internal/audit/notify"
	"audittrail/internal/audit/retention"
	"audittrail/internal/audit/service/command"
	"audittrail/internal/audit/service/query"
	auditpg "audittrail/internal/audit/store/postgres"
	"audittrail/internal/audit/worker"
	jwttoken "audittrail/internal/jwt_token"
	"audittrail/internal/platform/config"
	"audittrail/internal/platform/kafka/producer"
	"audittrail/internal/platform/metrics"
	"audittrail/internal/platform/postgres"
	"audittrail/internal/platform/redis"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/platform/middleware/auth"
	"audittrail/pkg/platform/middleware/metadata"
	"audittrail/pkg/platform/middleware/requesttime"
)

const (
	appendRetryInitial = 10 * time.Millisecond
	appendRetryMax     = 500 * time.Millisecond
)

// coverageTracker is what both the query service and the HTTP handler need.
type coverageTracker interface {
	query.CoverageSource
	handler.CoverageRecorder
}

type app struct {
	db        *sql.DB
	redis     *redis.Client
	producer  *producer.Producer
	notifier  *notify.Notifier
	commands  *command.Service
	retention *retention.Job
	router    http.Handler
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close(log)
		}
	}()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := auditpg.Migrate(ctx, db); err != nil {
		return nil, err
	}

	auditMetrics := auditmetrics.New()
	store := auditpg.New(db, auditpg.WithLockTimeout(cfg.Audit.LockTimeout))
	engine := chain.NewEngine(store,
		chain.WithLogger(log),
		chain.WithMetrics(auditMetrics),
		chain.WithRetry(cfg.Audit.AppendRetries, appendRetryInitial, appendRetryMax),
	)
	verifier := chain.NewVerifier(store, store, chain.WithLogger(log), chain.WithMetrics(auditMetrics))

	commandOpts := []command.Option{
		command.WithLogger(log),
		command.WithMetrics(auditMetrics),
		command.WithPool(worker.NewPool(cfg.Audit.Workers, cfg.Audit.RejectWhenBusy)),
		command.WithAsyncTimeout(cfg.Audit.AsyncTimeout),
	}
	if cfg.Audit.NotificationsEnabled {
		sinks, err := a.notificationSinks(ctx, cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		a.notifier = notify.New(sinks,
			notify.WithLogger(log),
			notify.WithMetrics(auditMetrics),
			notify.WithBuffer(cfg.Audit.NotifyBuffer),
		)
		a.notifier.Start()
		commandOpts = append(commandOpts, command.WithNotifier(a.notifier))
	}
	a.commands = command.New(engine, commandOpts...)

	tracker, err := a.coverageTracker(ctx, cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	queries := query.New(store, verifier,
		query.WithLogger(log),
		query.WithMetrics(auditMetrics),
		query.WithCoverage(tracker),
	)
	a.retention = retention.NewJob(queries, a.commands, store,
		retention.WithLogger(log),
		retention.WithInterval(cfg.Audit.PurgeInterval),
	)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	a.router = a.routes(
		handler.New(a.commands, queries, tracker, log),
		auth.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log),
		log,
	)

	ok = true
	return a, nil
}

// notificationSinks always logs; Kafka is added when brokers are configured.
func (a *app) notificationSinks(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) ([]notify.Sink, error) {
	sinks := []notify.Sink{notify.NewLogSink(log)}
	if len(cfg.Brokers) == 0 {
		return sinks, nil
	}

	p, err := producer.New(cfg.Brokers)
	if err != nil {
		return nil, err
	}
	a.producer = p
	if err := p.EnsureTopics(ctx, 1, 1, cfg.EntriesTopic, cfg.AlertsTopic); err != nil {
		log.WarnContext(ctx, "could not ensure notification topics", "error", err)
	}
	return append(sinks, notify.NewKafkaSink(p, cfg.EntriesTopic, cfg.AlertsTopic)), nil
}

// coverageTracker shares counts through Redis when it is configured.
func (a *app) coverageTracker(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (coverageTracker, error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.InfoContext(ctx, "redis not configured, coverage is tracked per process")
		return coverage.NewInMemoryTracker(), nil
	}
	a.redis = client
	return coverage.NewRedisTracker(client.Client, ""), nil
}

func (a *app) routes(h *handler.Handler, requireAuth func(http.Handler) http.Handler, log *slog.Logger) http.Handler {
	httpMetrics := metrics.New()

	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", a.health(log))

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(metadata.APIEndpoint)
		h.Register(r)
	})
	return r
}

func (a *app) health(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"postgres": "ok"}
		healthy := true
		if err := a.db.PingContext(ctx); err != nil {
			status["postgres"] = err.Error()
			healthy = false
		}
		if a.redis != nil {
			status["redis"] = "ok"
			if err := a.redis.Health(ctx); err != nil {
				status["redis"] = err.Error()
				healthy = false
			}
		}
		if !healthy {
			log.WarnContext(ctx, "health check failed", "status", status)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	}
}

// close releases resources in reverse order of construction. Pending async
// writes and queued notifications get a bounded grace period.
func (a *app) close(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.commands != nil {
		if err := a.commands.Close(ctx); err != nil {
			log.Error("draining async audit writes", "error", err)
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Close(ctx); err != nil {
			log.Error("draining notifications", "error", err)
		}
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error("closing redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Error("closing postgres", "error", err)
		}
	}
}
