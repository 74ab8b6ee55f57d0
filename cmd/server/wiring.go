package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	jwttoken "certverify/internal/jwt_token"
	"certverify/internal/lookup/cache"
	"certverify/internal/lookup/explorer"
	"certverify/internal/lookup/hashlink"
	"certverify/internal/lookup/httpfetch"
	"certverify/internal/lookup/issuer"
	"certverify/internal/lookup/ldcontext"
	"certverify/internal/lookup/revocation"
	"certverify/internal/platform/config"
	"certverify/internal/platform/kafka"
	"certverify/internal/platform/kafka/producer"
	httpmetrics "certverify/internal/platform/metrics"
	"certverify/internal/platform/postgres"
	"certverify/internal/platform/redis"
	ratelimitmw "certverify/internal/ratelimit/middleware"
	ratelimitmodels "certverify/internal/ratelimit/models"
	"certverify/internal/ratelimit/store/bucket"
	httptransport "certverify/internal/transport/http"
	"certverify/internal/verifier/canonical"
	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/handler"
	"certverify/internal/verifier/metrics"
	"certverify/internal/verifier/service"
	"certverify/internal/verifier/store"
	"certverify/migrations"
	audit "certverify/pkg/platform/audit"
	auditkafka "certverify/pkg/platform/audit/publishers/kafka"
	auditmemory "certverify/pkg/platform/audit/store/memory"
	auditpostgres "certverify/pkg/platform/audit/store/postgres"
	"certverify/pkg/platform/audit/worker"
	"certverify/pkg/platform/middleware/auth"
	"certverify/pkg/platform/tracer"
	txcontext "certverify/pkg/platform/tx"
)

const userAgent = "certverify/1.0"

// app holds the long-lived resources of the process.
type app struct {
	router  http.Handler
	audit   *worker.Worker
	closers []func() error
	log     *slog.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })
	tr := tracer.NewOTel("certverify")

	registry := chains.Default()
	if cfg.ChainsFile != "" {
		n, err := registry.LoadFile(cfg.ChainsFile)
		if err != nil {
			return nil, fmt.Errorf("load chains file: %w", err)
		}
		log.Info("loaded chains file", "path", cfg.ChainsFile, "chains", n)
	}

	health := handler.NewHealth()

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, rc.Close)
		health.Add("redis", rc.Health)
	}
	fetchCache := a.fetchCache(rc)
	client := httpfetch.New(
		httpfetch.WithTimeout(cfg.HTTPTimeout),
		httpfetch.WithCache(fetchCache, cfg.CacheTTL),
		httpfetch.WithUserAgent(userAgent),
		httpfetch.WithLogger(log),
		httpfetch.WithTracer(tr),
	)

	results, persistence, err := a.resultStore(ctx, cfg, health)
	if err != nil {
		return nil, err
	}

	sink, err := a.auditSink(ctx, cfg, health)
	if err != nil {
		return nil, err
	}
	a.audit = worker.NewWorker(sink, worker.WithLogger(log))

	svc := service.New(results, append(persistence,
		service.WithAuditor(a.audit),
		service.WithTransactionLookup(explorer.New(explorer.Defaults(client, cfg.EtherscanAPIKey),
			explorer.WithMinAnswers(cfg.ExplorerMinAnswers),
			explorer.WithLogger(log),
			explorer.WithTracer(tr),
		)),
		service.WithIssuerProfiles(issuer.NewFetcher(client)),
		service.WithRevocationLists(revocation.NewFetcher(client)),
		service.WithHashlinks(hashlink.NewVerifier(client,
			hashlink.WithLogger(log),
			hashlink.WithTracer(tr),
		)),
		service.WithContextLoader(canonical.NewContextLoader(
			ldcontext.New(client, ldcontext.WithTimeout(cfg.HTTPTimeout)))),
		service.WithChains(registry),
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithTracer(tr),
	)...)

	var validator auth.JWTValidator
	if cfg.AuthEnabled() {
		validator = jwttoken.NewJWTServiceAdapter(
			jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience))
	}

	a.router = httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Metrics:        httpmetrics.New(),
		Validator:      validator,
		AdminToken:     cfg.AdminToken,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      a.rateLimiter(rc, cfg.RateLimit),
		Health:         health,
		Prometheus:     promhttp.Handler(),
		API: []httptransport.Routes{
			handler.New(svc,
				handler.WithLogger(log),
				handler.WithBatchConcurrency(cfg.BatchConcurrency),
			),
		},
	})
	return a, nil
}

// fetchCache shares fetched documents through Redis when configured.
func (a *app) fetchCache(rc *redis.Client) cache.Cache {
	if rc == nil {
		a.log.Info("redis not configured, using in-process fetch cache")
		return cache.NewMemory()
	}
	return cache.NewRedis(rc.Client)
}

// rateLimiter shares request budgets through Redis when configured and falls
// back to process memory while Redis fails.
func (a *app) rateLimiter(rc *redis.Client, cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	limit := ratelimitmodels.Limit{Requests: cfg.Requests, Window: cfg.Window}
	memory := bucket.NewInMemoryBucketStore()
	if rc == nil {
		return ratelimitmw.New(memory, limit, ratelimitmw.WithLogger(a.log)).Handler
	}
	return ratelimitmw.New(bucket.NewRedisBucketStore(rc.Client), limit,
		ratelimitmw.WithLogger(a.log),
		ratelimitmw.WithFallback(memory),
	).Handler
}

// resultStore persists results in Postgres when configured, together with
// their audit records in one transaction per run.
func (a *app) resultStore(ctx context.Context, cfg config.Server, health *handler.Health) (service.Store, []service.Option, error) {
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		a.log.Info("postgres not configured, keeping results in memory")
		return store.NewInMemoryStore(), nil, nil
	}
	a.closers = append(a.closers, db.Close)
	if err := migrations.Up(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	health.Add("postgres", pinger(db))
	return store.NewPostgres(db), []service.Option{
		service.WithTxRunner(txcontext.NewSQL(db)),
		service.WithAuditRecords(auditpostgres.New(db)),
	}, nil
}

func pinger(db *sql.DB) func(context.Context) error {
	return db.PingContext
}

// auditSink publishes verification events to Kafka when brokers are configured.
func (a *app) auditSink(ctx context.Context, cfg config.Server, health *handler.Health) (audit.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		a.log.Info("kafka not configured, keeping audit events in memory")
		return auditmemory.NewInMemoryStore(), nil
	}
	p, err := producer.New(producer.Config{
		Brokers: strings.Join(cfg.Kafka.Brokers, ","),
		Acks:    cfg.Kafka.Acks,
		Retries: 5,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.Close)

	if err := kafka.EnsureTopics(ctx, p.Client(), kafka.TopicSpec{
		Name:              cfg.Kafka.Topic,
		Partitions:        3,
		ReplicationFactor: 1,
	}); err != nil {
		return nil, err
	}
	health.Add("kafka", func(ctx context.Context) error {
		if !p.Healthy(ctx) {
			return errors.New("brokers unreachable")
		}
		return nil
	})
	return auditkafka.New(p, cfg.Kafka.Topic), nil
}
