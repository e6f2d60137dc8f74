// Command worker consumes report tasks from the queue and produces the final
// session evaluations.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ai "github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/repo/rediscache"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/config"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/questionbank"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := rediscache.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	sessions := postgres.NewSessionRepo(pool)
	reportsRepo := postgres.NewReportRepo(pool)
	loader := questionbank.NewLoader(cfg.QuestionBankPath)

	var aiClient domain.AIClient
	if cfg.MockAI() {
		slog.Info("using deterministic mock AI client")
		aiClient = ai.NewMockClient()
	} else {
		limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			"ai_chat": ratelimiter.NewBucketConfigFromPerMinute(cfg.AICallsPerMinute),
		})
		aiClient = ai.New(cfg, limiter)
	}

	reports := usecase.NewReportService(sessions, reportsRepo, loader, aiClient, cfg.OpenRouterModel, cfg.ReportTimeout)

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, "interview-report-workers", func(ctx context.Context, payload domain.ReportTaskPayload) error {
		return reports.Generate(ctx, payload.SessionID)
	})
	if err != nil {
		slog.Error("redpanda consumer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close consumer", slog.Any("error", err))
		}
	}()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker shut down")
}

func connectDB(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = cfg.ConnectBackoffMaxElapsed
	err := backoff.Retry(func() error {
		p, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}, backoff.WithContext(expo, ctx))
	return pool, err
}
