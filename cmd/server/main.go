// Command server starts the interview API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/ai"
	httpserver "github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/repo/rediscache"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/app"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/config"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/questionbank"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/scoring"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/selector"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

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

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue client", slog.Any("error", err))
		}
	}()

	var sessions domain.SessionRepository = postgres.NewSessionRepo(pool)
	if rdb != nil {
		sessions = rediscache.New(sessions, rdb, rediscache.DefaultTTL)
	}
	reportsRepo := postgres.NewReportRepo(pool)

	aiClient := buildAIClient(cfg, rdb)

	loader := questionbank.NewLoader(cfg.QuestionBankPath)
	if _, err := loader.Load(ctx); err != nil {
		slog.Error("question bank load failed", slog.Any("error", err))
		os.Exit(1)
	}

	sel := selector.New(aiClient, cfg.RankTimeout)
	scorer := scoring.New(aiClient, cfg.ScoreTimeout)

	interviews := usecase.NewInterviewService(sessions, producer, loader, sel, scorer, buildModes(cfg))
	reports := usecase.NewReportService(sessions, reportsRepo, loader, aiClient, cfg.OpenRouterModel, cfg.ReportTimeout)

	dbCheck := func(ctx context.Context) error { return pool.Ping(ctx) }
	var redisCheck func(ctx context.Context) error
	if rdb != nil {
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	srv := httpserver.NewServer(cfg, interviews, reports, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// connectDB retries the initial pool creation so the server survives a
// database that is still starting up.
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

func buildAIClient(cfg config.Config, rdb *redis.Client) domain.AIClient {
	if cfg.MockAI() {
		slog.Info("using deterministic mock AI client")
		return ai.NewMockClient()
	}
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
		"ai_chat": ratelimiter.NewBucketConfigFromPerMinute(cfg.AICallsPerMinute),
	})
	return ai.New(cfg, limiter)
}

func buildModes(cfg config.Config) usecase.Modes {
	return usecase.Modes{
		domain.RouteF1: {
			TotalQuestions:     cfg.F1TotalQuestions,
			PerQuestionSeconds: cfg.PerQuestionSeconds,
			CategoryMin: map[domain.Category]int{
				domain.CategoryFinancial: 2,
				domain.CategoryAcademic:  1,
				domain.CategoryIntent:    1,
			},
			CategoryMax: map[domain.Category]int{
				domain.CategoryPersonal: 2,
			},
			ProgressiveDifficulty: true,
		},
		domain.RouteB1B2: {
			TotalQuestions:     cfg.B1B2TotalQuestions,
			PerQuestionSeconds: cfg.PerQuestionSeconds,
			CategoryMin: map[domain.Category]int{
				domain.CategoryFinancial: 1,
				domain.CategoryIntent:    1,
			},
			ProgressiveDifficulty: true,
		},
	}
}
