package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/config"
)

// SetupLogger builds the process-wide JSON logger. The service and env
// fields ride on every line so aggregated logs separate the API server from
// the report worker.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
