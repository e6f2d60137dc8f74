package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

// ReportHandler processes one report task.
type ReportHandler func(ctx context.Context, payload domain.ReportTaskPayload) error

// Consumer reads report tasks from the reports topic and invokes the handler.
// Offsets are committed only after the handler returns, so a crashed worker
// replays uncommitted tasks; report upserts make replays idempotent.
type Consumer struct {
	client  *kgo.Client
	handler ReportHandler
}

// NewConsumer constructs a group consumer for the reports topic.
func NewConsumer(brokers []string, group string, handler ReportHandler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.consumer: no seed brokers")
	}
	if handler == nil {
		return nil, fmt.Errorf("op=queue.consumer: nil handler")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(TopicReports),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.consumer: client: %w", err)
	}
	return &Consumer{client: client, handler: handler}, nil
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("report consumer started", slog.String("topic", TopicReports))
	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					return fe.Err
				}
				slog.Error("fetch error",
					slog.String("topic", fe.Topic), slog.Any("error", fe.Err))
			}
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			c.process(ctx, record)
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			slog.Error("offset commit failed", slog.Any("error", err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, record *kgo.Record) {
	var payload domain.ReportTaskPayload
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		// Malformed records are dropped after logging; retrying cannot fix them.
		slog.Error("malformed report task dropped",
			slog.Int64("offset", record.Offset), slog.Any("error", err))
		observability.ReportsFailedTotal.WithLabelValues("malformed").Inc()
		return
	}

	observability.ReportsProcessing.WithLabelValues("session_report").Inc()
	defer observability.ReportsProcessing.WithLabelValues("session_report").Dec()

	start := time.Now()
	if err := c.handler(ctx, payload); err != nil {
		slog.Error("report task failed",
			slog.String("session_id", payload.SessionID),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err))
		observability.ReportsFailedTotal.WithLabelValues("handler_error").Inc()
		return
	}
	observability.ReportsCompletedTotal.WithLabelValues("session_report").Inc()
	slog.Info("report task completed",
		slog.String("session_id", payload.SessionID),
		slog.Duration("elapsed", time.Since(start)))
}

// Close closes the consumer client.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
