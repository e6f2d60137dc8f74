// Package redpanda provides the Redpanda/Kafka queue between the API server
// and the report worker. Producing is transactional so a completed session
// enqueues its report task exactly once.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

// TopicReports is the topic carrying report generation tasks.
const TopicReports = "interview-reports"

// Producer wraps a transactional Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	// transactionChan serializes transactions across concurrent enqueues.
	transactionChan chan struct{}
}

// NewProducer constructs a transactional Producer and ensures the reports
// topic exists.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "ai-visa-interviewer-producer")
}

// NewProducerWithTransactionalID allows tests to isolate producers.
func NewProducerWithTransactionalID(brokers []string, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=queue.producer: no seed brokers")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("op=queue.producer: client: %w", err)
	}

	if err := createTopicIfNotExists(context.Background(), client, TopicReports, 1, 1); err != nil {
		slog.Warn("topic create failed, may already exist",
			slog.String("topic", TopicReports), slog.Any("error", err))
	}

	return &Producer{
		client:          client,
		transactionChan: make(chan struct{}, 1),
	}, nil
}

// EnqueueReport publishes a report task keyed by session ID.
func (p *Producer) EnqueueReport(ctx domain.Context, payload domain.ReportTaskPayload) (string, error) {
	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return "", fmt.Errorf("op=queue.enqueue: begin transaction: %w", err)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		p.abort(ctx)
		return "", fmt.Errorf("op=queue.enqueue: marshal: %w", err)
	}

	record := &kgo.Record{
		Topic: TopicReports,
		Key:   []byte(payload.SessionID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "session_id", Value: []byte(payload.SessionID)},
		},
	}

	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, e.Promise())
	if err := e.Err(); err != nil {
		p.abort(ctx)
		return "", fmt.Errorf("op=queue.enqueue: produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return "", fmt.Errorf("op=queue.enqueue: commit transaction: %w", err)
	}

	slog.Info("report task enqueued",
		slog.String("topic", TopicReports),
		slog.String("session_id", payload.SessionID))
	return payload.SessionID, nil
}

func (p *Producer) abort(ctx context.Context) {
	if err := p.client.EndTransaction(ctx, kgo.TryAbort); err != nil {
		slog.Error("transaction abort failed", slog.Any("error", err))
	}
}

// Close closes the producer client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
