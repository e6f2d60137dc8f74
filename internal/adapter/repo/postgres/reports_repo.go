package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

// ReportRepo implements domain.ReportRepository on PostgreSQL.
type ReportRepo struct{ Pool PgxPool }

// NewReportRepo constructs a ReportRepo with the given pool.
func NewReportRepo(p PgxPool) *ReportRepo { return &ReportRepo{Pool: p} }

// Upsert stores the report for a session, replacing any earlier generation.
func (r *ReportRepo) Upsert(ctx domain.Context, rep domain.SessionReport) error {
	tracer := otel.Tracer("repo.reports")
	ctx, span := tracer.Start(ctx, "reports.Upsert")
	defer span.End()

	doc, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("op=report.upsert: %w", err)
	}
	q := `INSERT INTO reports (session_id, doc, created_at)
	      VALUES ($1,$2,$3)
	      ON CONFLICT (session_id) DO UPDATE SET doc=EXCLUDED.doc, created_at=EXCLUDED.created_at`
	if _, err := r.Pool.Exec(ctx, q, rep.SessionID, doc, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=report.upsert: %w", err)
	}
	return nil
}

// GetBySessionID loads the report for a session.
func (r *ReportRepo) GetBySessionID(ctx domain.Context, sessionID string) (domain.SessionReport, error) {
	tracer := otel.Tracer("repo.reports")
	ctx, span := tracer.Start(ctx, "reports.GetBySessionID")
	defer span.End()

	var doc []byte
	row := r.Pool.QueryRow(ctx, `SELECT doc FROM reports WHERE session_id=$1`, sessionID)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SessionReport{}, fmt.Errorf("op=report.get session=%s: %w", sessionID, domain.ErrNotFound)
		}
		return domain.SessionReport{}, fmt.Errorf("op=report.get: %w", err)
	}
	var rep domain.SessionReport
	if err := json.Unmarshal(doc, &rep); err != nil {
		return domain.SessionReport{}, fmt.Errorf("op=report.get: decode: %w", err)
	}
	return rep, nil
}
