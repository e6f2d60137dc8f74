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

// SessionRepo implements domain.SessionRepository on PostgreSQL.
type SessionRepo struct{ Pool PgxPool }

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

// Create inserts a new session document.
func (r *SessionRepo) Create(ctx domain.Context, s domain.InterviewSession) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Create")
	defer span.End()

	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("op=session.create: %w", err)
	}
	q := `INSERT INTO sessions (id, user_id, route, status, doc, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := r.Pool.Exec(ctx, q, s.ID, s.UserID, s.Route, s.Status, doc, time.Now().UTC(), time.Now().UTC()); err != nil {
		return fmt.Errorf("op=session.create: %w", err)
	}
	return nil
}

// Get loads a session by id.
func (r *SessionRepo) Get(ctx domain.Context, id string) (domain.InterviewSession, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Get")
	defer span.End()

	var doc []byte
	row := r.Pool.QueryRow(ctx, `SELECT doc FROM sessions WHERE id=$1`, id)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InterviewSession{}, fmt.Errorf("op=session.get id=%s: %w", id, domain.ErrNotFound)
		}
		return domain.InterviewSession{}, fmt.Errorf("op=session.get: %w", err)
	}
	var s domain.InterviewSession
	if err := json.Unmarshal(doc, &s); err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=session.get: decode: %w", err)
	}
	return s, nil
}

// Update replaces the session document.
func (r *SessionRepo) Update(ctx domain.Context, s domain.InterviewSession) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Update")
	defer span.End()

	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("op=session.update: %w", err)
	}
	q := `UPDATE sessions SET status=$2, doc=$3, updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, s.ID, s.Status, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=session.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.update id=%s: %w", s.ID, domain.ErrNotFound)
	}
	return nil
}
