// Package audit appends compliance records for every financial action.
// Recording is best-effort: failures are logged, never propagated.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgyard/backend/internal/models"
)

type Entry struct {
	ID          uuid.UUID       `json:"id"`
	JobID       *uuid.UUID      `json:"job_id,omitempty"`
	UserID      uuid.UUID       `json:"user_id"`
	Role        models.Role     `json:"role"`
	Action      string          `json:"action"`
	Description string          `json:"description"`
	AmountPaise int64           `json:"amount_paise"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Service struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{pool: pool, log: log}
}

func (s *Service) Record(ctx context.Context, jobID *uuid.UUID, userID uuid.UUID, role models.Role, action, description string, amountPaise int64, metadata map[string]any) {
	var meta []byte
	if metadata != nil {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			s.log.Error("encoding audit metadata failed", "action", action, "error", err)
			meta = nil
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, job_id, user_id, role, action, description, amount_paise, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), jobID, userID, role, action, description, amountPaise, meta)
	if err != nil {
		s.log.Error("writing audit log failed", "action", action, "user_id", userID, "error", err)
	}
}

func (s *Service) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, user_id, role, action, description, amount_paise, metadata, created_at
		FROM audit_logs WHERE job_id = $1
		ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.JobID, &e.UserID, &e.Role, &e.Action, &e.Description, &e.AmountPaise, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
