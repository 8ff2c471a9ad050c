package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exlab-backend/internal/model"
)

// SessionRepository handles session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// List retrieves all sessions ordered by id.
func (r *SessionRepository) List(ctx context.Context) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, duration_minutes, evaluation_minutes, created_at
		 FROM sessions ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.EvaluationMinutes, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetByID retrieves a session without its popups or sets.
func (r *SessionRepository) GetByID(ctx context.Context, id int) (*model.Session, error) {
	s := &model.Session{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, duration_minutes, evaluation_minutes, created_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.EvaluationMinutes, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new session. A non-zero ID is kept so fixtures can pin
// the ids the participant flow is configured with.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	if s.ID > 0 {
		return r.pool.QueryRow(ctx,
			`INSERT INTO sessions (id, name, description, duration_minutes, evaluation_minutes)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at`,
			s.ID, s.Name, s.Description, s.DurationMinutes, s.EvaluationMinutes,
		).Scan(&s.CreatedAt)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO sessions (name, description, duration_minutes, evaluation_minutes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		s.Name, s.Description, s.DurationMinutes, s.EvaluationMinutes,
	).Scan(&s.ID, &s.CreatedAt)
}

// SyncIDSequence moves the id sequence past explicitly inserted ids.
func (r *SessionRepository) SyncIDSequence(ctx context.Context) error {
	_, err := r.pool.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('sessions', 'id'), GREATEST((SELECT MAX(id) FROM sessions), 1))`)
	return err
}

// Update patches a session and returns the stored row.
func (r *SessionRepository) Update(ctx context.Context, id int, req *model.UpdateSessionRequest) (*model.Session, error) {
	s := &model.Session{}
	err := r.pool.QueryRow(ctx,
		`UPDATE sessions SET
		   name = COALESCE($2, name),
		   description = COALESCE($3, description),
		   duration_minutes = COALESCE($4, duration_minutes),
		   evaluation_minutes = COALESCE($5, evaluation_minutes)
		 WHERE id = $1
		 RETURNING id, name, description, duration_minutes, evaluation_minutes, created_at`,
		id, req.Name, req.Description, req.DurationMinutes, req.EvaluationMinutes,
	).Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.EvaluationMinutes, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Delete removes a session. Popups and set links cascade.
func (r *SessionRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
