package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exlab-backend/internal/model"
)

const popupColumns = `id, session_id, name, description, start_time, duration, created_at`

// PopupRepository handles popup data access.
type PopupRepository struct {
	pool *pgxpool.Pool
}

// NewPopupRepository creates a new PopupRepository.
func NewPopupRepository(pool *pgxpool.Pool) *PopupRepository {
	return &PopupRepository{pool: pool}
}

func scanPopup(row pgx.Row, p *model.Popup) error {
	return row.Scan(&p.ID, &p.SessionID, &p.Name, &p.Description, &p.StartTime, &p.Duration, &p.CreatedAt)
}

// ListBySession retrieves the popups of a session ordered by start time.
func (r *PopupRepository) ListBySession(ctx context.Context, sessionID int) ([]model.Popup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+popupColumns+` FROM popups
		 WHERE session_id = $1
		 ORDER BY start_time, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	popups := []model.Popup{}
	for rows.Next() {
		var p model.Popup
		if err := scanPopup(rows, &p); err != nil {
			return nil, err
		}
		popups = append(popups, p)
	}
	return popups, rows.Err()
}

// GetByID retrieves a single popup.
func (r *PopupRepository) GetByID(ctx context.Context, id int) (*model.Popup, error) {
	p := &model.Popup{}
	err := scanPopup(r.pool.QueryRow(ctx,
		`SELECT `+popupColumns+` FROM popups WHERE id = $1`, id,
	), p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a new popup.
func (r *PopupRepository) Create(ctx context.Context, p *model.Popup) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO popups (session_id, name, description, start_time, duration)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		p.SessionID, p.Name, p.Description, p.StartTime, p.Duration,
	).Scan(&p.ID, &p.CreatedAt)
}

// Update patches a popup and returns the stored row.
func (r *PopupRepository) Update(ctx context.Context, id int, req *model.UpdatePopupRequest) (*model.Popup, error) {
	p := &model.Popup{}
	err := scanPopup(r.pool.QueryRow(ctx,
		`UPDATE popups SET
		   name = COALESCE($2, name),
		   description = COALESCE($3, description),
		   start_time = COALESCE($4, start_time),
		   duration = COALESCE($5, duration)
		 WHERE id = $1
		 RETURNING `+popupColumns,
		id, req.Name, req.Description, req.StartTime, req.Duration,
	), p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a popup.
func (r *PopupRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM popups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
