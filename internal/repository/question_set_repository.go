package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exlab-backend/internal/database"
	"github.com/stemsi/exlab-backend/internal/model"
)

// QuestionSetRepository handles question sets and their links to sessions
// and questions.
type QuestionSetRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionSetRepository creates a new QuestionSetRepository.
func NewQuestionSetRepository(pool *pgxpool.Pool) *QuestionSetRepository {
	return &QuestionSetRepository{pool: pool}
}

// ListBySession retrieves the sets linked to a session with their
// questions, in link order.
func (r *QuestionSetRepository) ListBySession(ctx context.Context, sessionID int) ([]model.QuestionSet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT qs.id, qs.set_name, qs.image, qs.created_at,
		        q.id, q.question, q.choices, q.correct_answer, q.created_at
		 FROM session_set_links ssl
		 JOIN questions_sets qs ON qs.id = ssl.set_id
		 LEFT JOIN questions_set_links qsl ON qsl.set_id = qs.id
		 LEFT JOIN questions q ON q.id = qsl.question_id
		 WHERE ssl.session_id = $1
		 ORDER BY ssl.position, ssl.created_at, qs.id, qsl.position, qsl.created_at`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sets := []model.QuestionSet{}
	for rows.Next() {
		var (
			set      model.QuestionSet
			qID      pgtype.UUID
			qText    pgtype.Text
			qChoices []byte
			qAnswer  pgtype.Text
			qCreated pgtype.Timestamptz
		)
		if err := rows.Scan(&set.ID, &set.SetName, &set.Image, &set.CreatedAt,
			&qID, &qText, &qChoices, &qAnswer, &qCreated); err != nil {
			return nil, err
		}
		if n := len(sets); n == 0 || sets[n-1].ID != set.ID {
			set.Questions = []model.Question{}
			sets = append(sets, set)
		}
		if !qID.Valid {
			continue
		}
		q := model.Question{
			ID:            uuid.UUID(qID.Bytes),
			Question:      qText.String,
			CorrectAnswer: qAnswer.String,
			CreatedAt:     qCreated.Time,
		}
		if len(qChoices) > 0 {
			if err := json.Unmarshal(qChoices, &q.Choices); err != nil {
				return nil, fmt.Errorf("decode choices of %s: %w", q.ID, err)
			}
		}
		last := &sets[len(sets)-1]
		last.Questions = append(last.Questions, q)
	}
	return sets, rows.Err()
}

// GetByID retrieves a set without its questions.
func (r *QuestionSetRepository) GetByID(ctx context.Context, id int) (*model.QuestionSet, error) {
	s := &model.QuestionSet{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, set_name, image, created_at FROM questions_sets WHERE id = $1`, id,
	).Scan(&s.ID, &s.SetName, &s.Image, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateForSession inserts a set and links it after the session's existing
// sets in one transaction.
func (r *QuestionSetRepository) CreateForSession(ctx context.Context, sessionID int, s *model.QuestionSet) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO questions_sets (set_name, image)
			 VALUES ($1, $2)
			 RETURNING id, created_at`,
			s.SetName, s.Image,
		).Scan(&s.ID, &s.CreatedAt); err != nil {
			return fmt.Errorf("insert set: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_set_links (session_id, set_id, position)
			 VALUES ($1, $2, (SELECT COALESCE(MAX(position), 0) + 1 FROM session_set_links WHERE session_id = $1))`,
			sessionID, s.ID,
		); err != nil {
			return fmt.Errorf("link set: %w", err)
		}
		return nil
	})
}

// Rename changes a set's name.
func (r *QuestionSetRepository) Rename(ctx context.Context, id int, name string) (*model.QuestionSet, error) {
	s := &model.QuestionSet{}
	err := r.pool.QueryRow(ctx,
		`UPDATE questions_sets SET set_name = $2 WHERE id = $1
		 RETURNING id, set_name, image, created_at`, id, name,
	).Scan(&s.ID, &s.SetName, &s.Image, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ReplaceImage stores a new image URL and returns the previous one.
func (r *QuestionSetRepository) ReplaceImage(ctx context.Context, id int, image *string) (old *string, err error) {
	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT image FROM questions_sets WHERE id = $1 FOR UPDATE`, id,
		).Scan(&old); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE questions_sets SET image = $2 WHERE id = $1`, id, image)
		return err
	})
	return old, err
}

// UnlinkFromSession removes a set from a session. A set left without any
// session is deleted, and its image URL is returned so the file can go too.
func (r *QuestionSetRepository) UnlinkFromSession(ctx context.Context, sessionID, setID int) (deleted bool, image *string, err error) {
	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM session_set_links WHERE session_id = $1 AND set_id = $2`, sessionID, setID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		err = tx.QueryRow(ctx,
			`DELETE FROM questions_sets
			 WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM session_set_links WHERE set_id = $1)
			 RETURNING image`, setID,
		).Scan(&image)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil
		case err != nil:
			return err
		}
		deleted = true
		return nil
	})
	return deleted, image, err
}

// LinkQuestion appends a question to a set. Linking twice is a no-op.
func (r *QuestionSetRepository) LinkQuestion(ctx context.Context, setID int, questionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO questions_set_links (set_id, question_id, position)
		 VALUES ($1, $2, (SELECT COALESCE(MAX(position), 0) + 1 FROM questions_set_links WHERE set_id = $1))
		 ON CONFLICT (set_id, question_id) DO NOTHING`,
		setID, questionID,
	)
	return err
}

// UnlinkQuestion removes a question from a set.
func (r *QuestionSetRepository) UnlinkQuestion(ctx context.Context, setID int, questionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM questions_set_links WHERE set_id = $1 AND question_id = $2`, setID, questionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
