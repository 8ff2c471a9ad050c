package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exlab-backend/internal/database"
	"github.com/stemsi/exlab-backend/internal/model"
)

// ErrAlreadySaved is returned when a run already stored a record for the
// session.
var ErrAlreadySaved = errors.New("record already saved for this session")

// AttemptRepository stores what participants produce: graded test answers,
// evaluation answers and popup reactions.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// CreateTestAnswer stores a graded attempt and its details atomically.
// A second attempt for the same run and session returns ErrAlreadySaved.
func (r *AttemptRepository) CreateTestAnswer(ctx context.Context, ta *model.TestAnswer) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO user_test_answer (run_id, user_id, session_id, total_time)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (run_id, session_id) DO NOTHING
			 RETURNING id, created_at`,
			ta.RunID, ta.UserID, ta.SessionID, ta.TotalTime,
		).Scan(&ta.ID, &ta.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlreadySaved
		}
		if err != nil {
			return fmt.Errorf("insert test answer: %w", err)
		}
		if len(ta.Details) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"user_test_answer_detail"},
			[]string{"user_test_answer_id", "question_id", "answer", "is_correct"},
			pgx.CopyFromSlice(len(ta.Details), func(i int) ([]any, error) {
				d := ta.Details[i]
				return []any{ta.ID, d.QuestionID, d.Answer, d.IsCorrect}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("insert test answer details: %w", err)
		}
		return nil
	})
}

// GetTestAnswer retrieves a stored attempt with its details.
func (r *AttemptRepository) GetTestAnswer(ctx context.Context, runID uuid.UUID, sessionID int) (*model.TestAnswer, error) {
	ta := &model.TestAnswer{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, run_id, user_id, session_id, total_time, created_at
		 FROM user_test_answer WHERE run_id = $1 AND session_id = $2`, runID, sessionID,
	).Scan(&ta.ID, &ta.RunID, &ta.UserID, &ta.SessionID, &ta.TotalTime, &ta.CreatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer, is_correct FROM user_test_answer_detail
		 WHERE user_test_answer_id = $1 ORDER BY id`, ta.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ta.Details = []model.TestAnswerDetail{}
	for rows.Next() {
		var d model.TestAnswerDetail
		if err := rows.Scan(&d.QuestionID, &d.Answer, &d.IsCorrect); err != nil {
			return nil, err
		}
		ta.Details = append(ta.Details, d)
	}
	return ta, rows.Err()
}

// ListResultsBySession retrieves every stored attempt of a session with
// its score, newest first.
func (r *AttemptRepository) ListResultsBySession(ctx context.Context, sessionID int) ([]model.TestAnswerSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ta.id, ta.run_id, ta.user_id, ta.session_id, ta.total_time, ta.created_at,
		        COUNT(d.id) FILTER (WHERE d.is_correct) AS correct,
		        COUNT(d.id) AS total
		 FROM user_test_answer ta
		 LEFT JOIN user_test_answer_detail d ON d.user_test_answer_id = ta.id
		 WHERE ta.session_id = $1
		 GROUP BY ta.id
		 ORDER BY ta.created_at DESC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.TestAnswerSummary{}
	for rows.Next() {
		var s model.TestAnswerSummary
		if err := rows.Scan(&s.ID, &s.RunID, &s.UserID, &s.SessionID, &s.TotalTime, &s.CreatedAt, &s.Correct, &s.Total); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// CreateEvaluationAnswer stores a break's evaluation and its selections
// atomically. A second save for the same run and session returns
// ErrAlreadySaved.
func (r *AttemptRepository) CreateEvaluationAnswer(ctx context.Context, ea *model.EvaluationAnswer) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO evaluation_answers (run_id, user_id, session_id, completion_type)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (run_id, session_id) DO NOTHING
			 RETURNING id, created_at`,
			ea.RunID, ea.UserID, ea.SessionID, ea.CompletionType,
		).Scan(&ea.ID, &ea.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlreadySaved
		}
		if err != nil {
			return fmt.Errorf("insert evaluation answer: %w", err)
		}
		if len(ea.Details) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"evaluation_answer_details"},
			[]string{"evaluation_answer_id", "evaluation_variable_id", "evaluation_suggested_answer_id"},
			pgx.CopyFromSlice(len(ea.Details), func(i int) ([]any, error) {
				return []any{ea.ID, ea.Details[i].VariableID, ea.Details[i].AnswerID}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("insert evaluation details: %w", err)
		}
		return nil
	})
}

// InsertReaction stores a single popup reaction.
func (r *AttemptRepository) InsertReaction(ctx context.Context, rec *model.PopupReactionRecord) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO popup_reactions (run_id, user_id, session_id, popup_id, reaction)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		rec.RunID, rec.UserID, rec.SessionID, rec.PopupID, string(rec.Reaction),
	).Scan(&rec.CreatedAt)
}

// InsertReactions bulk-inserts popup reactions with COPY.
func (r *AttemptRepository) InsertReactions(ctx context.Context, recs []model.PopupReactionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"popup_reactions"},
		[]string{"run_id", "user_id", "session_id", "popup_id", "reaction", "created_at"},
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			rec := recs[i]
			return []any{rec.RunID, rec.UserID, rec.SessionID, rec.PopupID, string(rec.Reaction), rec.CreatedAt}, nil
		}),
	)
	return err
}
