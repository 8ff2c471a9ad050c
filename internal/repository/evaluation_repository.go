package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exlab-backend/internal/database"
	"github.com/stemsi/exlab-backend/internal/model"
)

// EvaluationRepository handles evaluation forms: questions, their
// variables and the suggested answers of each variable.
type EvaluationRepository struct {
	pool *pgxpool.Pool
}

// NewEvaluationRepository creates a new EvaluationRepository.
func NewEvaluationRepository(pool *pgxpool.Pool) *EvaluationRepository {
	return &EvaluationRepository{pool: pool}
}

// List retrieves every evaluation question with its variables, newest first.
func (r *EvaluationRepository) List(ctx context.Context) ([]model.EvaluationQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, description, created_at FROM evaluation_questions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	questions := []model.EvaluationQuestion{}
	for rows.Next() {
		var q model.EvaluationQuestion
		if err := rows.Scan(&q.ID, &q.Description, &q.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range questions {
		if err := r.loadVariables(ctx, &questions[i]); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

// GetByID retrieves one evaluation question with its variables.
func (r *EvaluationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.EvaluationQuestion, error) {
	q := &model.EvaluationQuestion{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, description, created_at FROM evaluation_questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Description, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := r.loadVariables(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Latest retrieves the most recently created evaluation question, which is
// the one shown during breaks.
func (r *EvaluationRepository) Latest(ctx context.Context) (*model.EvaluationQuestion, error) {
	q := &model.EvaluationQuestion{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, description, created_at FROM evaluation_questions
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&q.ID, &q.Description, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := r.loadVariables(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *EvaluationRepository) loadVariables(ctx context.Context, q *model.EvaluationQuestion) error {
	return loadVariables(ctx, r.pool, q)
}

func loadVariables(ctx context.Context, db querier, q *model.EvaluationQuestion) error {
	rows, err := db.Query(ctx,
		`SELECT v.id, v.variable_name, a.id, a.answer_text, a.order_number
		 FROM evaluation_variables v
		 LEFT JOIN evaluation_suggested_answers a ON a.variable_id = v.id
		 WHERE v.question_id = $1
		 ORDER BY v.created_at, v.id, a.order_number, a.id`, q.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	q.Variables = []model.EvaluationVariable{}
	for rows.Next() {
		var (
			v      model.EvaluationVariable
			aID    pgtype.UUID
			aText  pgtype.Text
			aOrder pgtype.Int4
		)
		if err := rows.Scan(&v.ID, &v.VariableName, &aID, &aText, &aOrder); err != nil {
			return err
		}
		if n := len(q.Variables); n == 0 || q.Variables[n-1].ID != v.ID {
			v.QuestionID = q.ID
			v.SuggestedAnswers = []model.SuggestedAnswer{}
			q.Variables = append(q.Variables, v)
		}
		if !aID.Valid {
			continue
		}
		last := &q.Variables[len(q.Variables)-1]
		last.SuggestedAnswers = append(last.SuggestedAnswers, model.SuggestedAnswer{
			ID:          uuid.UUID(aID.Bytes),
			VariableID:  last.ID,
			AnswerText:  aText.String,
			OrderNumber: int(aOrder.Int32),
		})
	}
	return rows.Err()
}

// Create inserts a question with all its variables and answers in one
// transaction.
func (r *EvaluationRepository) Create(ctx context.Context, req *model.EvaluationRequest) (uuid.UUID, error) {
	var id uuid.UUID
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO evaluation_questions (description) VALUES ($1) RETURNING id`, req.Description,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert evaluation question: %w", err)
		}
		return insertVariables(ctx, tx, id, req.Variables)
	})
	return id, err
}

// Replace overwrites a question's description and syncs its variables and
// answers with the request in one transaction. Variables are matched by
// name and answers by text, so rows that survive the edit keep the ids
// stored evaluation answers point at.
func (r *EvaluationRepository) Replace(ctx context.Context, id uuid.UUID, req *model.EvaluationRequest) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE evaluation_questions SET description = $2 WHERE id = $1`, id, req.Description)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}

		current := &model.EvaluationQuestion{ID: id}
		if err := loadVariables(ctx, tx, current); err != nil {
			return fmt.Errorf("load variables: %w", err)
		}
		plan := planVariableSync(current.Variables, req.Variables)

		if len(plan.remove) > 0 {
			if _, err := tx.Exec(ctx,
				`DELETE FROM evaluation_variables WHERE id = ANY($1)`, plan.remove); err != nil {
				return fmt.Errorf("delete removed variables: %w", err)
			}
		}
		for _, u := range plan.update {
			if err := syncAnswers(ctx, tx, u); err != nil {
				return fmt.Errorf("sync answers of %q: %w", u.name, err)
			}
		}
		return insertVariables(ctx, tx, id, plan.insert)
	})
}

func syncAnswers(ctx context.Context, tx pgx.Tx, u variableUpdate) error {
	if len(u.removeAnswers) > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM evaluation_suggested_answers WHERE id = ANY($1)`, u.removeAnswers); err != nil {
			return err
		}
	}
	if len(u.reorder) > 0 {
		batch := &pgx.Batch{}
		for _, a := range u.reorder {
			batch.Queue(`UPDATE evaluation_suggested_answers SET order_number = $2 WHERE id = $1`, a.id, a.order)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return insertAnswers(ctx, tx, u.id, u.insertAnswers)
}

// variableSync is the set of writes that turns stored variables into the
// requested ones.
type variableSync struct {
	update []variableUpdate
	insert []model.EvaluationVariableInput
	remove []uuid.UUID
}

type variableUpdate struct {
	id            uuid.UUID
	name          string
	reorder       []answerOrder
	insertAnswers []model.SuggestedAnswerInput
	removeAnswers []uuid.UUID
}

type answerOrder struct {
	id    uuid.UUID
	order int
}

func planVariableSync(current []model.EvaluationVariable, want []model.EvaluationVariableInput) variableSync {
	var plan variableSync
	used := make(map[uuid.UUID]bool, len(current))

	for _, w := range want {
		var match *model.EvaluationVariable
		for i := range current {
			if !used[current[i].ID] && current[i].VariableName == w.VariableName {
				match = &current[i]
				break
			}
		}
		if match == nil {
			plan.insert = append(plan.insert, w)
			continue
		}
		used[match.ID] = true
		plan.update = append(plan.update, planAnswerSync(*match, w))
	}

	for _, v := range current {
		if !used[v.ID] {
			plan.remove = append(plan.remove, v.ID)
		}
	}
	return plan
}

func planAnswerSync(current model.EvaluationVariable, want model.EvaluationVariableInput) variableUpdate {
	u := variableUpdate{id: current.ID, name: current.VariableName}
	used := make(map[uuid.UUID]bool, len(current.SuggestedAnswers))

	for _, w := range want.Answers {
		var match *model.SuggestedAnswer
		for i := range current.SuggestedAnswers {
			a := &current.SuggestedAnswers[i]
			if !used[a.ID] && a.AnswerText == w.AnswerText {
				match = a
				break
			}
		}
		if match == nil {
			u.insertAnswers = append(u.insertAnswers, w)
			continue
		}
		used[match.ID] = true
		if match.OrderNumber != w.OrderNumber {
			u.reorder = append(u.reorder, answerOrder{id: match.ID, order: w.OrderNumber})
		}
	}

	for _, a := range current.SuggestedAnswers {
		if !used[a.ID] {
			u.removeAnswers = append(u.removeAnswers, a.ID)
		}
	}
	return u
}

func insertVariables(ctx context.Context, tx pgx.Tx, questionID uuid.UUID, vars []model.EvaluationVariableInput) error {
	for _, v := range vars {
		var varID uuid.UUID
		// clock_timestamp keeps variables ordered by insertion within one tx.
		if err := tx.QueryRow(ctx,
			`INSERT INTO evaluation_variables (question_id, variable_name, created_at)
			 VALUES ($1, $2, clock_timestamp()) RETURNING id`,
			questionID, v.VariableName,
		).Scan(&varID); err != nil {
			return fmt.Errorf("insert variable %q: %w", v.VariableName, err)
		}
		if err := insertAnswers(ctx, tx, varID, v.Answers); err != nil {
			return fmt.Errorf("insert answers of %q: %w", v.VariableName, err)
		}
	}
	return nil
}

func insertAnswers(ctx context.Context, tx pgx.Tx, variableID uuid.UUID, answers []model.SuggestedAnswerInput) error {
	if len(answers) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"evaluation_suggested_answers"},
		[]string{"variable_id", "answer_text", "order_number"},
		pgx.CopyFromSlice(len(answers), func(i int) ([]any, error) {
			return []any{variableID, answers[i].AnswerText, answers[i].OrderNumber}, nil
		}),
	)
	return err
}

// Delete removes a question. Variables and answers cascade.
func (r *EvaluationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM evaluation_questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
