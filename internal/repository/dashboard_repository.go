package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DashboardRepository handles admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// DashboardCounts are the headline numbers of the admin dashboard.
type DashboardCounts struct {
	Sessions        int `json:"sessions"`
	Questions       int `json:"questions"`
	QuestionSets    int `json:"question_sets"`
	Runs            int `json:"runs"`
	Evaluations     int `json:"evaluations"`
	CompletedBreaks int `json:"completed_breaks"`
}

// GetSummaryCounts retrieves the high-level metrics for the dashboard.
func (r *DashboardRepository) GetSummaryCounts(ctx context.Context) (*DashboardCounts, error) {
	var c DashboardCounts
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM questions),
			(SELECT COUNT(*) FROM questions_sets),
			(SELECT COUNT(DISTINCT run_id) FROM user_test_answer),
			(SELECT COUNT(*) FROM evaluation_questions),
			(SELECT COUNT(*) FROM evaluation_answers)`,
	).Scan(&c.Sessions, &c.Questions, &c.QuestionSets, &c.Runs, &c.Evaluations, &c.CompletedBreaks)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DashboardSessionStats aggregates the submitted attempts of one session.
type DashboardSessionStats struct {
	SessionID      int     `json:"session_id"`
	Name           string  `json:"name"`
	Attempts       int     `json:"attempts"`
	AvgCorrectRate float64 `json:"avg_correct_rate"`
	AvgTotalTime   float64 `json:"avg_total_time"`
	ReactionsYes   int     `json:"reactions_yes"`
	ReactionsNo    int     `json:"reactions_no"`
	NoAnswer       int     `json:"reactions_no_answer"`
	TimeoutBreaks  int     `json:"timeout_breaks"`
}

// GetSessionStats returns per-session aggregates, ordered by session id.
func (r *DashboardRepository) GetSessionStats(ctx context.Context) ([]DashboardSessionStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name,
			COALESCE(a.attempts, 0), COALESCE(a.avg_rate, 0), COALESCE(a.avg_time, 0),
			COALESCE(p.yes, 0), COALESCE(p.no, 0), COALESCE(p.no_answer, 0),
			COALESCE(e.timeouts, 0)
		 FROM sessions s
		 LEFT JOIN (
			SELECT uta.session_id,
				COUNT(*) AS attempts,
				AVG(d.rate) AS avg_rate,
				AVG(uta.total_time) AS avg_time
			FROM user_test_answer uta
			LEFT JOIN LATERAL (
				SELECT AVG(CASE WHEN is_correct THEN 1.0 ELSE 0.0 END) AS rate
				FROM user_test_answer_detail
				WHERE user_test_answer_id = uta.id
			) d ON TRUE
			GROUP BY uta.session_id
		 ) a ON a.session_id = s.id
		 LEFT JOIN (
			SELECT session_id,
				COUNT(*) FILTER (WHERE reaction = 'yes') AS yes,
				COUNT(*) FILTER (WHERE reaction = 'no') AS no,
				COUNT(*) FILTER (WHERE reaction = 'no_answer') AS no_answer
			FROM popup_reactions
			GROUP BY session_id
		 ) p ON p.session_id = s.id
		 LEFT JOIN (
			SELECT session_id, COUNT(*) FILTER (WHERE completion_type = 'timeout') AS timeouts
			FROM evaluation_answers
			GROUP BY session_id
		 ) e ON e.session_id = s.id
		 ORDER BY s.id`,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DashboardSessionStats, error) {
		var st DashboardSessionStats
		err := row.Scan(&st.SessionID, &st.Name,
			&st.Attempts, &st.AvgCorrectRate, &st.AvgTotalTime,
			&st.ReactionsYes, &st.ReactionsNo, &st.NoAnswer,
			&st.TimeoutBreaks)
		return st, err
	})
}
