package service

import (
	"context"

	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/repository"
	"golang.org/x/sync/errgroup"
)

// DashboardData consolidates all metrics for the admin dashboard.
type DashboardData struct {
	Counts   *repository.DashboardCounts        `json:"counts"`
	Sessions []repository.DashboardSessionStats `json:"sessions"`
	// LiveRuntimes is the number of sessions and breaks currently being
	// timed by this instance.
	LiveRuntimes int `json:"live_runtimes"`
}

// SessionResults lists the stored attempts of one session.
type SessionResults struct {
	SessionID int                       `json:"session_id"`
	Results   []model.TestAnswerSummary `json:"results"`
}

// DashboardRepo is the data access the dashboard reads from.
type DashboardRepo interface {
	GetSummaryCounts(ctx context.Context) (*repository.DashboardCounts, error)
	GetSessionStats(ctx context.Context) ([]repository.DashboardSessionStats, error)
}

// ResultLister lists stored attempts of a session.
type ResultLister interface {
	ListResultsBySession(ctx context.Context, sessionID int) ([]model.TestAnswerSummary, error)
}

// DashboardService handles admin dashboard business logic.
type DashboardService struct {
	repo     DashboardRepo
	results  ResultLister
	sessions SessionFinder
	registry *RuntimeRegistry
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo DashboardRepo, results ResultLister, sessions SessionFinder, registry *RuntimeRegistry) *DashboardService {
	return &DashboardService{repo: repo, results: results, sessions: sessions, registry: registry}
}

// GetDashboardData fetches the summary counts and the per-session stats
// concurrently.
func (s *DashboardService) GetDashboardData(ctx context.Context) (*DashboardData, error) {
	data := &DashboardData{LiveRuntimes: s.registry.Len()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.GetSummaryCounts(gctx)
		data.Counts = counts
		return err
	})
	g.Go(func() error {
		stats, err := s.repo.GetSessionStats(gctx)
		data.Sessions = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if data.Sessions == nil {
		data.Sessions = []repository.DashboardSessionStats{}
	}
	return data, nil
}

// Results lists the stored attempts of a session, newest first. It
// returns pgx.ErrNoRows when the session does not exist.
func (s *DashboardService) Results(ctx context.Context, sessionID int) (*SessionResults, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.results.ListResultsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.TestAnswerSummary{}
	}
	return &SessionResults{SessionID: sessionID, Results: rows}, nil
}
