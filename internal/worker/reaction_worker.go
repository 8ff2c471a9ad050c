package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ReactionSink is where queued reactions end up.
type ReactionSink interface {
	InsertReactions(ctx context.Context, recs []model.PopupReactionRecord) error
	InsertReaction(ctx context.Context, rec *model.PopupReactionRecord) error
}

type reactionPayload struct {
	RunID     string `json:"run_id"`
	UserID    string `json:"user_id"`
	SessionID int    `json:"session_id"`
	PopupID   int    `json:"popup_id"`
	Reaction  string `json:"reaction"`
	Timestamp int64  `json:"timestamp"`
}

func (p *reactionPayload) record() (model.PopupReactionRecord, error) {
	runID, err := uuid.Parse(p.RunID)
	if err != nil {
		return model.PopupReactionRecord{}, err
	}
	return model.PopupReactionRecord{
		RunID:     runID,
		UserID:    p.UserID,
		SessionID: p.SessionID,
		PopupID:   p.PopupID,
		Reaction:  model.PopupReaction(p.Reaction),
		CreatedAt: time.Unix(p.Timestamp, 0).UTC(),
	}, nil
}

// ReactionQueue pushes popup reactions for asynchronous persistence.
type ReactionQueue struct {
	rdb *redis.Client
}

// NewReactionQueue creates a ReactionQueue.
func NewReactionQueue(rdb *redis.Client) *ReactionQueue {
	return &ReactionQueue{rdb: rdb}
}

// Enqueue appends records to the persist queue in one round trip.
func (q *ReactionQueue) Enqueue(ctx context.Context, recs ...model.PopupReactionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pushPayloads(ctx, q.rdb, toPayloads(recs))
}

func toPayloads(recs []model.PopupReactionRecord) []*reactionPayload {
	out := make([]*reactionPayload, len(recs))
	for i, r := range recs {
		ts := r.CreatedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		out[i] = &reactionPayload{
			RunID:     r.RunID.String(),
			UserID:    r.UserID,
			SessionID: r.SessionID,
			PopupID:   r.PopupID,
			Reaction:  string(r.Reaction),
			Timestamp: ts.Unix(),
		}
	}
	return out
}

func pushPayloads(ctx context.Context, rdb *redis.Client, items []*reactionPayload) error {
	pipe := rdb.Pipeline()
	for _, p := range items {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, config.WorkerKey.PersistPopupReactionsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ReactionWorker drains the popup reaction queue into the database in
// batches. A failed batch is retried row by row and rows that still fail
// go back on the queue.
type ReactionWorker struct {
	sink  ReactionSink
	rdb   *redis.Client
	clock clockwork.Clock
	log   zerolog.Logger

	batchSize      int
	batchTimeout   time.Duration
	requeueBackoff time.Duration
}

// NewReactionWorker creates a new ReactionWorker.
func NewReactionWorker(sink ReactionSink, rdb *redis.Client, clock clockwork.Clock, log zerolog.Logger) *ReactionWorker {
	return &ReactionWorker{
		sink:           sink,
		rdb:            rdb,
		clock:          clock,
		log:            log.With().Str("component", "reaction_worker").Logger(),
		batchSize:      BatchSize,
		batchTimeout:   BatchTimeout,
		requeueBackoff: 2 * time.Second,
	}
}

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *ReactionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]*reactionPayload, 0, w.batchSize)
	lastFlush := w.clock.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || w.clock.Since(lastFlush) >= w.batchTimeout) {
			w.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = w.clock.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistPopupReactionsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			w.sleep(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var payload reactionPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed payload")
			continue
		}
		buffer = append(buffer, &payload)
	}
}

// flush tries a bulk insert, then row by row, then requeues the rest.
func (w *ReactionWorker) flush(ctx context.Context, batch []*reactionPayload) {
	recs := make([]model.PopupReactionRecord, 0, len(batch))
	valid := make([]*reactionPayload, 0, len(batch))
	for _, p := range batch {
		rec, err := p.record()
		if err != nil {
			w.log.Error().Str("run_id", p.RunID).Msg("Dropping reaction with invalid run id")
			continue
		}
		recs = append(recs, rec)
		valid = append(valid, p)
	}
	if len(recs) == 0 {
		return
	}

	err := w.sink.InsertReactions(ctx, recs)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Int("count", len(recs)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var requeue []*reactionPayload
	for i := range recs {
		if err := w.sink.InsertReaction(ctx, &recs[i]); err != nil {
			w.log.Error().Err(err).
				Str("run_id", valid[i].RunID).
				Int("popup_id", valid[i].PopupID).
				Msg("Insert failed, requeueing")
			requeue = append(requeue, valid[i])
		}
	}
	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ReactionWorker) requeue(ctx context.Context, items []*reactionPayload) {
	if err := pushPayloads(ctx, w.rdb, items); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue reactions. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed reactions")
	w.sleep(ctx, w.requeueBackoff)
}

func (w *ReactionWorker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-w.clock.After(d):
	}
}

func (w *ReactionWorker) shutdown(buffer []*reactionPayload) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if len(buffer) > 0 {
		w.flush(ctx, buffer)
	}
	w.log.Info().Msg("Worker stopped")
}
