package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
)

const (
	metricsInterval = 7 * time.Second
	pingTimeout     = 2 * time.Second
)

// SystemHandler reports process health and streams runtime metrics via SSE.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	registry  *service.RuntimeRegistry
	clock     clockwork.Clock
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, registry *service.RuntimeRegistry, clock clockwork.Clock, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		registry:  registry,
		clock:     clock,
		startTime: clock.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Dependencies
	PostgresOK     bool    `json:"postgres_ok"`
	PostgresPingMs float64 `json:"postgres_ping_ms"`
	RedisOK        bool    `json:"redis_ok"`
	RedisPingMs    float64 `json:"redis_ping_ms"`
	DBConnsInUse   int32   `json:"db_conns_in_use"`
	DBConnsIdle    int32   `json:"db_conns_idle"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	StackInuse uint64 `json:"stack_inuse"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	// Timed sessions and breaks on this instance
	LiveRuntimes int `json:"live_runtimes"`

	// Worker Queues
	QueueReactions int64 `json:"queue_reactions"`
}

// Health godoc
// GET /healthz
// Pings Postgres and Redis.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	pgErr := h.pool.Ping(ctx)
	redisErr := h.rdb.Ping(ctx).Err()
	if pgErr != nil || redisErr != nil {
		h.log.Warn().AnErr("postgres", pgErr).AnErr("redis", redisErr).Msg("Health check failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// SystemMetricsSSE godoc
// GET /api/v1/admin/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to system metrics SSE")

	ticker := h.clock.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics SSE")
			return
		case <-ticker.Chan():
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	now := h.clock.Now()
	m := systemMetrics{
		Timestamp:    now.Unix(),
		Uptime:       formatDuration(now.Sub(h.startTime)),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		LiveRuntimes: h.registry.Len(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.StackInuse = ms.StackInuse
	m.NumGC = ms.NumGC

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	if err := h.pool.Ping(pingCtx); err == nil {
		m.PostgresOK = true
		m.PostgresPingMs = float64(time.Since(start).Microseconds()) / 1000
	}
	stat := h.pool.Stat()
	m.DBConnsInUse = stat.AcquiredConns()
	m.DBConnsIdle = stat.IdleConns()

	start = time.Now()
	if err := h.rdb.Ping(pingCtx).Err(); err == nil {
		m.RedisOK = true
		m.RedisPingMs = float64(time.Since(start).Microseconds()) / 1000
	}
	m.QueueReactions, _ = h.rdb.LLen(pingCtx, config.WorkerKey.PersistPopupReactionsQueue).Result()

	return m
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
