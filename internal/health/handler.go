package health

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"tradecore/internal/httputil"
	"tradecore/internal/storage"
)

const dbPingTimeout = time.Second

type Handler struct {
	db        storage.DB
	startedAt time.Time
}

func NewHandler(db storage.DB, startedAt time.Time) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{db: db, startedAt: start}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type readinessResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	UptimeSec int64   `json:"uptime_sec"`
	Uptime    string  `json:"uptime"`
	Storage   dbStats `json:"storage"`
	Runtime   rtStats `json:"runtime"`
}

type dbStats struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checked_at"`
}

type rtStats struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	PID        int    `json:"pid"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func (h *Handler) collectDB(ctx context.Context) dbStats {
	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	start := time.Now()
	err := h.db.Ping(pingCtx)
	out := dbStats{
		Reachable: err == nil,
		PingMs:    time.Since(start).Milliseconds(),
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// Live does not touch storage; it only proves the process is serving.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	})
}

// Ready checks storage reachability and returns 503 when it is down.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.collectDB(r.Context())
	status := "ok"
	httpStatus := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, httpStatus, readinessResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		Storage:   db,
		Runtime: rtStats{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			PID:        os.Getpid(),
		},
	})
}
