package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the system health. Redis is optional: when no
// cache is configured its state does not affect the overall status.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled    bool
	RedisConnected  bool
	SQLiteEnabled   bool
	SQLiteOK        bool
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastScanAt      time.Time
	LastScanSignals int
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = v
	h.mu.Unlock()
}

// SetLastScan records the completion time and signal count of a scan.
func (h *HealthStatus) SetLastScan(t time.Time, signals int) {
	h.mu.Lock()
	h.LastScanAt = t
	h.LastScanSignals = signals
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either dependency
// may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	check()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if redisDown || sqliteDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if redisDown && sqliteDown {
		overallStatus = "unhealthy"
	}

	lastScan := ""
	if !h.LastScanAt.IsZero() {
		lastScan = h.LastScanAt.Format(time.RFC3339)
	}
	lastCheck := ""
	if !h.LastCheckAt.IsZero() {
		lastCheck = h.LastCheckAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteEnabled   bool    `json:"sqlite_enabled"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastScanAt      string  `json:"last_scan_at,omitempty"`
		LastScanSignals int     `json:"last_scan_signals"`
		LastCheckAt     string  `json:"last_check_at,omitempty"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastScanAt:      lastScan,
		LastScanSignals: h.LastScanSignals,
		LastCheckAt:     lastCheck,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
