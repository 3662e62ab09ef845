package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cabinet_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveSessions tracks currently active sessions, labeled by
	// architecture (claude / opencode).
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cabinet_active_sessions",
			Help: "Number of active sessions",
		},
		[]string{"architecture"},
	)

	// ContainersRunning tracks running containers
	ContainersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cabinet_containers_running",
			Help: "Number of running containers",
		},
	)

	// SessionDuration tracks how long sessions run
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cabinet_session_duration_seconds",
			Help:    "Session duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"architecture", "status"},
	)

	// EventBufferDrops tracks dropped events due to buffer overflow
	EventBufferDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_event_buffer_drops_total",
			Help: "Total number of events dropped due to buffer overflow",
		},
		[]string{"session_id"},
	)

	// SessionsTotal tracks the total number of sessions tracked by the
	// Session Manager (any lifecycle state).
	SessionsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cabinet_sessions_total",
			Help: "Total number of sessions tracked by the session manager",
		},
	)

	// SandboxesActive tracks currently running sandboxes, labeled by
	// architecture (claude / opencode).
	SandboxesActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cabinet_sandboxes_active",
			Help: "Number of currently active sandboxes",
		},
		[]string{"architecture"},
	)

	// SandboxRestartsTotal counts health checks that found the sandbox
	// process gone. The sandbox is not recreated on that path.
	SandboxRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_sandbox_restarts_total",
			Help: "Total number of sandbox restarts after unexpected termination",
		},
		[]string{"architecture"},
	)

	// SyncRunsTotal counts periodic workspace/transcript reconciliation
	// passes per session.
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_sync_runs_total",
			Help: "Total number of periodic sync passes run",
		},
		[]string{"result"},
	)

	// WatcherEventsTotal counts filesystem watcher callbacks dispatched,
	// labeled by which watcher fired.
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_watcher_events_total",
			Help: "Total number of sandbox filesystem watcher events handled",
		},
		[]string{"watcher"},
	)

	// ToolCalls tracks MCP tool invocations
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinet_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/mcp", "/mcp/", "/metrics":
		return path
	default:
		if len(path) > 5 && path[:5] == "/mcp/" {
			return "/mcp"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionStart increments active session gauge
func RecordSessionStart(architecture string) {
	ActiveSessions.WithLabelValues(architecture).Inc()
}

// RecordSessionEnd decrements active session gauge and records duration
func RecordSessionEnd(architecture, status string, durationSeconds float64) {
	ActiveSessions.WithLabelValues(architecture).Dec()
	SessionDuration.WithLabelValues(architecture, status).Observe(durationSeconds)
}

// RecordToolCall records an MCP tool invocation
func RecordToolCall(tool, status string) {
	ToolCalls.WithLabelValues(tool, status).Inc()
}

// SetContainersRunning sets the running container count
func SetContainersRunning(count float64) {
	ContainersRunning.Set(count)
}

// SetSessionsTotal sets the total tracked session count
func SetSessionsTotal(count float64) {
	SessionsTotal.Set(count)
}

// RecordEventDrop records an event buffer drop
func RecordEventDrop(sessionID string) {
	EventBufferDrops.WithLabelValues(sessionID).Inc()
}

// IncSandboxesActive increments the active sandbox gauge for an
// architecture.
func IncSandboxesActive(architecture string) {
	SandboxesActive.WithLabelValues(architecture).Inc()
}

// DecSandboxesActive decrements the active sandbox gauge for an
// architecture.
func DecSandboxesActive(architecture string) {
	SandboxesActive.WithLabelValues(architecture).Dec()
}

// RecordSandboxRestart records a sandbox restart after unexpected
// termination.
func RecordSandboxRestart(architecture string) {
	SandboxRestartsTotal.WithLabelValues(architecture).Inc()
}

// RecordSyncRun records one periodic sync pass, tagged with its result
// ("ok" or "error").
func RecordSyncRun(result string) {
	SyncRunsTotal.WithLabelValues(result).Inc()
}

// RecordWatcherEvent records one dispatched watcher callback, tagged
// with which watcher fired ("workspace" or "transcript").
func RecordWatcherEvent(watcher string) {
	WatcherEventsTotal.WithLabelValues(watcher).Inc()
}
