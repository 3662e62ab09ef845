// Package mcp implements Cabinet's MCP transport: a streamable-HTTP MCP
// server exposing the Session Manager's operations as tools, grounded on
// the teacher's internal/mcp/server.go wiring (auth -> rate limit ->
// metrics middleware chain, health/ready/metrics endpoints) but
// retargeted from project/workspace-scoped tools to spec.md §4.5's flat
// session model.
package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/cabinetrun/cabinet/internal/auth"
	"github.com/cabinetrun/cabinet/internal/logger"
	"github.com/cabinetrun/cabinet/internal/metrics"
	"github.com/cabinetrun/cabinet/internal/session"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// generateRequestID creates a unique request identifier.
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Server wraps the MCP SDK server with Cabinet's Session Manager and
// auth store.
type Server struct {
	sessionMgr *session.Manager
	authStore  *auth.Store
	mcpServer  *mcp_sdk.Server
}

// NewServer constructs a Server and registers every tool.
func NewServer(sessionMgr *session.Manager, authStore *auth.Store) *Server {
	s := &Server{
		sessionMgr: sessionMgr,
		authStore:  authStore,
	}

	s.mcpServer = mcp_sdk.NewServer(&mcp_sdk.Implementation{
		Name:    "cabinet",
		Version: "0.1.0",
	}, &mcp_sdk.ServerOptions{HasTools: true})

	mcp_sdk.AddTool(s.mcpServer, &mcp_sdk.Tool{
		Name:        "session_create",
		Description: "Create a new Agent Session for a given architecture (claude or opencode), optionally materializing a stored profile.",
	}, s.handleSessionCreate)
	mcp_sdk.AddTool(s.mcpServer, &mcp_sdk.Tool{
		Name:        "session_load",
		Description: "Load a previously-created session back into memory, reconstructing its conversation state from persistence.",
	}, s.handleSessionLoad)
	mcp_sdk.AddTool(s.mcpServer, &mcp_sdk.Tool{
		Name:        "session_get",
		Description: "Fetch the full record and conversation snapshot for a live session.",
	}, s.handleSessionGet)
	mcp_sdk.AddTool(s.mcpServer, &mcp_sdk.Tool{
		Name:        "session_list",
		Description: "List every session record tracked by the session manager, active or not.",
	}, s.handleSessionList)
	mcp_sdk.AddTool(s.mcpServer, &mcp_sdk.Tool{
		Name:        "session_destroy",
		Description: "Tear down a session: stop its sandbox and remove it from the live registry.",
	}, s.handleSessionDestroy)
	mcp_sdk.AddTool(s.mcpServer, &mcp_sdk.Tool{
		Name:        "session_send_message",
		Description: "Send a user message to a session's agent, activating its sandbox if needed, and return the updated conversation snapshot.",
	}, s.handleSessionSendMessage)

	mcp_sdk.AddTool(s.mcpServer, &mcp_sdk.Tool{
		Name:        "token_create",
		Description: "Mint a new API token scoped to admin, admin:ro, or a single session.",
	}, s.handleTokenCreate)
	mcp_sdk.AddTool(s.mcpServer, &mcp_sdk.Tool{
		Name:        "token_list",
		Description: "List all issued API tokens (admin only).",
	}, s.handleTokenList)
	mcp_sdk.AddTool(s.mcpServer, &mcp_sdk.Tool{
		Name:        "token_revoke",
		Description: "Revoke an API token by id (admin only).",
	}, s.handleTokenRevoke)

	return s
}

// Close releases server-held resources. The session manager and auth
// store outlive the transport and are closed separately by the caller.
func (s *Server) Close() {}

// Serve starts the MCP HTTP server, blocking until it exits.
func (s *Server) Serve(addr string) error {
	mcpHandler := mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
		return s.mcpServer
	}, &mcp_sdk.StreamableHTTPOptions{
		EventStore: mcp_sdk.NewMemoryEventStore(nil),
	})

	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		ctx = WithRemoteAddr(ctx, r.RemoteAddr)
		r = r.WithContext(ctx)

		logger.Info("HTTP %s %s from %s [request_id=%s]", r.Method, r.URL.Path, r.RemoteAddr, requestID)
		mcpHandler.ServeHTTP(w, r)
	})

	authedHandler := auth.Middleware(s.authStore)(loggingHandler)

	rateLimiter := auth.DefaultRateLimiter()
	rateLimitedHandler := auth.RateLimitMiddleware(rateLimiter)(authedHandler)

	mainMux := http.NewServeMux()

	mainMux.HandleFunc("/health", s.handleHealthCheck)
	mainMux.HandleFunc("/ready", s.handleReadinessCheck)
	mainMux.Handle("/metrics", metrics.Handler())

	mainMux.Handle("/mcp", metrics.Middleware(rateLimitedHandler))
	mainMux.Handle("/mcp/", metrics.Middleware(rateLimitedHandler))

	logger.Info("🚀 Cabinet MCP server listening on %s", addr)
	logger.Info("💚 Health check: http://localhost%s/health", addr)
	logger.Info("💚 Readiness check: http://localhost%s/ready", addr)
	logger.Info("📊 Metrics: http://localhost%s/metrics", addr)
	return http.ListenAndServe(addr, mainMux)
}

// handleHealthCheck is a basic liveness check.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck verifies the server can serve requests.
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
