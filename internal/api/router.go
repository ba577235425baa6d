// Package api exposes the HTTP surface: plugin endpoints for the proxy-side
// plugin, admin endpoints for operators, and a WebSocket audit stream.
package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/openredstone/linkore/internal/auth"
	"github.com/openredstone/linkore/internal/domain"
	"github.com/openredstone/linkore/internal/linking"
	"github.com/openredstone/linkore/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux         *http.ServeMux
	store       *storage.Store
	linking     *linking.Service
	auth        *auth.Service
	wsHub       *WebSocketHub
	pluginToken string
}

// NewRouter creates a new HTTP router
func NewRouter(store *storage.Store, linkSvc *linking.Service, authService *auth.Service, pluginToken string) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		store:       store,
		linking:     linkSvc,
		auth:        authService,
		wsHub:       NewWebSocketHub(),
		pluginToken: pluginToken,
	}

	// Plugin routes: the proxy-side plugin authenticates with a shared token
	r.mux.HandleFunc("POST /api/plugin/link-request", r.requirePlugin(r.handleLinkRequest))
	r.mux.HandleFunc("POST /api/plugin/rename", r.requirePlugin(r.handleRename))
	r.mux.HandleFunc("POST /api/plugin/unlink", r.requirePlugin(r.handlePluginUnlink))

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("POST /api/auth/logout", r.handleLogout)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)

	// Link management routes (operators)
	r.mux.HandleFunc("GET /api/users", r.requireAuth(r.handleListUsers))
	r.mux.HandleFunc("GET /api/users/{key}", r.requireAuth(r.handleGetUser))
	r.mux.HandleFunc("POST /api/users/{discord_id}/sync", r.requireAdmin(r.handleSyncUser))
	r.mux.HandleFunc("DELETE /api/users/{key}", r.requireAdmin(r.handleDeleteUser))

	// WebSocket audit stream
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// Handler returns the router wrapped with gzip response compression.
func (r *Router) Handler() http.Handler {
	return gzhttp.GzipHandler(r)
}

// StartWebSocketHub starts broadcasting events to WebSocket clients
func (r *Router) StartWebSocketHub() {
	go r.wsHub.Run()
}

// BroadcastEvent forwards an audit event to connected WebSocket clients. Wire
// it to linking.Service.OnEvent.
func (r *Router) BroadcastEvent(event domain.Event) {
	r.wsHub.Broadcast(event)
}
