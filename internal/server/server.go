// Package server assembles the HTTP surface: the websocket endpoint,
// the conversation history (backfill) endpoint, and game creation.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mgauthier/tilewire/internal/authority"
	"github.com/mgauthier/tilewire/internal/history"
	"github.com/mgauthier/tilewire/internal/hub"
	"github.com/mgauthier/tilewire/internal/ratelimit"
	"github.com/mgauthier/tilewire/internal/wire"
)

const (
	// defaultHistoryLimit is the number of messages retained per
	// conversation.
	defaultHistoryLimit = 500

	// defaultPageSize is used when a backfill request omits perPage.
	defaultPageSize = 20

	// maxPageSize caps a single backfill page.
	maxPageSize = 100

	// defaultTurnTime is used when game creation omits timePerTurn.
	defaultTurnTime = time.Minute
)

// Server is the main HTTP server.
type Server struct {
	addr    string
	mux     *http.ServeMux
	hub     *hub.Hub
	history history.Store
	games   *authority.Manager
	limiter *ratelimit.Limiter

	historyLimit int
	redisClient  redis.Cmdable
}

// Option configures a Server.
type Option func(*Server)

// WithRedis persists conversation history in Redis instead of memory.
func WithRedis(client redis.Cmdable) Option {
	return func(s *Server) {
		s.redisClient = client
	}
}

// WithHistoryLimit overrides the number of messages retained per
// conversation.
func WithHistoryLimit(n int) Option {
	return func(s *Server) {
		s.historyLimit = n
	}
}

// WithRateLimit overrides the backfill rate limiter.
func WithRateLimit(max int, window time.Duration) Option {
	return func(s *Server) {
		s.limiter = ratelimit.New(max, window)
	}
}

// New creates a Server listening on addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		mux:          http.NewServeMux(),
		hub:          hub.New(),
		limiter:      ratelimit.New(120, time.Minute),
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.redisClient != nil {
		s.history = history.NewRedisStore(s.redisClient, s.historyLimit)
	} else {
		s.history = history.NewMemoryStore(s.historyLimit)
	}
	s.games = authority.NewManager(func(room string, kind wire.Kind, payload any) {
		s.hub.Broadcast(room, kind, payload)
	})
	s.routes()
	return s
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.Handle("GET /ws", hub.NewHandler(s.hub, s.history, s.games))
	s.mux.Handle("GET /conversations/{id}/messages",
		s.limiter.Middleware(http.HandlerFunc(s.handleMessages)))
	s.mux.HandleFunc("POST /games", s.handleCreateGame)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleMessages serves one backfill page, oldest first. offset counts
// messages the client already holds, from the newest end.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conversation := r.PathValue("id")

	perPage := queryInt(r, "perPage", defaultPageSize)
	if perPage < 1 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		http.Error(w, "offset must be non-negative", http.StatusBadRequest)
		return
	}

	msgs := s.history.Page(conversation, perPage, offset)
	if msgs == nil {
		msgs = []wire.ChatMessage{}
	}
	writeJSON(w, map[string]any{"messages": msgs})
}

// handleCreateGame seats the named players in a new game, starts its
// turn clock, and returns the game token.
func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlayerNames []string `json:"playerNames"`
		TimePerTurn int      `json:"timePerTurn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(body.PlayerNames) < 2 {
		http.Error(w, "at least two players are required", http.StatusBadRequest)
		return
	}

	timePerTurn := defaultTurnTime
	if body.TimePerTurn > 0 {
		timePerTurn = time.Duration(body.TimePerTurn) * time.Millisecond
	}

	g := s.games.Create(body.PlayerNames, timePerTurn)
	g.Begin()

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{
		"token":       g.Token(),
		"timePerTurn": int(timePerTurn / time.Millisecond),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
