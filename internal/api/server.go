// Package api serves the assistant over HTTP for the desktop UI and other
// local clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/internal/catalog"
	"github.com/ebrain-io/ebrain/internal/logbuf"
	"github.com/ebrain-io/ebrain/internal/session"
	"github.com/ebrain-io/ebrain/internal/tool"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// Asker answers a whole conversation. *agent.Boundary implements it.
type Asker interface {
	Ask(ctx context.Context, turns []protocol.Turn) protocol.Reply
}

// Sessions is what the server needs from the session service.
type Sessions interface {
	Create(ctx context.Context, title, channel, chatID string) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	List(ctx context.Context, filter session.Filter) ([]*session.Session, error)
	Delete(ctx context.Context, id string) error
	Send(ctx context.Context, id, content string) (protocol.Reply, error)
}

// LogQuerier abstracts log entry querying to avoid coupling to logbuf.Buffer.
type LogQuerier interface {
	Find(q logbuf.Query) []logbuf.Entry
}

// Config holds API server configuration.
type Config struct {
	Addr string
	Key  string // API key for Bearer auth; empty disables auth
	// CORSOrigins lists allowed origins. Empty allows any.
	CORSOrigins []string
}

// Deps are the services behind the routes. Logs may be nil.
type Deps struct {
	Asker      Asker
	Sessions   Sessions
	Operations []tool.Operation
	Logs       LogQuerier
}

// Server is the ebrain REST API server.
type Server struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates a new API server.
func NewServer(deps Deps, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.logRequests)

	r.Get("/api/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/api/ask", s.handleAsk)
		r.Get("/api/tools", s.handleTools)
		r.Get("/api/fields", s.handleFields)
		r.Get("/api/logs", s.handleLogs)
		r.Route("/api/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Get("/{id}", s.handleGetSession)
			r.Delete("/{id}", s.handleDeleteSession)
			r.Post("/{id}/messages", s.handlePostMessage)
		})
	})

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr, "auth", s.cfg.Key != "")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.cfg.CORSOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case slices.Contains(s.cfg.CORSOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Messages []protocol.Turn `json:"messages"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Asker.Ask(r.Context(), req.Messages))
}

type toolInfo struct {
	Name        string         `json:"name"`
	AgentName   string         `json:"agent_name"`
	Description string         `json:"description"`
	ReadOnly    bool           `json:"read_only"`
	InputSchema map[string]any `json:"input_schema"`
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	out := make([]toolInfo, 0, len(s.deps.Operations))
	for _, op := range s.deps.Operations {
		out = append(out, toolInfo{
			Name:        op.Name,
			AgentName:   op.AgentName,
			Description: op.Description,
			ReadOnly:    op.ReadOnly,
			InputSchema: op.Schema.JSONSchema(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type tableFields struct {
	Table  string   `json:"table"`
	Fields []string `json:"fields"`
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	if table := r.URL.Query().Get("table"); table != "" {
		writeJSON(w, http.StatusOK, []tableFields{{Table: table, Fields: catalog.FieldsFor(table)}})
		return
	}
	var out []tableFields
	for _, t := range catalog.Tables() {
		out = append(out, tableFields{Table: t, Fields: catalog.FieldsFor(t)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := logbuf.Query{
		Limit:     200,
		MinLevel:  slog.LevelDebug,
		Component: r.URL.Query().Get("component"),
		Contains:  r.URL.Query().Get("q"),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			q.Limit = n
		}
	}
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(lvl)); err == nil {
			q.MinLevel = level
		}
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			q.Since = time.UnixMilli(ms)
		}
	}
	writeJSON(w, http.StatusOK, s.deps.Logs.Find(q))
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	// An empty body creates an untitled session.
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
			return
		}
	}
	sess, err := s.deps.Sessions.Create(r.Context(), req.Title, "", "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := session.Filter{
		Channel: r.URL.Query().Get("channel"),
		ChatID:  r.URL.Query().Get("chat_id"),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	list, err := s.deps.Sessions.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
		return
	}
	reply, err := s.deps.Sessions.Send(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// --- Helpers ---

type errorBody struct {
	Error  string      `json:"error"`
	Code   apperr.Code `json:"code,omitempty"`
	Fields []string    `json:"fields,omitempty"`
}

// writeError answers with the status for err's code. Errors without a code
// are internal failures.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	e := apperr.As(err)
	if e == nil {
		s.logger.Error("api internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, apperr.HTTPStatus(err), errorBody{Error: err.Error(), Code: e.Code, Fields: e.Fields})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
