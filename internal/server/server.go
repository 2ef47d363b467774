// internal/server/server.go
//
// Package server is the HTTP surface: the streaming chat endpoint, the
// session inspection API, webhook triggers for named tasks, health, and
// Prometheus exposition.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/fathom/internal/bridge"
	"github.com/user/fathom/internal/history"
	"github.com/user/fathom/internal/metrics"
	"github.com/user/fathom/internal/protocol"
	"github.com/user/fathom/internal/tasks"
)

// Server routes HTTP requests to the bridge and the stores.
type Server struct {
	bridge *bridge.Bridge
	store  history.Store
	tasks  *tasks.Store
	secret string
	sem    *semaphore.Weighted
	mux    *http.ServeMux
}

// New creates a Server. secret guards the webhook endpoints when non-empty;
// maxStreams bounds concurrent chat streams.
func New(b *bridge.Bridge, store history.Store, taskStore *tasks.Store, secret string, maxStreams int) *Server {
	if maxStreams < 1 {
		maxStreams = 1
	}
	s := &Server{
		bridge: b,
		store:  store,
		tasks:  taskStore,
		secret: secret,
		sem:    semaphore.NewWeighted(int64(maxStreams)),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/", s.handleSessionTurns)
	s.mux.HandleFunc("POST /webhook", s.handleAdHoc)
	s.mux.HandleFunc("POST /webhook/", s.handleNamedTask)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// chatMessage is one entry of the AI SDK UI message list. Text lives either
// in parts (current SDK) or in content as a plain string or typed part list
// (older SDK versions).
type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Parts   []chatPart      `json:"parts"`
}

type chatPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	query := strings.TrimSpace(lastUserText(req.Messages))
	if query == "" {
		http.Error(w, `{"error":"no user message text"}`, http.StatusBadRequest)
		return
	}

	if !s.sem.TryAcquire(1) {
		http.Error(w, `{"error":"too many concurrent streams"}`, http.StatusServiceUnavailable)
		return
	}
	defer s.sem.Release(1)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	breq := bridge.Request{
		Query:      query,
		SessionKey: r.Header.Get("X-Session-Key"),
	}

	protocol.SetStreamHeaders(w.Header())
	if err := s.bridge.Run(r.Context(), breq, w); err != nil {
		// The sink is gone; there is nobody left to tell.
		slog.Error("chat stream aborted", "session", breq.SessionKey, "error", err)
	}
}

// lastUserText returns the text of the most recent user message.
func lastUserText(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return messageText(msgs[i])
		}
	}
	return ""
}

func messageText(m chatMessage) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	if b.Len() > 0 || len(m.Content) == 0 {
		return b.String()
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var parts []chatPart
	if err := json.Unmarshal(m.Content, &parts); err == nil {
		for _, p := range parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
	}
	return b.String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", metrics.ContentType)
	if err := metrics.WritePrometheus(w); err != nil {
		slog.Error("write metrics failed", "error", err)
	}
}

type sessionResponse struct {
	SessionKey string `json:"session_key"`
	Turns      int    `json:"turns"`
	LastActive string `json:"last_active"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.Sessions(r.Context())
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	result := make([]sessionResponse, 0, len(sessions))
	for _, info := range sessions {
		result = append(result, sessionResponse{
			SessionKey: info.Key,
			Turns:      info.Turns,
			LastActive: info.LastActive.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleSessionTurns(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if key == "" {
		http.Error(w, `{"error":"session key required"}`, http.StatusBadRequest)
		return
	}

	turns, err := s.store.Load(r.Context(), key)
	if err != nil {
		slog.Error("load session failed", "session", key, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []history.Turn{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(turns)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.secret == "" {
		return true
	}
	got := r.Header.Get("X-Webhook-Secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) == 1
}

// adHocRequest is the JSON body for POST /webhook.
type adHocRequest struct {
	Query      string `json:"query"`
	SessionKey string `json:"session_key"`
}

func (s *Server) handleAdHoc(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req adHocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Query == "" || req.SessionKey == "" {
		http.Error(w, `{"error":"query and session_key are required"}`, http.StatusBadRequest)
		return
	}

	answer, err := s.bridge.RunHeadless(r.Context(), bridge.Request{
		Query:      req.Query,
		SessionKey: req.SessionKey,
	})
	if err != nil {
		slog.Error("webhook ad-hoc run failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"response": answer})
}

// namedTaskRequest is the optional JSON body for POST /webhook/{name}.
type namedTaskRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleNamedTask(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/webhook/")
	if name == "" {
		http.Error(w, `{"error":"task name required"}`, http.StatusBadRequest)
		return
	}

	task, err := s.tasks.Get(name)
	if err != nil {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}
	if !task.Enabled {
		http.Error(w, `{"error":"task is disabled"}`, http.StatusForbidden)
		return
	}

	query := task.Query

	// Allow the body to override the stored query.
	var body namedTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Query != "" {
		query = body.Query
	}

	answer, err := s.bridge.RunHeadless(r.Context(), bridge.Request{
		Query:      query,
		SessionKey: task.SessionKey,
	})
	if err != nil {
		slog.Error("webhook task run failed", "task", name, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"response": answer})
}
