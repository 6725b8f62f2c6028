// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/meetwise/streamcore/internal/pipeline/session"
	"github.com/meetwise/streamcore/internal/trace"
)

// Inbound message types.
type Message struct {
	Type string `json:"type"`
}

type ChunkMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	TraceID string `json:"trace_id,omitempty"`
}

type TopicMessage struct {
	Type       string  `json:"type"`
	Similarity float64 `json:"similarity"`
}

// Outbound message types.
type SessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type SummaryMessage struct {
	Type    string          `json:"type"`
	Summary session.Summary `json:"summary"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections. Each WebSocket connection
// owns exactly one session: chunks in, insight events out.
type Server struct {
	registry *session.Registry
}

// New creates a new server.
func New(registry *session.Registry) *Server {
	return &Server{registry: registry}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/sessions/{id}/metrics", s.handleMetrics)
	mux.HandleFunc("POST /api/sessions/{id}/topic", s.handleTopic)
	mux.HandleFunc("POST /api/sessions/{id}/end", s.handleEnd)

	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := trace.Logger(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	sessionID := uuid.NewString()
	orch, err := s.registry.Create(sessionID)
	if err != nil {
		log.Error("session create failed", "error", err)
		return
	}

	baseCtx := r.Context()
	log.Info("session connected", "session", sessionID, "remote", r.RemoteAddr)
	_ = wsjson.Write(baseCtx, conn, SessionMessage{Type: "session", SessionID: sessionID})

	// Pump pipeline events to the client until End closes the channel.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for evt := range orch.Events() {
			if err := wsjson.Write(baseCtx, conn, evt); err != nil {
				return
			}
		}
	}()

	defer func() {
		summary := orch.End(baseCtx)
		s.registry.Remove(sessionID)
		_ = wsjson.Write(baseCtx, conn, SummaryMessage{Type: "summary", Summary: summary})
		<-pumpDone
		log.Info("session disconnected", "session", sessionID)
	}()

	limiter := &rateLimiter{}

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !limiter.allow() {
			log.Warn("rate limit exceeded", "session", sessionID)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "chunk":
			var chunk ChunkMessage
			if err := json.Unmarshal(msg, &chunk); err != nil {
				continue
			}
			tc, _ := trace.ExtractFromJSON(msg)
			ctx := trace.WithContext(baseCtx, tc)
			trace.Logger(ctx).Debug("chunk received", "session", sessionID, "final", chunk.IsFinal, "text", preview(chunk.Text))
			if err := orch.ProcessChunk(ctx, chunk.Text, chunk.IsFinal); err != nil {
				trace.Logger(ctx).Error("chunk processing error", "session", sessionID, "error", err)
				_ = wsjson.Write(ctx, conn, ErrorMessage{Type: "error", Message: err.Error()})
			}

		case "topic":
			var topic TopicMessage
			if err := json.Unmarshal(msg, &topic); err != nil {
				continue
			}
			orch.TopicBoundary(topic.Similarity)

		case "end":
			return
		}
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	orch, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	chunks, triggers, skipped := orch.StateCounts()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": orch.ID(),
		"chunks":     chunks,
		"triggers":   triggers,
		"skipped":    skipped,
		"routing":    orch.RouterMetrics(),
	})
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	orch, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	var topic TopicMessage
	if err := json.NewDecoder(r.Body).Decode(&topic); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	orch.TopicBoundary(topic.Similarity)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, ok := s.registry.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	summary := orch.End(r.Context())
	s.registry.Remove(id)
	_ = json.NewEncoder(w).Encode(summary)
}

// EndAll tears down every live session, used during shutdown.
func (s *Server) EndAll(ctx context.Context) {
	// Sessions remove themselves from the registry as their connections
	// close; this only sweeps stragglers.
	for _, id := range s.liveIDs() {
		if orch, ok := s.registry.Get(id); ok {
			orch.End(ctx)
			s.registry.Remove(id)
		}
	}
}

func (s *Server) liveIDs() []string {
	return s.registry.IDs()
}

func preview(text string) string {
	if len(text) > TextPreviewLimit {
		return text[:TextPreviewLimit] + "..."
	}
	return text
}
