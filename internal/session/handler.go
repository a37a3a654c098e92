package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/loqalabs/loqa-translate/internal/annotate"
	"github.com/loqalabs/loqa-translate/internal/protocol"
	"github.com/loqalabs/loqa-translate/internal/recognition"
)

type languagesBody struct {
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type createdBody struct {
	SessionID string `json:"session_id"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Register mounts the session API on mux. originPatterns restricts websocket
// origins; "*" accepts any.
func (m *Manager) Register(mux *http.ServeMux, originPatterns []string) {
	mux.HandleFunc("POST /v1/sessions", m.handleCreate)
	mux.HandleFunc("GET /v1/sessions/{id}", m.withSession(m.handleView))
	mux.HandleFunc("DELETE /v1/sessions/{id}", m.handleDelete)
	mux.HandleFunc("PUT /v1/sessions/{id}/languages", m.withSession(m.handleLanguages))
	mux.HandleFunc("POST /v1/sessions/{id}/toggle", m.withSession(m.handleToggle))
	mux.HandleFunc("GET /v1/sessions/{id}/log", m.withSession(m.handleLog))
	mux.HandleFunc("GET /v1/sessions/{id}/events", m.withSession(func(w http.ResponseWriter, r *http.Request, s *Session) {
		m.handleEvents(w, r, s, originPatterns)
	}))
}

func (m *Manager) withSession(next func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Get(r.PathValue("id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		}
		next(w, r, s)
	}
}

func (m *Manager) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body languagesBody
	if err := decodeOptional(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	s, err := m.Create(body.SourceLang, body.TargetLang)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrTooManySessions) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+s.ID())
	writeJSON(w, http.StatusCreated, createdBody{SessionID: s.ID()})
}

func (m *Manager) handleView(w http.ResponseWriter, _ *http.Request, s *Session) {
	writeJSON(w, http.StatusOK, s.View())
}

func (m *Manager) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := m.Remove(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (m *Manager) handleLanguages(w http.ResponseWriter, r *http.Request, s *Session) {
	var body languagesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.SetLanguages(body.SourceLang, body.TargetLang); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (m *Manager) handleToggle(w http.ResponseWriter, _ *http.Request, s *Session) {
	err := s.Toggle()
	switch {
	case errors.Is(err, recognition.ErrUnsupported):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	case errors.Is(err, ErrSessionClosed):
		writeJSON(w, http.StatusGone, errorBody{Error: err.Error()})
		return
	case err != nil:
		m.logger.Warn("toggle failed", slog.String("session_id", s.ID()), slogError(err))
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (m *Manager) handleLog(w http.ResponseWriter, r *http.Request, s *Session) {
	entries, err := s.Log(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		out := make([]protocol.LogEntry, len(entries))
		for i, e := range entries {
			out[i] = annotate.Wire(e)
		}
		writeJSON(w, http.StatusOK, out)
	case "html":
		page, err := annotate.RenderHTML(entries)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, annotate.RenderLogText(entries))
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown format " + format})
	}
}

func (m *Manager) handleEvents(w http.ResponseWriter, r *http.Request, s *Session, originPatterns []string) {
	opts := &websocket.AcceptOptions{OriginPatterns: originPatterns}
	for _, p := range originPatterns {
		if p == "*" {
			opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
			break
		}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		m.logger.Warn("websocket accept failed", slogError(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	updates, cancel := s.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			writeCtx, done := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, update)
			done()
			if err != nil {
				m.logger.Debug("websocket write failed", slog.String("session_id", s.ID()), slogError(err))
				return
			}
		}
	}
}

func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
