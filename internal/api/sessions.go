package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/partload/internal/engine"
	"github.com/seantiz/partload/internal/model"
	"github.com/seantiz/partload/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// listSessionsResponse wraps the paginated list response.
type listSessionsResponse struct {
	Sessions []*model.Session `json:"sessions"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// chunksResponse is the JSON response for GET /v1/sessions/{id}/chunks.
type chunksResponse struct {
	SessionID string        `json:"session_id"`
	Chunks    []model.Chunk `json:"chunks"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	sessions, total, err := s.store.ListSessions(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	s.writeJSON(w, http.StatusOK, listSessionsResponse{
		Sessions: sessions,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify session exists.
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("get session for chunks", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	chunks, err := s.store.GetChunks(r.Context(), id)
	if err != nil {
		s.logger.Error("get chunks", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get chunks")
		return
	}

	s.writeJSON(w, http.StatusOK, chunksResponse{SessionID: id, Chunks: chunks})
}

// handleCancelSession cancels a live session and returns its record. A
// session that already finished is reported as a conflict.
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	call, err := s.engine.Cancel(id)
	if errors.Is(err, engine.ErrSessionNotFound) {
		if _, gerr := s.store.GetSession(r.Context(), id); gerr == nil {
			s.writeError(w, http.StatusConflict, "session already finished")
			return
		}
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.logger.Error("get canceled session", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve session")
		return
	}

	setCallHeaders(w.Header(), call)
	s.writeJSON(w, http.StatusOK, sess)
}
