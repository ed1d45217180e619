package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/partload/internal/engine"
	"github.com/seantiz/partload/internal/loader"
	"github.com/seantiz/partload/internal/model"
	"github.com/seantiz/partload/internal/source"
)

// defaultCount is the number of items generated when a request sets none.
const defaultCount = 1001

func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Sources().List())
}

// sourceParams reads the generator parameters shared by all source routes.
func sourceParams(r *http.Request) (source.Params, error) {
	q := r.URL.Query()
	count, err := intParam(q, "count", defaultCount)
	if err != nil {
		return source.Params{}, err
	}
	delay, err := millisParam(q, "delay", 0)
	if err != nil {
		return source.Params{}, err
	}
	return source.Params{Count: count, Delay: delay}, nil
}

// startRequest builds the session request of a chunk route. A non-positive
// timeout or paging disables that bound.
func (s *Server) startRequest(r *http.Request) (engine.StartRequest, error) {
	p, err := sourceParams(r)
	if err != nil {
		return engine.StartRequest{}, err
	}
	q := r.URL.Query()
	timeout, err := millisParam(q, "timeout", s.defaults.Timeout)
	if err != nil {
		return engine.StartRequest{}, err
	}
	paging, err := intParam(q, "paging", s.defaults.Paging)
	if err != nil {
		return engine.StartRequest{}, err
	}
	return engine.StartRequest{
		Source:  chi.URLParam(r, "name"),
		Params:  p,
		Timeout: timeout,
		Paging:  paging,
	}, nil
}

func (s *Server) handleLoadAll(w http.ResponseWriter, r *http.Request) {
	p, err := sourceParams(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	items, err := s.engine.Load(r.Context(), chi.URLParam(r, "name"), p)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.Header().Set(model.HeaderState, loader.Full.String())
	s.writeJSON(w, http.StatusOK, items)
}

// handleChunks serves one call of the chunk protocol. The first request
// starts a session; follow-up requests carry the session header. The body
// is the JSON array of the items delivered by this call.
func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	var call *engine.Call
	var err error
	if id := r.Header.Get(model.HeaderSession); id != "" {
		call, err = s.engine.Continue(r.Context(), id, nil)
	} else {
		var req engine.StartRequest
		if req, err = s.startRequest(r); err == nil {
			call, err = s.engine.Start(r.Context(), req, nil)
		}
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	setCallHeaders(w.Header(), call)
	if call.State == loader.Faulted {
		s.writeError(w, http.StatusBadGateway, call.Err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, call.Items)
}

// handleJSONChunks serves the chunk protocol with the body streamed while
// items are delivered. The status is sent before the outcome is known, so
// the state, session and error headers are sent as trailers and a Full
// stream ends with a null element.
func (s *Server) handleJSONChunks(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(model.HeaderSession)
	var req engine.StartRequest
	if id == "" {
		var err error
		if req, err = s.startRequest(r); err != nil {
			s.writeEngineError(w, err)
			return
		}
	}

	w.Header().Set("Trailer", strings.Join([]string{model.HeaderState, model.HeaderSession, model.HeaderError}, ", "))
	w.Header().Set("Content-Type", "application/json")

	var call *engine.Call
	var err error
	if id != "" {
		call, err = s.engine.Continue(r.Context(), id, w)
	} else {
		call, err = s.engine.Start(r.Context(), req, w)
	}
	if err != nil {
		// Errors are returned before the stream opens.
		s.writeEngineError(w, err)
		return
	}
	setCallHeaders(w.Header(), call)
}

func setCallHeaders(h http.Header, call *engine.Call) {
	h.Set(model.HeaderState, call.State.String())
	if call.State == loader.Partial {
		h.Set(model.HeaderSession, call.SessionID)
	}
	if call.Err != nil {
		h.Set(model.HeaderError, call.Err.Error())
	}
}
