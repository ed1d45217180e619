package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/seantiz/partload/internal/engine"
	"github.com/seantiz/partload/internal/loader"
	"github.com/seantiz/partload/internal/source"
	"github.com/seantiz/partload/internal/store"
)

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps an engine or loader error onto an HTTP status.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loader.ErrInvalidArgument):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrSessionNotFound),
		errors.Is(err, source.ErrUnknownSource),
		errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, loader.ErrInvalidState):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, loader.ErrSourceFailed):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, engine.ErrCanceled):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("engine call", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// intParam parses an integer query parameter, rejecting malformed values.
func intParam(q url.Values, key string, defaultVal int) (int, error) {
	s := q.Get(key)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %w", key, loader.ErrInvalidArgument)
	}
	return v, nil
}

// maxMillis is the largest duration in milliseconds a query may carry.
const maxMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// millisParam parses a query parameter given in (possibly fractional)
// milliseconds.
func millisParam(q url.Values, key string, defaultVal time.Duration) (time.Duration, error) {
	s := q.Get(key)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.Abs(v) > maxMillis {
		return 0, fmt.Errorf("%s: not a number of milliseconds: %w", key, loader.ErrInvalidArgument)
	}
	return time.Duration(v * float64(time.Millisecond)), nil
}
