package api

import "net/http"

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total   int            `json:"total"`
	Active  int            `json:"active"`
	ByState map[string]int `json:"by_state"`
	Items   int            `json:"items"`
	Calls   int            `json:"calls"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSessionStats(r.Context())
	if err != nil {
		s.logger.Error("get session stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:   stats.Total,
		Active:  s.engine.Active(),
		ByState: stats.CountByState,
		Items:   stats.Items,
		Calls:   stats.Calls,
	})
}
