package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/stockscope/searchd/internal/gateway"
	"github.com/stockscope/searchd/internal/search"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startupTime).Seconds()),
	})
}

// handleSearch handles GET /api/search?q=...
// Clients see exactly two failure shapes: 400 for malformed input and 503
// when every provider is down with nothing cached to fall back on.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	result, err := s.search.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		var apf *gateway.AllProvidersFailed
		switch {
		case errors.Is(err, search.ErrInvalidQuery):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &apf):
			s.writeError(w, http.StatusServiceUnavailable, "all market data providers are unavailable")
		default:
			s.log.Error().Err(err).Msg("Unexpected search failure")
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}
