package server

import (
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"shareonair/internal/logging"
	"shareonair/internal/share"
)

type statsResponse struct {
	Success bool `json:"success"`
	share.Stats
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.manager.Stats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("stats_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Success: true, Stats: st})
}

type bannerResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Server    string    `json:"server"`
	Store     string    `json:"store"`
	Uptime    float64   `json:"uptime"` // seconds
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	name := "ShareOnAir API"
	if s.cfg.Version != "" {
		name += " " + s.cfg.Version
	}
	uptime := time.Since(s.started).Seconds()
	writeJSON(w, http.StatusOK, bannerResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC(),
		Server:    name,
		Store:     s.cfg.StoreName,
		Uptime:    math.Round(uptime*1000) / 1000,
	})
}
