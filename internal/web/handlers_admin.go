package web

import (
	"net/http"

	"github.com/JonMunkholm/idlookup/internal/backup"
	"github.com/JonMunkholm/idlookup/internal/core"
)

// StatsResponse reports index sizes and bulk import capacity.
type StatsResponse struct {
	Index core.IndexStats        `json:"index"`
	Bulk  core.BulkLimiterStatus `json:"bulk"`
}

// ReadyResponse is the body of GET /readyz.
type ReadyResponse struct {
	Status string          `json:"status"`
	Index  core.IndexStats `json:"index"`
}

func (s *Server) handleAlive(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "alive\n")
}

// handleReady reports 503 while the store is unreachable. Lookups keep
// working in that state, so liveness stays green.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ok", Index: s.service.Stats()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Index: s.service.Stats(),
		Bulk:  s.service.BulkLimiter().Status(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Reload(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.respondError(w, r, backup.ErrDisabled)
		return
	}
	res, err := s.backups.Export(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
