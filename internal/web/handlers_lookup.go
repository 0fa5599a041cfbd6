package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/idlookup/internal/core"
)

// LookupResponse is the JSON body of GET /api/lookup.
type LookupResponse struct {
	Query   string        `json:"query"`
	Count   int           `json:"count"`
	Records []core.Record `json:"records"`
	IDs     []string      `json:"ids"`
}

func newLookupResponse(query string, records []core.Record) LookupResponse {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ExternalID)
	}
	if records == nil {
		records = []core.Record{}
	}
	return LookupResponse{Query: query, Count: len(records), Records: records, IDs: ids}
}

// handleLookup resolves every term of ?q= against the index. It is open to
// everyone and keeps answering while the store is down.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		s.respondError(w, r, fmt.Errorf("%w: q is required", errInvalidRequest))
		return
	}

	records := s.service.Lookup(r.Context(), query)

	if wantsText(r) {
		writeText(w, http.StatusOK, renderText(records))
		return
	}
	writeJSON(w, http.StatusOK, newLookupResponse(query, records))
}

// wantsText reports whether the caller asked for the plain text rendering.
func wantsText(r *http.Request) bool {
	if r.URL.Query().Get("format") == "text" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.HasPrefix(accept, "text/plain")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
