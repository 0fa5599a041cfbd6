package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/idlookup/internal/core"
)

// BulkResponse is the body of a bulk import. Error is set when a store
// failure stopped the import part way; the counts cover what was applied.
type BulkResponse struct {
	core.BulkResult
	DurationMS int64             `json:"durationMs"`
	Error      *core.UserMessage `json:"error,omitempty"`
}

// handleBulkAdd imports pasted lines of "<id> <name...> <code>". The body is
// plain text, or JSON {"data": "..."}.
func (s *Server) handleBulkAdd(w http.ResponseWriter, r *http.Request) {
	text, err := s.readBulkBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.BulkUpsert(r.Context(), text)
	resp := BulkResponse{BulkResult: res, DurationMS: res.Duration.Milliseconds()}
	if err != nil {
		if res.Accepted == 0 && res.Rejected == 0 {
			s.respondError(w, r, err)
			return
		}
		status := statusFor(err)
		msg := core.MapError(err)
		logError(r, err, status, msg.Code)
		resp.Error = &msg
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImportResponse is the body of a CSV import.
type ImportResponse struct {
	core.ImportResult
	DurationMS int64             `json:"durationMs"`
	Error      *core.UserMessage `json:"error,omitempty"`
}

// handleImportCSV imports a CSV document with id, name and code columns.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	text, err := core.ReadBulkInput(r.Body, s.cfg.Bulk.MaxBodySize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.ImportCSV(r.Context(), strings.NewReader(text))
	resp := ImportResponse{ImportResult: res, DurationMS: res.Duration.Milliseconds()}
	if err != nil {
		if res.Accepted == 0 && res.Rejected == 0 {
			s.respondError(w, r, err)
			return
		}
		status := statusFor(err)
		msg := core.MapError(err)
		logError(r, err, status, msg.Code)
		resp.Error = &msg
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readBulkBody(w http.ResponseWriter, r *http.Request) (string, error) {
	limit := s.cfg.Bulk.MaxBodySize
	if !isJSON(r) {
		return core.ReadBulkInput(r.Body, limit)
	}

	var body struct {
		Data string `json:"data"`
	}
	if err := decodeJSON(w, r, &body, limit); err != nil {
		return "", err
	}
	return core.NormalizeBulkText(body.Data), nil
}
