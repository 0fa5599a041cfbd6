package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/idlookup/internal/core"
	"github.com/JonMunkholm/idlookup/internal/logging"
)

// addRecordRequest is the body of POST /api/records.
type addRecordRequest struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	ExternalID string `json:"id"`
}

// ClearResponse reports how many records DELETE /api/records removed.
type ClearResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Records(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	switch {
	case r.URL.Query().Get("format") == "csv":
		writeCSV(w, r, records)
	case wantsText(r):
		writeText(w, http.StatusOK, renderText(records))
	default:
		writeJSON(w, http.StatusOK, newLookupResponse("", records))
	}
}

// writeCSV streams records as a download. Errors after the header is sent
// can only be logged.
func writeCSV(w http.ResponseWriter, r *http.Request, records []core.Record) {
	filename := fmt.Sprintf("directory_%s.csv", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if err := core.WriteCSV(w, records); err != nil {
		logging.FromContext(r.Context()).Error("csv export failed", "error", err)
	}
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.FindByKey(r.Context(), urlParam(r, "key"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var req addRecordRequest
	if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.service.Upsert(r.Context(), req.Name, req.Code, req.ExternalID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleEditRecord applies a partial update; omitted or blank fields keep
// their current value.
func (s *Server) handleEditRecord(w http.ResponseWriter, r *http.Request) {
	var req core.EditRequest
	if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.edit(w, r, req)
}

// handleEditField sets one field chosen by a selector such as "id" or "كود".
func (s *Server) handleEditField(w http.ResponseWriter, r *http.Request) {
	value, err := readValue(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	req, err := editRequestFor(urlParam(r, "field"), value)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.edit(w, r, req)
}

func (s *Server) edit(w http.ResponseWriter, r *http.Request, req core.EditRequest) {
	res, err := s.service.Edit(r.Context(), urlParam(r, "key"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if wantsText(r) {
		writeText(w, http.StatusOK, "before: "+renderRecord(res.Before)+"\nafter: "+renderRecord(res.After)+"\n")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.DeleteOne(r.Context(), urlParam(r, "key"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.DeleteAll(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Deleted: n})
}
