package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/idlookup/internal/core"
)

// maxJSONBody bounds single-record request bodies.
const maxJSONBody = 64 << 10

// errInvalidRequest prefixes body and parameter errors so they map to REQ001.
var errInvalidRequest = errors.New("invalid request")

// decodeJSON reads one JSON object from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.ErrBulkInputTooLarge
		}
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errInvalidRequest)
	}
	return nil
}

// isJSON reports whether the request body is declared as JSON.
func isJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

// readValue returns a single-field edit value from a text body or a JSON
// {"value": "..."} body.
func readValue(w http.ResponseWriter, r *http.Request) (string, error) {
	if isJSON(r) {
		var body struct {
			Value string `json:"value"`
		}
		if err := decodeJSON(w, r, &body, maxJSONBody); err != nil {
			return "", err
		}
		return body.Value, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// urlParam returns a decoded chi URL parameter. Keys may be non-ASCII names.
func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
