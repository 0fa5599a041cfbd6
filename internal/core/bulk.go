package core

// bulk.go turns a pasted block of text into candidate records.
//
// Two shapes are accepted:
//  1. Multi-line: one "ID name... code" record per line
//  2. Single line: records concatenated back to back, each one starting with
//     a run of at least MinExternalIDLength digits
//
// Parsing is pure and never touches the store. Every candidate comes back as a
// BulkEntry, either accepted or tagged with the reason it was rejected.

import (
	"fmt"
	"regexp"
	"strings"
)

// RejectReason explains why a bulk candidate was not accepted.
type RejectReason string

const (
	ReasonMissingFields RejectReason = "missing fields"
	ReasonInvalidID     RejectReason = "invalid id"
)

// externalIDRun marks the start of a record in single-line input.
var externalIDRun = regexp.MustCompile(fmt.Sprintf(`\d{%d,}`, MinExternalIDLength))

// BulkEntry is one candidate record extracted from bulk input.
type BulkEntry struct {
	Raw        string       // Line or segment the entry came from
	ExternalID string       // First token
	Name       string       // Middle tokens joined by single spaces
	Code       string       // Last token, canonicalized
	Reason     RejectReason // Empty when accepted
}

// Accepted reports whether the entry passed validation.
func (e BulkEntry) Accepted() bool { return e.Reason == "" }

// String renders the entry for rejection feedback.
func (e BulkEntry) String() string {
	if e.Accepted() {
		return fmt.Sprintf("%s | %s | %s", e.ExternalID, e.Name, e.Code)
	}
	if e.ExternalID == "" {
		return fmt.Sprintf("(%s) %s", e.Reason, e.Raw)
	}
	return fmt.Sprintf("(%s) %s | %s | %s", e.Reason, e.ExternalID, e.Name, e.Code)
}

// ParseBulk splits text into candidate records and classifies each one.
func ParseBulk(text string) []BulkEntry {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil
	}

	var chunks []string
	if strings.Contains(raw, "\n") {
		chunks = splitLines(raw)
	} else {
		chunks = splitSegments(raw)
	}

	entries := make([]BulkEntry, 0, len(chunks))
	for _, chunk := range chunks {
		entries = append(entries, parseBulkEntry(chunk))
	}
	return entries
}

// splitLines returns the non-empty trimmed lines of raw.
func splitLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// splitSegments cuts a single line at every external-ID run. Text before the
// first run becomes its own segment so it is reported rather than dropped.
func splitSegments(raw string) []string {
	starts := externalIDRun.FindAllStringIndex(raw, -1)
	if len(starts) == 0 {
		return []string{raw}
	}

	var segments []string
	if head := strings.TrimSpace(raw[:starts[0][0]]); head != "" {
		segments = append(segments, head)
	}
	for i, loc := range starts {
		end := len(raw)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		if seg := strings.TrimSpace(raw[loc[0]:end]); seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func parseBulkEntry(chunk string) BulkEntry {
	parts := strings.Fields(chunk)
	if len(parts) < 3 {
		return BulkEntry{Raw: chunk, Reason: ReasonMissingFields}
	}

	entry := BulkEntry{
		Raw:        chunk,
		ExternalID: parts[0],
		Name:       strings.Join(parts[1:len(parts)-1], " "),
		Code:       CanonicalCode(parts[len(parts)-1]),
	}
	switch {
	case !IsValidExternalID(entry.ExternalID):
		entry.Reason = ReasonInvalidID
	case CanonicalName(entry.Name) == "" || entry.Code == "":
		entry.Reason = ReasonMissingFields
	}
	return entry
}
