package core

// bulk_input.go prepares pasted bulk text for ParseBulk.
//
// Text copied from spreadsheets and Windows editors often carries a UTF-8
// BOM, CRLF line endings or stray invalid bytes. ReadBulkInput removes all
// three so the parser only ever sees clean "\n"-separated UTF-8.

import (
	"errors"
	"io"
	"strings"
)

// ErrBulkInputTooLarge is returned when bulk input exceeds the configured limit.
var ErrBulkInputTooLarge = errors.New("request body too large")

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ReadBulkInput reads at most limit bytes from r and normalizes them.
// A non-positive limit disables the bound.
func ReadBulkInput(r io.Reader, limit int64) (string, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", ErrBulkInputTooLarge
	}
	return NormalizeBulkText(string(data)), nil
}

// NormalizeBulkText strips a leading BOM, replaces invalid UTF-8 with U+FFFD
// and converts every line ending to "\n".
func NormalizeBulkText(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ToValidUTF8(s, "\uFFFD")
	return lineEndings.Replace(s)
}
