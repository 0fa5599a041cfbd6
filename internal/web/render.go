package web

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/idlookup/internal/core"
	"github.com/JonMunkholm/idlookup/internal/schema"
)

// renderText renders records as "code | name | id" lines, a blank line, then
// the bare IDs one per line. Either block is "-" when records is empty; an
// absent code shows as "-".
func renderText(records []core.Record) string {
	if len(records) == 0 {
		return "-\n\n-\n"
	}

	var lines, ids strings.Builder
	for _, rec := range records {
		code := rec.Code
		if code == "" {
			code = "-"
		}
		fmt.Fprintf(&lines, "%s | %s | %s\n", code, rec.Name, rec.ExternalID)
		ids.WriteString(rec.ExternalID)
		ids.WriteByte('\n')
	}
	return lines.String() + "\n" + ids.String()
}

// renderRecord renders one record in the same "code | name | id" form.
func renderRecord(rec core.Record) string {
	code := rec.Code
	if code == "" {
		code = "-"
	}
	return code + " | " + rec.Name + " | " + rec.ExternalID
}

// editRequestFor builds the EditRequest that sets one field to value. The
// selector may be any schema alias, including the Arabic ones operators use.
func editRequestFor(selector, value string) (core.EditRequest, error) {
	field, ok := schema.Lookup(selector)
	if !ok {
		return core.EditRequest{}, fmt.Errorf("unknown field %q", selector)
	}
	switch field {
	case schema.FieldID:
		return core.EditRequest{ExternalID: &value}, nil
	case schema.FieldName:
		return core.EditRequest{Name: &value}, nil
	default:
		return core.EditRequest{Code: &value}, nil
	}
}
