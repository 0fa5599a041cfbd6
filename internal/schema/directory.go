// Package schema describes the directory's columns as they appear outside
// the service: CSV headers and single-field edit selectors.
package schema

import "strings"

// Field names one Record field.
type Field string

const (
	FieldID   Field = "id"
	FieldName Field = "name"
	FieldCode Field = "code"
)

// FieldSpec defines one directory column. Aliases are matched after
// CleanHeader, so they are written lower-case.
type FieldSpec struct {
	Field    Field
	Aliases  []string
	Required bool
}

// DirectoryFieldSpecs lists the columns in export order.
var DirectoryFieldSpecs = []FieldSpec{
	{Field: FieldID, Aliases: []string{"user_id", "external_id", "ايدي", "آيدي"}, Required: true},
	{Field: FieldName, Aliases: []string{"اسم"}, Required: true},
	{Field: FieldCode, Aliases: []string{"كود"}},
}

var byAlias = func() map[string]Field {
	m := make(map[string]Field)
	for _, spec := range DirectoryFieldSpecs {
		m[string(spec.Field)] = spec.Field
		for _, a := range spec.Aliases {
			m[a] = spec.Field
		}
	}
	return m
}()

// Columns returns the canonical header row.
func Columns() []string {
	cols := make([]string, len(DirectoryFieldSpecs))
	for i, spec := range DirectoryFieldSpecs {
		cols[i] = string(spec.Field)
	}
	return cols
}

// Lookup resolves a header or selector to its field.
func Lookup(s string) (Field, bool) {
	f, ok := byAlias[CleanHeader(s)]
	return f, ok
}

// HeaderIndex maps each field to its column position.
type HeaderIndex map[Field]int

// MakeHeaderIndex resolves a header row. Unknown columns are ignored and
// the first occurrence of a field wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(DirectoryFieldSpecs))
	for i, h := range header {
		f, ok := Lookup(h)
		if !ok {
			continue
		}
		if _, dup := idx[f]; !dup {
			idx[f] = i
		}
	}
	return idx
}

// Complete reports whether every required field has a column.
func (idx HeaderIndex) Complete() bool {
	for _, spec := range DirectoryFieldSpecs {
		if _, ok := idx[spec.Field]; spec.Required && !ok {
			return false
		}
	}
	return true
}

// Value returns the cleaned cell for f, or "" when the column is absent or
// the row is short.
func (idx HeaderIndex) Value(row []string, f Field) string {
	pos, ok := idx[f]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}

// CleanHeader normalizes a header cell for matching: spreadsheet artifacts
// removed, lower-cased, and spaces or hyphens folded to underscores.
func CleanHeader(s string) string {
	s = strings.ToLower(CleanCell(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// CleanCell strips a BOM, surrounding whitespace and the wrappers Excel
// adds to keep long digit strings as text (="..." and a leading ').
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF"))
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "'")
	return strings.TrimSpace(s)
}
