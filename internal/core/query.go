package core

import "strings"

// QueryTerms expands a raw query into lookup terms: the whole trimmed phrase
// first, so multi-word names typed as one phrase resolve, then every token
// left after treating commas as spaces, in input order.
func QueryTerms(raw string) []string {
	q := strings.TrimSpace(raw)
	if q == "" {
		return nil
	}

	tokens := strings.Fields(strings.ReplaceAll(q, ",", " "))
	terms := make([]string, 0, len(tokens)+1)
	terms = append(terms, q)
	terms = append(terms, tokens...)
	return terms
}

// Resolve looks every term of raw up in ix and returns the matches in
// first-seen order, keeping one record per external ID.
func Resolve(ix *Index, raw string) []Record {
	terms := QueryTerms(raw)
	if len(terms) == 0 {
		return nil
	}

	var found []Record
	seen := make(map[string]struct{}, len(terms))
	ix.view(func(lookup func(string) (Record, bool)) {
		for _, term := range terms {
			rec, ok := lookup(term)
			if !ok {
				continue
			}
			if _, dup := seen[rec.ExternalID]; dup {
				continue
			}
			seen[rec.ExternalID] = struct{}{}
			found = append(found, rec)
		}
	})
	return found
}
