// Package extract pulls structured identifiers out of free text and
// preprocesses queries for exact-match retrieval.
package extract

import (
	"regexp"
	"strings"
)

// Extractor turns text into an ordered, deduplicated set of identifiers.
// All extractors conform to this shape so new entity types (software
// names, versions) slot in without touching callers.
type Extractor func(text string) []string

// cvePattern matches CVE identifiers: CVE-YYYY-NNNN with 4 to 7 digits in
// the sequence number, case-insensitive.
var cvePattern = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,7}`)

// CVEIDs extracts CVE identifiers from text, normalized to upper case,
// duplicates removed, order of first occurrence preserved.
func CVEIDs(text string) []string {
	if text == "" {
		return nil
	}

	matches := cvePattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		id := strings.ToUpper(m)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
