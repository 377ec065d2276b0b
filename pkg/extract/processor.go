package extract

import "strings"

// MetadataFilter is an equality constraint on a scalar metadata field.
// The underlying index supports equality only, so this is not a general
// predicate language.
type MetadataFilter struct {
	Field string
	Value string
}

// IdentifierField is the scalar metadata key the retrieval adapter fills
// at ingestion and the preprocessor filters on.
const IdentifierField = "identifiers"

// Processor augments queries and synthesizes metadata filters from
// extracted identifiers.
type Processor struct {
	extract Extractor
	boost   int
}

// NewProcessor builds a query processor with the given boost factor.
func NewProcessor(boost int) *Processor {
	return &Processor{extract: CVEIDs, boost: boost}
}

// Process returns the augmented query text and, when the query names an
// identifier, an equality filter for it.
//
// Augmentation prepends the first identifier boost-factor times:
// embedding functions weight repeated terms more, so the boosted query
// ranks the exact document higher, while the filter enforces exactness
// when the index supports it.
func (p *Processor) Process(query string) (string, *MetadataFilter) {
	ids := p.extract(query)
	if len(ids) == 0 {
		return query, nil
	}

	first := ids[0]
	parts := make([]string, 0, p.boost+1)
	for i := 0; i < p.boost; i++ {
		parts = append(parts, first)
	}
	parts = append(parts, query)

	return strings.Join(parts, " "), &MetadataFilter{Field: IdentifierField, Value: first}
}
