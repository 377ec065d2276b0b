package scoring

import (
	"strings"

	"github.com/ragshield/ragshield/pkg/models"
)

// goldenMarkers identify counter-example lines in golden documents.
// Golden content legitimately names attacks it warns against ("never run
// chmod 777"), so marked lines are excluded before phrase scanning.
var goldenMarkers = []string{"never ", "warning:", "- never", "do not "}

// RedFlagScorer scans content for configured keyword phrases grouped into
// semantic categories and penalizes hits, harder when they span
// categories.
type RedFlagScorer struct {
	// flags holds lowercased phrases per category.
	flags map[string][]string
	// total is the maximum possible phrase count across all categories.
	total int
}

// NewRedFlagScorer builds a red-flag scorer from the category → phrase
// table. Phrases are matched case-insensitively.
func NewRedFlagScorer(flags map[string][]string) *RedFlagScorer {
	lowered := make(map[string][]string, len(flags))
	total := 0
	for category, phrases := range flags {
		out := make([]string, len(phrases))
		for i, p := range phrases {
			out[i] = strings.ToLower(p)
		}
		lowered[category] = out
		total += len(phrases)
	}
	return &RedFlagScorer{flags: lowered, total: total}
}

// Score returns the red-flag score for content. Golden documents get
// their warning lines filtered first so documented counter-examples do
// not count as flags.
//
// With F phrase hits out of M possible and C distinct categories hit,
// the score is clip(1 - 1.5*F/M) times a single cross-category
// multiplier: 0.60 for C>=4, 0.70 for C>=3, 0.80 for C>=2.
func (s *RedFlagScorer) Score(content, category string) float64 {
	if s.total == 0 {
		return 1.0
	}

	text := strings.ToLower(content)
	if category == models.CategoryGolden {
		text = filterGoldenLines(text)
	}

	hits := 0
	categoriesHit := 0
	for _, phrases := range s.flags {
		hitInCategory := false
		for _, phrase := range phrases {
			if n := strings.Count(text, phrase); n > 0 {
				hits += n
				hitInCategory = true
			}
		}
		if hitInCategory {
			categoriesHit++
		}
	}

	base := clip(1 - 1.5*float64(hits)/float64(s.total))

	multiplier := 1.0
	switch {
	case categoriesHit >= 4:
		multiplier = 0.60
	case categoriesHit >= 3:
		multiplier = 0.70
	case categoriesHit >= 2:
		multiplier = 0.80
	}

	return clip(base * multiplier)
}

// filterGoldenLines drops lines carrying a warning marker from already
// lowercased text.
func filterGoldenLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		marked := false
		for _, marker := range goldenMarkers {
			if strings.Contains(line, marker) {
				marked = true
				break
			}
		}
		if !marked {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
