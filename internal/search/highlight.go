package search

import "strings"

// fuzzyThreshold is the minimum trigram similarity for a word to count
// as a fuzzy hit. Matches pg_trgm's default word similarity threshold.
const fuzzyThreshold = 0.3

// HighlightFuzzy wraps every snippet word that is trigram-similar to a
// query word in the same << >> markers ts_headline uses, so fuzzy-only
// results are highlighted consistently with lexical ones.
func HighlightFuzzy(snippet, query string) string {
	queryWords := strings.Fields(strings.ToLower(query))
	if len(queryWords) == 0 || snippet == "" {
		return snippet
	}

	words := strings.Fields(snippet)
	changed := false
	for i, word := range words {
		trimmed := strings.ToLower(strings.Trim(word, ".,;:!?()[]{}\"'"))
		if trimmed == "" {
			continue
		}
		for _, qw := range queryWords {
			if trigramSimilarity(trimmed, qw) >= fuzzyThreshold {
				words[i] = "<<" + word + ">>"
				changed = true
				break
			}
		}
	}
	if !changed {
		return snippet
	}
	return strings.Join(words, " ")
}

// trigramSimilarity computes the pg_trgm-style similarity of two words:
// shared trigrams over the union, with two spaces padding the front and
// one the back.
func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for g := range ta {
		if tb[g] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func trigrams(word string) map[string]bool {
	if word == "" {
		return nil
	}
	padded := "  " + word + " "
	set := make(map[string]bool, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		set[padded[i:i+3]] = true
	}
	return set
}
