// Package similarity ranks notes against a query, either by embedding
// cosine similarity or by plain substring matching. Neither strategy
// touches the store; both operate on an in-memory note list in store
// order.
package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/anki"
)

// FieldMatch records one field that contained the query.
type FieldMatch struct {
	FieldName  string `json:"field_name"`
	FieldValue string `json:"field_value"`
}

// Result is one ranked note. Score is populated by the embedding
// strategy; MatchingFields by the substring strategy.
type Result struct {
	Note           anki.Note    `json:"-"`
	Score          float64      `json:"score,omitempty"`
	MatchingFields []FieldMatch `json:"matching_fields,omitempty"`
}

// Cosine returns the cosine similarity of two vectors, or 0 when either
// has zero magnitude or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankByEmbedding scores each note vector against the query vector and
// returns results at or above threshold, descending by score, ties kept
// in note order, truncated to maxResults. Negative cosines are clamped
// to zero so scores stay in [0,1] for unit-normalized embeddings.
func RankByEmbedding(query []float64, notes []anki.Note, vectors [][]float64, threshold float64, maxResults int) []Result {
	var results []Result
	for i, note := range notes {
		if i >= len(vectors) {
			break
		}
		score := Cosine(query, vectors[i])
		if score < 0 {
			score = 0
		}
		if score >= threshold {
			results = append(results, Result{Note: note, Score: score})
		}
	}
	// Stable sort keeps store order between equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// MatchSubstring scans every field of every note for the query as a
// substring, honoring case sensitivity. Blank fields are skipped.
// Results keep store order, truncated to maxResults, and record which
// fields matched.
func MatchSubstring(query string, notes []anki.Note, caseSensitive bool, maxResults int) []Result {
	needle := query
	if !caseSensitive {
		needle = strings.ToLower(needle)
	}

	var results []Result
	for _, note := range notes {
		var matches []FieldMatch
		for _, name := range note.FieldNames() {
			value := strings.TrimSpace(note.Fields[name].Value)
			if value == "" {
				continue
			}
			haystack := value
			if !caseSensitive {
				haystack = strings.ToLower(haystack)
			}
			if strings.Contains(haystack, needle) {
				matches = append(matches, FieldMatch{FieldName: name, FieldValue: value})
			}
		}
		if len(matches) > 0 {
			results = append(results, Result{Note: note, MatchingFields: matches})
		}
		if maxResults > 0 && len(results) == maxResults {
			break
		}
	}
	return results
}
