// Package batch partitions the pending work set into request batches
// bounded by combined character length and item count.
package batch

import "sort"

// Batch is an ordered group of unique pending texts sent to the backend
// in a single request.
type Batch struct {
	Texts []string
	Chars int
}

// Group partitions pending into batches. Texts are sorted by length
// ascending (ties broken lexicographically) so similarly sized texts land
// together and one oversized text cannot force a run of tiny batches; the
// partition is deterministic for a given input and limits.
//
// A text longer than maxChars on its own still becomes a single-item
// batch rather than being dropped.
func Group(pending []string, maxChars, maxItems int) []Batch {
	if len(pending) == 0 {
		return nil
	}
	if maxChars <= 0 {
		maxChars = 4000
	}
	if maxItems <= 0 {
		maxItems = 50
	}

	sorted := make([]string, len(pending))
	copy(sorted, pending)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) < len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})

	var batches []Batch
	current := Batch{}
	for _, text := range sorted {
		fits := len(current.Texts) < maxItems && current.Chars+len(text) <= maxChars
		if len(current.Texts) > 0 && !fits {
			batches = append(batches, current)
			current = Batch{}
		}
		current.Texts = append(current.Texts, text)
		current.Chars += len(text)
	}
	if len(current.Texts) > 0 {
		batches = append(batches, current)
	}
	return batches
}
