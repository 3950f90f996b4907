package workset

import (
	"strings"

	"github.com/a-schmidtlab/caption-translator/internal/dataset"
)

// Apply materializes the finished cache back onto the table: each derived
// column is filled from the cache entry of its source cell. Blank source
// cells and sentinel-marked failures leave the derived cell empty, so a
// failed translation never masquerades as a successful one.
//
// The table is modified in place; the cache is only read. Returns the
// number of cells left empty because their translation failed.
func Apply(table *dataset.Table, columns []Column, cache *Cache) int {
	for _, col := range columns {
		table.AddColumn(col.Target)
	}

	failed := 0
	for _, row := range table.Rows {
		for _, col := range columns {
			source := row[col.Source]
			if strings.TrimSpace(source) == "" {
				row[col.Target] = ""
				continue
			}

			translated, ok := cache.Get(source)
			if !ok || translated == "" || translated == FailedSentinel {
				row[col.Target] = ""
				if translated == FailedSentinel {
					failed++
				}
				continue
			}
			row[col.Target] = translated
		}
	}
	return failed
}
