package workset

import (
	"errors"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/a-schmidtlab/caption-translator/internal/dataset"
	"github.com/a-schmidtlab/caption-translator/pkg/log"
)

var (
	// ErrEmptyDataset is returned when the input has no data rows.
	ErrEmptyDataset = errors.New("dataset contains no rows")
	// ErrNoEligibleColumns is returned when no column matches the
	// designation rules.
	ErrNoEligibleColumns = errors.New("no column matches the translation rules")
)

// Builder scans the dataset and produces the translation cache.
type Builder struct {
	rules ColumnRules

	// SkipTargetLanguage resolves cells already written in the target
	// language to themselves instead of sending them to the backend.
	SkipTargetLanguage bool
	TargetLangISO      string // ISO 639-1 code, e.g. "en"
}

func NewBuilder(rules ColumnRules) *Builder {
	return &Builder{rules: rules}
}

// Build designates the eligible columns and collects every distinct
// non-blank cell value into a fresh cache. The returned skipped count is
// the number of texts resolved locally by language detection.
func (b *Builder) Build(table *dataset.Table) (*Cache, []Column, int, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, nil, 0, ErrEmptyDataset
	}

	columns, err := DesignateColumns(table.Columns, b.rules)
	if err != nil {
		return nil, nil, 0, err
	}

	cache := NewCache()
	for _, row := range table.Rows {
		for _, col := range columns {
			cache.Add(row[col.Source])
		}
	}

	skipped := 0
	if b.SkipTargetLanguage && b.TargetLangISO != "" {
		for _, text := range cache.Pending() {
			if whatlanggo.DetectLang(text).Iso6391() == b.TargetLangISO {
				cache.Put(text, text)
				skipped++
			}
		}
		if skipped > 0 {
			log.Info("Skipped %d cells already in target language %q", skipped, b.TargetLangISO)
		}
	}

	log.Info("Work set: %d distinct texts from %d rows across %d columns",
		cache.Len(), len(table.Rows), len(columns))
	return cache, columns, skipped, nil
}

// SeedFromArtifact scans a previously produced output table for resolved
// source/target column pairs and merges them into the cache.
func SeedFromArtifact(cache *Cache, columns []Column, artifact *dataset.Table) int {
	if artifact == nil {
		return 0
	}

	known := make(map[string]string)
	for _, row := range artifact.Rows {
		for _, col := range columns {
			source := row[col.Source]
			target := row[col.Target]
			if strings.TrimSpace(source) == "" || strings.TrimSpace(target) == "" {
				continue
			}
			known[source] = target
		}
	}

	return cache.Merge(known)
}
