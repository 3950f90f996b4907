package workset

import (
	"fmt"
	"slices"
	"strings"
)

// ColumnRules controls which dataset columns are translated.
// A column is eligible when its name is on the allow-list or ends with the
// source suffix; the deny-list wins over both.
type ColumnRules struct {
	AllowList    []string
	DenyList     []string
	SourceSuffix string // e.g. "_DE"
	TargetSuffix string // e.g. "_EN"
}

// Column pairs a source column with its derived translated counterpart.
type Column struct {
	Source string
	Target string
}

// DesignateColumns selects the eligible columns from the dataset header
// and derives the translated column name for each.
func DesignateColumns(names []string, rules ColumnRules) ([]Column, error) {
	if rules.TargetSuffix == "" {
		return nil, fmt.Errorf("target column suffix is required")
	}

	columns := make([]Column, 0)
	for _, name := range names {
		if name == "" || slices.Contains(rules.DenyList, name) {
			continue
		}

		bySuffix := rules.SourceSuffix != "" && strings.HasSuffix(name, rules.SourceSuffix)
		byAllowList := slices.Contains(rules.AllowList, name)
		if !bySuffix && !byAllowList {
			continue
		}

		columns = append(columns, Column{
			Source: name,
			Target: deriveTarget(name, rules),
		})
	}

	if len(columns) == 0 {
		return nil, ErrNoEligibleColumns
	}
	return columns, nil
}

// deriveTarget swaps the source suffix for the target suffix; allow-listed
// columns without the suffix get the target suffix appended.
func deriveTarget(name string, rules ColumnRules) string {
	if rules.SourceSuffix != "" && strings.HasSuffix(name, rules.SourceSuffix) {
		return strings.TrimSuffix(name, rules.SourceSuffix) + rules.TargetSuffix
	}
	return name + rules.TargetSuffix
}
