package dataset

// Row is a single record of the tabular input, keyed by column name.
// Missing cells read as the empty string.
type Row map[string]string

// Table represents a parsed tabular file: the ordered column header plus
// one Row per data line.
type Table struct {
	Path    string
	Columns []string
	Rows    []Row
}

// Reader is the interface for reading tabular files
type Reader interface {
	Read(path string) (*Table, error)
}

// Writer is the interface for writing tabular files
type Writer interface {
	Write(path string, table *Table) error
}

// HasColumn reports whether the table header contains name.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends name to the header if not already present.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}
