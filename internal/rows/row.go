package rows

import (
	"fmt"
	"strings"
)

// columnIndex builds a case-insensitive name->index map from a slice of
// RowType, preserving the original names for display/iteration.
func columnIndex(types []RowType) map[string]int {
	idx := make(map[string]int, len(types))
	for i, t := range types {
		idx[strings.ToLower(t.Name)] = i
	}
	return idx
}

// Row is a view over one decoded record: a reference to the shared
// column types/index plus this record's raw cells. It has no lifetime of
// its own beyond the Result that produced it.
type Row struct {
	types []RowType
	index map[string]int
	cells []*string
}

func newRow(types []RowType, index map[string]int, cells []*string) Row {
	return Row{types: types, index: index, cells: cells}
}

// ColumnNames returns the column names in declared order.
func (r Row) ColumnNames() []string {
	names := make([]string, len(r.types))
	for i, t := range r.types {
		names[i] = t.Name
	}
	return names
}

// ValueAt decodes and returns the cell at the given column index.
func (r Row) ValueAt(i int) (any, error) {
	if i < 0 || i >= len(r.types) {
		return nil, fmt.Errorf("rows: column index %d out of range [0,%d)", i, len(r.types))
	}
	return Decode(r.types[i], r.cells[i])
}

// Value decodes and returns the cell for the named column
// (case-insensitive).
func (r Row) Value(name string) (any, error) {
	i, ok := r.index[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("rows: no such column %q", name)
	}
	return r.ValueAt(i)
}

// ToMap decodes every cell into a name->value map keyed by the
// lower-cased column name, so a lookup via ToMap()[strings.ToLower(name)]
// always agrees with Value(name) and ValueAt(index) for the same column.
// Use ColumnNames for original-case, declared-order names.
func (r Row) ToMap() (map[string]any, error) {
	out := make(map[string]any, len(r.types))
	for i, t := range r.types {
		v, err := r.ValueAt(i)
		if err != nil {
			return nil, err
		}
		out[strings.ToLower(t.Name)] = v
	}
	return out, nil
}
