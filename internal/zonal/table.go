package zonal

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Table is a column-named set of rows. Cells hold float64, int, string, or
// any passthrough attribute value.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// AddRow appends one row; it must have one value per column.
func (t *Table) AddRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return eris.Errorf("zonal: row has %d values for %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	return slices.Index(t.Columns, name)
}

// SameColumns reports whether t and o have identical column lists.
func (t *Table) SameColumns(o *Table) bool {
	return slices.Equal(t.Columns, o.Columns)
}

// Append concatenates o's rows onto t. Both tables must have the same columns.
func (t *Table) Append(o *Table) error {
	if !t.SameColumns(o) {
		return &SchemaMismatchError{Feature: -1, Want: t.Columns, Got: o.Columns}
	}
	t.Rows = append(t.Rows, o.Rows...)
	return nil
}
