package akita

import (
	"github.com/syssam/akita/value"
)

// Column declares one mapped column: its name and the Value variant it
// decodes to.
type Column struct {
	Name string
	Kind value.Kind
}

// Descriptor is the externally generated contract describing how a record
// type corresponds to a table. The core consumes descriptors; it never
// inspects record internals and does not depend on how descriptors are
// produced.
type Descriptor struct {
	Table      string
	Columns    []Column
	PrimaryKey string
}

// ColumnNames returns the mapped column names in declaration order.
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Primary returns the primary-key column, if one is declared.
func (d *Descriptor) Primary() (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == d.PrimaryKey && d.PrimaryKey != "" {
			return c, true
		}
	}
	return Column{}, false
}

// Row is one decoded result row: column names in result order with their
// decoded Values.
type Row struct {
	columns []string
	values  []value.Value
	index   map[string]int
}

// NewRow builds a row from parallel column/value slices.
func NewRow(columns []string, values []value.Value) Row {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return Row{columns: columns, values: values, index: idx}
}

// Columns returns the column names in result order.
func (r Row) Columns() []string { return r.columns }

// Values returns the decoded values in result order.
func (r Row) Values() []value.Value { return r.values }

// Get returns the value of the named column.
func (r Row) Get(name string) (value.Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return value.Value{}, false
	}
	return r.values[i], true
}

// ColumnValue pairs a column name with the Value to write to it.
type ColumnValue struct {
	Column string
	V      value.Value
}

// Mapper is the boundary to generated mapping code for one record type. The
// core hands rows to DecodeRow and records to EncodeRecord; everything else
// about T is opaque to it.
type Mapper[T any] interface {
	// Descriptor returns the table mapping for T.
	Descriptor() *Descriptor

	// DecodeRow converts one result row into a record.
	DecodeRow(row Row) (T, error)

	// EncodeRecord converts a record into its column values, in the
	// descriptor's column order.
	EncodeRecord(rec T) ([]ColumnValue, error)
}
