package model

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/coldwave/flake-go/pkg/wire"
)

// ColumnSet names the columns of a table.
type ColumnSet = wire.TagArray

// Table errors.
var (
	ErrTableTruncated = errors.New("model: truncated table")
	ErrTableTooLarge  = errors.New("model: table too large")
)

// CompareOp is a restriction comparison.
type CompareOp uint8

const (
	// CompareEQ matches rows whose column equals the value.
	CompareEQ CompareOp = iota
)

// Restriction selects rows. The zero value is unrestricted.
type Restriction struct {
	compare bool
	op      CompareOp
	value   wire.Property
}

// Equal restricts to rows whose column v.Tag equals v.
func Equal(v wire.Property) Restriction {
	return Restriction{compare: true, op: CompareEQ, value: v}
}

// Unrestricted reports whether r matches every row.
func (r Restriction) Unrestricted() bool { return !r.compare }

// Match reports whether row satisfies r.
func (r Restriction) Match(row wire.PropArray) bool {
	if !r.compare {
		return true
	}
	p, ok := row.Lookup(r.value.Tag)
	if !ok || p.IsError() {
		return false
	}
	switch r.op {
	case CompareEQ:
		return p.Equal(r.value)
	}
	return false
}

// Table is a result set of rows projected onto a column set, as returned
// by queryObjects.
type Table struct {
	columns ColumnSet
	rows    []wire.PropArray
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ColumnSet) *Table {
	return &Table{columns: slices.Clone(columns)}
}

// Columns returns the column set.
func (t *Table) Columns() ColumnSet { return slices.Clone(t.columns) }

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// Row returns the i-th row.
func (t *Table) Row(i int) wire.PropArray { return t.rows[i] }

// Rows returns all rows in order.
func (t *Table) Rows() []wire.PropArray { return slices.Clone(t.rows) }

// AddRow appends props projected onto the column set. Columns props lacks
// are filled with wire.StatusNotFound error properties.
func (t *Table) AddRow(props wire.PropArray) {
	var row wire.PropArray
	for _, c := range t.columns {
		if p, ok := props.Lookup(c); ok {
			row.Set(p)
		} else {
			row.Set(wire.NewError(c, wire.StatusNotFound))
		}
	}
	t.rows = append(t.rows, row)
}

// Filter returns a new table with the rows matching r.
func (t *Table) Filter(r Restriction) *Table {
	out := NewTable(t.columns)
	for _, row := range t.rows {
		if r.Match(row) {
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// Sort orders the rows by the first column.
func (t *Table) Sort() {
	if len(t.columns) == 0 {
		return
	}
	t.SortBy(t.columns[0])
}

// SortBy orders the rows by column tag. Rows with an error in that column
// sort last. The sort is stable.
func (t *Table) SortBy(tag wire.Tag) {
	slices.SortStableFunc(t.rows, func(a, b wire.PropArray) int {
		pa, pb := a.Get(tag), b.Get(tag)
		switch {
		case pa.IsError() && pb.IsError():
			return 0
		case pa.IsError():
			return 1
		case pb.IsError():
			return -1
		}
		return compareValues(pa, pb)
	})
}

// compareValues orders two non-error properties. Values of unrelated kinds
// compare equal.
func compareValues(a, b wire.Property) int {
	if x, ok := a.AsInt(); ok {
		if y, ok := b.AsInt(); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := a.AsFloat(); ok {
		if y, ok := b.AsFloat(); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := a.AsString(); ok {
		if y, ok := b.AsString(); ok {
			return strings.Compare(x, y)
		}
	}
	if x, ok := a.AsUniqueID(); ok {
		if y, ok := b.AsUniqueID(); ok {
			return bytes.Compare(x[:], y[:])
		}
	}
	if x, ok := a.AsBytes(); ok {
		if y, ok := b.AsBytes(); ok {
			return bytes.Compare(x, y)
		}
	}
	return 0
}

// MarshalBinary encodes the table as carried in OBJECT_TABLE: the column
// TagArray, u16 row count, then each row as u16 length and PropArray.
func (t *Table) MarshalBinary() ([]byte, error) {
	out := wire.MarshalTagArray(t.columns)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(t.rows)))
	for i, row := range t.rows {
		b, err := wire.MarshalPropArray(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(len(b)))
		out = append(out, b...)
	}
	if len(out) > wire.MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTableTooLarge, len(out))
	}
	return out, nil
}

// UnmarshalTable decodes a table encoded by MarshalBinary.
func UnmarshalTable(data []byte) (*Table, error) {
	cols, off, err := wire.UnmarshalTagArray(data)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	t := NewTable(cols)
	if len(data)-off < 2 {
		return nil, ErrTableTruncated
	}
	n := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	for i := range n {
		if len(data)-off < 2 {
			return nil, fmt.Errorf("row %d: %w", i, ErrTableTruncated)
		}
		size := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if len(data)-off < size {
			return nil, fmt.Errorf("row %d: %w", i, ErrTableTruncated)
		}
		row, err := wire.UnmarshalPropArray(data[off : off+size])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		off += size
		t.rows = append(t.rows, row)
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d bytes", wire.ErrTrailingData, len(data)-off)
	}
	return t, nil
}

// TableProperty wraps t as an OBJECT_TABLE property.
func TableProperty(t *Table) (wire.Property, error) {
	b, err := t.MarshalBinary()
	if err != nil {
		return wire.NewError(wire.TagObjectTable, wire.StatusNoAlloc), err
	}
	return wire.NewBinary(wire.TagObjectTable, b), nil
}

// TableFromProps extracts the OBJECT_TABLE property of props.
func TableFromProps(props wire.PropArray) (*Table, error) {
	p := props.Get(wire.TagObjectTable)
	if p.IsError() {
		return nil, p.Err()
	}
	b, ok := p.AsBytes()
	if !ok {
		return nil, wire.StatusUnsupported
	}
	return UnmarshalTable(b)
}
