// Package table provides zero-copy, strictly-typed access to a
// deserialized tabular result set. A Table owns one column-major array
// per declared column type, and per-cell/per-column accessors are typed
// and fail with a cast error on mismatch rather than coercing.
package table

import (
	"strings"
	"time"

	"github.com/sysdb/ndbclient/ndb"
)

// microsToTime converts a TIMESTAMP wire value (microseconds since the
// Unix epoch) to a time.Time in UTC.
func microsToTime(micros int64) time.Time {
	return time.UnixMicro(micros).UTC()
}

// Table is a self-contained deserialized result set. It is produced once by
// the wire codec and is owned by the Call result, shared read-only
// thereafter.
type Table struct {
	status      int8
	columnTypes []ndb.Tag
	columnNames []string
	nameIndex   map[string]int // lower-cased name -> column index
	rowCount    int
	columns     []column // one per declared column, native representation
}

// column holds one column's values in column-major order. Exactly one of
// the typed slices is populated, selected by the column's declared Tag.
type column struct {
	tag       ndb.Tag
	int8s     []int8
	int16s    []int16
	int32s    []int32
	int64s    []int64
	float64s  []float64
	strings   []string
	varbins   [][]byte
	decimals  []ndb.Value // reuse ndb.Value to carry decimal.Decimal + Null
	timestamp []ndb.Value
	nulls     []bool
}

// New builds a Table from already-decoded column-major data. It is called
// only by the wire codec's single-pass row-to-column pivot; application
// code never constructs a Table directly.
func New(status int8, columnTypes []ndb.Tag, columnNames []string, rowCount int, columns []column) *Table {
	idx := make(map[string]int, len(columnNames))
	for i, n := range columnNames {
		idx[strings.ToLower(n)] = i
	}
	return &Table{
		status:      status,
		columnTypes: columnTypes,
		columnNames: columnNames,
		nameIndex:   idx,
		rowCount:    rowCount,
		columns:     columns,
	}
}

// Builder accumulates column-major data while the wire codec pivots a
// row-major wire payload, then freezes into a Table. Kept in this package
// (rather than exposing the unexported column type) so the codec and the
// table model share the exact same in-memory column representation.
type Builder struct {
	status      int8
	columnTypes []ndb.Tag
	columnNames []string
	columns     []column
	rowCount    int
}

// NewBuilder starts a Table build for the given header.
func NewBuilder(status int8, columnTypes []ndb.Tag, columnNames []string) *Builder {
	cols := make([]column, len(columnTypes))
	for i, t := range columnTypes {
		cols[i] = column{tag: t}
	}
	return &Builder{status: status, columnTypes: columnTypes, columnNames: columnNames, columns: cols}
}

// AppendRow appends one row's cells, in declared column order, each already
// decoded as an ndb.Value (Null set for sentinel values).
func (b *Builder) AppendRow(cells []ndb.Value) error {
	if len(cells) != len(b.columns) {
		return ndb.New(ndb.KindProtocol, "row cell count does not match column count")
	}
	for i, c := range cells {
		col := &b.columns[i]
		col.nulls = append(col.nulls, c.Null)
		switch col.tag {
		case ndb.TagInt8:
			col.int8s = append(col.int8s, int8(c.Int))
		case ndb.TagInt16:
			col.int16s = append(col.int16s, int16(c.Int))
		case ndb.TagInt32:
			col.int32s = append(col.int32s, int32(c.Int))
		case ndb.TagInt64, ndb.TagTimestamp:
			col.int64s = append(col.int64s, c.Int)
		case ndb.TagFloat64:
			col.float64s = append(col.float64s, c.Float)
		case ndb.TagString:
			col.strings = append(col.strings, c.Str)
		case ndb.TagVarbinary:
			col.varbins = append(col.varbins, c.Bytes)
		case ndb.TagDecimal:
			col.decimals = append(col.decimals, c)
		default:
			return ndb.New(ndb.KindProtocol, "unsupported column type in row")
		}
	}
	b.rowCount++
	return nil
}

// Build freezes the builder into a Table.
func (b *Builder) Build() *Table {
	return New(b.status, b.columnTypes, b.columnNames, b.rowCount, b.columns)
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int { return t.rowCount }

// HasData reports whether the table has at least one row.
func (t *Table) HasData() bool { return t.rowCount > 0 }

// ColumnCount returns the number of columns.
func (t *Table) ColumnCount() int { return len(t.columnTypes) }

// StatusByte returns the table's signed status byte.
func (t *Table) StatusByte() int8 { return t.status }

// ColumnName returns the name of column i.
func (t *Table) ColumnName(i int) string { return t.columnNames[i] }

// ColumnType returns the declared wire type of column i.
func (t *Table) ColumnType(i int) ndb.Tag { return t.columnTypes[i] }

// ColumnIndex looks up a column by name, case-insensitively. ok is false if
// no such column exists.
func (t *Table) ColumnIndex(name string) (idx int, ok bool) {
	i, found := t.nameIndex[strings.ToLower(name)]
	if !found {
		return -1, false
	}
	return i, true
}

// Int64 returns column col's native 8/16/32/64-bit integer values widened
// to int64, and a per-row null mask; a TIMESTAMP column yields its raw
// microseconds since the epoch. Requesting a column whose declared type is
// neither an integer tag nor TIMESTAMP is a cast error.
func (t *Table) Int64(col int) ([]int64, []bool, *ndb.Error) {
	if col < 0 || col >= len(t.columns) {
		return nil, nil, ndb.New(ndb.KindCast, "column index out of range")
	}
	c := &t.columns[col]
	switch c.tag {
	case ndb.TagInt8:
		out := make([]int64, len(c.int8s))
		for i, v := range c.int8s {
			out[i] = int64(v)
		}
		return out, c.nulls, nil
	case ndb.TagInt16:
		out := make([]int64, len(c.int16s))
		for i, v := range c.int16s {
			out[i] = int64(v)
		}
		return out, c.nulls, nil
	case ndb.TagInt32:
		out := make([]int64, len(c.int32s))
		for i, v := range c.int32s {
			out[i] = int64(v)
		}
		return out, c.nulls, nil
	case ndb.TagInt64, ndb.TagTimestamp:
		return c.int64s, c.nulls, nil
	default:
		return nil, nil, ndb.New(ndb.KindCast, "column is not an integer/timestamp type")
	}
}

// Float64 returns column col's FLOAT64 values and null mask.
func (t *Table) Float64(col int) ([]float64, []bool, *ndb.Error) {
	if col < 0 || col >= len(t.columns) || t.columns[col].tag != ndb.TagFloat64 {
		return nil, nil, ndb.New(ndb.KindCast, "column is not FLOAT64")
	}
	return t.columns[col].float64s, t.columns[col].nulls, nil
}

// String returns column col's STRING values and null mask.
func (t *Table) String(col int) ([]string, []bool, *ndb.Error) {
	if col < 0 || col >= len(t.columns) || t.columns[col].tag != ndb.TagString {
		return nil, nil, ndb.New(ndb.KindCast, "column is not STRING")
	}
	return t.columns[col].strings, t.columns[col].nulls, nil
}

// Varbinary returns column col's VARBINARY values and null mask.
func (t *Table) Varbinary(col int) ([][]byte, []bool, *ndb.Error) {
	if col < 0 || col >= len(t.columns) || t.columns[col].tag != ndb.TagVarbinary {
		return nil, nil, ndb.New(ndb.KindCast, "column is not VARBINARY")
	}
	return t.columns[col].varbins, t.columns[col].nulls, nil
}

// Decimal returns column col's DECIMAL values (as ndb.Value, Null set for
// the sentinel) and null mask.
func (t *Table) Decimal(col int) ([]ndb.Value, []bool, *ndb.Error) {
	if col < 0 || col >= len(t.columns) || t.columns[col].tag != ndb.TagDecimal {
		return nil, nil, ndb.New(ndb.KindCast, "column is not DECIMAL")
	}
	return t.columns[col].decimals, t.columns[col].nulls, nil
}

// Cell returns the value at (col, row) boxed in an ndb.Value, regardless of
// its declared type; used by row iteration where the caller already knows
// each column's type from the header and wants to avoid building whole
// per-column slices.
func (t *Table) Cell(col, row int) (ndb.Value, *ndb.Error) {
	if col < 0 || col >= len(t.columns) {
		return ndb.Value{}, ndb.New(ndb.KindCast, "column index out of range")
	}
	if row < 0 || row >= t.rowCount {
		return ndb.Value{}, ndb.New(ndb.KindCast, "row index out of range")
	}
	c := &t.columns[col]
	v := ndb.Value{Tag: c.tag, Null: c.nulls[row]}
	switch c.tag {
	case ndb.TagInt8:
		v.Int = int64(c.int8s[row])
	case ndb.TagInt16:
		v.Int = int64(c.int16s[row])
	case ndb.TagInt32:
		v.Int = int64(c.int32s[row])
	case ndb.TagInt64:
		v.Int = c.int64s[row]
	case ndb.TagTimestamp:
		v.Int = c.int64s[row]
		v.Timestamp = microsToTime(c.int64s[row])
	case ndb.TagFloat64:
		v.Float = c.float64s[row]
	case ndb.TagString:
		v.Str = c.strings[row]
	case ndb.TagVarbinary:
		v.Bytes = c.varbins[row]
	case ndb.TagDecimal:
		v = c.decimals[row]
	}
	return v, nil
}

// Row yields the cells of logical row r without allocating an intermediate
// row struct: the caller supplies a slice to fill, reused across calls.
func (t *Table) Row(r int, into []ndb.Value) ([]ndb.Value, *ndb.Error) {
	if r < 0 || r >= t.rowCount {
		return nil, ndb.New(ndb.KindCast, "row index out of range")
	}
	if cap(into) < len(t.columns) {
		into = make([]ndb.Value, len(t.columns))
	}
	into = into[:len(t.columns)]
	for i := range t.columns {
		v, err := t.Cell(i, r)
		if err != nil {
			return nil, err
		}
		into[i] = v
	}
	return into, nil
}
