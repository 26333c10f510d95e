package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysdb/ndbclient/ndb"
)

func buildTestTable(t *testing.T) *Table {
	t.Helper()
	b := NewBuilder(1, []ndb.Tag{ndb.TagInt64, ndb.TagString, ndb.TagFloat64}, []string{"id", "name", "score"})
	require.NoError(t, b.AppendRow([]ndb.Value{
		{Tag: ndb.TagInt64, Int: 1},
		{Tag: ndb.TagString, Str: "alice"},
		{Tag: ndb.TagFloat64, Float: 9.5},
	}))
	require.NoError(t, b.AppendRow([]ndb.Value{
		{Tag: ndb.TagInt64, Int: 2},
		{Tag: ndb.TagString, Null: true},
		{Tag: ndb.TagFloat64, Null: true},
	}))
	return b.Build()
}

func TestTableAccessors(t *testing.T) {
	tbl := buildTestTable(t)

	assert.Equal(t, 2, tbl.RowCount())
	assert.True(t, tbl.HasData())
	assert.Equal(t, 3, tbl.ColumnCount())
	assert.Equal(t, int8(1), tbl.StatusByte())
	assert.Equal(t, "name", tbl.ColumnName(1))
	assert.Equal(t, ndb.TagFloat64, tbl.ColumnType(2))

	idx, ok := tbl.ColumnIndex("NAME")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = tbl.ColumnIndex("missing")
	assert.False(t, ok)
}

func TestTableEmptyHasData(t *testing.T) {
	b := NewBuilder(0, []ndb.Tag{ndb.TagInt64}, []string{"id"})
	tbl := b.Build()
	assert.Equal(t, 0, tbl.RowCount())
	assert.False(t, tbl.HasData())
}

func TestTableInt64AndString(t *testing.T) {
	tbl := buildTestTable(t)

	ids, nulls, err := tbl.Int64(0)
	require.Nil(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.Equal(t, []bool{false, false}, nulls)

	names, nameNulls, err := tbl.String(1)
	require.Nil(t, err)
	assert.Equal(t, []string{"alice", ""}, names)
	assert.Equal(t, []bool{false, true}, nameNulls)
}

func TestTableFloat64CastError(t *testing.T) {
	tbl := buildTestTable(t)
	_, _, err := tbl.Float64(0) // column 0 is INT64, not FLOAT64
	require.NotNil(t, err)
	assert.Equal(t, ndb.KindCast, err.Kind)
}

func TestTableCellAndRow(t *testing.T) {
	tbl := buildTestTable(t)

	cell, err := tbl.Cell(1, 0)
	require.Nil(t, err)
	assert.Equal(t, "alice", cell.Str)

	row, err := tbl.Row(1, nil)
	require.Nil(t, err)
	require.Len(t, row, 3)
	assert.Equal(t, int64(2), row[0].Int)
	assert.True(t, row[1].Null)
	assert.True(t, row[2].Null)
}

func TestTableRowOutOfRange(t *testing.T) {
	tbl := buildTestTable(t)
	_, err := tbl.Row(5, nil)
	require.NotNil(t, err)
	assert.Equal(t, ndb.KindCast, err.Kind)
}

func TestBuilderRejectsWrongCellCount(t *testing.T) {
	b := NewBuilder(0, []ndb.Tag{ndb.TagInt64, ndb.TagString}, []string{"id", "name"})
	err := b.AppendRow([]ndb.Value{{Tag: ndb.TagInt64, Int: 1}})
	require.Error(t, err)
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
