package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysdb/ndbclient/ndb"
)

func TestFrameRoundTrip(t *testing.T) {
	for _, payload := range [][]byte{
		{},
		{1, 2, 3},
		bytes.Repeat([]byte{0xAB}, 4096),
	} {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, payload))
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestReadFrameRejectsUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 2})
	buf.Write([]byte{7, 0})
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestEncodeValueRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	dec := decimal.RequireFromString("1234.567")

	tests := []struct {
		name string
		in   ndb.Value
	}{
		{"int8", ndb.Value{Tag: ndb.TagInt8, Int: 42}},
		{"int8 null", ndb.Value{Tag: ndb.TagInt8, Null: true}},
		{"int16", ndb.Value{Tag: ndb.TagInt16, Int: -1000}},
		{"int32", ndb.Value{Tag: ndb.TagInt32, Int: 123456}},
		{"int64", ndb.Value{Tag: ndb.TagInt64, Int: -9000000000}},
		{"int64 null", ndb.Value{Tag: ndb.TagInt64, Null: true}},
		{"float64", ndb.Value{Tag: ndb.TagFloat64, Float: 3.14159}},
		{"string", ndb.Value{Tag: ndb.TagString, Str: "hello world"}},
		{"string null", ndb.Value{Tag: ndb.TagString, Null: true}},
		{"varbinary", ndb.Value{Tag: ndb.TagVarbinary, Bytes: []byte{0x01, 0x02, 0xFF}}},
		{"timestamp", ndb.Value{Tag: ndb.TagTimestamp, Timestamp: ts}},
		{"decimal", ndb.Value{Tag: ndb.TagDecimal, Decimal: dec}},
		{"decimal null", ndb.Value{Tag: ndb.TagDecimal, Null: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEncoder()
			require.NoError(t, EncodeValue(e, tt.in))
			d := NewDecoder(e.Bytes())
			gotTag, err := d.ReadInt8()
			require.NoError(t, err)
			assert.Equal(t, int8(tt.in.Tag), gotTag)

			got, err := d.ReadValue(tt.in.Tag)
			require.NoError(t, err)
			assert.Equal(t, tt.in.Null, got.Null)
			if tt.in.Null {
				return
			}
			switch tt.in.Tag {
			case ndb.TagString:
				assert.Equal(t, tt.in.Str, got.Str)
			case ndb.TagVarbinary:
				assert.Equal(t, tt.in.Bytes, got.Bytes)
			case ndb.TagFloat64:
				assert.InDelta(t, tt.in.Float, got.Float, 1e-9)
			case ndb.TagTimestamp:
				assert.Equal(t, tt.in.Timestamp.UnixMicro(), got.Timestamp.UnixMicro())
			case ndb.TagDecimal:
				assert.True(t, tt.in.Decimal.Equal(got.Decimal))
			default:
				assert.Equal(t, tt.in.Int, got.Int)
			}
		})
	}
}

func TestEncodeArrayRoundTrip(t *testing.T) {
	arr := ndb.Value{
		Tag:     ndb.TagArray,
		ElemTag: ndb.TagInt32,
		Array: []ndb.Value{
			{Tag: ndb.TagInt32, Int: 1},
			{Tag: ndb.TagInt32, Int: 2},
			{Tag: ndb.TagInt32, Null: true},
		},
	}
	e := NewEncoder()
	require.NoError(t, EncodeValue(e, arr))

	d := NewDecoder(e.Bytes())
	tag, err := d.ReadInt8()
	require.NoError(t, err)
	require.Equal(t, int8(ndb.TagArray), tag)

	got, err := d.ReadArray()
	require.NoError(t, err)
	require.Equal(t, ndb.TagInt32, got.ElemTag)
	require.Len(t, got.Array, 3)
	assert.Equal(t, int64(1), got.Array[0].Int)
	assert.Equal(t, int64(2), got.Array[1].Int)
	assert.True(t, got.Array[2].Null)
}

func TestEncodeValueOversizeString(t *testing.T) {
	e := NewEncoder()
	huge := make([]byte, MaxValueSize+1)
	err := EncodeValue(e, ndb.Value{Tag: ndb.TagString, Str: string(huge)})
	require.Error(t, err)
	var ndbErr *ndb.Error
	require.ErrorAs(t, err, &ndbErr)
	assert.Equal(t, ndb.KindEncoding, ndbErr.Kind)
}

func TestLoginRoundTrip(t *testing.T) {
	payload, err := EncodeLogin(LoginRequest{
		Service:    "database",
		Username:   "alice",
		Password:   "s3cret",
		AuthScheme: AuthSHA1,
	})
	require.NoError(t, err)

	d := NewDecoder(payload)
	version, err := d.ReadInt8()
	require.NoError(t, err)
	assert.Equal(t, int8(ProtocolVersion), version)
	service, _, err := d.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "database", service)
	user, _, err := d.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, 20, d.Remaining()-1) // 20-byte SHA-1 + 1 auth-scheme byte
}

func TestDecodeLoginResponseOK(t *testing.T) {
	e := NewEncoder()
	e.WriteInt8(int8(LoginOK))
	e.WriteInt32(7)            // host id
	e.WriteInt64(42)           // connection id
	e.WriteInt64(1700000000000) // instance timestamp
	e.WriteInt32(0x7F000001)   // leader ip
	require.NoError(t, e.WriteString("v1.2.3", false))

	resp, err := DecodeLoginResponse(e.Bytes())
	require.Nil(t, err)
	assert.Equal(t, LoginOK, resp.Result)
	assert.Equal(t, int32(7), resp.HostID)
	assert.Equal(t, int64(42), resp.ConnectionID)
	assert.Equal(t, "v1.2.3", resp.BuildString)
}

func TestDecodeLoginResponseCredentialMismatch(t *testing.T) {
	e := NewEncoder()
	e.WriteInt8(int8(LoginCredentialMismatch))
	resp, err := DecodeLoginResponse(e.Bytes())
	require.NotNil(t, err)
	assert.Equal(t, ndb.KindAuthentication, err.Kind)
	assert.Equal(t, LoginCredentialMismatch, resp.Result)
}

func TestEncodeDecodeTableRoundTrip(t *testing.T) {
	rows := [][]ndb.Value{
		{{Tag: ndb.TagInt64, Int: 1}, {Tag: ndb.TagString, Str: "alice"}},
		{{Tag: ndb.TagInt64, Int: 2}, {Tag: ndb.TagString, Null: true}},
	}
	tableBytes, err := EncodeTable(TableSpec{
		Status:      1,
		ColumnTypes: []ndb.Tag{ndb.TagInt64, ndb.TagString},
		ColumnNames: []string{"id", "name"},
		Rows:        rows,
	})
	require.NoError(t, err)

	resp := EncodeResponse(ResponseSpec{
		Handle:           99,
		Status:           StatusOK,
		ClusterRoundTrip: 12,
		Tables:           [][]byte{tableBytes},
	})

	decoded, derr := DecodeResponse(resp)
	require.Nil(t, derr)
	assert.Equal(t, int64(99), decoded.Handle)
	assert.Equal(t, StatusOK, decoded.Status)
	require.Len(t, decoded.Tables, 1)

	tbl := decoded.Tables[0]
	assert.Equal(t, 2, tbl.RowCount())
	assert.Equal(t, 2, tbl.ColumnCount())
	ids, nulls, cerr := tbl.Int64(0)
	require.Nil(t, cerr)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.Equal(t, []bool{false, false}, nulls)

	names, nameNulls, cerr := tbl.String(1)
	require.Nil(t, cerr)
	assert.Equal(t, []string{"alice", ""}, names)
	assert.Equal(t, []bool{false, true}, nameNulls)
}

func TestEncodeResponseWithAppStatus(t *testing.T) {
	appStatus := int8(5)
	appStatusStr := "ok"
	statusStr := "done"
	resp := EncodeResponse(ResponseSpec{
		Handle:          1,
		AppStatus:       &appStatus,
		AppStatusString: &appStatusStr,
		Status:          StatusOK,
		StatusString:    &statusStr,
	})
	decoded, err := DecodeResponse(resp)
	require.Nil(t, err)
	require.True(t, decoded.HasAppStatus)
	assert.Equal(t, int8(5), decoded.AppStatus)
	assert.Equal(t, "ok", decoded.AppStatusString)
	assert.Equal(t, "done", decoded.StatusString)
}

func TestDecimalWireFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "-1", "1234.567890123456", "-999999999.999999999999"} {
		d := decimal.RequireFromString(s)
		e := NewEncoder()
		require.NoError(t, e.WriteDecimal(d, false))
		require.Len(t, e.Bytes(), 16)

		dec := NewDecoder(e.Bytes())
		v, err := dec.ReadDecimal()
		require.NoError(t, err)
		assert.False(t, v.Null)
		assert.True(t, d.Equal(v.Decimal), "got %s want %s", v.Decimal, d)
	}
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
