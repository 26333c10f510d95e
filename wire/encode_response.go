package wire

import (
	"fmt"

	"github.com/sysdb/ndbclient/ndb"
)

// The functions in this file build response payloads byte-for-byte
// compatible with DecodeResponse/decodeTable. They exist so this module's
// test fixtures (an in-process fake server standing in for a real cluster
// node) can produce real wire bytes instead of hand-built mocks of the Go
// types.

// ResponseSpec describes a response to encode.
type ResponseSpec struct {
	Handle           int64
	AppStatus        *int8
	AppStatusString  *string
	Status           ServerStatus
	StatusString     *string
	ClusterRoundTrip int32 // milliseconds
	Tables           [][]byte
}

// EncodeResponse renders spec into a response payload.
func EncodeResponse(spec ResponseSpec) []byte {
	e := NewEncoder()
	e.WriteInt64(spec.Handle)

	var bitmask byte
	if spec.AppStatus != nil {
		bitmask |= bitAppStatus
	}
	if spec.AppStatusString != nil {
		bitmask |= bitAppStatusString
	}
	if spec.StatusString != nil {
		bitmask |= bitStatusString
	}
	e.WriteInt8(int8(bitmask))

	if spec.AppStatus != nil {
		e.WriteInt8(*spec.AppStatus)
	}
	if spec.AppStatusString != nil {
		_ = e.WriteString(*spec.AppStatusString, false)
	}

	e.WriteInt8(int8(spec.Status))

	if spec.StatusString != nil {
		_ = e.WriteString(*spec.StatusString, false)
	}

	e.WriteInt32(spec.ClusterRoundTrip)
	e.WriteInt16(int16(len(spec.Tables)))
	for _, t := range spec.Tables {
		e.buf = append(e.buf, t...)
	}
	return e.Bytes()
}

// TableSpec describes a table to encode.
type TableSpec struct {
	Status      int8
	ColumnTypes []ndb.Tag
	ColumnNames []string
	Rows        [][]ndb.Value
}

// EncodeTable renders spec into a self-contained table payload (header +
// body), as embedded in a response by EncodeResponse.
func EncodeTable(spec TableSpec) ([]byte, error) {
	if len(spec.ColumnTypes) != len(spec.ColumnNames) {
		return nil, fmt.Errorf("column type/name count mismatch")
	}

	meta := NewEncoder()
	meta.WriteInt8(spec.Status)
	meta.WriteInt16(int16(len(spec.ColumnTypes)))
	for _, t := range spec.ColumnTypes {
		meta.WriteInt8(int8(t))
	}
	for _, n := range spec.ColumnNames {
		if err := meta.WriteString(n, false); err != nil {
			return nil, err
		}
	}

	body := NewEncoder()
	body.WriteInt32(int32(len(spec.Rows)))
	for ri, row := range spec.Rows {
		if len(row) != len(spec.ColumnTypes) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", ri, len(row), len(spec.ColumnTypes))
		}
		rowEnc := NewEncoder()
		for ci, cell := range row {
			if cell.Tag == 0 {
				cell.Tag = spec.ColumnTypes[ci]
			}
			if err := encodeScalarElement(rowEnc, cell); err != nil {
				return nil, err
			}
		}
		body.WriteInt32(int32(len(rowEnc.Bytes())))
		body.buf = append(body.buf, rowEnc.Bytes()...)
	}

	total := NewEncoder()
	total.WriteInt32(int32(8 + len(meta.Bytes()) + len(body.Bytes())))
	total.WriteInt32(int32(len(meta.Bytes())))
	total.buf = append(total.buf, meta.Bytes()...)
	total.buf = append(total.buf, body.Bytes()...)
	return total.Bytes(), nil
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
