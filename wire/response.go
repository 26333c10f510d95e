package wire

import (
	"fmt"
	"time"

	"github.com/sysdb/ndbclient/ndb"
	"github.com/sysdb/ndbclient/table"
)

// Response bitmask bits marking which optional fields are present in the
// response payload.
const (
	bitAppStatus       = 1 << 0
	bitAppStatusString = 1 << 1
	bitStatusString    = 1 << 2
)

// ServerStatus is the coarse response status code.
type ServerStatus int8

const (
	StatusOK                 ServerStatus = 1
	StatusUserAbort          ServerStatus = -1
	StatusGracefulFailure    ServerStatus = -2
	StatusUnexpectedFailure  ServerStatus = -3
	StatusConnectionLost     ServerStatus = -4
	StatusServerUnavailable  ServerStatus = -5
	StatusConnectionTimeout  ServerStatus = -6
	StatusResponseUnknown    ServerStatus = -7
	StatusTransactionRestart ServerStatus = -8
	StatusOperationalFailure ServerStatus = -9
)

// Response is the fully decoded shape of a server reply.
type Response struct {
	Handle           int64
	AppStatus        int8
	HasAppStatus     bool
	AppStatusString  string
	Status           ServerStatus
	StatusString     string
	ClusterRoundTrip time.Duration
	Tables           []*table.Table
}

// DecodeResponse parses a full response payload.
func DecodeResponse(payload []byte) (*Response, *ndb.Error) {
	d := NewDecoder(payload)

	handle, err := d.ReadInt64()
	if err != nil {
		return nil, protoErr("handle", err)
	}
	bitmaskByte, err := d.ReadInt8()
	if err != nil {
		return nil, protoErr("bitmask", err)
	}
	bitmask := byte(bitmaskByte)

	resp := &Response{Handle: handle}

	if bitmask&bitAppStatus != 0 {
		v, err := d.ReadInt8()
		if err != nil {
			return nil, protoErr("app status", err)
		}
		resp.AppStatus = v
		resp.HasAppStatus = true
	}
	if bitmask&bitAppStatusString != 0 {
		s, _, err := d.ReadString()
		if err != nil {
			return nil, protoErr("app status string", err)
		}
		resp.AppStatusString = s
	}

	statusByte, err := d.ReadInt8()
	if err != nil {
		return nil, protoErr("status", err)
	}
	resp.Status = ServerStatus(statusByte)

	if bitmask&bitStatusString != 0 {
		s, _, err := d.ReadString()
		if err != nil {
			return nil, protoErr("status string", err)
		}
		resp.StatusString = s
	}

	rtt, err := d.ReadInt32()
	if err != nil {
		return nil, protoErr("cluster round trip", err)
	}
	resp.ClusterRoundTrip = time.Duration(rtt) * time.Millisecond

	tableCount, err := d.ReadInt16()
	if err != nil {
		return nil, protoErr("table count", err)
	}
	if tableCount < 0 {
		return nil, ndb.New(ndb.KindProtocol, fmt.Sprintf("negative table count %d", tableCount))
	}
	for i := int16(0); i < tableCount; i++ {
		t, terr := decodeTable(d)
		if terr != nil {
			return nil, ndb.Wrap(ndb.KindProtocol, fmt.Sprintf("table %d", i), terr)
		}
		resp.Tables = append(resp.Tables, t)
	}
	return resp, nil
}

func protoErr(field string, cause error) *ndb.Error {
	return ndb.Wrap(ndb.KindProtocol, fmt.Sprintf("truncated response (%s)", field), cause)
}

// decodeTable parses one Table: a byte-length-prefixed header/body pair.
// The row-major wire body is pivoted into column-major storage in a
// single forward pass via table.Builder.
func decodeTable(d *Decoder) (*table.Table, *ndb.Error) {
	totalLen, err := d.ReadInt32()
	if err != nil {
		return nil, protoErr("table total length", err)
	}
	if totalLen < 0 {
		return nil, ndb.New(ndb.KindProtocol, "negative table length")
	}
	// totalLen bounds the table's own payload (it is informational for
	// framing purposes here, since the surrounding response frame is
	// already fully buffered); validate it does not claim more than is
	// actually available.
	if int(totalLen) > d.Remaining()+4 {
		return nil, ndb.New(ndb.KindProtocol, "table length exceeds remaining frame")
	}

	metaLen, err := d.ReadInt32()
	if err != nil {
		return nil, protoErr("table metadata length", err)
	}
	if metaLen < 0 {
		return nil, ndb.New(ndb.KindProtocol, "negative table metadata length")
	}

	statusByte, err := d.ReadInt8()
	if err != nil {
		return nil, protoErr("table status", err)
	}

	colCount, err := d.ReadInt16()
	if err != nil {
		return nil, protoErr("table column count", err)
	}
	if colCount < 0 {
		return nil, ndb.New(ndb.KindProtocol, "negative column count")
	}

	colTypes := make([]ndb.Tag, colCount)
	for i := range colTypes {
		b, err := d.ReadInt8()
		if err != nil {
			return nil, protoErr("column type", err)
		}
		colTypes[i] = ndb.Tag(b)
		if !validTag(colTypes[i]) {
			return nil, ndb.New(ndb.KindProtocol, fmt.Sprintf("unknown column type tag %d", b))
		}
	}

	colNames := make([]string, colCount)
	for i := range colNames {
		s, _, err := d.ReadString()
		if err != nil {
			return nil, protoErr("column name", err)
		}
		colNames[i] = s
	}

	rowCount, err := d.ReadInt32()
	if err != nil {
		return nil, protoErr("row count", err)
	}
	if rowCount < 0 {
		return nil, ndb.New(ndb.KindProtocol, "negative row count")
	}

	builder := table.NewBuilder(int8(statusByte), colTypes, colNames)
	cells := make([]ndb.Value, colCount)
	for r := int32(0); r < rowCount; r++ {
		rowLen, err := d.ReadInt32()
		if err != nil {
			return nil, protoErr("row length", err)
		}
		if rowLen < 0 {
			return nil, ndb.New(ndb.KindProtocol, "negative row length")
		}
		rowStart := d.pos
		for c := range cells {
			v, err := d.ReadValue(colTypes[c])
			if err != nil {
				return nil, ndb.Wrap(ndb.KindProtocol, fmt.Sprintf("row %d column %d", r, c), err)
			}
			cells[c] = v
		}
		if d.pos-rowStart != int(rowLen) {
			return nil, ndb.New(ndb.KindProtocol, fmt.Sprintf("row %d declared length %d does not match decoded length %d", r, rowLen, d.pos-rowStart))
		}
		if err := builder.AppendRow(cells); err != nil {
			return nil, err.(*ndb.Error)
		}
	}
	_ = metaLen
	return builder.Build(), nil
}

func validTag(t ndb.Tag) bool {
	switch t {
	case ndb.TagInt8, ndb.TagInt16, ndb.TagInt32, ndb.TagInt64, ndb.TagFloat64,
		ndb.TagString, ndb.TagTimestamp, ndb.TagDecimal, ndb.TagVarbinary:
		return true
	default:
		return false
	}
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
