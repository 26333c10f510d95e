package wire

import (
	"fmt"

	"github.com/sysdb/ndbclient/ndb"
)

// DefaultBatchTimeoutHint is the wire sentinel meaning "use the server's
// default batch timeout".
const DefaultBatchTimeoutHint int32 = -1

// EncodeInvocation builds a procedure-invocation request payload: client
// handle, procedure name, batch timeout hint, then the parameter vector.
func EncodeInvocation(handle int64, procedure string, params []ndb.Value, batchTimeoutHintMS int32) ([]byte, *ndb.Error) {
	e := NewEncoder()
	e.WriteInt64(handle)
	if err := e.WriteString(procedure, false); err != nil {
		return nil, err.(*ndb.Error)
	}
	e.WriteInt32(batchTimeoutHintMS)

	if len(params) > 32767 {
		return nil, ndb.New(ndb.KindEncoding, "too many parameters for INT16 count")
	}
	e.WriteInt16(int16(len(params)))
	for i, p := range params {
		if err := EncodeValue(e, p); err != nil {
			return nil, ndb.Wrap(ndb.KindEncoding, fmt.Sprintf("parameter %d", i), err)
		}
	}
	return e.Bytes(), nil
}

// EncodeValue writes one parameter's 1-byte type tag followed by its
// encoded value, handling the ARRAY tag (-99).
func EncodeValue(e *Encoder, v ndb.Value) error {
	e.WriteInt8(int8(v.Tag))
	switch v.Tag {
	case ndb.TagInt8:
		if v.Null {
			e.WriteInt8(nullInt8)
		} else {
			e.WriteInt8(int8(v.Int))
		}
	case ndb.TagInt16:
		if v.Null {
			e.WriteInt16(nullInt16)
		} else {
			e.WriteInt16(int16(v.Int))
		}
	case ndb.TagInt32:
		if v.Null {
			e.WriteInt32(nullInt32)
		} else {
			e.WriteInt32(int32(v.Int))
		}
	case ndb.TagInt64:
		if v.Null {
			e.WriteInt64(nullInt64)
		} else {
			e.WriteInt64(v.Int)
		}
	case ndb.TagFloat64:
		if v.Null {
			e.WriteFloat64(nullFloat64)
		} else {
			e.WriteFloat64(v.Float)
		}
	case ndb.TagTimestamp:
		e.WriteTimestamp(v.Timestamp, v.Null)
	case ndb.TagString:
		return e.WriteString(v.Str, v.Null)
	case ndb.TagVarbinary:
		return e.WriteVarbinary(v.Bytes, v.Null)
	case ndb.TagDecimal:
		return e.WriteDecimal(v.Decimal, v.Null)
	case ndb.TagArray:
		e.WriteInt8(int8(v.ElemTag))
		if len(v.Array) > 32767 {
			return ndb.New(ndb.KindEncoding, "array element count exceeds INT16 range")
		}
		e.WriteInt16(int16(len(v.Array)))
		for i, elem := range v.Array {
			if elem.Tag == 0 {
				elem.Tag = v.ElemTag
			}
			if err := encodeScalarElement(e, elem); err != nil {
				return ndb.Wrap(ndb.KindEncoding, fmt.Sprintf("array element %d", i), err)
			}
		}
	default:
		return ndb.New(ndb.KindEncoding, fmt.Sprintf("unsupported parameter type tag %d", v.Tag))
	}
	return nil
}

// encodeScalarElement writes one array element's value without a leading
// type tag byte (the element type was already written once for the whole
// array).
func encodeScalarElement(e *Encoder, v ndb.Value) error {
	switch v.Tag {
	case ndb.TagInt8:
		if v.Null {
			e.WriteInt8(nullInt8)
		} else {
			e.WriteInt8(int8(v.Int))
		}
	case ndb.TagInt16:
		if v.Null {
			e.WriteInt16(nullInt16)
		} else {
			e.WriteInt16(int16(v.Int))
		}
	case ndb.TagInt32:
		if v.Null {
			e.WriteInt32(nullInt32)
		} else {
			e.WriteInt32(int32(v.Int))
		}
	case ndb.TagInt64:
		if v.Null {
			e.WriteInt64(nullInt64)
		} else {
			e.WriteInt64(v.Int)
		}
	case ndb.TagFloat64:
		if v.Null {
			e.WriteFloat64(nullFloat64)
		} else {
			e.WriteFloat64(v.Float)
		}
	case ndb.TagTimestamp:
		e.WriteTimestamp(v.Timestamp, v.Null)
	case ndb.TagString:
		return e.WriteString(v.Str, v.Null)
	case ndb.TagVarbinary:
		return e.WriteVarbinary(v.Bytes, v.Null)
	case ndb.TagDecimal:
		return e.WriteDecimal(v.Decimal, v.Null)
	default:
		return ndb.New(ndb.KindEncoding, fmt.Sprintf("unsupported array element type tag %d", v.Tag))
	}
	return nil
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
