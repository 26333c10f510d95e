package wire

import (
	"fmt"
	"math"
	"time"

	"github.com/sysdb/ndbclient/ndb"
)

func float64frombits(bits uint64) float64 { return math.Float64frombits(bits) }

// Decoder reads primitives from a frame payload sequentially. It never
// seeks backwards or requires random access.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential decoding.
func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

// Remaining reports how many bytes are left unread.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return ndb.New(ndb.KindProtocol, fmt.Sprintf("short frame: need %d bytes, have %d", n, d.Remaining()))
	}
	return nil
}

func (d *Decoder) ReadInt8() (int8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := int8(d.buf[d.pos])
	d.pos++
	return v, nil
}

func (d *Decoder) ReadInt16() (int16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := int16(byteOrder.Uint16(d.buf[d.pos:]))
	d.pos += 2
	return v, nil
}

func (d *Decoder) ReadInt32() (int32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := int32(byteOrder.Uint32(d.buf[d.pos:]))
	d.pos += 4
	return v, nil
}

func (d *Decoder) ReadInt64() (int64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := int64(byteOrder.Uint64(d.buf[d.pos:]))
	d.pos += 8
	return v, nil
}

func (d *Decoder) ReadFloat64() (float64, error) {
	bits, err := d.ReadInt64()
	if err != nil {
		return 0, err
	}
	return float64frombits(uint64(bits)), nil
}

// ReadString reads a length-prefixed STRING; null is true for the -1
// length sentinel.
func (d *Decoder) ReadString() (s string, null bool, err error) {
	n, err := d.ReadInt32()
	if err != nil {
		return "", false, err
	}
	if n == nullStrLen {
		return "", true, nil
	}
	if n < 0 {
		return "", false, ndb.New(ndb.KindProtocol, fmt.Sprintf("negative string length %d", n))
	}
	if int(n) > MaxValueSize {
		return "", false, ndb.New(ndb.KindProtocol, fmt.Sprintf("string value of %d bytes exceeds maximum of %d", n, MaxValueSize))
	}
	if err := d.need(int(n)); err != nil {
		return "", false, err
	}
	s = string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, false, nil
}

// ReadVarbinary reads a length-prefixed byte array; null is true for the
// -1 length sentinel.
func (d *Decoder) ReadVarbinary() (b []byte, null bool, err error) {
	n, err := d.ReadInt32()
	if err != nil {
		return nil, false, err
	}
	if n == nullStrLen {
		return nil, true, nil
	}
	if n < 0 {
		return nil, false, ndb.New(ndb.KindProtocol, fmt.Sprintf("negative binary length %d", n))
	}
	if int(n) > MaxValueSize {
		return nil, false, ndb.New(ndb.KindProtocol, fmt.Sprintf("binary value of %d bytes exceeds maximum of %d", n, MaxValueSize))
	}
	if err := d.need(int(n)); err != nil {
		return nil, false, err
	}
	b = make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return b, false, nil
}

// ReadDecimal reads the fixed 16-byte DECIMAL wire value.
func (d *Decoder) ReadDecimal() (ndb.Value, error) {
	if err := d.need(16); err != nil {
		return ndb.Value{}, err
	}
	raw := d.buf[d.pos : d.pos+16]
	d.pos += 16
	dec, isNull := decimalFromBytes(raw)
	return ndb.Value{Tag: ndb.TagDecimal, Null: isNull, Decimal: dec}, nil
}

// ReadValue decodes one scalar value of the given tag, applying the
// per-type null sentinel rules. ARRAY values must be decoded via
// ReadArray, not ReadValue.
func (d *Decoder) ReadValue(tag ndb.Tag) (ndb.Value, error) {
	switch tag {
	case ndb.TagInt8:
		v, err := d.ReadInt8()
		if err != nil {
			return ndb.Value{}, err
		}
		return ndb.Value{Tag: tag, Null: v == nullInt8, Int: int64(v)}, nil
	case ndb.TagInt16:
		v, err := d.ReadInt16()
		if err != nil {
			return ndb.Value{}, err
		}
		return ndb.Value{Tag: tag, Null: v == nullInt16, Int: int64(v)}, nil
	case ndb.TagInt32:
		v, err := d.ReadInt32()
		if err != nil {
			return ndb.Value{}, err
		}
		return ndb.Value{Tag: tag, Null: v == nullInt32, Int: int64(v)}, nil
	case ndb.TagInt64:
		v, err := d.ReadInt64()
		if err != nil {
			return ndb.Value{}, err
		}
		return ndb.Value{Tag: tag, Null: v == nullInt64, Int: v}, nil
	case ndb.TagFloat64:
		v, err := d.ReadFloat64()
		if err != nil {
			return ndb.Value{}, err
		}
		return ndb.Value{Tag: tag, Null: v == nullFloat64, Float: v}, nil
	case ndb.TagTimestamp:
		v, err := d.ReadInt64()
		if err != nil {
			return ndb.Value{}, err
		}
		if v == nullInt64 {
			return ndb.Value{Tag: tag, Null: true}, nil
		}
		return ndb.Value{Tag: tag, Int: v, Timestamp: microsToTime(v)}, nil
	case ndb.TagString:
		s, null, err := d.ReadString()
		if err != nil {
			return ndb.Value{}, err
		}
		return ndb.Value{Tag: tag, Null: null, Str: s}, nil
	case ndb.TagVarbinary:
		b, null, err := d.ReadVarbinary()
		if err != nil {
			return ndb.Value{}, err
		}
		return ndb.Value{Tag: tag, Null: null, Bytes: b}, nil
	case ndb.TagDecimal:
		return d.ReadDecimal()
	default:
		return ndb.Value{}, ndb.New(ndb.KindProtocol, fmt.Sprintf("unknown type tag %d", tag))
	}
}

// ReadArray decodes an ARRAY value: element type tag, INT16 element count,
// then the concatenated elements.
func (d *Decoder) ReadArray() (ndb.Value, error) {
	elemTagByte, err := d.ReadInt8()
	if err != nil {
		return ndb.Value{}, err
	}
	elemTag := ndb.Tag(elemTagByte)
	if elemTag == ndb.TagArray {
		return ndb.Value{}, ndb.New(ndb.KindProtocol, "nested arrays are not supported")
	}
	count, err := d.ReadInt16()
	if err != nil {
		return ndb.Value{}, err
	}
	if count < 0 {
		return ndb.Value{}, ndb.New(ndb.KindProtocol, fmt.Sprintf("negative array element count %d", count))
	}
	elems := make([]ndb.Value, 0, count)
	for i := int16(0); i < count; i++ {
		v, err := d.ReadValue(elemTag)
		if err != nil {
			return ndb.Value{}, err
		}
		elems = append(elems, v)
	}
	return ndb.Value{Tag: ndb.TagArray, ElemTag: elemTag, Array: elems}, nil
}

func microsToTime(micros int64) time.Time {
	return time.UnixMicro(micros).UTC()
}
