package wire

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sysdb/ndbclient/ndb"
)

// Null sentinels for each scalar wire type.
const (
	nullInt8    = -128
	nullInt16   = -32768
	nullInt32   = int32(-1) << 31
	nullInt64   = int64(-1) << 63
	nullStrLen  = int32(-1)
	decimalBits = 128
)

var nullFloat64 = -1.7e308

// decimalScale is the implicit scale of the fixed 16-byte DECIMAL wire
// value.
const decimalScale = 12

var decimalScaleFactor = new(big.Int).Exp(big.NewInt(10), big.NewInt(decimalScale), nil)

// nullDecimalUnscaled is the unscaled integer for the DECIMAL null
// sentinel -170141183460469231731687303.715884105728.
var nullDecimalUnscaled = func() *big.Int {
	n, ok := new(big.Int).SetString("-170141183460469231731687303715884105728", 10)
	if !ok {
		panic("wire: invalid null decimal literal")
	}
	return n
}()

// maxDecimalUnscaled and minDecimalUnscaled bound the unscaled coefficient
// that fits in the 16-byte two's-complement wire representation. The
// minimum signed 128-bit value itself is reserved for nullDecimalUnscaled,
// so the smallest encodable non-null coefficient is one above it.
var maxDecimalUnscaled = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), decimalBits-1), big.NewInt(1))
var minDecimalUnscaled = new(big.Int).Add(nullDecimalUnscaled, big.NewInt(1))

// Encoder accumulates an outbound frame payload.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the accumulated payload.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteInt8(v int8) { e.buf = append(e.buf, byte(v)) }

func (e *Encoder) WriteInt16(v int16) {
	var b [2]byte
	byteOrder.PutUint16(b[:], uint16(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteInt32(v int32) {
	var b [4]byte
	byteOrder.PutUint32(b[:], uint32(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteInt64(v int64) {
	var b [8]byte
	byteOrder.PutUint64(b[:], uint64(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteFloat64(v float64) {
	e.WriteInt64(int64(math.Float64bits(v)))
}

// WriteString writes a length-prefixed UTF-8 string. s == "" with
// null == true encodes the length -1 sentinel.
func (e *Encoder) WriteString(s string, null bool) error {
	if null {
		e.WriteInt32(nullStrLen)
		return nil
	}
	if len(s) > MaxValueSize {
		return ndb.New(ndb.KindEncoding, fmt.Sprintf("string value of %d bytes exceeds maximum of %d", len(s), MaxValueSize))
	}
	e.WriteInt32(int32(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

// WriteVarbinary writes a length-prefixed byte array, or the null
// sentinel.
func (e *Encoder) WriteVarbinary(b []byte, null bool) error {
	if null {
		e.WriteInt32(nullStrLen)
		return nil
	}
	if len(b) > MaxValueSize {
		return ndb.New(ndb.KindEncoding, fmt.Sprintf("binary value of %d bytes exceeds maximum of %d", len(b), MaxValueSize))
	}
	e.WriteInt32(int32(len(b)))
	e.buf = append(e.buf, b...)
	return nil
}

// WriteTimestamp writes a TIMESTAMP (microseconds since epoch).
func (e *Encoder) WriteTimestamp(t time.Time, null bool) {
	if null {
		e.WriteInt64(nullInt64)
		return
	}
	e.WriteInt64(t.UnixMicro())
}

// WriteDecimal writes a DECIMAL as a fixed 16-byte two's-complement integer
// at scale 12, or the null sentinel.
func (e *Encoder) WriteDecimal(d decimal.Decimal, null bool) error {
	if null {
		e.buf = append(e.buf, decimalToBytes(nullDecimalUnscaled)...)
		return nil
	}
	unscaled := decimalUnscaled(d)
	if unscaled.Cmp(maxDecimalUnscaled) > 0 || unscaled.Cmp(minDecimalUnscaled) < 0 {
		return ndb.New(ndb.KindEncoding, "decimal value out of range for 16-byte wire representation")
	}
	e.buf = append(e.buf, decimalToBytes(unscaled)...)
	return nil
}

// decimalUnscaled rescales d to the wire's fixed scale of 12 and returns
// the resulting unscaled big.Int.
func decimalUnscaled(d decimal.Decimal) *big.Int {
	rescaled := d.Rescale(-decimalScale) // shopspring uses negative exponent for scale
	return rescaled.Coefficient()
}

// decimalToBytes renders n as a 16-byte big-endian two's-complement value.
func decimalToBytes(n *big.Int) []byte {
	out := make([]byte, 16)
	if n.Sign() >= 0 {
		n.FillBytes(out)
		return out
	}
	// Two's complement of a negative big.Int: (1<<128) + n.
	mod := new(big.Int).Lsh(big.NewInt(1), decimalBits)
	twos := new(big.Int).Add(mod, n)
	twos.FillBytes(out)
	return out
}

// decimalFromBytes parses a 16-byte big-endian two's-complement integer and
// rescales it to an ndb/decimal.Decimal at scale 12.
func decimalFromBytes(b []byte) (decimal.Decimal, bool) {
	raw := new(big.Int).SetBytes(b)
	// If the high bit is set, this is a negative two's-complement value.
	if b[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), decimalBits)
		raw.Sub(raw, mod)
	}
	if raw.Cmp(nullDecimalUnscaled) == 0 {
		return decimal.Decimal{}, true
	}
	return decimal.NewFromBigInt(raw, -decimalScale), false
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
