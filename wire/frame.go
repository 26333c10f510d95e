// Package wire implements the database's length-prefixed binary wire
// protocol: frame read/write, primitive type encode/decode, the login
// handshake, procedure-invocation requests, and response/table decode.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sysdb/ndbclient/ndb"
)

// ProtocolVersion is the only version this codec accepts.
const ProtocolVersion byte = 0

// MaxValueSize is the maximum encoded length of a single STRING/VARBINARY
// value. Longer fields are a protocol/encoding error.
const MaxValueSize = 1048576

var byteOrder = binary.BigEndian

// ReadFrame reads one length-prefixed, version-tagged frame from r and
// returns its payload (the bytes after the version byte). r must be a
// blocking reader; a non-blocking reader would desynchronize the stream on
// a partial read.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := byteOrder.Uint32(lenBuf[:])
	if n == 0 {
		return nil, ndb.New(ndb.KindProtocol, "zero-length frame")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	if body[0] != ProtocolVersion {
		return nil, ndb.New(ndb.KindProtocol, fmt.Sprintf("unknown protocol version %d", body[0]))
	}
	return body[1:], nil
}

// WriteFrame writes payload to w framed as a length-prefixed, version-
// tagged frame: 4-byte big-endian length (excluding itself), 1-byte
// version, then payload.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 4+1+len(payload))
	byteOrder.PutUint32(frame[:4], uint32(1+len(payload)))
	frame[4] = ProtocolVersion
	copy(frame[5:], payload)
	_, err := w.Write(frame)
	return err
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
