package wire

import (
	"fmt"

	"github.com/sysdb/ndbclient/ndb"
)

// Invocation is a fully decoded procedure-invocation request, the
// server-side counterpart of EncodeInvocation. It exists so the in-process
// fake server used by this module's end-to-end tests can parse real client
// request bytes instead of a hand-built mock of the Go types.
type Invocation struct {
	Handle             int64
	Procedure          string
	BatchTimeoutHintMS int32
	Params             []ndb.Value
}

// DecodeInvocation parses a procedure-invocation request payload, the
// inverse of EncodeInvocation.
func DecodeInvocation(payload []byte) (*Invocation, *ndb.Error) {
	d := NewDecoder(payload)

	handle, err := d.ReadInt64()
	if err != nil {
		return nil, protoErr("handle", err)
	}
	procedure, _, err := d.ReadString()
	if err != nil {
		return nil, protoErr("procedure", err)
	}
	hint, err := d.ReadInt32()
	if err != nil {
		return nil, protoErr("batch timeout hint", err)
	}
	count, err := d.ReadInt16()
	if err != nil {
		return nil, protoErr("parameter count", err)
	}
	if count < 0 {
		return nil, ndb.New(ndb.KindProtocol, fmt.Sprintf("negative parameter count %d", count))
	}

	params := make([]ndb.Value, 0, count)
	for i := int16(0); i < count; i++ {
		v, derr := decodeParam(d)
		if derr != nil {
			return nil, ndb.Wrap(ndb.KindProtocol, fmt.Sprintf("parameter %d", i), derr)
		}
		params = append(params, v)
	}

	return &Invocation{
		Handle:             handle,
		Procedure:          procedure,
		BatchTimeoutHintMS: hint,
		Params:             params,
	}, nil
}

func decodeParam(d *Decoder) (ndb.Value, *ndb.Error) {
	tagByte, err := d.ReadInt8()
	if err != nil {
		return ndb.Value{}, protoErr("parameter tag", err)
	}
	tag := ndb.Tag(tagByte)
	if tag == ndb.TagArray {
		v, derr := d.ReadArray()
		if derr != nil {
			return ndb.Value{}, ndb.Wrap(ndb.KindProtocol, "array parameter", derr)
		}
		return v, nil
	}
	v, derr := d.ReadValue(tag)
	if derr != nil {
		return ndb.Value{}, ndb.Wrap(ndb.KindProtocol, "scalar parameter", derr)
	}
	return v, nil
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
