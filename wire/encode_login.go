package wire

// This file, like encode_response.go, builds server-side fixtures for this
// module's in-process fake server tests: the inverse operations of
// EncodeLogin/DecodeLoginResponse.

// DecodedLoginRequest is a parsed login request, the server-side
// counterpart of EncodeLogin.
type DecodedLoginRequest struct {
	Version    int8
	Service    string
	Username   string
	PasswordSHA1 [20]byte
	AuthScheme int8
}

// DecodeLoginRequest parses a login request payload.
func DecodeLoginRequest(payload []byte) (*DecodedLoginRequest, error) {
	d := NewDecoder(payload)
	version, err := d.ReadInt8()
	if err != nil {
		return nil, err
	}
	service, _, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	username, _, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	req := &DecodedLoginRequest{Version: version, Service: service, Username: username}
	if err := d.need(20); err != nil {
		return nil, err
	}
	copy(req.PasswordSHA1[:], d.buf[d.pos:d.pos+20])
	d.pos += 20
	scheme, err := d.ReadInt8()
	if err != nil {
		return nil, err
	}
	req.AuthScheme = scheme
	return req, nil
}

// EncodeLoginResponse renders resp into a login response payload, the
// inverse of DecodeLoginResponse.
func EncodeLoginResponse(resp LoginResponse) []byte {
	e := NewEncoder()
	e.WriteInt8(int8(resp.Result))
	if resp.Result != LoginOK {
		return e.Bytes()
	}
	e.WriteInt32(resp.HostID)
	e.WriteInt64(resp.ConnectionID)
	e.WriteInt64(resp.InstanceTimestamp)
	e.WriteInt32(resp.LeaderIP)
	_ = e.WriteString(resp.BuildString, false)
	return e.Bytes()
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
