package wire

import (
	"crypto/sha1" //nolint:gosec // required by the wire protocol, not used for security here
	"fmt"

	"github.com/sysdb/ndbclient/ndb"
)

// LoginRequest is the payload the client writes immediately after
// connecting.
type LoginRequest struct {
	Service    string
	Username   string
	Password   string // cleartext; hashed to SHA-1 by EncodeLogin
	AuthScheme int8   // 0 = SHA-1, the only scheme the server documents
}

// AuthSHA1 is the only recognized auth scheme byte.
const AuthSHA1 int8 = 0

// EncodeLogin builds the login exchange payload: protocol version byte,
// length-prefixed service string, length-prefixed username, 20-byte SHA-1
// of the password, and the auth-scheme byte.
func EncodeLogin(req LoginRequest) ([]byte, error) {
	e := NewEncoder()
	e.WriteInt8(int8(ProtocolVersion))
	if err := e.WriteString(req.Service, false); err != nil {
		return nil, err
	}
	if err := e.WriteString(req.Username, false); err != nil {
		return nil, err
	}
	sum := sha1.Sum([]byte(req.Password))
	e.buf = append(e.buf, sum[:]...)
	e.WriteInt8(req.AuthScheme)
	return e.Bytes(), nil
}

// LoginResult is a login response code.
type LoginResult int8

const (
	LoginOK                    LoginResult = 0
	LoginCredentialMismatch    LoginResult = 1
	LoginUserNotFound          LoginResult = 2
	LoginUnhashedPasswordError LoginResult = 3
	LoginServerUnavailable     LoginResult = 5
)

// LoginResponse is the server's reply to the login exchange.
type LoginResponse struct {
	Result            LoginResult
	HostID            int32
	ConnectionID      int64
	InstanceTimestamp int64 // milliseconds
	LeaderIP          int32
	BuildString       string
}

// DecodeLoginResponse parses a login response payload. A non-ok Result
// yields a KindAuthentication *ndb.Error whose message names the result
// code (the response carries no server message).
func DecodeLoginResponse(payload []byte) (*LoginResponse, *ndb.Error) {
	d := NewDecoder(payload)
	resultByte, err := d.ReadInt8()
	if err != nil {
		return nil, ndb.Wrap(ndb.KindProtocol, "truncated login response", err)
	}
	resp := &LoginResponse{Result: LoginResult(resultByte)}
	if resp.Result != LoginOK {
		return resp, loginError(resp.Result)
	}

	hostID, err := d.ReadInt32()
	if err != nil {
		return nil, ndb.Wrap(ndb.KindProtocol, "truncated login response", err)
	}
	connID, err := d.ReadInt64()
	if err != nil {
		return nil, ndb.Wrap(ndb.KindProtocol, "truncated login response", err)
	}
	instanceTS, err := d.ReadInt64()
	if err != nil {
		return nil, ndb.Wrap(ndb.KindProtocol, "truncated login response", err)
	}
	leaderIP, err := d.ReadInt32()
	if err != nil {
		return nil, ndb.Wrap(ndb.KindProtocol, "truncated login response", err)
	}
	build, _, err := d.ReadString()
	if err != nil {
		return nil, ndb.Wrap(ndb.KindProtocol, "truncated login response", err)
	}

	resp.HostID = hostID
	resp.ConnectionID = connID
	resp.InstanceTimestamp = instanceTS
	resp.LeaderIP = leaderIP
	resp.BuildString = build
	return resp, nil
}

func loginError(r LoginResult) *ndb.Error {
	switch r {
	case LoginCredentialMismatch:
		return ndb.New(ndb.KindAuthentication, "credential mismatch")
	case LoginUserNotFound:
		return ndb.New(ndb.KindAuthentication, "user not found")
	case LoginUnhashedPasswordError:
		return ndb.New(ndb.KindAuthentication, "unhashed password rejected")
	case LoginServerUnavailable:
		return ndb.New(ndb.KindAuthentication, "server unavailable")
	default:
		return ndb.New(ndb.KindAuthentication, fmt.Sprintf("login failed with code %d", r))
	}
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
