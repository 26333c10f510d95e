package conn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysdb/ndbclient/ndb"
	"github.com/sysdb/ndbclient/wire"
)

// fakeServer drives the server side of a net.Pipe connection, speaking real
// wire bytes, so NodeConnection is exercised exactly as it would be against
// a real cluster node.
type fakeServer struct {
	t    *testing.T
	sock net.Conn
}

func newFakeServerPair(t *testing.T) (dial func(ctx context.Context, network, addr string) (net.Conn, error), srv *fakeServer) {
	t.Helper()
	client, server := net.Pipe()
	srv = &fakeServer{t: t, sock: server}
	dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return client, nil
	}
	return dial, srv
}

func (s *fakeServer) serveLogin(hostID int32, connID int64) {
	s.t.Helper()
	payload, err := wire.ReadFrame(s.sock)
	require.NoError(s.t, err)
	require.NotEmpty(s.t, payload)

	e := wire.NewEncoder()
	e.WriteInt8(int8(wire.LoginOK))
	e.WriteInt32(hostID)
	e.WriteInt64(connID)
	e.WriteInt64(1700000000000)
	e.WriteInt32(0x7F000001)
	require.NoError(s.t, e.WriteString("test-build", false))
	require.NoError(s.t, wire.WriteFrame(s.sock, e.Bytes()))
}

func (s *fakeServer) readInvocationHandle() int64 {
	s.t.Helper()
	payload, err := wire.ReadFrame(s.sock)
	require.NoError(s.t, err)
	d := wire.NewDecoder(payload)
	handle, err := d.ReadInt64()
	require.NoError(s.t, err)
	return handle
}

func (s *fakeServer) sendSuccess(handle int64) {
	s.t.Helper()
	payload := wire.EncodeResponse(wire.ResponseSpec{Handle: handle, Status: wire.StatusOK})
	require.NoError(s.t, wire.WriteFrame(s.sock, payload))
}

func openTestConnection(t *testing.T, cfgOverride func(*Config)) (*NodeConnection, *fakeServer) {
	t.Helper()
	dial, srv := newFakeServerPair(t)

	cfg := Config{
		Host:                       "test",
		Port:                       1,
		User:                       "alice",
		Password:                   "secret",
		MaxOutstandingTransactions: 2,
		CommandTimeout:             time.Second,
		SweepInterval:              10 * time.Millisecond,
		Logger:                     logrus.New(),
		Dial:                       dial,
	}
	if cfgOverride != nil {
		cfgOverride(&cfg)
	}

	done := make(chan struct{})
	go func() {
		srv.serveLogin(7, 42)
		close(done)
	}()

	nc, err := Open(context.Background(), cfg)
	require.Nil(t, err)
	<-done
	return nc, srv
}

func TestOpenAndSubmitSuccess(t *testing.T) {
	nc, srv := openTestConnection(t, nil)
	defer nc.Close(0)

	resultCh := make(chan int64, 1)
	go func() {
		resultCh <- srv.readInvocationHandle()
	}()

	call, cerr := nc.Submit(context.Background(), "@hello", nil, SubmitOptions{})
	require.Nil(t, cerr)

	handle := <-resultCh
	srv.sendSuccess(handle)

	require.NoError(t, call.Wait(context.Background()))
	assert.Equal(t, ndb.StatusSuccess, call.Status())
}

func TestSubmitTimeoutThenLateReplyDiscarded(t *testing.T) {
	nc, srv := openTestConnection(t, nil)
	defer nc.Close(0)

	handleCh := make(chan int64, 1)
	go func() { handleCh <- srv.readInvocationHandle() }()

	call, cerr := nc.Submit(context.Background(), "@slow", nil, SubmitOptions{Timeout: 20 * time.Millisecond})
	require.Nil(t, cerr)

	require.NoError(t, call.Wait(context.Background()))
	require.Equal(t, ndb.StatusTimedOut, call.Status())

	before := nc.InFlight()

	handle := <-handleCh
	srv.sendSuccess(handle) // late reply for an already-timed-out call

	require.Eventually(t, func() bool { return nc.InFlight() < before || before == 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, ndb.StatusTimedOut, call.Status(), "a late reply must never overwrite a terminal status")
}

func TestNonBlockingSubmitFailsFastWhenWindowFull(t *testing.T) {
	nc, srv := openTestConnection(t, func(c *Config) { c.MaxOutstandingTransactions = 1 })
	defer nc.Close(0)

	go func() { srv.readInvocationHandle() }()

	_, cerr := nc.Submit(context.Background(), "@first", nil, SubmitOptions{})
	require.Nil(t, cerr)

	_, cerr = nc.Submit(context.Background(), "@second", nil, SubmitOptions{NonBlocking: true})
	require.NotNil(t, cerr)
	assert.Equal(t, ndb.KindConnection, cerr.Kind)
}

func TestCancelThenLateReplyDiscarded(t *testing.T) {
	nc, srv := openTestConnection(t, nil)
	defer nc.Close(0)

	handleCh := make(chan int64, 1)
	go func() { handleCh <- srv.readInvocationHandle() }()

	call, cerr := nc.Submit(context.Background(), "@cancelme", nil, SubmitOptions{})
	require.Nil(t, cerr)

	nc.Cancel(call)
	require.Equal(t, ndb.StatusAborted, call.Status())

	handle := <-handleCh
	srv.sendSuccess(handle)

	require.Eventually(t, func() bool { return nc.InFlight() == 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, ndb.StatusAborted, call.Status())
}

func TestConnectionFailureCompletesInFlightCalls(t *testing.T) {
	nc, srv := openTestConnection(t, nil)

	go func() { srv.readInvocationHandle() }()
	call, cerr := nc.Submit(context.Background(), "@pending", nil, SubmitOptions{})
	require.Nil(t, cerr)

	srv.sock.Close()

	require.NoError(t, call.Wait(context.Background()))
	assert.Equal(t, ndb.StatusFailed, call.Status())

	nc.Wait()
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
