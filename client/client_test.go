package client_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysdb/ndbclient/client"
	"github.com/sysdb/ndbclient/ndb"
	"github.com/sysdb/ndbclient/table"
	"github.com/sysdb/ndbclient/wire"
)

// fakeNode is a single-connection in-process stand-in for a cluster node,
// speaking real wire bytes against the actual codec rather than mocking
// the Go types.
type fakeNode struct {
	t       *testing.T
	ln      net.Listener
	handler func(inv *wire.Invocation) (delay time.Duration, payload []byte)
	writeMu sync.Mutex
}

func newFakeNode(t *testing.T, handler func(inv *wire.Invocation) (time.Duration, []byte)) *fakeNode {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	n := &fakeNode{t: t, ln: ln, handler: handler}
	go n.acceptLoop()
	return n
}

func (n *fakeNode) port() int { return n.ln.Addr().(*net.TCPAddr).Port }

func (n *fakeNode) acceptLoop() {
	conn, err := n.ln.Accept()
	if err != nil {
		return
	}
	go n.serve(conn)
}

func (n *fakeNode) serve(conn net.Conn) {
	loginPayload, err := wire.ReadFrame(conn)
	if err != nil {
		return
	}
	if _, lerr := wire.DecodeLoginRequest(loginPayload); lerr != nil {
		return
	}
	resp := wire.EncodeLoginResponse(wire.LoginResponse{
		Result:            wire.LoginOK,
		HostID:             1,
		ConnectionID:       1,
		InstanceTimestamp:  1700000000000,
		LeaderIP:           0x7F000001,
		BuildString:        "test-fixture",
	})
	n.writeFrame(conn, resp)

	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		inv, derr := wire.DecodeInvocation(payload)
		if derr != nil {
			return
		}
		go n.handle(conn, inv)
	}
}

func (n *fakeNode) handle(conn net.Conn, inv *wire.Invocation) {
	delay, payload := n.handler(inv)
	if delay > 0 {
		time.Sleep(delay)
	}
	n.writeFrame(conn, payload)
}

func (n *fakeNode) writeFrame(conn net.Conn, payload []byte) {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	_ = wire.WriteFrame(conn, payload)
}

func openClient(t *testing.T, node *fakeNode, cfgMutate func(*ndb.Config)) *client.Client {
	t.Helper()
	cfg := ndb.Config{
		Hosts:                      []string{"127.0.0.1"},
		Port:                       node.port(),
		User:                       "alice",
		Password:                   "secret",
		MaxOutstandingTransactions: 3000,
		CommandTimeout:             5 * time.Second,
	}
	if cfgMutate != nil {
		cfgMutate(&cfg)
	}
	c, err := client.OpenConfig(context.Background(), cfg)
	require.Nil(t, err)
	t.Cleanup(func() { c.Close(0) })
	return c
}

func okResponse(handle int64, tables ...[]byte) []byte {
	return wire.EncodeResponse(wire.ResponseSpec{Handle: handle, Status: wire.StatusOK, Tables: tables})
}

// S1: a round-trip call to a procedure that returns no rows.
func TestScenarioHelloRoundTrip(t *testing.T) {
	node := newFakeNode(t, func(inv *wire.Invocation) (time.Duration, []byte) {
		tbl, err := wire.EncodeTable(wire.TableSpec{Status: 0, ColumnTypes: nil, ColumnNames: nil})
		require.NoError(t, err)
		return 0, okResponse(inv.Handle, tbl)
	})
	c := openClient(t, node, nil)

	result, cerr := c.Call(context.Background(), "Hello", nil, client.CallOptions{})
	require.Nil(t, cerr)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, 0, result.Tables[0].RowCount())
	assert.False(t, result.Tables[0].(*table.Table).HasData())
}

// S2: an insert followed by a select that observes the inserted row.
func TestScenarioInsertThenSelect(t *testing.T) {
	type person struct {
		id   int64
		name string
	}
	var mu sync.Mutex
	var people []person

	node := newFakeNode(t, func(inv *wire.Invocation) (time.Duration, []byte) {
		switch inv.Procedure {
		case "InsertPerson":
			mu.Lock()
			people = append(people, person{id: int64(len(people) + 1), name: inv.Params[0].Str})
			mu.Unlock()
			tbl, _ := wire.EncodeTable(wire.TableSpec{
				ColumnTypes: []ndb.Tag{ndb.TagInt32},
				ColumnNames: []string{"rows_affected"},
				Rows:        [][]ndb.Value{{{Tag: ndb.TagInt32, Int: 1}}},
			})
			return 0, okResponse(inv.Handle, tbl)
		case "SelectPerson":
			mu.Lock()
			rows := make([][]ndb.Value, len(people))
			for i, p := range people {
				rows[i] = []ndb.Value{{Tag: ndb.TagInt64, Int: p.id}, {Tag: ndb.TagString, Str: p.name}}
			}
			mu.Unlock()
			tbl, _ := wire.EncodeTable(wire.TableSpec{
				ColumnTypes: []ndb.Tag{ndb.TagInt64, ndb.TagString},
				ColumnNames: []string{"id", "name"},
				Rows:        rows,
			})
			return 0, okResponse(inv.Handle, tbl)
		default:
			return 0, okResponse(inv.Handle)
		}
	})
	c := openClient(t, node, nil)
	ctx := context.Background()

	_, cerr := c.Call(ctx, "InsertPerson", []ndb.Value{client.StringParam("bob")}, client.CallOptions{})
	require.Nil(t, cerr)

	result, cerr := c.Call(ctx, "SelectPerson", nil, client.CallOptions{})
	require.Nil(t, cerr)
	require.Len(t, result.Tables, 1)
	tbl := result.Tables[0]
	require.Equal(t, 1, tbl.RowCount())
}

// S3: a key-value put/get of a gzip-compressed VARBINARY value.
func TestScenarioKeyValuePutGetCompressed(t *testing.T) {
	var mu sync.Mutex
	store := map[string][]byte{}

	node := newFakeNode(t, func(inv *wire.Invocation) (time.Duration, []byte) {
		switch inv.Procedure {
		case "Put":
			mu.Lock()
			store[inv.Params[0].Str] = inv.Params[1].Bytes
			mu.Unlock()
			return 0, okResponse(inv.Handle)
		case "Get":
			mu.Lock()
			v := store[inv.Params[0].Str]
			mu.Unlock()
			tbl, _ := wire.EncodeTable(wire.TableSpec{
				ColumnTypes: []ndb.Tag{ndb.TagVarbinary},
				ColumnNames: []string{"value"},
				Rows:        [][]ndb.Value{{{Tag: ndb.TagVarbinary, Bytes: v}}},
			})
			return 0, okResponse(inv.Handle, tbl)
		default:
			return 0, okResponse(inv.Handle)
		}
	})
	c := openClient(t, node, nil)
	ctx := context.Background()

	original := []byte("the quick brown fox jumps over the lazy dog, repeated ")
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	_, err := gw.Write(original)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	_, cerr := c.Call(ctx, "Put", []ndb.Value{client.StringParam("greeting"), client.VarbinaryParam(compressed.Bytes())}, client.CallOptions{})
	require.Nil(t, cerr)

	result, cerr := c.Call(ctx, "Get", []ndb.Value{client.StringParam("greeting")}, client.CallOptions{})
	require.Nil(t, cerr)
	got, _, terr := result.Tables[0].(*table.Table).Varbinary(0)
	require.Nil(t, terr)
	require.Len(t, got, 1)

	gr, err := gzip.NewReader(bytes.NewReader(got[0]))
	require.NoError(t, err)
	decompressed, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

// S4: many concurrent calls against a small credit window all complete
// without any client-side timeout.
func TestScenarioManyConcurrentCallsNoTimeouts(t *testing.T) {
	node := newFakeNode(t, func(inv *wire.Invocation) (time.Duration, []byte) {
		return 2 * time.Millisecond, okResponse(inv.Handle)
	})
	c := openClient(t, node, func(cfg *ndb.Config) {
		cfg.MaxOutstandingTransactions = 5
		cfg.CommandTimeout = 2 * time.Second
	})
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make([]*ndb.Error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, cerr := c.Call(ctx, "Vote", []ndb.Value{client.Int32Param(int32(i))}, client.CallOptions{})
			errs[i] = cerr
		}(i)
	}
	wg.Wait()

	for i, e := range errs {
		require.Nilf(t, e, "call %d failed: %v", i, e)
	}
}

// S5: a call whose reply arrives after CommandTimeout surfaces a client-side
// timeout, and the late reply is silently dropped without disturbing later
// calls on the same connection.
func TestScenarioTimeoutThenLateReplyIsHarmless(t *testing.T) {
	const replyDelay = 300 * time.Millisecond
	node := newFakeNode(t, func(inv *wire.Invocation) (time.Duration, []byte) {
		if inv.Procedure == "SlowProc" {
			return replyDelay, okResponse(inv.Handle)
		}
		return 0, okResponse(inv.Handle)
	})
	c := openClient(t, node, nil)
	ctx := context.Background()

	_, cerr := c.Call(ctx, "SlowProc", nil, client.CallOptions{Timeout: 100 * time.Millisecond})
	require.NotNil(t, cerr)
	assert.Equal(t, ndb.KindTimeout, cerr.Kind)

	time.Sleep(replyDelay + 100*time.Millisecond) // let the late reply actually arrive and be discarded

	_, cerr = c.Call(ctx, "Hello", nil, client.CallOptions{})
	require.Nil(t, cerr, "connection must still be usable after a discarded late reply")
}

// S6: an oversize parameter is rejected synchronously, before any network
// round trip.
func TestScenarioOversizeValueSynchronousError(t *testing.T) {
	called := false
	node := newFakeNode(t, func(inv *wire.Invocation) (time.Duration, []byte) {
		called = true
		return 0, okResponse(inv.Handle)
	})
	c := openClient(t, node, nil)
	ctx := context.Background()

	huge := make([]byte, wire.MaxValueSize+1)
	_, cerr := c.Call(ctx, "BigPut", []ndb.Value{client.VarbinaryParam(huge)}, client.CallOptions{})
	require.NotNil(t, cerr)
	assert.Equal(t, ndb.KindEncoding, cerr.Kind)
	assert.False(t, called, "an encoding error must never reach the network")
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
