package conn

import (
	"github.com/sysdb/ndbclient/ndb"
	"github.com/sysdb/ndbclient/wire"
)

// writeLoop drains the outbound frame queue to the socket. It is the only
// goroutine that writes to the socket, so frames reach the server in
// submit order.
func (nc *NodeConnection) writeLoop() error {
	for {
		select {
		case job := <-nc.writeCh:
			if err := wire.WriteFrame(nc.sock, job.payload); err != nil {
				nc.fail(ndb.Wrap(ndb.KindConnection, "write failed", err))
				return err
			}
		case <-nc.ctx.Done():
			return nil
		}
	}
}

// vim: set tw=78 sw=4 sw=4 noexpandtab :
