package routed

import (
	"net"
	"net/netip"
	"time"
)

// transportHandle is the datagram endpoint owned by one neighbor. It is the
// "external collaborator" named in §1 — the router never reaches into it
// beyond send/close.
type transportHandle interface {
	send([]byte) error
	close() error
}

// readinessInterval bounds how long a neighbor's reader goroutine blocks on
// a single read before re-checking for shutdown, per §5.
const readinessInterval = 100 * time.Millisecond

type udpHandle struct {
	conn *net.UDPConn
}

// dialNeighbor opens a UDP endpoint bound to an ephemeral local port on
// loopback and connected to the neighbor's port, per §6's transport
// description. Because the socket is connected, reads are filtered to
// datagrams from that single remote address, giving each neighbor an
// isolated channel without any address bookkeeping in the router.
func dialNeighbor(port int) (*udpHandle, error) {
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &udpHandle{conn: conn}, nil
}

func (h *udpHandle) send(b []byte) error {
	_, err := h.conn.Write(b)
	return err
}

func (h *udpHandle) close() error {
	return h.conn.Close()
}

// localPort reports the ephemeral port this handle was bound to.
func (h *udpHandle) localPort() int {
	return h.conn.LocalAddr().(*net.UDPAddr).Port
}

// inboundMsg is one datagram fanned in from a neighbor's reader goroutine.
type inboundMsg struct {
	neighbor netip.Addr
	data     []byte
	err      error
}

// readLoop is the reader goroutine for one neighbor, grounded on the
// teacher's per-peer FSM reader pattern (fsm.go): it blocks on reads bounded
// by a rolling deadline and forwards each datagram on an unbuffered
// channel. Because the channel is unbuffered, the goroutine cannot hand over
// the next datagram until the router's cooperative loop has finished
// processing the current one and comes back to receive — this is what
// gives the "complete one message before starting the next" ordering
// guarantee from §5 without any explicit locking.
func readLoop(addr netip.Addr, h *udpHandle, out chan<- inboundMsg, done <-chan struct{}) {
	buf := make([]byte, 65535)
	for {
		select {
		case <-done:
			return
		default:
		}
		h.conn.SetReadDeadline(time.Now().Add(readinessInterval))
		n, err := h.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case out <- inboundMsg{neighbor: addr, err: err}:
			case <-done:
			}
			return
		}
		msg := make([]byte, n)
		copy(msg, buf[:n])
		select {
		case out <- inboundMsg{neighbor: addr, data: msg}:
		case <-done:
			return
		}
	}
}
