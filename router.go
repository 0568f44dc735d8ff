package routed

import (
	"encoding/json"
	"net/netip"
	"sync"
)

// Router is a single BGP-like route processor: one process, one AS, a
// fixed set of neighbors. All mutable state — the neighbor table, the RIB,
// and the forwarding table — lives behind this value (§9's design note on
// the source's global dictionaries); the only package-level state is the
// logger (logger.go).
type Router struct {
	asn       int
	neighbors *neighborTable
	rib       *rib
	table     *forwardingTable

	inbound   chan inboundMsg
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// RouterOption configures optional Router behavior, grounded on the
// teacher's funcOption pattern (server_options.go, peer_options.go).
type RouterOption interface {
	apply(*routerOptions)
}

type routerOptions struct {
	logger Logger
}

type funcRouterOption struct{ fn func(*routerOptions) }

func (f *funcRouterOption) apply(o *routerOptions) { f.fn(o) }

func newFuncRouterOption(fn func(*routerOptions)) RouterOption {
	return &funcRouterOption{fn: fn}
}

// WithLogger returns a RouterOption that installs l as the package logger,
// equivalent to calling SetLogger before constructing the Router.
func WithLogger(l Logger) RouterOption {
	return newFuncRouterOption(func(o *routerOptions) {
		o.logger = l
	})
}

// NewRouter constructs a Router for the given AS number with the given
// neighbor specs. It does not send handshakes or open sockets; call Start
// for that.
func NewRouter(asn int, specs []NeighborSpec, opts ...RouterOption) *Router {
	o := &routerOptions{}
	for _, opt := range opts {
		opt.apply(o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	nt := newNeighborTable()
	for _, s := range specs {
		nt.add(&Neighbor{Address: s.Address, Port: s.Port, Relationship: s.Relationship})
	}
	return &Router{
		asn:       asn,
		neighbors: nt,
		rib:       newRIB(),
		table:     newForwardingTable(),
		inbound:   make(chan inboundMsg),
		done:      make(chan struct{}),
	}
}

// Start opens the UDP transport for every neighbor and sends the startup
// handshake (§4.B), then spawns each neighbor's reader goroutine.
func (r *Router) Start() error {
	for _, n := range r.neighbors.all() {
		h, err := dialNeighbor(n.Port)
		if err != nil {
			return err
		}
		n.conn = h
		logf("dialed neighbor %s on local port %d", dotted(n.Address), h.localPort())
	}
	for _, n := range r.neighbors.all() {
		r.sendHandshake(n)
	}
	for _, n := range r.neighbors.all() {
		h := n.conn.(*udpHandle)
		r.wg.Add(1)
		go func(addr netip.Addr, h *udpHandle) {
			defer r.wg.Done()
			readLoop(addr, h, r.inbound, r.done)
		}(n.Address, h)
	}
	return nil
}

// Run processes inbound datagrams to completion, one at a time, until
// Close is called. Each datagram — including any aggregation, rebuild, and
// outbound sends it triggers — completes before the next is read, per §5.
func (r *Router) Run() {
	for {
		select {
		case msg, ok := <-r.inbound:
			if !ok {
				return
			}
			if msg.err != nil {
				logf("transport error from %s: %v", dotted(msg.neighbor), msg.err)
				continue
			}
			r.handleDatagram(msg.neighbor, msg.data)
		case <-r.done:
			return
		}
	}
}

// Close stops all reader goroutines and closes every neighbor's transport.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		for _, n := range r.neighbors.all() {
			if n.conn != nil {
				n.conn.close()
			}
		}
	})
}

func (r *Router) sendHandshake(n *Neighbor) {
	env := Envelope{Src: ourAddr(n.Address), Dst: n.Address, Type: MsgHandshake, Msg: json.RawMessage(`{}`)}
	r.sendTo(n, env)
}

func (r *Router) sendTo(n *Neighbor, env Envelope) {
	b, err := encodeEnvelope(env)
	if err != nil {
		logf("encode error to %s: %v", dotted(n.Address), err)
		return
	}
	if err := n.conn.send(b); err != nil {
		logf("send error to %s: %v", dotted(n.Address), err)
	}
}

// handleDatagram is the message dispatcher (§4.G): it classifies the
// inbound message by kind and invokes the appropriate component.
func (r *Router) handleDatagram(from netip.Addr, data []byte) {
	n, ok := r.neighbors.get(from)
	if !ok {
		logf("drop: %v", newRouteError(errUnknownNeighbor, nil))
		return
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		logf("drop: %v", newRouteError(errMalformedJSON, err))
		return
	}

	switch env.Type {
	case MsgHandshake:
		r.handleHandshake(n, env)
	case MsgUpdate:
		r.handleUpdate(n, env)
	case MsgWithdraw:
		r.handleWithdraw(n, env)
	case MsgData:
		r.handleData(n, env)
	case MsgDump:
		r.handleDump(n, env)
	default:
		logf("drop: %v (%s)", newRouteError(errUnknownType, nil), env.Type)
	}
}
