package routed

import (
	"encoding/json"
	"net/netip"
)

// handleHandshake appends the handshake to the announcement log and sends
// nothing onward. A handshake carries no route attributes, so it does not
// change the forwarding table, and rebuild skips handshake records.
func (r *Router) handleHandshake(n *Neighbor, env Envelope) {
	r.rib.append(annHandshake, n.Address, parsedUpdate{})
}

// handleUpdate appends to the log, installs the route, re-announces per the
// export rule, and re-aggregates.
func (r *Router) handleUpdate(n *Neighbor, env Envelope) {
	var in updateInMsg
	if err := json.Unmarshal(env.Msg, &in); err != nil {
		logf("drop: %v", newRouteError(errMalformedJSON, err))
		return
	}
	pu, err := in.parse()
	if err != nil {
		logf("drop: %v", newRouteError(errMalformedJSON, err))
		return
	}
	r.rib.append(annUpdate, n.Address, pu)
	r.installUpdate(n.Address, pu)
	r.announceUpdate(n, pu)
	r.table.aggregate()
}

// installUpdate derives a route from an update body and installs it, per
// §4.D: peer is the source neighbor, ASPath is [self_asn]++received (or
// just [self_asn] if received is empty — the preserved source ambiguity
// from §9).
func (r *Router) installUpdate(source netip.Addr, pu parsedUpdate) {
	path := []int{r.asn}
	if len(pu.ASPath) > 0 {
		path = append([]int{r.asn}, pu.ASPath...)
	}
	r.table.install(Route{
		Network:    pu.Network,
		Netmask:    pu.Netmask,
		Peer:       source,
		Origin:     pu.Origin,
		LocalPref:  pu.LocalPref,
		SelfOrigin: pu.SelfOrigin,
		ASPath:     path,
	})
}

// announceUpdate re-announces an update to every other neighbor per the
// export rule in §4.D/§4.F.
func (r *Router) announceUpdate(source *Neighbor, pu parsedUpdate) {
	for _, n := range r.neighbors.all() {
		if n.Address == source.Address {
			continue
		}
		if !shouldExport(source.Relationship, n.Relationship) {
			continue
		}
		path := append([]int{r.asn}, pu.ASPath...)
		out := updateOutMsg{Network: dotted(pu.Network), Netmask: dotted(pu.Netmask), ASPath: path}
		body, _ := json.Marshal(out)
		env := Envelope{Src: ourAddr(n.Address), Dst: n.Address, Type: MsgUpdate, Msg: json.RawMessage(body)}
		r.sendTo(n, env)
	}
}

// handleWithdraw removes the matching announcement record, re-announces the
// withdraw per the export rule, rebuilds the table from the remaining log,
// and re-aggregates.
func (r *Router) handleWithdraw(n *Neighbor, env Envelope) {
	var entries []withdrawEntry
	if err := json.Unmarshal(env.Msg, &entries); err != nil {
		logf("drop: %v", newRouteError(errMalformedJSON, err))
		return
	}
	for _, e := range entries {
		network, err1 := parseDotted(e.Network)
		netmask, err2 := parseDotted(e.Netmask)
		if err1 != nil || err2 != nil {
			logf("drop: %v", newRouteError(errMalformedJSON, err1))
			continue
		}
		if !r.rib.removeWithdraw(n.Address, network, netmask) {
			logf("%v: %s/%d from %s", newRouteError(errUnknownPrefix, nil),
				dotted(network), maskToCIDR(netmask), dotted(n.Address))
		}
	}
	r.announceWithdraw(n, entries)
	r.rebuild()
}

// announceWithdraw re-announces a withdraw to every other neighbor per the
// export rule.
func (r *Router) announceWithdraw(source *Neighbor, entries []withdrawEntry) {
	for _, n := range r.neighbors.all() {
		if n.Address == source.Address {
			continue
		}
		if !shouldExport(source.Relationship, n.Relationship) {
			continue
		}
		body, _ := json.Marshal(entries)
		env := Envelope{Src: ourAddr(n.Address), Dst: n.Address, Type: MsgWithdraw, Msg: json.RawMessage(body)}
		r.sendTo(n, env)
	}
}

// rebuild replays every remaining update record of the RIB, in order,
// through the install path with re-announcement suppressed, then
// re-aggregates, per §4.C. Handshake records are skipped.
func (r *Router) rebuild() {
	r.table.reset()
	for _, a := range r.rib.all() {
		if a.kind != annUpdate {
			continue
		}
		r.installUpdate(a.source, a.body)
	}
	r.table.aggregate()
}

// handleData forwards a data packet per the export/forwarding policy in
// §4.F.
func (r *Router) handleData(n *Neighbor, env Envelope) {
	// A `no route` reply goes to the neighbor whose route best covers the
	// packet's source, or back to the arrival neighbor if no route does.
	replyTo := n
	if srcRoutes := r.coveringRoutes(env.Src); len(srcRoutes) > 0 {
		best, _ := Select(srcRoutes, env.Src)
		if bn, ok := r.neighbors.get(best.Peer); ok {
			replyTo = bn
		}
	}

	candidates := r.coveringRoutes(env.Dst)
	if len(candidates) == 0 {
		r.replyNoRoute(replyTo, newRouteError(errNoRoute, nil))
		return
	}
	chosen, _ := Select(candidates, env.Dst)
	outPeer, ok := r.neighbors.get(chosen.Peer)
	if !ok {
		r.replyNoRoute(replyTo, newRouteError(errUnknownNeighbor, nil))
		return
	}

	inboundRelation := r.inboundRelation(env.Src)
	if !shouldForward(outPeer.Relationship, inboundRelation) {
		r.replyNoRoute(replyTo, newRouteError(errPolicyDenied, nil))
		return
	}

	env.Src = ourAddr(outPeer.Address)
	env.Dst = outPeer.Address
	r.sendTo(outPeer, env)
}

// coveringRoutes returns every route whose prefix covers dst.
func (r *Router) coveringRoutes(dst netip.Addr) []Route {
	var out []Route
	for _, rt := range r.table.routes {
		if covers(dst, rt.Network, rt.Netmask) {
			out = append(out, rt)
		}
	}
	return out
}

// inboundRelation determines the relationship to use for the inbound leg
// of a forwarding decision: the relationship of the peer on the best route
// covering the data packet's source, or unknown if no such route exists.
func (r *Router) inboundRelation(src netip.Addr) Relationship {
	candidates := r.coveringRoutes(src)
	if len(candidates) == 0 {
		return relUnknown
	}
	chosen, _ := Select(candidates, src)
	n, ok := r.neighbors.get(chosen.Peer)
	if !ok {
		return relUnknown
	}
	return n.Relationship
}

// replyNoRoute sends the `no route` response to n. handleData passes the
// neighbor that best covers the data packet's source, per §4.F.
func (r *Router) replyNoRoute(n *Neighbor, cause error) {
	logf("drop: %v", cause)
	env := Envelope{Src: ourAddr(n.Address), Dst: n.Address, Type: MsgNoRoute, Msg: json.RawMessage(`[]`)}
	r.sendTo(n, env)
}

// handleDump replies with the full forwarding table, ASPath stripped of its
// leading self-AS element, per §4.H.
func (r *Router) handleDump(n *Neighbor, env Envelope) {
	entries := make([]tableEntry, 0, len(r.table.routes))
	for _, rt := range r.table.Snapshot() {
		entries = append(entries, routeToTableEntry(rt))
	}
	body, _ := json.Marshal(entries)
	out := Envelope{Src: ourAddr(n.Address), Dst: n.Address, Type: MsgTable, Msg: json.RawMessage(body)}
	r.sendTo(n, out)
}
