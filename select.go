package routed

import "net/netip"

// Select reduces a non-empty candidate set to a single route via the
// six-step tie-break in §4.E, stopping as soon as one candidate remains. It
// is a pure function of its inputs so that re-running it on the same input
// is guaranteed to return the same route (§8's stability property).
func Select(candidates []Route, dst netip.Addr) (Route, bool) {
	if len(candidates) == 0 {
		return Route{}, false
	}
	cur := candidates

	// 1. longest prefix match against dst, ignoring the entry's own mask —
	// this compares raw bit-prefix length of network vs dst, per the
	// preserved source ambiguity documented in §9.
	cur = filterMax(cur, func(r Route) int { return lpmLength(dst, r.Network) })
	if len(cur) == 1 {
		return cur[0], true
	}

	// 2. highest localpref.
	cur = filterMax(cur, func(r Route) int { return r.LocalPref })
	if len(cur) == 1 {
		return cur[0], true
	}

	// 3. selfOrigin = true preferred; if none qualifies, keep all.
	if self := filterSelfOrigin(cur); len(self) > 0 {
		cur = self
	}
	if len(cur) == 1 {
		return cur[0], true
	}

	// 4. shortest ASPath length.
	cur = filterMin(cur, func(r Route) int { return len(r.ASPath) })
	if len(cur) == 1 {
		return cur[0], true
	}

	// 5. best origin: IGP > EGP > UNK.
	cur = filterMin(cur, func(r Route) int { return originRank(r.Origin) })
	if len(cur) == 1 {
		return cur[0], true
	}

	// 6. lowest peer IP.
	cur = filterMin(cur, func(r Route) int { return int(ipToU32(r.Peer)) })

	// Ties remaining after step 6: return the first candidate.
	return cur[0], true
}

func filterMax(routes []Route, key func(Route) int) []Route {
	best := key(routes[0])
	for _, r := range routes[1:] {
		if k := key(r); k > best {
			best = k
		}
	}
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		if key(r) == best {
			out = append(out, r)
		}
	}
	return out
}

func filterMin(routes []Route, key func(Route) int) []Route {
	best := key(routes[0])
	for _, r := range routes[1:] {
		if k := key(r); k < best {
			best = k
		}
	}
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		if key(r) == best {
			out = append(out, r)
		}
	}
	return out
}

func filterSelfOrigin(routes []Route) []Route {
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		if r.SelfOrigin {
			out = append(out, r)
		}
	}
	return out
}
