package routed

import "sort"

// forwardingTable is the derived set of routes with attributes, kept
// minimal under attribute-equivalence by aggregation (§4.D).
type forwardingTable struct {
	routes []Route
}

func newForwardingTable() *forwardingTable {
	return &forwardingTable{}
}

// install appends a new route to the table. Callers are responsible for
// calling aggregate afterward.
func (t *forwardingTable) install(r Route) {
	t.routes = append(t.routes, r)
}

// reset clears the table, used before a rebuild from the RIB.
func (t *forwardingTable) reset() {
	t.routes = nil
}

// Snapshot returns a defensive copy of the current routes.
func (t *forwardingTable) Snapshot() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

func routeIdentical(a, b Route) bool {
	return a.Network == b.Network && a.Netmask == b.Netmask && sameAttributes(a, b)
}

// aggregate runs the fixed-point merge loop described in §4.D and §9: it
// computes candidate merges from an immutable snapshot of the table, applies
// the first one found, and repeats until a full pass finds none. It never
// mutates the slice it is scanning, unlike the mutate-during-scan approach
// called out as fragile in §9's design notes.
func (t *forwardingTable) aggregate() {
	for {
		snapshot := make([]Route, len(t.routes))
		copy(snapshot, t.routes)
		sort.SliceStable(snapshot, func(i, j int) bool {
			return ipToU32(snapshot[i].Network) < ipToU32(snapshot[j].Network)
		})

		merged := false
		for i := 0; i < len(snapshot) && !merged; i++ {
			e := snapshot[i]
			for j := i + 1; j < len(snapshot); j++ {
				f := snapshot[j]
				if !sameAttributes(e, f) {
					continue
				}
				if t.tryMerge(e, f) {
					merged = true
					break
				}
			}
		}
		if !merged {
			return
		}
	}
}

// tryMerge merges e and f (e.Network <= f.Network, both already confirmed
// sameAttributes) if their ranges are adjacent or overlapping, per §4.D
// step 2: low(e) <= network(f) <= high(e)+1.
func (t *forwardingTable) tryMerge(e, f Route) bool {
	low, high := ipRange(e.Network, e.Netmask)
	fNet := ipToU32(f.Network)
	if !(low <= fNet && fNet <= high+1) {
		return false
	}
	t.applyMerge(e, f)
	return true
}

// applyMerge removes the losing entry from the live table and, if the two
// networks differ, shortens the surviving entry's mask by one bit and
// re-masks its network with the shorter mask. Equal
// networks (only possible with equal masks) are a documented no-op per the
// source-ambiguity note in §9: such a pair is the same route duplicated and
// should not have existed, so the mask is left unchanged and only the
// duplicate is dropped.
func (t *forwardingTable) applyMerge(lower, upper Route) {
	kept := lower
	if lower.Network != upper.Network {
		cidr := maskToCIDR(kept.Netmask)
		if cidr > 0 {
			kept.Netmask = cidrToMask(cidr - 1)
		}
		kept.Network = u32ToIP(ipToU32(kept.Network) & ipToU32(kept.Netmask))
	}

	out := make([]Route, 0, len(t.routes))
	removedKept, removedOther := false, false
	for _, r := range t.routes {
		if !removedKept && routeIdentical(r, lower) {
			removedKept = true
			continue
		}
		if !removedOther && routeIdentical(r, upper) {
			removedOther = true
			continue
		}
		out = append(out, r)
	}
	out = append(out, kept)
	t.routes = out
}
