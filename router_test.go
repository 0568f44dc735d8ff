package routed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	sent []Envelope
}

func (f *fakeHandle) send(b []byte) error {
	env, err := decodeEnvelope(b)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeHandle) close() error { return nil }

func newTestRouter(t *testing.T, asn int, specs []NeighborSpec) (*Router, map[string]*fakeHandle) {
	t.Helper()
	r := NewRouter(asn, specs)
	handles := make(map[string]*fakeHandle)
	for _, n := range r.neighbors.all() {
		h := &fakeHandle{}
		n.conn = h
		handles[dotted(n.Address)] = h
	}
	return r, handles
}

func updateEnvelope(t *testing.T, src, dst, network, netmask string, localpref int, asPath []int, origin Origin, selfOrigin bool) []byte {
	t.Helper()
	body := updateInMsg{
		Network:    network,
		Netmask:    netmask,
		LocalPref:  localpref,
		ASPath:     asPath,
		Origin:     origin,
		SelfOrigin: selfOrigin,
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	env := struct {
		Src  string          `json:"src"`
		Dst  string          `json:"dst"`
		Type MessageType     `json:"type"`
		Msg  json.RawMessage `json:"msg"`
	}{Src: src, Dst: dst, Type: MsgUpdate, Msg: b}
	out, err := json.Marshal(env)
	require.NoError(t, err)
	return out
}

func dataEnvelope(t *testing.T, src, dst string) []byte {
	t.Helper()
	env := struct {
		Src  string          `json:"src"`
		Dst  string          `json:"dst"`
		Type MessageType     `json:"type"`
		Msg  json.RawMessage `json:"msg"`
	}{Src: src, Dst: dst, Type: MsgData, Msg: json.RawMessage(`{}`)}
	out, err := json.Marshal(env)
	require.NoError(t, err)
	return out
}

func withdrawEnvelope(t *testing.T, src, dst, network, netmask string) []byte {
	t.Helper()
	entries := []withdrawEntry{{Network: network, Netmask: netmask}}
	b, err := json.Marshal(entries)
	require.NoError(t, err)
	env := struct {
		Src  string          `json:"src"`
		Dst  string          `json:"dst"`
		Type MessageType     `json:"type"`
		Msg  json.RawMessage `json:"msg"`
	}{Src: src, Dst: dst, Type: MsgWithdraw, Msg: b}
	out, err := json.Marshal(env)
	require.NoError(t, err)
	return out
}

// Scenario 1: basic announce + forward.
func TestScenarioBasicAnnounceAndForward(t *testing.T) {
	specs := []NeighborSpec{
		{Port: 10001, Address: addr(t, "192.168.0.2"), Relationship: Customer},
		{Port: 10002, Address: addr(t, "172.16.0.2"), Relationship: Peer},
	}
	r, handles := newTestRouter(t, 1, specs)

	msg := updateEnvelope(t, "192.168.0.2", "192.168.0.1", "10.0.0.0", "255.255.0.0", 100, []int{1}, OriginIGP, false)
	r.handleDatagram(addr(t, "192.168.0.2"), msg)

	data := dataEnvelope(t, "172.16.0.2", "10.0.5.5")
	r.handleDatagram(addr(t, "172.16.0.2"), data)

	sentToA := handles["192.168.0.2"].sent
	if assert.NotEmpty(t, sentToA) {
		last := sentToA[len(sentToA)-1]
		assert.Equal(t, MsgData, last.Type)
	}
}

// Scenario 2: export suppression.
func TestScenarioExportSuppression(t *testing.T) {
	specs := []NeighborSpec{
		{Port: 10001, Address: addr(t, "192.168.0.2"), Relationship: Customer},
		{Port: 10002, Address: addr(t, "172.16.0.2"), Relationship: Peer},
		{Port: 10003, Address: addr(t, "172.16.0.3"), Relationship: Peer},
	}
	r, handles := newTestRouter(t, 1, specs)

	msg := updateEnvelope(t, "172.16.0.2", "172.16.0.1", "20.0.0.0", "255.255.0.0", 100, []int{2}, OriginIGP, false)
	r.handleDatagram(addr(t, "172.16.0.2"), msg)

	assert.Empty(t, handles["172.16.0.3"].sent, "peer must not receive a peer-sourced update")
	if assert.NotEmpty(t, handles["192.168.0.2"].sent) {
		assert.Equal(t, MsgUpdate, handles["192.168.0.2"].sent[0].Type)
	}
}

// Scenario 3/4: aggregation then disaggregation via withdraw + rebuild.
func TestScenarioAggregateThenWithdraw(t *testing.T) {
	specs := []NeighborSpec{
		{Port: 10001, Address: addr(t, "192.168.0.2"), Relationship: Customer},
	}
	r, _ := newTestRouter(t, 1, specs)

	r.handleDatagram(addr(t, "192.168.0.2"), updateEnvelope(t, "192.168.0.2", "192.168.0.1", "192.168.0.0", "255.255.255.0", 100, nil, OriginIGP, false))
	r.handleDatagram(addr(t, "192.168.0.2"), updateEnvelope(t, "192.168.0.2", "192.168.0.1", "192.168.1.0", "255.255.255.0", 100, nil, OriginIGP, false))

	got := r.table.Snapshot()
	if assert.Len(t, got, 1) {
		assert.Equal(t, addr(t, "192.168.0.0"), got[0].Network)
		assert.Equal(t, addr(t, "255.255.254.0"), got[0].Netmask)
	}

	r.handleDatagram(addr(t, "192.168.0.2"), withdrawEnvelope(t, "192.168.0.2", "192.168.0.1", "192.168.1.0", "255.255.255.0"))

	got = r.table.Snapshot()
	if assert.Len(t, got, 1) {
		assert.Equal(t, addr(t, "192.168.0.0"), got[0].Network)
		assert.Equal(t, addr(t, "255.255.255.0"), got[0].Netmask)
	}
}

// Scenario 6: no route on policy.
func TestScenarioNoRouteOnPolicy(t *testing.T) {
	specs := []NeighborSpec{
		{Port: 10001, Address: addr(t, "172.16.0.2"), Relationship: Peer},
		{Port: 10002, Address: addr(t, "172.16.0.3"), Relationship: Peer},
	}
	r, handles := newTestRouter(t, 1, specs)

	r.handleDatagram(addr(t, "172.16.0.2"), updateEnvelope(t, "172.16.0.2", "172.16.0.1", "30.0.0.0", "255.0.0.0", 100, nil, OriginIGP, false))

	data := dataEnvelope(t, "172.16.0.3", "30.0.0.1")
	r.handleDatagram(addr(t, "172.16.0.3"), data)

	sent := handles["172.16.0.3"].sent
	if assert.NotEmpty(t, sent) {
		last := sent[len(sent)-1]
		assert.Equal(t, MsgNoRoute, last.Type)
	}
}

func TestRebuildFromLogMatchesIncremental(t *testing.T) {
	specs := []NeighborSpec{
		{Port: 10001, Address: addr(t, "192.168.0.2"), Relationship: Customer},
	}
	r, _ := newTestRouter(t, 1, specs)

	r.handleDatagram(addr(t, "192.168.0.2"), updateEnvelope(t, "192.168.0.2", "192.168.0.1", "192.168.0.0", "255.255.255.0", 100, nil, OriginIGP, false))
	r.handleDatagram(addr(t, "192.168.0.2"), updateEnvelope(t, "192.168.0.2", "192.168.0.1", "192.168.2.0", "255.255.255.0", 100, nil, OriginIGP, false))

	incremental := r.table.Snapshot()

	r.rebuild()
	rebuilt := r.table.Snapshot()

	assert.ElementsMatch(t, incremental, rebuilt)
}

func TestHandshakeDoesNotReannounce(t *testing.T) {
	specs := []NeighborSpec{
		{Port: 10001, Address: addr(t, "192.168.0.2"), Relationship: Customer},
		{Port: 10002, Address: addr(t, "172.16.0.2"), Relationship: Peer},
	}
	r, handles := newTestRouter(t, 1, specs)

	env := struct {
		Src  string          `json:"src"`
		Dst  string          `json:"dst"`
		Type MessageType     `json:"type"`
		Msg  json.RawMessage `json:"msg"`
	}{Src: "192.168.0.2", Dst: "192.168.0.1", Type: MsgHandshake, Msg: json.RawMessage(`{}`)}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	r.handleDatagram(addr(t, "192.168.0.2"), data)

	assert.Empty(t, handles["172.16.0.2"].sent)
	assert.Len(t, r.rib.all(), 1)
}

func TestDumpStripsLeadingASPath(t *testing.T) {
	specs := []NeighborSpec{
		{Port: 10001, Address: addr(t, "192.168.0.2"), Relationship: Customer},
	}
	r, handles := newTestRouter(t, 7, specs)

	r.handleDatagram(addr(t, "192.168.0.2"), updateEnvelope(t, "192.168.0.2", "192.168.0.1", "10.0.0.0", "255.0.0.0", 100, []int{1}, OriginIGP, false))

	env := struct {
		Src  string          `json:"src"`
		Dst  string          `json:"dst"`
		Type MessageType     `json:"type"`
		Msg  json.RawMessage `json:"msg"`
	}{Src: "192.168.0.2", Dst: "192.168.0.1", Type: MsgDump, Msg: json.RawMessage(`{}`)}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	r.handleDatagram(addr(t, "192.168.0.2"), data)

	sent := handles["192.168.0.2"].sent
	require.NotEmpty(t, sent)
	last := sent[len(sent)-1]
	assert.Equal(t, MsgTable, last.Type)

	var entries []tableEntry
	require.NoError(t, json.Unmarshal(last.Msg, &entries))
	if assert.Len(t, entries, 1) {
		assert.Equal(t, []int{1}, entries[0].ASPath)
	}
}
