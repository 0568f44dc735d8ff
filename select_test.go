package routed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectLongestPrefixMatch(t *testing.T) {
	wide := baseRoute(t, "10.0.0.0", "255.0.0.0", "192.168.0.2")
	narrow := baseRoute(t, "10.1.0.0", "255.255.0.0", "172.16.0.2")
	chosen, ok := Select([]Route{wide, narrow}, addr(t, "10.1.2.3"))
	require.True(t, ok)
	assert.Equal(t, narrow.Peer, chosen.Peer)
}

func TestSelectLocalPrefTiebreak(t *testing.T) {
	a := baseRoute(t, "10.0.0.0", "255.0.0.0", "192.168.0.2")
	b := baseRoute(t, "10.0.0.0", "255.0.0.0", "172.16.0.2")
	a.LocalPref = 100
	b.LocalPref = 200
	chosen, _ := Select([]Route{a, b}, addr(t, "10.1.2.3"))
	assert.Equal(t, b.Peer, chosen.Peer)
}

func TestSelectSelfOriginTiebreak(t *testing.T) {
	a := baseRoute(t, "10.0.0.0", "255.0.0.0", "192.168.0.2")
	b := baseRoute(t, "10.0.0.0", "255.0.0.0", "172.16.0.2")
	a.LocalPref, b.LocalPref = 100, 100
	a.SelfOrigin = true
	chosen, _ := Select([]Route{a, b}, addr(t, "10.1.2.3"))
	assert.Equal(t, a.Peer, chosen.Peer)
}

func TestSelectShorterASPathTiebreak(t *testing.T) {
	a := baseRoute(t, "10.0.0.0", "255.0.0.0", "192.168.0.2")
	b := baseRoute(t, "10.0.0.0", "255.0.0.0", "172.16.0.2")
	a.LocalPref, b.LocalPref = 100, 100
	a.ASPath = []int{1, 2, 3}
	b.ASPath = []int{1}
	chosen, _ := Select([]Route{a, b}, addr(t, "10.1.2.3"))
	assert.Equal(t, b.Peer, chosen.Peer)
}

func TestSelectOriginTiebreak(t *testing.T) {
	a := baseRoute(t, "10.0.0.0", "255.0.0.0", "192.168.0.2")
	b := baseRoute(t, "10.0.0.0", "255.0.0.0", "172.16.0.2")
	a.ASPath, b.ASPath = []int{1}, []int{1}
	a.Origin = OriginEGP
	b.Origin = OriginIGP
	chosen, _ := Select([]Route{a, b}, addr(t, "10.1.2.3"))
	assert.Equal(t, b.Peer, chosen.Peer)
}

func TestSelectLowestPeerTiebreak(t *testing.T) {
	a := baseRoute(t, "10.0.0.0", "255.0.0.0", "192.168.0.2")
	b := baseRoute(t, "10.0.0.0", "255.0.0.0", "172.16.0.2")
	chosen, _ := Select([]Route{a, b}, addr(t, "10.1.2.3"))
	assert.Equal(t, b.Peer, chosen.Peer)
}

func TestSelectIsStable(t *testing.T) {
	a := baseRoute(t, "10.0.0.0", "255.0.0.0", "192.168.0.2")
	b := baseRoute(t, "10.0.0.0", "255.0.0.0", "172.16.0.2")
	candidates := []Route{a, b}
	first, _ := Select(candidates, addr(t, "10.1.2.3"))
	second, _ := Select(candidates, addr(t, "10.1.2.3"))
	assert.Equal(t, first, second)
}

func TestSelectEmptyCandidates(t *testing.T) {
	_, ok := Select(nil, addr(t, "10.1.2.3"))
	assert.False(t, ok)
}
