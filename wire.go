package routed

import (
	"encoding/json"
	"fmt"
	"net/netip"
)

// MessageType discriminates the envelope's msg payload, decoded once at the
// dispatcher boundary (§6).
type MessageType string

const (
	MsgHandshake MessageType = "handshake"
	MsgUpdate    MessageType = "update"
	MsgWithdraw  MessageType = "withdraw"
	MsgData      MessageType = "data"
	MsgDump      MessageType = "dump"
	MsgTable     MessageType = "table"
	MsgNoRoute   MessageType = "no route"
)

// Envelope is the common `{src, dst, type, msg}` wrapper every message kind
// shares, with src/dst already parsed to netip.Addr. It is never marshaled
// or unmarshaled directly — see rawEnvelope — so it carries no JSON tags of
// its own. Msg is decoded lazily into the kind-specific payload type once
// Type is known: a fixed envelope header decodes first, then the
// type-specific attributes once the message kind is known.
type Envelope struct {
	Src  netip.Addr
	Dst  netip.Addr
	Type MessageType
	Msg  json.RawMessage
}

// rawEnvelope is what's actually on the wire: src/dst are taken as plain
// strings, and decodeEnvelope/encodeEnvelope convert at the boundary, so
// decoding rejects any src/dst that parseDotted does not accept as IPv4.
type rawEnvelope struct {
	Src  string          `json:"src"`
	Dst  string          `json:"dst"`
	Type MessageType     `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}
	src, err := parseDotted(raw.Src)
	if err != nil {
		return Envelope{}, fmt.Errorf("malformed src: %w", err)
	}
	dst, err := parseDotted(raw.Dst)
	if err != nil {
		return Envelope{}, fmt.Errorf("malformed dst: %w", err)
	}
	return Envelope{Src: src, Dst: dst, Type: raw.Type, Msg: raw.Msg}, nil
}

func encodeEnvelope(e Envelope) ([]byte, error) {
	raw := rawEnvelope{
		Src:  dotted(e.Src),
		Dst:  dotted(e.Dst),
		Type: e.Type,
		Msg:  e.Msg,
	}
	return json.Marshal(raw)
}

// updateInMsg is the inbound update payload (§6): full attribute set.
type updateInMsg struct {
	Network    string `json:"network"`
	Netmask    string `json:"netmask"`
	LocalPref  int    `json:"localpref"`
	ASPath     []int  `json:"ASPath"`
	Origin     Origin `json:"origin"`
	SelfOrigin bool   `json:"selfOrigin"`
}

func (m updateInMsg) parse() (parsedUpdate, error) {
	network, err := parseDotted(m.Network)
	if err != nil {
		return parsedUpdate{}, fmt.Errorf("malformed network: %w", err)
	}
	netmask, err := parseDotted(m.Netmask)
	if err != nil {
		return parsedUpdate{}, fmt.Errorf("malformed netmask: %w", err)
	}
	return parsedUpdate{
		Network:    network,
		Netmask:    netmask,
		LocalPref:  m.LocalPref,
		ASPath:     m.ASPath,
		Origin:     m.Origin,
		SelfOrigin: m.SelfOrigin,
	}, nil
}

// updateOutMsg is the re-announced update payload: network, netmask and
// ASPath only, per §6.
type updateOutMsg struct {
	Network string `json:"network"`
	Netmask string `json:"netmask"`
	ASPath  []int  `json:"ASPath"`
}

// withdrawEntry is one element of a withdraw's msg array.
type withdrawEntry struct {
	Network string `json:"network"`
	Netmask string `json:"netmask"`
}

// tableEntry is one element of a dump reply's msg array.
type tableEntry struct {
	Origin     Origin `json:"origin"`
	LocalPref  int    `json:"localpref"`
	Network    string `json:"network"`
	ASPath     []int  `json:"ASPath"`
	Netmask    string `json:"netmask"`
	Peer       string `json:"peer"`
	SelfOrigin bool   `json:"selfOrigin"`
}

func routeToTableEntry(r Route) tableEntry {
	path := r.ASPath
	if len(path) > 0 {
		path = path[1:]
	}
	return tableEntry{
		Origin:     r.Origin,
		LocalPref:  r.LocalPref,
		Network:    dotted(r.Network),
		ASPath:     path,
		Netmask:    dotted(r.Netmask),
		Peer:       dotted(r.Peer),
		SelfOrigin: r.SelfOrigin,
	}
}
