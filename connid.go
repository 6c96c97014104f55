// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/lozzaxmq/connections.h (ConnectionID)
//

package meshmq

import (
	"bytes"
	"fmt"
	"hash/maphash"
)

// connKind tags which variant a [ConnectionID] holds.
//
// Per the spec's design notes, this is a tagged union rather than a
// sentinel integer (the original C++ used id == -1 to mean "service
// node"); Go expresses the union directly as a discriminated struct.
type connKind uint8

const (
	connInvalid connKind = iota
	connServiceNode
	connRemote
)

// ConnectionID is an opaque identity unifying service-node pubkeys and
// ephemeral remote peers.
//
// A [ServiceNode] connection is globally identified by its 32-byte curve
// pubkey regardless of which socket path currently carries it: commands
// addressed to a pubkey route to whichever live connection currently
// terminates that peer. A [Remote] connection has no identity beyond the
// current socket: it is identified by a locally-assigned handle plus the
// router's opaque return-path prefix for that socket.
//
// The zero value is the invalid ConnectionID, matching no real
// connection; test it with [ConnectionID.Valid].
type ConnectionID struct {
	kind   connKind
	pubkey [32]byte
	id     uint64
	route  string
}

// ServiceNode constructs a [ConnectionID] for a service node from its
// 32-byte curve pubkey. Returns an error if pubkey is not exactly 32
// bytes.
func ServiceNode(pubkey []byte) (ConnectionID, error) {
	if len(pubkey) != 32 {
		return ConnectionID{}, fmt.Errorf("meshmq: invalid pubkey: expected 32 bytes, got %d", len(pubkey))
	}
	var c ConnectionID
	c.kind = connServiceNode
	copy(c.pubkey[:], pubkey)
	return c, nil
}

// Remote constructs a [ConnectionID] for an ephemeral remote peer from a
// locally-assigned non-zero identifier and the router's opaque routing
// prefix for the current connection. id must be non-zero: zero always
// denotes "no connection".
func Remote(id uint64, route string) (ConnectionID, error) {
	if id == 0 {
		return ConnectionID{}, fmt.Errorf("meshmq: invalid remote id: 0 is reserved for \"no connection\"")
	}
	return ConnectionID{kind: connRemote, id: id, route: route}, nil
}

// Valid reports whether c identifies a real connection (false for the
// zero value).
func (c ConnectionID) Valid() bool {
	return c.kind != connInvalid
}

// IsServiceNode reports whether c represents a service-node connection.
func (c ConnectionID) IsServiceNode() bool {
	return c.kind == connServiceNode
}

// Pubkey returns c's 32-byte curve pubkey and true if c is a service node.
func (c ConnectionID) Pubkey() ([32]byte, bool) {
	return c.pubkey, c.kind == connServiceNode
}

// Equal reports whether c and o identify the same connection.
//
// Two service-node IDs are equal iff their pubkeys match. Two remote IDs
// are equal iff both their local identifier and routing prefix match
// (pubkeys, if present on a curve-authenticated remote, are not part of
// remote identity). A service node never equals a remote, and the
// invalid ID only equals itself.
func (c ConnectionID) Equal(o ConnectionID) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case connServiceNode:
		return c.pubkey == o.pubkey
	case connRemote:
		return c.id == o.id && c.route == o.route
	default:
		return true // both invalid
	}
}

// Less provides a strict total order over ConnectionID, used to give
// per-connection worker queues and registries a deterministic iteration
// order. Service nodes sort by pubkey; remotes sort by (id, route);
// the invalid ID sorts before service nodes, which sort before remotes.
func (c ConnectionID) Less(o ConnectionID) bool {
	if c.kind != o.kind {
		return c.kind < o.kind
	}
	switch c.kind {
	case connServiceNode:
		return bytes.Compare(c.pubkey[:], o.pubkey[:]) < 0
	case connRemote:
		if c.id != o.id {
			return c.id < o.id
		}
		return c.route < o.route
	default:
		return false
	}
}

// Unrouted returns a copy of c with the routing prefix cleared, so two
// ConnectionIDs for the same remote peer compare equal regardless of
// which specific socket path delivered them. For a [ServiceNode], c is
// already routing-prefix-free and Unrouted returns c unchanged.
func (c ConnectionID) Unrouted() ConnectionID {
	if c.kind != connRemote {
		return c
	}
	return ConnectionID{kind: connRemote, id: c.id}
}

// hashSeed is process-global so that Hash is stable within one process
// run but not predictable across runs or machines, matching the
// guidance that hash/maphash seeds should not be reused as a PRNG.
var hashSeed = maphash.MakeSeed()

// Hash returns a hash of c suitable for use as a map key surrogate or for
// sharding connections across worker queues. Equal ConnectionIDs always
// hash equally.
func (c ConnectionID) Hash() uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteByte(byte(c.kind))
	switch c.kind {
	case connServiceNode:
		h.Write(c.pubkey[:])
	case connRemote:
		var buf [8]byte
		for i := range buf {
			buf[i] = byte(c.id >> (8 * i))
		}
		h.Write(buf[:])
		h.WriteString(c.route)
	}
	return h.Sum64()
}

// String renders c for logging. Service-node pubkeys are never logged in
// full to avoid leaking key material verbatim into log sinks; only the
// variant and a short prefix are shown.
func (c ConnectionID) String() string {
	switch c.kind {
	case connServiceNode:
		return fmt.Sprintf("sn:%x…", c.pubkey[:4])
	case connRemote:
		return fmt.Sprintf("remote:%d", c.id)
	default:
		return "invalid"
	}
}
