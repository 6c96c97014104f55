// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original_source/tests/test_failures.cpp (Access, AuthLevel)
//

package meshmq

// AuthLevel is an ordered authorization tier granted to a peer.
type AuthLevel int

const (
	// AuthNone is the level granted to an unauthenticated or
	// unrecognised peer.
	AuthNone AuthLevel = iota
	// AuthBasic is granted to an authenticated peer without elevated
	// privileges.
	AuthBasic
	// AuthAdmin is the highest tier, typically reserved for operators.
	AuthAdmin
)

// String renders the level for logging.
func (l AuthLevel) String() string {
	switch l {
	case AuthNone:
		return "none"
	case AuthBasic:
		return "basic"
	case AuthAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// AuthResolver grants an [AuthLevel] to a peer. The embedder supplies this
// as a pure function of its arguments; meshmq never consults anything but
// the return value.
//
// remoteAddr is the router routing identity of the peer's connection, as
// a string; the [ProxyLoop] has no access to the peer's transport
// endpoint (e.g. its TCP address) and never passes it. pubkey and ok
// describe the peer's verified curve pubkey, if any (see
// [CurveAuthenticator]).
type AuthResolver func(conn ConnectionID, remoteAddr string, pubkey [32]byte, ok bool) AuthLevel

// DefaultAuthResolver grants [AuthNone] to every peer. Embedders serving
// anything above AuthNone-only commands must supply their own resolver to
// [NewServer]; [Server.ListenPlain] and [Server.ListenCurve] take no
// resolver of their own, and the one given to NewServer applies to every
// listener.
func DefaultAuthResolver(ConnectionID, string, [32]byte, bool) AuthLevel {
	return AuthNone
}

// Access is the authorization policy attached to a [Category] or an
// individual command within it.
type Access struct {
	// Level is the minimum [AuthLevel] a peer must hold to invoke the
	// command.
	Level AuthLevel

	// RemoteServiceNodeOnly restricts the command to peers that have
	// been recognised as service nodes (i.e. whose ConnectionID is a
	// [ServiceNode] backed by a verified curve pubkey).
	RemoteServiceNodeOnly bool

	// LocalServiceNodeOnly restricts the command to a local process
	// that is itself configured as a service node ([Config.IsServiceNode]).
	LocalServiceNodeOnly bool
}

// authorize applies the §4.2 policy ladder and returns the failure reason
// to report, or "" if the request is authorized. Ordering is significant:
// a local-service-node violation takes precedence over a remote-service-
// node violation, which takes precedence over an insufficient level.
func authorize(a Access, level AuthLevel, localIsSN, peerIsSN bool) FailureReason {
	switch {
	case a.LocalServiceNodeOnly && !localIsSN:
		return ReasonForbiddenSN
	case a.RemoteServiceNodeOnly && !peerIsSN:
		return ReasonNotAServiceNode
	case level < a.Level:
		return ReasonForbidden
	default:
		return ""
	}
}
