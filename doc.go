// SPDX-License-Identifier: GPL-3.0-or-later

// Package meshmq provides the dispatch core of a message-oriented RPC and
// event framework built atop an authenticated, curve-encrypted router/dealer
// transport (the CurveZMQ dealer/router family).
//
// # Core Abstraction
//
// Peers exchange categorised commands addressed as "category.command".
// Commands are either fire-and-forget or request-kind (the latter carry a
// caller-supplied reply tag and eventually receive a correlated REPLY).
// Handlers run on a bounded [WorkerPool] under a single-threaded
// [ProxyLoop] that owns every socket; handlers never touch the network
// directly.
//
// # Identity
//
// [ConnectionID] is a tagged union: a service node is identified globally
// by a 32-byte curve pubkey regardless of which socket path currently
// carries it, while a remote peer's identity is scoped to the local
// socket handle plus the router's opaque return-path prefix.
//
// # Registration
//
// Commands are registered via [Server.AddCategory] and
// [CategoryBuilder.AddCommand] / [CategoryBuilder.AddRequestCommand]
// before the server starts serving ([Server.ListenPlain],
// [Server.ListenCurve] or [Server.ServeRouter]). The [CategoryRegistry]
// refuses new categories once the server starts.
//
// # Authorization
//
// Each command carries an [Access] policy: an ordered [AuthLevel], and two
// independent service-node flags (remote peer must be an authenticated
// service node; local process must itself be configured as one). Rejected
// commands are reported with one of the wire failure reasons
// ([ReasonUnknownCommand], [ReasonNoReplyTag], [ReasonForbidden],
// [ReasonForbiddenSN], [ReasonNotAServiceNode]) without terminating the
// connection.
//
// # Concurrency
//
// [WorkerPool] guarantees that jobs submitted for the same [ConnectionID]
// execute in submission order; no ordering is guaranteed across
// connections. Handlers reach back into the network only through
// [Message.SendReply] and [Message.SendBack], which are non-blocking
// enqueues onto a channel consumed exclusively by the [ProxyLoop].
//
// # Observability
//
// The [ProxyLoop] logs through [SLogger] (compatible with [log/slog]), at
// Debug level. By default, logging is disabled; set [Config.Logger] to
// enable it. [Config.ErrClassifier] holds an [ErrClassifier] that no
// meshmq component calls; the default is a no-op, and the neterr
// subpackage offers OS-level socket error classification.
package meshmq
