// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import "time"

// Config holds common configuration for a [Server].
//
// Pass a [*Config] to [NewServer] to pre-wire dependencies. All fields
// have sensible defaults set by [NewConfig] and are safe to override
// before the server starts; they must not be mutated while the server is
// serving ([Server.ListenPlain], [Server.ListenCurve] or
// [Server.ServeRouter]).
type Config struct {
	// Logger is the [SLogger] used for structured logging.
	//
	// Set by [NewConfig] to [DefaultSLogger].
	Logger SLogger

	// ErrClassifier classifies transport/handler errors. No meshmq
	// component calls it.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now]. Override in tests for
	// deterministic reply-table deadline behavior.
	TimeNow func() time.Time

	// IsServiceNode reports whether this process is itself configured as
	// a service node, gating commands whose Access.LocalServiceNodeOnly
	// is set.
	//
	// Set by [NewConfig] to false.
	IsServiceNode bool

	// DefaultReplyTimeout is the deadline used by [Server.Request] when
	// the caller does not supply one explicitly.
	//
	// Set by [NewConfig] to 30 seconds (the wire protocol does not
	// specify a default; this is meshmq's documented choice per the
	// spec's open question on reply-tag timeouts).
	DefaultReplyTimeout time.Duration

	// WorkerPoolSize bounds the number of handlers executing
	// concurrently across all connections.
	//
	// Set by [NewConfig] to 32.
	WorkerPoolSize int64

	// QueueHighWatermark is the pending-job count above which the
	// ProxyLoop stalls reading from its ingress socket.
	//
	// Set by [NewConfig] to 4096.
	QueueHighWatermark int

	// QueueLowWatermark is the pending-job count below which a stalled
	// ProxyLoop resumes reading from its ingress socket.
	//
	// Set by [NewConfig] to 1024.
	QueueLowWatermark int

	// DirectiveBufferSize is the capacity of the MPSC channel workers use
	// to post send_reply/send_back directives back to the ProxyLoop.
	//
	// Set by [NewConfig] to 4096.
	DirectiveBufferSize int

	// IdleTimeout is how long a connection may go without receiving any
	// frame before the [ProxyLoop] transitions it Ready -> Dead on its
	// own initiative, alongside the socket-error and administrative-close
	// triggers. Zero disables idle-timeout enforcement entirely.
	//
	// Set by [NewConfig] to 5 minutes (the wire protocol does not specify
	// a value; this is meshmq's documented choice, in the same spirit as
	// [Config.DefaultReplyTimeout]).
	IdleTimeout time.Duration
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Logger:              DefaultSLogger(),
		ErrClassifier:       DefaultErrClassifier,
		TimeNow:             time.Now,
		IsServiceNode:       false,
		DefaultReplyTimeout: 30 * time.Second,
		WorkerPoolSize:      32,
		QueueHighWatermark:  4096,
		QueueLowWatermark:   1024,
		DirectiveBufferSize: 4096,
		IdleTimeout:         5 * time.Minute,
	}
}
