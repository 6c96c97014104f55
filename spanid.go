// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 for log correlation.
//
// The [ProxyLoop] draws a fresh span ID for every dispatched command and
// stores it in [Message.SpanID], so a handler can attach it to its
// logger with [log/slog.Logger.With] and correlate the log entries of
// that one dispatch.
//
// UUIDv7 is time-ordered, which is exactly wrong for anything
// security-sensitive (see [ReplyTable] tag generation, which deliberately
// uses crypto/rand instead); it is fine here because a span ID is never
// used for authorization or correlation-guessing resistance, only log
// grepping.
//
// Panics if the system random number generator fails, which should only
// happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
