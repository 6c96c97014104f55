// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

// FailureReason is one of the bit-exact ASCII wire reasons a dispatch
// rejection is reported with. A failure never terminates the connection.
type FailureReason string

const (
	// ReasonUnknownCommand is reported when "category.command" does not
	// resolve to a registered [CommandRecord].
	ReasonUnknownCommand FailureReason = "UNKNOWNCOMMAND"

	// ReasonNoReplyTag is reported when a request-kind command is
	// invoked without a non-empty reply-tag frame.
	ReasonNoReplyTag FailureReason = "NO_REPLY_TAG"

	// ReasonForbidden is reported when the peer's [AuthLevel] is below
	// the command's required level.
	ReasonForbidden FailureReason = "FORBIDDEN"

	// ReasonForbiddenSN is reported when the command is local-service-
	// node-only but this process is not configured as one.
	ReasonForbiddenSN FailureReason = "FORBIDDEN_SN"

	// ReasonNotAServiceNode is reported when the command is remote-
	// service-node-only but the peer has not been recognised as one.
	ReasonNotAServiceNode FailureReason = "NOT_A_SERVICE_NODE"

	// ReasonInternalError is a meshmq extension (not part of the
	// original closed wire taxonomy) synthesized for request-kind
	// commands whose handler panicked, so the caller is not left
	// waiting on its reply tag forever. It is never used as a policy
	// rejection reason and is never returned by [authorize].
	ReasonInternalError FailureReason = "INTERNAL_ERROR"
)

// replyMarker is the literal frame that starts every successful REPLY
// and follows the reason frame in a failure that carries a reply tag.
const replyMarker = "REPLY"

// handshakeRequest and handshakeReply are the bit-exact handshake frames.
const (
	handshakeRequest = "HI"
	handshakeReply   = "HELLO"
)

// encodeFailure builds the egress frames for a rejected or unknown
// command. When replyTag is non-empty the caller gets the three-frame
// form (reason, REPLY, tag) so its [ReplyTable] entry is notified instead
// of timing out, dropping the echoed command name; otherwise the plain
// two-frame form (reason, command) is used.
func encodeFailure(reason FailureReason, command string, replyTag []byte) [][]byte {
	if len(replyTag) > 0 {
		return [][]byte{[]byte(reason), []byte(replyMarker), replyTag}
	}
	return [][]byte{[]byte(reason), []byte(command)}
}

// encodeReply builds the egress frames for a successful REPLY: the
// REPLY marker, the tag, then the payload frames (possibly empty).
func encodeReply(tag []byte, payload ...[]byte) [][]byte {
	frames := make([][]byte, 0, 2+len(payload))
	frames = append(frames, []byte(replyMarker), tag)
	frames = append(frames, payload...)
	return frames
}
