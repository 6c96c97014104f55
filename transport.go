// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import "context"

// RouterSocket abstracts a ROUTER-side multipart socket: every recv
// yields the remote's routing identity alongside the message frames, and
// every send must be addressed by routing identity. The [ProxyLoop]
// never touches the underlying transport beyond this interface, which
// keeps it testable against an in-memory fake instead of a live network.
type RouterSocket interface {
	RecvMultipart(ctx context.Context) (routingID []byte, frames [][]byte, err error)
	SendMultipart(ctx context.Context, routingID []byte, frames [][]byte) error
	Close() error
}

// DealerSocket abstracts a DEALER-side multipart socket used for
// outbound connections this process initiates, where there is a single
// implicit peer and no routing identity to thread through.
type DealerSocket interface {
	RecvMultipart(ctx context.Context) (frames [][]byte, err error)
	SendMultipart(ctx context.Context, frames [][]byte) error
	Close() error
}
