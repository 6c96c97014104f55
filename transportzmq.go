// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"context"
	"fmt"

	zmq4 "github.com/luxfi/zmq/v4"
)

// zmqRouterSocket adapts a github.com/luxfi/zmq/v4 ROUTER socket to
// [RouterSocket]. The router automatically prepends the sender's routing
// identity as the first frame on recv and expects it prepended the same
// way on send.
type zmqRouterSocket struct {
	sock zmq4.Socket
}

// NewRouterSocket binds a ZMQ ROUTER socket at addr and returns it as a
// [RouterSocket]. Pass CurveZMQ security options in opts to require
// CurveZMQ on this listener.
func NewRouterSocket(ctx context.Context, addr string, opts ...zmq4.Option) (RouterSocket, error) {
	sock := zmq4.NewRouter(ctx, opts...)
	if err := sock.Listen(addr); err != nil {
		return nil, fmt.Errorf("meshmq: router listen %s: %w", addr, err)
	}
	return &zmqRouterSocket{sock: sock}, nil
}

func (r *zmqRouterSocket) RecvMultipart(ctx context.Context) ([]byte, [][]byte, error) {
	msg, err := r.sock.Recv()
	if err != nil {
		return nil, nil, err
	}
	if len(msg.Frames) < 1 {
		return nil, nil, fmt.Errorf("meshmq: router recv: empty message")
	}
	return msg.Frames[0], msg.Frames[1:], nil
}

func (r *zmqRouterSocket) SendMultipart(ctx context.Context, routingID []byte, frames [][]byte) error {
	all := make([][]byte, 0, 1+len(frames))
	all = append(all, routingID)
	all = append(all, frames...)
	return r.sock.Send(zmq4.NewMsgFrom(all...))
}

func (r *zmqRouterSocket) Close() error {
	return r.sock.Close()
}

// zmqDealerSocket adapts a github.com/luxfi/zmq/v4 DEALER socket to
// [DealerSocket].
type zmqDealerSocket struct {
	sock zmq4.Socket
}

// NewDealerSocket dials a ZMQ DEALER socket to addr and returns it as a
// [DealerSocket].
func NewDealerSocket(ctx context.Context, addr string, opts ...zmq4.Option) (DealerSocket, error) {
	sock := zmq4.NewDealer(ctx, opts...)
	if err := sock.Dial(addr); err != nil {
		return nil, fmt.Errorf("meshmq: dealer dial %s: %w", addr, err)
	}
	return &zmqDealerSocket{sock: sock}, nil
}

func (d *zmqDealerSocket) RecvMultipart(ctx context.Context) ([][]byte, error) {
	msg, err := d.sock.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Frames, nil
}

func (d *zmqDealerSocket) SendMultipart(ctx context.Context, frames [][]byte) error {
	return d.sock.Send(zmq4.NewMsgFrom(frames...))
}

func (d *zmqDealerSocket) Close() error {
	return d.sock.Close()
}
