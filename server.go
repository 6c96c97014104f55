// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	zmq4 "github.com/luxfi/zmq/v4"
)

// Server is the embedder-facing entry point: register categories and
// commands, then call [Server.ListenPlain], [Server.ListenCurve] or
// [Server.ServeRouter] to begin dispatching. There is no separate start
// step: each of those methods starts serving and blocks.
type Server struct {
	cfg      *Config
	registry *CategoryRegistry
	auth     AuthResolver
	curve    CurveAuthenticator

	mu      sync.Mutex
	started bool
	loop    *ProxyLoop
	pool    *WorkerPool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewServer constructs a [Server] with the given [Config] (use
// [NewConfig] for defaults) and an optional [AuthResolver] (nil uses
// [DefaultAuthResolver], which grants [AuthNone] to everyone).
func NewServer(cfg *Config, auth AuthResolver) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if auth == nil {
		auth = DefaultAuthResolver
	}
	return &Server{
		cfg:      cfg,
		registry: NewCategoryRegistry(),
		auth:     auth,
		curve:    NoCurveAuthenticator{},
	}
}

// AddCategory registers a category and returns its [CategoryBuilder].
// Must be called before the server starts serving.
func (s *Server) AddCategory(name string, def Access) (*CategoryBuilder, error) {
	return s.registry.AddCategory(name, def)
}

// ListenPlain binds a plaintext ROUTER socket at addr and starts serving.
// [Server.Stop] tears down the server; ListenPlain blocks until ctx is
// cancelled or a permanent transport error occurs, so call it in its own
// goroutine unless the caller wants to block.
func (s *Server) ListenPlain(ctx context.Context, addr string) error {
	return s.listen(ctx, addr, NoCurveAuthenticator{})
}

// ListenCurve binds a CurveZMQ-secured ROUTER socket at addr, authorizing
// service-node status for peers curve resolves a pubkey for.
func (s *Server) ListenCurve(ctx context.Context, addr string, curve CurveAuthenticator, opts ...zmq4.Option) error {
	return s.listen(ctx, addr, curve, opts...)
}

func (s *Server) listen(ctx context.Context, addr string, curve CurveAuthenticator, opts ...zmq4.Option) error {
	router, err := NewRouterSocket(ctx, addr, opts...)
	if err != nil {
		return err
	}
	return s.serve(ctx, router, curve)
}

// ServeRouter starts the server against an already-constructed
// [RouterSocket], bypassing zmq entirely. This is how tests drive the
// engine against an in-memory fake; embedders with unusual transport
// needs can use it too.
func (s *Server) ServeRouter(ctx context.Context, router RouterSocket, curve CurveAuthenticator) error {
	return s.serve(ctx, router, curve)
}

func (s *Server) serve(ctx context.Context, router RouterSocket, curve CurveAuthenticator) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("meshmq: server already started")
	}
	s.started = true
	s.pool = NewWorkerPool(s.cfg.WorkerPoolSize)
	s.loop = NewProxyLoop(router, s.registry, s.pool, s.cfg, s.auth, curve)
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	defer close(s.done)
	defer s.pool.Stop()
	return s.loop.Run(runCtx)
}

// Stop cancels the running server and waits for its loop to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ConnectRemote dials addr as a DEALER, registers it as a new connection,
// and returns its [ConnectionID] once the dial succeeds. The connection
// starts in PreHandshake and transitions to Ready asynchronously once the
// peer's HELLO arrives; sends and requests posted before that point are
// written to the dealer immediately, after the HI frame, without waiting
// for HELLO.
func (s *Server) ConnectRemote(ctx context.Context, addr string, opts ...zmq4.Option) (ConnectionID, error) {
	loop := s.currentLoop()
	if loop == nil {
		return ConnectionID{}, fmt.Errorf("meshmq: server not started")
	}
	dealer, err := NewDealerSocket(ctx, addr, opts...)
	if err != nil {
		return ConnectionID{}, err
	}
	return loop.ConnectDealer(ctx, dealer)
}

// ConnectSN dials addr as a DEALER exactly as [Server.ConnectRemote]
// does. meshmq does not use pubkey: it neither checks the peer's key
// against it nor returns a service-node [ConnectionID] (the result is a
// remote one). Binding pubkey as the expected server key is up to the
// CurveZMQ client options the caller puts in opts; meshmq itself never
// touches cipher state.
func (s *Server) ConnectSN(ctx context.Context, pubkey [32]byte, addr string, opts ...zmq4.Option) (ConnectionID, error) {
	return s.ConnectRemote(ctx, addr, opts...)
}

// Send posts a fire-and-forget command to target. The server must
// already be serving and target must
// be a live connection known to the ProxyLoop, or the frame is silently
// dropped — mirroring §4.6's "miss is a no-op" ingress REPLY behaviour.
func (s *Server) Send(target ConnectionID, command string, body ...[]byte) error {
	loop := s.currentLoop()
	if loop == nil {
		return fmt.Errorf("meshmq: server not started")
	}
	return loop.Send(target, command, body...)
}

// Request originates a request to target and blocks until a REPLY
// arrives, the timeout elapses, or target's connection is lost. A zero
// timeout uses [Config.DefaultReplyTimeout].
func (s *Server) Request(ctx context.Context, target ConnectionID, command string, timeout time.Duration, body ...[]byte) (Reply, error) {
	loop := s.currentLoop()
	if loop == nil {
		return Reply{}, fmt.Errorf("meshmq: server not started")
	}
	if timeout <= 0 {
		timeout = s.cfg.DefaultReplyTimeout
	}
	deadline := s.cfg.TimeNow().Add(timeout)

	wait, err := loop.Request(ctx, target, command, deadline, body...)
	if err != nil {
		return Reply{}, err
	}
	select {
	case r := <-wait:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (s *Server) currentLoop() *ProxyLoop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}
