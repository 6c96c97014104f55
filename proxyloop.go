// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
)

// connPhase is a connection's position in the PreHandshake -> Ready ->
// Dead state machine.
type connPhase int

const (
	phasePreHandshake connPhase = iota
	phaseReady
	phaseDead
)

// connState is the ProxyLoop's private bookkeeping for one live
// connection. It is only ever touched by the ProxyLoop goroutine.
type connState struct {
	id           ConnectionID
	routingID    []byte
	phase        connPhase
	lastActivity time.Time

	// initiator is true for a connection this process dialed out via
	// [ProxyLoop.ConnectDealer]: such a connection sends HI first and
	// waits for HELLO, the mirror image of an accepted connection,
	// which waits for HI and replies HELLO.
	initiator bool
	// dealer is non-nil for an initiator connection; sendTo uses it
	// instead of the shared router socket.
	dealer DealerSocket
}

// directive is a deferred action a worker goroutine asked the ProxyLoop
// to perform. Directives are always processed before expired replies or
// new inbound frames, per §4.6's strict wakeup priority.
type directive interface {
	apply(ctx context.Context, p *ProxyLoop)
}

type replyDirective struct {
	owner   ConnectionID
	tag     []byte
	payload [][]byte
}

// apply writes the handler's REPLY to the wire. This is a server-side
// echo of a tag the peer itself supplied with its request; it has
// nothing to do with this process's own [ReplyTable], which only tracks
// requests meshmq originates (see handleReplyIngress).
func (d replyDirective) apply(ctx context.Context, p *ProxyLoop) {
	p.sendTo(ctx, d.owner, encodeReply(d.tag, d.payload...))
}

type jobDoneDirective struct{}

func (jobDoneDirective) apply(ctx context.Context, p *ProxyLoop) {
	if p.pendingJobs > 0 {
		p.pendingJobs--
	}
}

type sendDirective struct {
	owner   ConnectionID
	command string
	payload [][]byte
}

func (d sendDirective) apply(ctx context.Context, p *ProxyLoop) {
	frames := make([][]byte, 0, 1+len(d.payload))
	frames = append(frames, []byte(d.command))
	frames = append(frames, d.payload...)
	p.sendTo(ctx, d.owner, frames)
}

// requestHandle is how [requestDirective] hands the caller back either
// an error or a channel that will eventually receive exactly one
// [Reply], once the ProxyLoop goroutine has registered the tag.
type requestHandle struct {
	wait <-chan Reply
	err  error
}

// requestDirective is posted by [Server.Request] to originate a new
// outgoing request from within the ProxyLoop goroutine, so tag
// allocation and registration in the [ReplyTable] stay single-threaded.
type requestDirective struct {
	target   ConnectionID
	command  string
	body     [][]byte
	deadline time.Time
	result   chan<- requestHandle
}

func (d requestDirective) apply(ctx context.Context, p *ProxyLoop) {
	tag, wait, err := p.replies.Register(d.target, d.deadline)
	if err != nil {
		d.result <- requestHandle{err: err}
		return
	}
	frames := make([][]byte, 0, 2+len(d.body))
	frames = append(frames, []byte(d.command), tag)
	frames = append(frames, d.body...)
	p.sendTo(ctx, d.target, frames)
	d.result <- requestHandle{wait: wait}
}

// ProxyLoop is the single-threaded owner of the router socket, the
// connection table, and the ReplyTable. Its loop goroutine makes every
// send; companion receive goroutines (one for the router, one per
// dialed dealer) only call RecvMultipart and hand the frames to the
// loop. Everything else communicates with it through directives posted
// on its directive channel.
type ProxyLoop struct {
	router   RouterSocket
	registry *CategoryRegistry
	replies  *ReplyTable
	pool     *WorkerPool
	cfg      *Config
	auth     AuthResolver
	curve    CurveAuthenticator

	directives chan directive
	inbound    chan inboundFrame

	conns     map[ConnectionID]*connState
	nextLocal uint64

	pendingJobs int
	stalled     bool
}

type inboundFrame struct {
	routingID []byte
	frames    [][]byte
	err       error
}

// NewProxyLoop wires together the core engine. registry must already
// contain every category/command the embedder intends to serve; the
// loop freezes it on the first call to [ProxyLoop.Run].
func NewProxyLoop(router RouterSocket, registry *CategoryRegistry, pool *WorkerPool, cfg *Config, auth AuthResolver, curve CurveAuthenticator) *ProxyLoop {
	if auth == nil {
		auth = DefaultAuthResolver
	}
	if curve == nil {
		curve = NoCurveAuthenticator{}
	}
	return &ProxyLoop{
		router:     router,
		registry:   registry,
		replies:    NewReplyTable(),
		pool:       pool,
		cfg:        cfg,
		auth:       auth,
		curve:      curve,
		directives: make(chan directive, cfg.DirectiveBufferSize),
		inbound:    make(chan inboundFrame, 1),
		conns:      make(map[ConnectionID]*connState),
	}
}

func (p *ProxyLoop) log() SLogger {
	if p.cfg.Logger != nil {
		return p.cfg.Logger
	}
	return DefaultSLogger()
}

func (p *ProxyLoop) now() time.Time {
	if p.cfg.TimeNow != nil {
		return p.cfg.TimeNow()
	}
	return time.Now()
}

// Run freezes the registry and drives the loop until ctx is cancelled or
// the router returns a permanent error.
func (p *ProxyLoop) Run(ctx context.Context) error {
	p.registry.freeze()
	go p.recvLoop(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.drainOneDirective(ctx) {
			continue
		}
		p.replies.Expire(p.now())
		p.expireIdleConnections(p.now())

		if p.pendingJobs > p.cfg.QueueHighWatermark {
			p.stalled = true
		} else if p.stalled && p.pendingJobs < p.cfg.QueueLowWatermark {
			p.stalled = false
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-p.directives:
			d.apply(ctx, p)
		case f := <-p.inbound:
			if p.stalled {
				// Backpressure: defer inbound processing. The frame is
				// already dequeued from the socket buffer by recvLoop,
				// so it is simply re-queued for the next wakeup rather
				// than dropped.
				go func() { p.inbound <- f }()
				continue
			}
			p.handleInbound(ctx, f)
		case <-p.nextWakeTimer():
		}
	}
}

// nextWakeTimer returns a channel that fires at the earliest of the
// ReplyTable's next deadline and the next connection idle-timeout
// deadline, or nil (never fires) if neither is pending, so the select
// above does not busy-loop.
func (p *ProxyLoop) nextWakeTimer() <-chan time.Time {
	deadline, ok := p.replies.NextDeadline()
	if idleDeadline, idleOK := p.nextIdleDeadline(); idleOK && (!ok || idleDeadline.Before(deadline)) {
		deadline, ok = idleDeadline, true
	}
	if !ok {
		return nil
	}
	d := deadline.Sub(p.now())
	if d < 0 {
		d = 0
	}
	return time.After(d)
}

// nextIdleDeadline returns the earliest time at which a live connection
// will exceed [Config.IdleTimeout], and true, or the zero time and false
// if idle-timeout enforcement is disabled or no connection is live.
func (p *ProxyLoop) nextIdleDeadline() (time.Time, bool) {
	if p.cfg.IdleTimeout <= 0 {
		return time.Time{}, false
	}
	var earliest time.Time
	found := false
	for _, cs := range p.conns {
		if cs.phase == phaseDead {
			continue
		}
		d := cs.lastActivity.Add(p.cfg.IdleTimeout)
		if !found || d.Before(earliest) {
			earliest, found = d, true
		}
	}
	return earliest, found
}

// expireIdleConnections drops every live connection that has gone
// longer than [Config.IdleTimeout] without receiving a frame, completing
// the Ready -> Dead transition's idle-timeout trigger (alongside socket
// error and administrative close). A no-op when idle-timeout enforcement
// is disabled.
func (p *ProxyLoop) expireIdleConnections(now time.Time) {
	if p.cfg.IdleTimeout <= 0 {
		return
	}
	var stale []*connState
	for _, cs := range p.conns {
		if cs.phase != phaseDead && now.Sub(cs.lastActivity) >= p.cfg.IdleTimeout {
			stale = append(stale, cs)
		}
	}
	for _, cs := range stale {
		p.log().Debug("dropping idle connection", "conn", cs.id.String())
		p.dropConnection(cs)
	}
}

func (p *ProxyLoop) drainOneDirective(ctx context.Context) bool {
	select {
	case d := <-p.directives:
		d.apply(ctx, p)
		return true
	default:
		return false
	}
}

func (p *ProxyLoop) recvLoop(ctx context.Context) {
	for {
		routingID, frames, err := p.router.RecvMultipart(ctx)
		select {
		case p.inbound <- inboundFrame{routingID: routingID, frames: frames, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (p *ProxyLoop) handleInbound(ctx context.Context, f inboundFrame) {
	if f.err != nil {
		p.log().Debug("router recv error", "err", f.err.Error())
		return
	}
	if len(f.frames) == 0 {
		return
	}

	cs := p.lookupOrCreateConn(f.routingID)
	cs.lastActivity = p.now()

	switch cs.phase {
	case phasePreHandshake:
		p.handleHandshake(ctx, cs, f.frames)
	case phaseReady:
		p.handleReady(ctx, cs, f.frames)
	}
}

func (p *ProxyLoop) lookupOrCreateConn(routingID []byte) *connState {
	for _, cs := range p.conns {
		if cs.phase != phaseDead && bytes.Equal(cs.routingID, routingID) {
			return cs
		}
	}
	p.nextLocal++
	id, err := Remote(p.nextLocal, string(routingID))
	if err != nil {
		// p.nextLocal is never 0 here; Remote only rejects id == 0.
		panic(err)
	}
	cs := &connState{id: id, routingID: routingID, phase: phasePreHandshake, lastActivity: p.now()}
	p.conns[id] = cs
	return cs
}

func (p *ProxyLoop) handleHandshake(ctx context.Context, cs *connState, frames [][]byte) {
	if cs.initiator {
		p.handleHandshakeReply(cs, frames)
		return
	}
	if len(frames) != 1 || string(frames[0]) != handshakeRequest {
		p.dropConnection(cs)
		return
	}
	cs.phase = phaseReady

	if pubkey, ok := p.curve.VerifiedPubkey(string(cs.routingID)); ok {
		sn, err := ServiceNode(pubkey[:])
		if err == nil {
			delete(p.conns, cs.id)
			cs.id = sn
			p.conns[sn] = cs
		}
	}

	p.sendTo(ctx, cs.id, [][]byte{[]byte(handshakeReply)})
}

// handleHandshakeReply completes the mirror-image handshake for a
// connection this process dialed out via [ProxyLoop.ConnectDealer]: it
// sent HI on connect and is now waiting for HELLO.
func (p *ProxyLoop) handleHandshakeReply(cs *connState, frames [][]byte) {
	if len(frames) != 1 || string(frames[0]) != handshakeReply {
		p.dropConnection(cs)
		return
	}
	cs.phase = phaseReady
}

func (p *ProxyLoop) handleReady(ctx context.Context, cs *connState, frames [][]byte) {
	if len(frames) == 0 {
		return
	}
	if string(frames[0]) == replyMarker {
		p.handleReplyIngress(cs, frames)
		return
	}
	p.dispatch(ctx, cs, frames)
}

func (p *ProxyLoop) handleReplyIngress(cs *connState, frames [][]byte) {
	if len(frames) < 2 {
		return
	}
	tag := frames[1]
	payload := frames[2:]
	if _, ok := p.replies.Complete(tag, payload); !ok {
		p.log().Debug("dropping reply for unknown tag", "conn", cs.id.String())
	}
}

// dispatch implements §4.6's five-step algorithm for one command frame
// set arriving on a Ready connection.
func (p *ProxyLoop) dispatch(ctx context.Context, cs *connState, frames [][]byte) {
	command := string(frames[0])
	rest := frames[1:]

	if !strings.Contains(command, ".") {
		p.sendTo(ctx, cs.id, encodeFailure(ReasonUnknownCommand, command, nil))
		return
	}

	def, rec, ok := p.registry.Lookup(command)
	if !ok {
		p.sendTo(ctx, cs.id, encodeFailure(ReasonUnknownCommand, command, nil))
		return
	}

	var replyTag []byte
	body := rest
	if rec.Kind == KindRequest && len(rest) > 0 && len(rest[0]) > 0 {
		replyTag = rest[0]
		body = rest[1:]
	}

	level := p.resolveLevel(cs)
	access := rec.effectiveAccess(def)
	peerIsSN := cs.id.IsServiceNode()
	if reason := authorize(access, level, p.cfg.IsServiceNode, peerIsSN); reason != "" {
		p.sendTo(ctx, cs.id, encodeFailure(reason, command, replyTag))
		return
	}

	if rec.Kind == KindRequest && len(replyTag) == 0 {
		p.sendTo(ctx, cs.id, encodeFailure(ReasonNoReplyTag, command, nil))
		return
	}

	m := &Message{
		From:     cs.id,
		Level:    level,
		Command:  command,
		Body:     body,
		SpanID:   NewSpanID(),
		replyTag: replyTag,
		sink:     p,
	}
	p.pendingJobs++
	p.pool.Submit(Job{
		Handler:  rec.Handler,
		Envelope: m,
		Owner:    cs.id,
		OnDone: func() {
			select {
			case p.directives <- jobDoneDirective{}:
			default:
				p.log().Debug("directive channel full, dropping job-done accounting signal")
			}
		},
	})
}

func (p *ProxyLoop) resolveLevel(cs *connState) AuthLevel {
	var pubkey [32]byte
	var ok bool
	if pk, isSN := cs.id.Pubkey(); isSN {
		pubkey, ok = pk, true
	}
	return p.auth(cs.id, string(cs.routingID), pubkey, ok)
}

func (p *ProxyLoop) sendTo(ctx context.Context, owner ConnectionID, frames [][]byte) {
	cs, ok := p.conns[owner]
	if !ok {
		return
	}
	var err error
	if cs.dealer != nil {
		err = cs.dealer.SendMultipart(ctx, frames)
	} else {
		err = p.router.SendMultipart(ctx, cs.routingID, frames)
	}
	if err != nil {
		p.log().Debug("send failed, marking connection dead", "err", err.Error())
		p.dropConnection(cs)
	}
}

func (p *ProxyLoop) dropConnection(cs *connState) {
	cs.phase = phaseDead
	delete(p.conns, cs.id)
	p.replies.ExpireConnection(cs.id)
	p.pool.RemoveConnection(cs.id)
	if cs.dealer != nil {
		_ = cs.dealer.Close()
	}
}

// dealerAdoptResult is returned to [ProxyLoop.ConnectDealer]'s caller
// once the dealer has been registered and its HI frame sent.
type dealerAdoptResult struct {
	id  ConnectionID
	err error
}

// adoptDealerDirective registers a freshly dialed [DealerSocket] as a new
// initiator connection and sends its opening HI frame.
type adoptDealerDirective struct {
	dealer DealerSocket
	result chan<- dealerAdoptResult
}

func (d adoptDealerDirective) apply(ctx context.Context, p *ProxyLoop) {
	p.nextLocal++
	routingID := []byte(fmt.Sprintf("dealer:%d", p.nextLocal))
	id, err := Remote(p.nextLocal, string(routingID))
	if err != nil {
		d.result <- dealerAdoptResult{err: err}
		return
	}
	cs := &connState{
		id:           id,
		routingID:    routingID,
		phase:        phasePreHandshake,
		lastActivity: p.now(),
		initiator:    true,
		dealer:       d.dealer,
	}
	p.conns[id] = cs
	go p.recvDealerLoop(ctx, cs)
	p.sendTo(ctx, id, [][]byte{[]byte(handshakeRequest)})
	d.result <- dealerAdoptResult{id: id}
}

func (p *ProxyLoop) recvDealerLoop(ctx context.Context, cs *connState) {
	for {
		frames, err := cs.dealer.RecvMultipart(ctx)
		select {
		case p.inbound <- inboundFrame{routingID: cs.routingID, frames: frames, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// ConnectDealer dials out via dealer, registers it as a new initiator
// connection, and sends the opening HI frame. The returned ConnectionID
// transitions PreHandshake -> Ready asynchronously once HELLO arrives;
// [Server.ConnectRemote] and [Server.ConnectSN] use this to implement
// the embedder-facing connect API.
func (p *ProxyLoop) ConnectDealer(ctx context.Context, dealer DealerSocket) (ConnectionID, error) {
	result := make(chan dealerAdoptResult, 1)
	select {
	case p.directives <- adoptDealerDirective{dealer: dealer, result: result}:
	case <-ctx.Done():
		return ConnectionID{}, ctx.Err()
	}
	select {
	case r := <-result:
		return r.id, r.err
	case <-ctx.Done():
		return ConnectionID{}, ctx.Err()
	}
}

// postReply implements messageSink for directives originating from
// [Message.SendReply].
func (p *ProxyLoop) postReply(owner ConnectionID, tag []byte, payload [][]byte) error {
	select {
	case p.directives <- replyDirective{owner: owner, tag: tag, payload: payload}:
		return nil
	default:
		return fmt.Errorf("meshmq: directive channel full")
	}
}

// postSend implements messageSink for directives originating from
// [Message.SendBack].
func (p *ProxyLoop) postSend(owner ConnectionID, command string, payload [][]byte) error {
	select {
	case p.directives <- sendDirective{owner: owner, command: command, payload: payload}:
		return nil
	default:
		return fmt.Errorf("meshmq: directive channel full")
	}
}

// Request originates a new outgoing request to target, to be resolved by
// a matching inbound REPLY, a timeout at deadline, or the target
// connection dying first. It is safe to call from any goroutine; tag
// allocation happens on the ProxyLoop goroutine.
func (p *ProxyLoop) Request(ctx context.Context, target ConnectionID, command string, deadline time.Time, body ...[]byte) (<-chan Reply, error) {
	result := make(chan requestHandle, 1)
	select {
	case p.directives <- requestDirective{target: target, command: command, body: body, deadline: deadline, result: result}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case h := <-result:
		return h.wait, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send posts a fire-and-forget command to target.
func (p *ProxyLoop) Send(target ConnectionID, command string, body ...[]byte) error {
	return p.postSend(target, command, body)
}
