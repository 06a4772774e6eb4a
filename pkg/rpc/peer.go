package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Handler serves one op. For calls the result is marshalled into the
// reply; for notifications it is discarded.
type Handler func(ctx context.Context, body json.RawMessage) (any, error)

// Peer is one end of a connection: it issues calls, answers the ops it
// has handlers for and receives notifications.
type Peer struct {
	conn  *Conn
	traps *Traps
	log   *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	forward  func(Message) // calls for ops with no handler
	down     func(Message) // replies that still carry a relay path

	closeOnce sync.Once
	closed    chan struct{}
}

func NewPeer(conn *Conn, log *zap.Logger) *Peer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Peer{
		conn:     conn,
		traps:    NewTraps(),
		log:      log,
		handlers: map[string]Handler{},
		closed:   make(chan struct{}),
	}
}

// Handle registers h for op.
func (p *Peer) Handle(op string, h Handler) {
	p.mu.Lock()
	p.handlers[op] = h
	p.mu.Unlock()
}

// Pending is the number of calls awaiting a reply.
func (p *Peer) Pending() int { return p.traps.Len() }

// Call sends op and waits for its reply, decoding the reply body into
// out when out is non-nil. There is no built-in timeout: ctx is the only
// way to abandon a call.
func (p *Peer) Call(ctx context.Context, op string, in, out any) error {
	body, err := marshal(in)
	if err != nil {
		return fmt.Errorf("rpc %s: encode: %w", op, err)
	}
	t := p.traps.Open(1)
	if err := p.conn.Send(&Message{ID: t.ID(), Kind: KindCall, Op: op, Body: body}); err != nil {
		p.traps.Cancel(t.ID(), err)
		return fmt.Errorf("rpc %s: send: %w", op, err)
	}
	replies, err := t.Wait(ctx)
	if err != nil {
		p.traps.Cancel(t.ID(), err)
		return err
	}
	rep := replies[0]
	if rep.Error != "" {
		return &RemoteError{Op: op, Msg: rep.Error}
	}
	if out == nil || len(rep.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(rep.Body, out); err != nil {
		return fmt.Errorf("rpc %s: decode: %w", op, err)
	}
	return nil
}

// Notify sends op without expecting a reply.
func (p *Peer) Notify(op string, in any) error {
	body, err := marshal(in)
	if err != nil {
		return fmt.Errorf("rpc %s: encode: %w", op, err)
	}
	return p.conn.Send(&Message{Kind: KindNotify, Op: op, Body: body})
}

// Send writes a raw message, used by relays.
func (p *Peer) Send(m Message) error { return p.conn.Send(&m) }

// Serve reads until the connection ends or ctx is cancelled. Calls run on
// their own goroutine; notifications run in arrival order on the read
// loop. When Serve returns every pending call has failed with ErrClosed.
func (p *Peer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = p.Close() })
	defer stop()
	defer p.traps.CancelAll(ErrClosed)

	for {
		m, err := p.conn.Receive()
		if err != nil {
			select {
			case <-p.closed:
				return nil
			default:
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("rpc receive: %w", err)
		}
		p.dispatch(ctx, *m)
	}
}

func (p *Peer) dispatch(ctx context.Context, m Message) {
	switch m.Kind {
	case KindReply:
		if len(m.Path) > 0 {
			p.mu.RLock()
			down := p.down
			p.mu.RUnlock()
			if down == nil {
				p.log.Warn("relayed reply without relay", zap.Uint64("id", m.ID))
				return
			}
			down(m)
			return
		}
		if !p.traps.Deliver(m) {
			p.log.Debug("reply for unknown call", zap.Uint64("id", m.ID))
		}

	case KindCall:
		p.mu.RLock()
		h, ok := p.handlers[m.Op]
		fwd := p.forward
		p.mu.RUnlock()
		switch {
		case ok:
			go p.answer(ctx, h, m)
		case fwd != nil:
			fwd(m)
		default:
			p.reply(m, nil, fmt.Errorf("unknown op %q", m.Op))
		}

	case KindNotify:
		p.mu.RLock()
		h, ok := p.handlers[m.Op]
		p.mu.RUnlock()
		if !ok {
			p.log.Debug("unhandled notification", zap.String("op", m.Op))
			return
		}
		if _, err := p.run(ctx, h, m); err != nil {
			p.log.Warn("notification failed", zap.String("op", m.Op), zap.Error(err))
		}

	default:
		p.log.Warn("unknown message kind", zap.String("kind", string(m.Kind)))
	}
}

func (p *Peer) answer(ctx context.Context, h Handler, m Message) {
	out, err := p.run(ctx, h, m)
	p.reply(m, out, err)
}

func (p *Peer) run(ctx context.Context, h Handler, m Message) (out any, err error) {
	defer func() {
		if v := recover(); v != nil {
			p.log.Error("rpc handler panic", zap.String("op", m.Op), zap.Any("panic", v))
			out, err = nil, errors.New("internal error")
		}
	}()
	return h(ctx, m.Body)
}

func (p *Peer) reply(call Message, out any, err error) {
	rep := Message{ID: call.ID, Kind: KindReply, Op: call.Op, Path: call.Path}
	if err != nil {
		rep.Error = err.Error()
	} else if rep.Body, err = marshal(out); err != nil {
		rep.Error = "encode reply: " + err.Error()
	}
	if err := p.conn.Send(&rep); err != nil {
		p.log.Warn("send reply", zap.String("op", call.Op), zap.Error(err))
	}
}

// Close shuts the connection down and fails pending calls.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.conn.Close()
		p.traps.CancelAll(ErrClosed)
	})
	return err
}

// Done is closed once the peer has been closed.
func (p *Peer) Done() <-chan struct{} { return p.closed }

func marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
