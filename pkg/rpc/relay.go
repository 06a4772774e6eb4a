package rpc

import (
	"sync"

	"go.uber.org/zap"
)

// Relay joins a parent peer and any number of child peers. Calls a child
// sends for ops this hop does not handle travel up with the child's id
// pushed onto their path; replies coming down pop it to find the child.
// A hop only ever knows its parent and its own children.
type Relay struct {
	parent *Peer
	log    *zap.Logger

	mu       sync.Mutex
	next     uint64
	children map[uint64]*Peer
}

func NewRelay(parent *Peer, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relay{parent: parent, log: log, children: map[uint64]*Peer{}}
	parent.mu.Lock()
	parent.down = r.deliverDown
	parent.mu.Unlock()
	return r
}

// Attach adds child and returns its local id.
func (r *Relay) Attach(child *Peer) uint64 {
	r.mu.Lock()
	r.next++
	id := r.next
	r.children[id] = child
	r.mu.Unlock()

	child.mu.Lock()
	child.forward = func(m Message) {
		up := m
		up.Path = append(append([]uint64(nil), m.Path...), id)
		if err := r.parent.Send(up); err != nil {
			// Answer with the path the child sent, not the pushed one.
			child.reply(m, nil, err)
		}
	}
	child.down = nil
	child.mu.Unlock()
	return id
}

func (r *Relay) Detach(id uint64) {
	r.mu.Lock()
	delete(r.children, id)
	r.mu.Unlock()
}

// Broadcast notifies every child.
func (r *Relay) Broadcast(op string, in any) {
	r.mu.Lock()
	kids := make([]*Peer, 0, len(r.children))
	for _, c := range r.children {
		kids = append(kids, c)
	}
	r.mu.Unlock()
	for _, c := range kids {
		if err := c.Notify(op, in); err != nil {
			r.log.Warn("relay broadcast", zap.String("op", op), zap.Error(err))
		}
	}
}

func (r *Relay) deliverDown(m Message) {
	last := len(m.Path) - 1
	id := m.Path[last]
	m.Path = m.Path[:last]

	r.mu.Lock()
	child, ok := r.children[id]
	r.mu.Unlock()
	if !ok {
		r.log.Debug("relayed reply for detached child", zap.Uint64("child", id))
		return
	}
	if err := child.Send(m); err != nil {
		r.log.Warn("relay reply", zap.Uint64("child", id), zap.Error(err))
	}
}
