// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rapidaai/frontdesk/pkg/commons"
)

// Type enumerates operator stream event kinds.
type Type string

const (
	TypeCallStarted      Type = "call_started"
	TypeTranscript       Type = "transcript"
	TypeAgentSaid        Type = "agent_said"
	TypeBookingPending   Type = "booking_pending"
	TypeBookingConfirmed Type = "booking_confirmed"
	TypeBookingRejected  Type = "booking_rejected"
	TypeCallEnded        Type = "call_ended"
	TypeDegraded         Type = "degraded"
	TypeWarning          Type = "warning"
	TypeKeepalive        Type = "keepalive"
	TypeLagged           Type = "lagged"
)

// Event is one typed record on the operator stream. Seq is dense and
// monotonic per call; keepalive and lagged frames carry no call and seq 0.
type Event struct {
	Type   Type                   `json:"type"`
	Seq    uint64                 `json:"seq"`
	CallID string                 `json:"call_id,omitempty"`
	Ts     time.Time              `json:"ts"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Command is an operator instruction for one call's booking draft.
type Command struct {
	Type      string `json:"type"` // approve | reject
	CallID    string `json:"call_id"`
	BookingID string `json:"booking_id"`
	Note      string `json:"note,omitempty"`
}

// CommandHandler receives operator commands routed by call id. Sessions
// register themselves while a verdict can still matter.
type CommandHandler interface {
	HandleOperatorCommand(ctx context.Context, cmd Command) error
}

// ErrNotFound is returned for commands addressed to unknown or terminated
// calls.
var ErrNotFound = errors.New("call not found")

// keepaliveInterval is how often idle subscribers hear from the bus.
const keepaliveInterval = 20 * time.Second

// subscriberBuffer bounds undelivered events per subscriber before the
// oldest are dropped.
const subscriberBuffer = 256

// Bus fans events out to operator subscribers and routes operator commands
// back to the owning session. The subscriber list and command target map are
// the only cross-session shared state; both are guarded by one writer lock
// with short critical sections.
type Bus struct {
	logger commons.Logger

	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	targets map[string]CommandHandler
}

// NewBus builds an event bus.
func NewBus(logger commons.Logger) *Bus {
	return &Bus{
		logger:  logger,
		subs:    make(map[*Subscriber]struct{}),
		targets: make(map[string]CommandHandler),
	}
}

// Run emits keepalive frames until the context ends.
func (b *Bus) Run(ctx context.Context) error {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.Publish(Event{Type: TypeKeepalive, Ts: time.Now()})
		}
	}
}

// Subscribe attaches a new operator subscriber receiving all events from all
// live sessions in arrival order.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe detaches a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish delivers an event to every subscriber, best-effort. Slow
// subscribers lose their oldest undelivered events and are told how many.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.push(evt)
	}
}

// Publisher returns the per-call sequenced publisher for a session. Sequence
// numbers are dense and monotonic for the call.
func (b *Bus) Publisher(callID string) *Publisher {
	return &Publisher{bus: b, callID: callID}
}

// RegisterCommandTarget routes operator commands for callID to the handler.
func (b *Bus) RegisterCommandTarget(callID string, h CommandHandler) {
	b.mu.Lock()
	b.targets[callID] = h
	b.mu.Unlock()
}

// UnregisterCommandTarget removes the routing entry once a verdict can no
// longer matter.
func (b *Bus) UnregisterCommandTarget(callID string) {
	b.mu.Lock()
	delete(b.targets, callID)
	b.mu.Unlock()
}

// Deliver routes one operator command to the owning session.
func (b *Bus) Deliver(ctx context.Context, cmd Command) error {
	b.mu.Lock()
	h, ok := b.targets[cmd.CallID]
	b.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return h.HandleOperatorCommand(ctx, cmd)
}

// Publisher stamps events with a dense per-call sequence before publishing.
type Publisher struct {
	bus    *Bus
	callID string

	mu  sync.Mutex
	seq uint64
}

// Publish stamps and publishes one event for the call. The lock covers the
// fan-out too, so concurrent publishers cannot enqueue their events out of
// sequence order.
func (p *Publisher) Publish(t Type, data map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.bus.Publish(Event{
		Type:   t,
		Seq:    p.seq,
		CallID: p.callID,
		Ts:     time.Now(),
		Data:   data,
	})
}

// Subscriber is one operator stream consumer.
type Subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	lagged uint64
	closed bool
}

// Events is the subscriber's delivery channel. Closed on Unsubscribe.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// push enqueues an event, evicting the oldest on overflow. A pending lag
// count is flushed as a lagged notice as soon as there is room for it.
func (s *Subscriber) push(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.lagged > 0 && len(s.ch) < cap(s.ch)-1 {
		s.ch <- Event{
			Type: TypeLagged,
			Ts:   time.Now(),
			Data: map[string]interface{}{"dropped": s.lagged},
		}
		s.lagged = 0
	}

	for {
		select {
		case s.ch <- evt:
			return
		default:
			select {
			case <-s.ch:
				s.lagged++
			default:
			}
		}
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
