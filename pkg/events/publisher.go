// Package events publishes typed chat events to the frame queue and to
// local subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pitabwire/frame/queue"
	"github.com/rs/xid"
)

const defaultSubscriberBuffer = 64

// Publisher sends engine events to a frame queue and fans them out to
// in-process subscribers. A nil *Publisher, or one without a queue, is
// valid.
type Publisher struct {
	queueMgr queue.Manager
	source   string
	queueRef string

	mu      sync.RWMutex
	subs    map[string]*subscription
	dropped atomic.Uint64
}

type subscription struct {
	ch    chan Envelope
	types map[EventType]bool
}

func (s *subscription) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// NewPublisher creates a publisher for queueRef on queueMgr.
func NewPublisher(queueMgr queue.Manager, source string, queueRef string) *Publisher {
	return &Publisher{
		queueMgr: queueMgr,
		source:   source,
		queueRef: queueRef,
		subs:     make(map[string]*subscription),
	}
}

// NewLocalPublisher creates a publisher with no queue behind it.
func NewLocalPublisher(source string) *Publisher {
	return NewPublisher(nil, source, "")
}

// Emit wraps data in an envelope and delivers it. Local delivery never
// blocks: a full subscriber loses the event.
func (p *Publisher) Emit(ctx context.Context, eventType EventType, sessionID string, data any) error {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env := Envelope{
		ID:        xid.New().String(),
		Type:      eventType,
		Source:    p.source,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}

	p.mu.RLock()
	for id, sub := range p.subs {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			p.dropped.Add(1)
			slog.WarnContext(ctx, "event dropped: subscriber buffer full",
				slog.String("subscriber", id), slog.String("event_type", string(eventType)))
		}
	}
	p.mu.RUnlock()

	if p.queueMgr == nil || p.queueRef == "" {
		return nil
	}
	if err := p.queueMgr.Publish(ctx, p.queueRef, env); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Subscribe registers a local subscriber. With no types it receives every
// event. Subscribing again under the same id replaces and closes the
// previous channel. Call Unsubscribe to release it.
func (p *Publisher) Subscribe(id string, bufSize int, types ...EventType) <-chan Envelope {
	if bufSize <= 0 {
		bufSize = defaultSubscriberBuffer
	}
	sub := &subscription{ch: make(chan Envelope, bufSize)}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	p.mu.Lock()
	if old, ok := p.subs[id]; ok {
		close(old.ch)
	}
	p.subs[id] = sub
	p.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subs[id]; ok {
		close(sub.ch)
		delete(p.subs, id)
	}
}

// Dropped counts events lost to full subscriber buffers.
func (p *Publisher) Dropped() uint64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}

// Decode unmarshals an envelope payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}
