// Package bus implements findx's in-process EventBus: bounded,
// non-blocking, drop-on-full-subscriber fan-out across the two
// topics, with every publish appended to the audit log in the same
// logical operation.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaspardpetit/findx/internal/events"
	"github.com/gaspardpetit/findx/internal/hashing"
)

// Envelope wraps every event published on the bus. IdempotencyKey is the
// SHA-256 of the payload's canonical JSON serialization, prefixed
// "sha256:"; replays of semantically identical data reuse the same key.
type Envelope struct {
	V              int            `json:"v"`
	TS             int64          `json:"ts"`
	IdempotencyKey string         `json:"idempotency_key"`
	Topic          events.Topic   `json:"topic"`
	Type           events.Type    `json:"type"`
	Data           events.Payload `json:"data"`
}

// AuditSink persists every envelope as it is published, atomically with
// the broadcast to live subscribers. The catalog's events table is the
// concrete implementation; the bus depends only on this interface so it
// never imports the catalog package directly.
type AuditSink interface {
	Append(ctx context.Context, env Envelope) error
}

// Config bounds each topic's per-subscriber queue depth.
type Config struct {
	SourceFS   int
	MirrorText int
}

type subscriber struct {
	ch     chan Envelope
	closed atomic.Bool
}

// EventBus fans out events published to source.fs and mirror.text to
// every live in-process subscriber, and appends an audit row for each
// publish.
type EventBus struct {
	cfg   Config
	audit AuditSink

	mu   sync.Mutex
	subs map[events.Topic][]*subscriber
}

// New returns an EventBus bounding each topic's subscriber queues per
// cfg and appending every publish to audit.
func New(cfg Config, audit AuditSink) *EventBus {
	return &EventBus{
		cfg:   cfg,
		audit: audit,
		subs:  make(map[events.Topic][]*subscriber),
	}
}

func (b *EventBus) capacityFor(topic events.Topic) int {
	switch topic {
	case events.TopicSourceFS:
		return b.cfg.SourceFS
	case events.TopicMirrorText:
		return b.cfg.MirrorText
	default:
		return 64
	}
}

// Subscribe returns a receive-only channel bound to a fresh queue of the
// topic's configured capacity. Within a topic a given subscriber sees
// events in publish order; there is no ordering guarantee across topics.
func (b *EventBus) Subscribe(topic events.Topic) <-chan Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan Envelope, b.capacityFor(topic))}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub.ch
}

// Publish wraps data in an Envelope, broadcasts it to every live
// subscriber of topic, and then appends it to the audit log. A subscriber
// whose queue is full is dropped from the live set silently; the publish
// still succeeds for every other subscriber. Returns an error if the
// audit append fails — subscribers have already received the event by
// then regardless.
func (b *EventBus) Publish(ctx context.Context, topic events.Topic, data events.Payload) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	idempotencyKey := "sha256:" + hashing.SHA256Hex(payload)

	env := Envelope{
		V:              1,
		TS:             time.Now().Unix(),
		IdempotencyKey: idempotencyKey,
		Topic:          topic,
		Type:           data.EventType(),
		Data:           data,
	}

	b.broadcast(topic, env)

	if b.audit != nil {
		if err := b.audit.Append(ctx, env); err != nil {
			return err
		}
	}

	return nil
}

func (b *EventBus) broadcast(topic events.Topic, env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.subs[topic][:0]
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- env:
			live = append(live, sub)
		default:
			sub.closed.Store(true)
			close(sub.ch)
			slog.Warn("event bus subscriber queue full, dropping subscriber",
				slog.String("topic", string(topic)),
				slog.String("event_type", string(env.Type)),
			)
		}
	}
	b.subs[topic] = live
}

// SubscriberCount returns the number of live subscribers on topic, for
// tests and diagnostics.
func (b *EventBus) SubscriberCount(topic events.Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
