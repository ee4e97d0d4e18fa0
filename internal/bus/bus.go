package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"moodatlas/internal/metrics"
	"moodatlas/internal/types"
)

// Envelope wraps one published payload. Attempt counts deliveries of this
// payload for the same post, across redeliveries.
type Envelope struct {
	Topic      string
	Payload    any
	Attempt    int
	EnqueuedAt time.Time
}

// Handler consumes one envelope. Returning an error does not trigger a
// redelivery by itself; retry policy lives with the subscriber.
type Handler func(ctx context.Context, env Envelope) error

type Config struct {
	QueueSize      int
	PublishTimeout time.Duration
}

// Bus is an in-process, topic-addressed log with per-consumer-group
// offsets. Each group sees every envelope at least once; competing
// subscribers in the same group share the group's offset.
type Bus struct {
	config Config
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type topic struct {
	mu      sync.Mutex
	cond    *sync.Cond
	base    int // offset of entries[0]
	entries []Envelope
	groups  map[string]*group
	closed  bool
}

type group struct {
	offset int
}

func New(config Config) *Bus {
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		config: config,
		topics: make(map[string]*topic),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Bus) topicFor(name string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		t = &topic{
			groups: make(map[string]*group),
			closed: b.closed,
		}
		t.cond = sync.NewCond(&t.mu)
		b.topics[name] = t
	}
	return t
}

// Publish appends a payload to the topic log. It blocks while the slowest
// consumer group is a full queue behind, and fails with BusUnavailable
// once the publish timeout passes.
func (b *Bus) Publish(ctx context.Context, topicName string, payload any) error {
	return b.append(ctx, Envelope{
		Topic:      topicName,
		Payload:    payload,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	})
}

// Redeliver appends an envelope again with its attempt count bumped. Used
// by subscribers that own retry policy.
func (b *Bus) Redeliver(ctx context.Context, env Envelope) error {
	env.Attempt++
	env.EnqueuedAt = time.Now().UTC()
	return b.append(ctx, env)
}

func (b *Bus) append(ctx context.Context, env Envelope) error {
	t := b.topicFor(env.Topic)
	deadline := time.Now().Add(b.config.PublishTimeout)

	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.closed {
			return types.NewBusUnavailableError(env.Topic, "bus is shut down")
		}
		if t.backlog() < b.config.QueueSize {
			break
		}
		if time.Now().After(deadline) {
			return types.NewBusUnavailableError(env.Topic, "queue full, publish timeout exceeded")
		}

		t.mu.Unlock()
		select {
		case <-ctx.Done():
			t.mu.Lock()
			return types.NewBusUnavailableError(env.Topic, ctx.Err().Error())
		case <-time.After(10 * time.Millisecond):
		}
		t.mu.Lock()
	}

	t.entries = append(t.entries, env)
	t.compact()
	t.cond.Broadcast()
	metrics.EventsPublished.WithLabelValues(env.Topic).Inc()
	return nil
}

// backlog is the distance between the head of the log and the slowest
// group. Topics without groups never build a backlog.
func (t *topic) backlog() int {
	if len(t.groups) == 0 {
		return 0
	}
	slowest := -1
	for _, g := range t.groups {
		if slowest < 0 || g.offset < slowest {
			slowest = g.offset
		}
	}
	return t.base + len(t.entries) - slowest
}

// compact drops entries every group has consumed.
func (t *topic) compact() {
	if len(t.groups) == 0 {
		t.base += len(t.entries)
		t.entries = nil
		return
	}
	slowest := -1
	for _, g := range t.groups {
		if slowest < 0 || g.offset < slowest {
			slowest = g.offset
		}
	}
	if done := slowest - t.base; done > 0 {
		t.entries = append([]Envelope(nil), t.entries[done:]...)
		t.base = slowest
	}
}

// Subscribe registers handler workers for a consumer group. Workers in
// the same group compete for envelopes; distinct groups each see the full
// stream from the point of their first subscription.
func (b *Bus) Subscribe(topicName, groupName string, workers int, handler Handler) {
	if workers <= 0 {
		workers = 1
	}

	t := b.topicFor(topicName)

	t.mu.Lock()
	g, ok := t.groups[groupName]
	if !ok {
		g = &group{offset: t.base + len(t.entries)}
		t.groups[groupName] = g
	}
	t.mu.Unlock()

	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.consumeLoop(t, g, topicName, groupName, handler)
	}
}

func (b *Bus) consumeLoop(t *topic, g *group, topicName, groupName string, handler Handler) {
	defer b.wg.Done()

	for {
		t.mu.Lock()
		for !t.closed && g.offset >= t.base+len(t.entries) {
			t.cond.Wait()
		}
		if t.closed {
			t.mu.Unlock()
			return
		}
		env := t.entries[g.offset-t.base]
		g.offset++
		t.mu.Unlock()

		metrics.EventsDelivered.WithLabelValues(topicName, groupName).Inc()
		if err := handler(b.ctx, env); err != nil {
			slog.Warn("handler error", "topic", topicName, "group", groupName, "err", err)
		}
	}
}

// Close stops delivery. In-flight handlers finish; unconsumed envelopes
// are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	topics := make([]*topic, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		t.closed = true
		t.cond.Broadcast()
		t.mu.Unlock()
	}

	b.cancel()
	b.wg.Wait()
}
