// Package broadcaster is the distribution hub of a capture session. It
// receives every event from every monitor through one callback and fans
// them out to three sinks: a durable stream (one envelope at a time), a
// buffered object-store writer (periodic gzip flushes), and live
// websocket observers (throttled lightweight summaries).
package broadcaster

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/pkg/logger"
	"github.com/tracelight/tracelight/pkg/models"
	"github.com/tracelight/tracelight/pkg/monitors"
)

// StreamSink accepts one envelope at a time. The broadcaster imposes no
// ordering or batching requirement and never retries; durability is the
// sink's job.
type StreamSink interface {
	Publish(ctx context.Context, envelope *models.Envelope) error
}

// ObjectSink accepts whole-object writes keyed inside a bucket bound at
// construction.
type ObjectSink interface {
	Put(ctx context.Context, key string, payload []byte) error
}

// Client is one live observer connection.
type Client interface {
	Send(message any) error
	Close(code int, reason string) error
}

// Session lifecycle states.
type state int

const (
	stateActive state = iota
	stateShuttingDown
	stateClosed
)

const (
	defaultBroadcastInterval = time.Second
	defaultFlushInterval     = 10 * time.Second

	// maxUpdateEvents bounds how many pending summaries one throttled
	// broadcast carries; older entries are discarded.
	maxUpdateEvents = 50
)

type pendingEntry struct {
	category  models.Category
	summary   models.Summary
	timestamp time.Time
}

// Broadcaster owns all distribution state for exactly one capture
// session. Two independent mutexes guard it: clientsMu for the live
// registry, pending buffer and counters; bufMu for the object-store write
// buffer. They are never held together, so a slow client send can never
// stall a flush tick and vice versa.
type Broadcaster struct {
	capturesID   string
	sessionStart string

	stream StreamSink
	object ObjectSink
	reg    *monitors.Registry
	log    zerolog.Logger

	broadcastInterval time.Duration
	flushInterval     time.Duration

	clientsMu     sync.Mutex
	clients       map[Client]map[models.Category]struct{}
	pending       []pendingEntry
	counts        map[models.Category]int
	lastBroadcast time.Time
	st            state

	bufMu     sync.Mutex
	objBuffer map[models.Category][]*models.Envelope

	flushCancel  context.CancelFunc
	flushDone    chan struct{}
	shutdownOnce sync.Once
}

// Option tunes broadcaster construction.
type Option func(*Broadcaster)

// WithBroadcastInterval sets the minimum interval between live-client
// broadcasts.
func WithBroadcastInterval(d time.Duration) Option {
	return func(b *Broadcaster) { b.broadcastInterval = d }
}

// WithFlushInterval sets the period of the background object-store flush.
func WithFlushInterval(d time.Duration) Option {
	return func(b *Broadcaster) { b.flushInterval = d }
}

// New builds a broadcaster and starts its periodic object-store flush
// task. A nil object sink disables object-store writes; a nil stream sink
// disables durable-stream emission. Both degrade to no-ops rather than
// erroring per event.
func New(capturesID, sessionStart string, stream StreamSink, object ObjectSink, reg *monitors.Registry, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		capturesID:        capturesID,
		sessionStart:      sessionStart,
		stream:            stream,
		object:            object,
		reg:               reg,
		log:               logger.WithComponent("broadcaster"),
		broadcastInterval: defaultBroadcastInterval,
		flushInterval:     defaultFlushInterval,
		clients:           make(map[Client]map[models.Category]struct{}),
		counts:            make(map[models.Category]int),
		objBuffer:         make(map[models.Category][]*models.Envelope),
		flushDone:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.flushCancel = cancel

	go b.flushLoop(ctx)

	return b
}

// HandleEvent is the single inbound callback invoked by every monitor. It
// never panics or returns an error back into the caller; every internal
// failure is logged and contained.
func (b *Broadcaster) HandleEvent(category models.Category, detail any) {
	envelope := models.NewEnvelope(b.capturesID, b.sessionStart, category, detail)

	b.clientsMu.Lock()
	active := b.st == stateActive
	b.clientsMu.Unlock()

	// 1. Durable stream, while active. Failures are logged, never
	// retried here, and never block the remaining sinks.
	if active && b.stream != nil {
		if err := b.stream.Publish(context.Background(), envelope); err != nil {
			b.log.Error().Err(err).Str("category", string(category)).Msg("durable stream emission failed")
		}
	}

	// 2. Object-store buffer, regardless of state: events arriving while
	// shutting down are still captured by the final flush.
	b.bufMu.Lock()
	b.objBuffer[category] = append(b.objBuffer[category], envelope)
	b.bufMu.Unlock()

	b.clientsMu.Lock()

	// 3. Aggregate counters, regardless of state.
	b.counts[category]++

	// 4. Live-stream summary and throttled broadcast, while active only.
	if b.st != stateActive {
		b.clientsMu.Unlock()
		return
	}

	b.pending = append(b.pending, pendingEntry{
		category:  category,
		summary:   b.reg.Summarize(category, detail),
		timestamp: envelope.Timestamp,
	})

	clients, entries, stats := b.takeBroadcastLocked(time.Now())
	b.clientsMu.Unlock()

	if clients != nil {
		b.sendUpdates(clients, entries, stats)
	}
}

// takeBroadcastLocked decides whether a broadcast is due and, if so,
// atomically claims the pending buffer. Caller holds clientsMu. Returns a
// nil client map when throttled or when no clients are connected.
func (b *Broadcaster) takeBroadcastLocked(now time.Time) (map[Client]map[models.Category]struct{}, []pendingEntry, models.Stats) {
	if len(b.clients) == 0 {
		// No observers; drop the buffer rather than let it grow.
		b.pending = nil
		return nil, nil, models.Stats{}
	}

	if now.Sub(b.lastBroadcast) < b.broadcastInterval {
		// Throttled: events keep accumulating; the next event or an
		// explicit tick resolves them. No timer is scheduled.
		return nil, nil, models.Stats{}
	}

	b.lastBroadcast = now

	entries := b.pending
	if len(entries) > maxUpdateEvents {
		entries = entries[len(entries)-maxUpdateEvents:]
	}

	b.pending = nil

	clients := make(map[Client]map[models.Category]struct{}, len(b.clients))
	for c, filter := range b.clients {
		clients[c] = filter
	}

	return clients, entries, b.statsLocked()
}

// Tick attempts a throttled broadcast without a new event, draining
// summaries that accumulated since the last send.
func (b *Broadcaster) Tick() {
	b.clientsMu.Lock()

	if b.st != stateActive || len(b.pending) == 0 {
		b.clientsMu.Unlock()
		return
	}

	clients, entries, stats := b.takeBroadcastLocked(time.Now())
	b.clientsMu.Unlock()

	if clients != nil {
		b.sendUpdates(clients, entries, stats)
	}
}

// sendUpdates delivers one update message per client, filtered by the
// client's subscription. Clients whose send fails are removed only after
// the whole pass; removal never happens mid-iteration over the live
// registry. No lock is held while sending.
func (b *Broadcaster) sendUpdates(clients map[Client]map[models.Category]struct{}, entries []pendingEntry, stats models.Stats) {
	var failed []Client

	for client, filter := range clients {
		events := make([]models.UpdateEvent, 0, len(entries))

		for _, entry := range entries {
			if len(filter) > 0 {
				if _, subscribed := filter[entry.category]; !subscribed {
					continue
				}
			}

			events = append(events, models.UpdateEvent{
				Category:  entry.category,
				Summary:   entry.summary,
				Timestamp: entry.timestamp,
			})
		}

		msg := models.UpdateMessage{
			Type:   models.MessageUpdate,
			Stats:  stats,
			Events: events,
		}

		if err := client.Send(msg); err != nil {
			b.log.Debug().Err(err).Msg("client send failed, scheduling removal")
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		b.Unregister(client)
	}
}

func (b *Broadcaster) statsLocked() models.Stats {
	counts := make(map[models.Category]int, len(b.counts))
	total := 0

	for category, n := range b.counts {
		counts[category] = n
		total += n
	}

	return models.Stats{TotalEvents: total, EventCounts: counts}
}

// Stats returns the current aggregate counters.
func (b *Broadcaster) Stats() models.Stats {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	return b.statsLocked()
}

// Register adds a live client with a subscription filter (nil or empty =
// all categories) and immediately sends a state snapshot. A client whose
// snapshot send fails is unregistered straight away.
func (b *Broadcaster) Register(client Client, categories map[models.Category]struct{}) {
	b.clientsMu.Lock()

	if b.st != stateActive {
		b.clientsMu.Unlock()
		_ = client.Close(websocketGoingAway, "session ended")

		return
	}

	if categories == nil {
		categories = make(map[models.Category]struct{})
	}

	b.clients[client] = categories
	total := len(b.clients)
	stats := b.statsLocked()
	b.clientsMu.Unlock()

	b.log.Info().Int("total", total).Msg("live client registered")

	snapshot := models.SnapshotMessage{
		Type:       models.MessageSnapshot,
		CapturesID: b.capturesID,
		Stats:      stats,
	}

	if err := client.Send(snapshot); err != nil {
		b.log.Debug().Err(err).Msg("snapshot send failed")
		b.Unregister(client)
	}
}

// UpdateSubscriptions replaces the filter for an already-registered
// client. Unregistered clients are ignored.
func (b *Broadcaster) UpdateSubscriptions(client Client, categories map[models.Category]struct{}) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	if _, ok := b.clients[client]; !ok {
		return
	}

	if categories == nil {
		categories = make(map[models.Category]struct{})
	}

	b.clients[client] = categories
}

// Unregister removes a client from the registry. Idempotent.
func (b *Broadcaster) Unregister(client Client) {
	b.clientsMu.Lock()
	delete(b.clients, client)
	total := len(b.clients)
	b.clientsMu.Unlock()

	b.log.Info().Int("total", total).Msg("live client unregistered")
}

// ClientCount reports the size of the live registry.
func (b *Broadcaster) ClientCount() int {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	return len(b.clients)
}

// flushLoop is the periodic object-store flush task. It is owned by the
// broadcaster and joined during shutdown; cancellation never leaves the
// buffer guard held.
func (b *Broadcaster) flushLoop(ctx context.Context) {
	defer close(b.flushDone)

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Debug().Msg("object-store flush task cancelled")
			return
		case <-ticker.C:
			b.Flush(ctx, false)
		}
	}
}

// Flush snapshots and clears the object-store buffer atomically, then
// writes one compressed JSONL object per category. A failure for one
// category is logged and does not block the others. During shutdown only
// the final flush (allowDuringShutdown) proceeds.
func (b *Broadcaster) Flush(ctx context.Context, allowDuringShutdown bool) {
	if b.object == nil {
		return
	}

	if !allowDuringShutdown {
		b.clientsMu.Lock()
		shuttingDown := b.st != stateActive
		b.clientsMu.Unlock()

		if shuttingDown {
			return
		}
	}

	b.bufMu.Lock()

	if len(b.objBuffer) == 0 {
		b.bufMu.Unlock()
		return
	}

	snapshot := b.objBuffer
	b.objBuffer = make(map[models.Category][]*models.Envelope)
	b.bufMu.Unlock()

	now := time.Now().UTC()

	for category, envelopes := range snapshot {
		if len(envelopes) == 0 {
			continue
		}

		payload, err := encodeJSONLGzip(envelopes)
		if err != nil {
			b.log.Error().Err(err).Str("category", string(category)).Msg("failed to encode flush payload")
			continue
		}

		key := objectKey(b.capturesID, b.sessionStart, category, now)

		if err := b.object.Put(ctx, key, payload); err != nil {
			b.log.Error().Err(err).Str("key", key).Msg("object-store write failed")
			continue
		}

		b.log.Info().Int("events", len(envelopes)).Str("key", key).Msg("flushed events to object store")
	}
}

// objectKey builds the object name for one category's flush. The
// timestamp carries millisecond resolution so rapid consecutive flushes
// never collide.
func objectKey(capturesID, sessionStart string, category models.Category, t time.Time) string {
	stamp := fmt.Sprintf("%s-%03d", t.Format("20060102-150405"), t.Nanosecond()/int(time.Millisecond))

	return fmt.Sprintf("direct_writes/%s/%s/%s/%s.jsonl.gz", capturesID, sessionStart, category, stamp)
}

func encodeJSONLGzip(envelopes []*models.Envelope) ([]byte, error) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	for _, envelope := range envelopes {
		if err := enc.Encode(envelope); err != nil {
			_ = gz.Close()
			return nil, fmt.Errorf("failed to encode envelope: %w", err)
		}
	}

	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish gzip stream: %w", err)
	}

	return buf.Bytes(), nil
}

// websocket close codes used on shutdown; mirrored here to avoid a
// dependency on the transport package.
const (
	websocketNormalClosure = 1000
	websocketGoingAway     = 1001
)

// Shutdown ends the session: joins the flush task, runs one final flush
// that captures everything buffered up to this moment, notifies every
// live client best-effort, closes their connections, and clears the
// registry. Live broadcast and durable-stream emission stop immediately;
// buffering for the final flush continues until it runs. Safe to call
// more than once.
func (b *Broadcaster) Shutdown(ctx context.Context, reason string, sessionErr error) {
	b.shutdownOnce.Do(func() {
		b.clientsMu.Lock()
		b.st = stateShuttingDown
		b.clientsMu.Unlock()

		b.log.Info().Str("reason", reason).Msg("shutting down broadcaster")

		// Join the periodic task before the final flush so the two never
		// race on the buffer.
		b.flushCancel()

		select {
		case <-b.flushDone:
		case <-ctx.Done():
			b.log.Warn().Msg("timed out waiting for flush task")
		}

		b.Flush(ctx, true)

		b.clientsMu.Lock()
		clients := make([]Client, 0, len(b.clients))
		for c := range b.clients {
			clients = append(clients, c)
		}
		b.clientsMu.Unlock()

		msg := models.SessionEndedMessage{
			Type:   models.MessageSessionEnded,
			Reason: reason,
		}
		if sessionErr != nil {
			msg.Error = sessionErr.Error()
		}

		for _, client := range clients {
			if err := client.Send(msg); err != nil {
				b.log.Debug().Err(err).Msg("session-ended send failed")
			}
		}

		for _, client := range clients {
			if err := client.Close(websocketNormalClosure, reason); err != nil {
				b.log.Debug().Err(err).Msg("client close failed")
			}
		}

		b.clientsMu.Lock()
		b.clients = make(map[Client]map[models.Category]struct{})
		b.st = stateClosed
		b.clientsMu.Unlock()

		b.log.Info().Msg("broadcaster closed")
	})
}
