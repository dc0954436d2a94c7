package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"caseline/internal/domain"
	"caseline/internal/metrics"
	"caseline/internal/repo"
)

const (
	defaultRelayInterval = 2 * time.Second
	defaultRelayBatch    = 100
)

// Envelope is the wire form of an event handed to sinks.
type Envelope struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         time.Time       `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func NewEnvelope(evt domain.Event) Envelope {
	env := Envelope{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    json.RawMessage("{}"),
	}
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			env.Payload = json.RawMessage(evt.Payload)
		} else {
			env.PayloadRaw = evt.Payload
		}
	}
	return env
}

// Sink receives events forwarded by a Relay.
type Sink interface {
	Name() string
	Accepts(evtType string) bool
	Deliver(ctx context.Context, env Envelope) error
}

// Source is the part of the store a Relay reads.
type Source interface {
	ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Relay tails the event log and forwards new events to each sink. Every
// sink keeps its own cursor, starting at the newest event seen on first
// poll. A failed delivery stops that sink's batch and is retried next poll.
type Relay struct {
	Source   Source
	Sinks    []Sink
	Interval time.Duration
	Batch    int
	Log      logrus.FieldLogger
	Metrics  *metrics.Metrics

	mu      sync.Mutex
	cursors map[int]int64
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one delivery pass over all sinks.
func (r *Relay) Poll(ctx context.Context) {
	for i, sink := range r.Sinks {
		r.pollSink(ctx, i, sink)
	}
}

func (r *Relay) logger() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

func (r *Relay) pollSink(ctx context.Context, idx int, sink Sink) {
	log := r.logger().WithField("sink", sink.Name())
	cursor, err := r.cursorFor(ctx, idx)
	if err != nil {
		log.WithError(err).Error("relay: init cursor failed")
		return
	}
	batch := r.Batch
	if batch <= 0 {
		batch = defaultRelayBatch
	}
	evts, err := r.Source.ListEvents(ctx, repo.EventFilters{AfterID: cursor, Ascending: true, Limit: batch})
	if err != nil {
		log.WithError(err).Error("relay: fetch events failed")
		return
	}
	for _, evt := range evts {
		if !sink.Accepts(evt.Type) {
			r.setCursor(idx, evt.ID)
			continue
		}
		if err := sink.Deliver(ctx, NewEnvelope(evt)); err != nil {
			r.Metrics.Delivery(sink.Name(), "error")
			log.WithError(err).WithField("event_id", evt.ID).Warn("relay: delivery failed")
			return
		}
		r.Metrics.Delivery(sink.Name(), "ok")
		r.setCursor(idx, evt.ID)
	}
}

func (r *Relay) cursorFor(ctx context.Context, idx int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursors == nil {
		r.cursors = make(map[int]int64)
	}
	if cur, ok := r.cursors[idx]; ok {
		return cur, nil
	}
	cur, err := r.Source.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	r.cursors[idx] = cur
	return cur, nil
}

func (r *Relay) setCursor(idx int, value int64) {
	r.mu.Lock()
	r.cursors[idx] = value
	r.mu.Unlock()
}

// Filter matches event types. An empty filter matches everything.
type Filter struct {
	all bool
	set map[string]struct{}
}

func NewFilter(types []string) Filter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return Filter{all: true}
	}
	return Filter{set: set}
}

func (f Filter) Match(evtType string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evtType]
	return ok
}
