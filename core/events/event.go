package events

import "sync"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. metrics, archives, websockets).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Record is the flattened payload carried by every ledger event. Attribute
// values are pre-formatted strings so sinks never need the originating types.
type Record struct {
	Type       string            `json:"type"`
	Time       int64             `json:"time"`
	Attributes map[string]string `json:"attributes"`
}

// EventType satisfies the Event interface.
func (r *Record) EventType() string {
	if r == nil {
		return ""
	}
	return r.Type
}

// Attr returns the named attribute or the empty string.
func (r *Record) Attr(key string) string {
	if r == nil || r.Attributes == nil {
		return ""
	}
	return r.Attributes[key]
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := &Record{Type: r.Type, Time: r.Time, Attributes: make(map[string]string, len(r.Attributes))}
	for k, v := range r.Attributes {
		clone.Attributes[k] = v
	}
	return clone
}

// Fanout forwards every event to each of its emitters in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}

// Recorder keeps every emitted event in memory. Tests use it to assert on the
// exact records produced by an operation.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a snapshot of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded records matching the event type.
func (r *Recorder) OfType(eventType string) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, 0)
	for _, evt := range r.events {
		rec, ok := evt.(*Record)
		if !ok || rec.Type != eventType {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
