package events

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Emitter receives events. Implementations must not call back into the emitting component.
type Emitter interface {
	Emit(event Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Event) {}

// Recorder keeps every emitted event in memory, in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type, in order.
func (r *Recorder) OfType(eventType EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event of a type, or nil.
func (r *Recorder) Last(eventType EventType) Event {
	matching := r.OfType(eventType)
	if len(matching) == 0 {
		return nil
	}
	return matching[len(matching)-1]
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogEmitter writes every event as a structured log line.
type LogEmitter struct {
	log zerolog.Logger
}

func NewLogEmitter(log zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (l *LogEmitter) Emit(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		l.log.Error().Err(err).Str("event", string(event.EventType())).Msg("Failed to encode event")
		return
	}
	l.log.Info().
		Str("event", string(event.EventType())).
		RawJSON("data", payload).
		Msg("Event emitted")
}
