package events

import (
	"encoding/json"
	"log"
)

// Emitter publishes audit events. Emit must not block the pipeline on failure.
type Emitter interface {
	Emit(event AuditEvent)
}

// LogEmitter writes events to the standard logger as JSON.
type LogEmitter struct{}

func NewLogEmitter() *LogEmitter {
	return &LogEmitter{}
}

func (e *LogEmitter) Emit(event AuditEvent) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Printf("[EVENT] marshal failed: %v", err)
		return
	}
	log.Printf("[EVENT] %s", string(b))
}

// MultiEmitter fans an event out to several emitters.
type MultiEmitter struct {
	emitters []Emitter
}

func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (m *MultiEmitter) Emit(event AuditEvent) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
