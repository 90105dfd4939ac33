// Package events defines the push-only progress stream the engine emits
// while a project runs. The engine treats emission as a side effect and
// never observes a result; hosts adapt an Emitter to SSE, queues, log
// files, or test recorders.
package events

import (
	"sync"

	"inquest/internal/logging"
)

// Event type names emitted by the engine.
const (
	TypePipeline           = "pipeline"
	TypePhase              = "phase"
	TypeWorker             = "worker"
	TypePathwayStarted     = "pathway_started"
	TypePathwayLevel       = "pathway_level"
	TypePathwayBranch      = "pathway_branch"
	TypePathwayComplete    = "pathway_complete"
	TypeConfidenceComputed = "confidence_computed"
	TypeValidation         = "validation"
	TypeComplete           = "complete"
	TypeError              = "error_event"
)

// Emitter receives engine progress events. Implementations must be safe
// for concurrent use; the engine calls Emit from multiple goroutines.
type Emitter interface {
	Emit(eventType string, payload map[string]interface{})
}

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(string, map[string]interface{}) {}

// LogEmitter forwards events to the events log category.
type LogEmitter struct{}

// Emit implements Emitter.
func (LogEmitter) Emit(eventType string, payload map[string]interface{}) {
	logging.Events("%s %v", eventType, payload)
}

// Recorded is one captured event.
type Recorded struct {
	Type    string
	Payload map[string]interface{}
}

// Recorder captures events for tests and inspection.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Emit implements Emitter.
func (r *Recorder) Emit(eventType string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Type: eventType, Payload: payload})
}

// Events returns a copy of everything captured so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// ByType returns captured events of one type, in emission order.
func (r *Recorder) ByType(eventType string) []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recorded
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Multi fans one event out to several emitters.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(eventType string, payload map[string]interface{}) {
	for _, e := range m {
		e.Emit(eventType, payload)
	}
}
