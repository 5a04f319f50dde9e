// Package events defines the outbound observer surface of the core.
// The core calls the sink synchronously at every lifecycle transition;
// sinks must be cheap or buffer internally.
package events

import (
	"sync"

	"github.com/coastline/wharf/internal/types"
)

// Sink receives structured events from the core. External observers
// (log shippers, the HTTP surface, SIEM forwarders) implement this.
type Sink interface {
	EmitAudit(entry types.AuditEntry)
	EmitProgress(p *types.JobProgress)
	EmitTaskUpdate(t *types.FileTask)
	EmitSchemaDrift(d types.SchemaDrift)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) EmitAudit(types.AuditEntry)        {}
func (NopSink) EmitProgress(*types.JobProgress)   {}
func (NopSink) EmitTaskUpdate(*types.FileTask)    {}
func (NopSink) EmitSchemaDrift(types.SchemaDrift) {}

// MultiSink fans each event out to every registered sink in order.
// Registration is guarded; dispatch takes a read lock so sinks can be
// added while jobs run.
type MultiSink struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewMultiSink creates a fan-out sink over the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Add registers another sink.
func (m *MultiSink) Add(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

func (m *MultiSink) EmitAudit(entry types.AuditEntry) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.EmitAudit(entry)
	}
}

func (m *MultiSink) EmitProgress(p *types.JobProgress) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.EmitProgress(p)
	}
}

func (m *MultiSink) EmitTaskUpdate(t *types.FileTask) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.EmitTaskUpdate(t)
	}
}

func (m *MultiSink) EmitSchemaDrift(d types.SchemaDrift) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.EmitSchemaDrift(d)
	}
}
