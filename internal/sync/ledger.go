// Package sync replays validated location records against the remote
// catalog, one at a time, and produces the per-record outcome ledger that
// serves as the operator's audit trail for a batch run.
package sync

import "github.com/mapfolio/placesync/internal/record"

// Status is the per-record state machine: pending -> processing ->
// success | error. Success and error are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Outcome is the result of one submission attempt.
type Outcome struct {
	RecordID string        `json:"recordId"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Record   record.Record `json:"record"`
}

// Terminal reports whether the outcome's status will not change again.
func (o Outcome) Terminal() bool {
	return o.Status == StatusSuccess || o.Status == StatusError
}

// Ledger accumulates one outcome per attempted record. Entries keep the
// order in which records were first attempted; a later outcome for the
// same record id replaces the earlier entry in place rather than
// appending a duplicate.
type Ledger struct {
	outcomes []Outcome
	index    map[string]int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{index: make(map[string]int)}
}

// Upsert appends the outcome, or replaces the existing entry when one is
// already present for the same record id.
func (l *Ledger) Upsert(o Outcome) {
	if i, ok := l.index[o.RecordID]; ok {
		l.outcomes[i] = o
		return
	}
	l.index[o.RecordID] = len(l.outcomes)
	l.outcomes = append(l.outcomes, o)
}

// Get returns the outcome for a record id.
func (l *Ledger) Get(recordID string) (Outcome, bool) {
	i, ok := l.index[recordID]
	if !ok {
		return Outcome{}, false
	}
	return l.outcomes[i], true
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.outcomes)
}

// Snapshot returns a copy of the entries in attempt order. Callers can
// hold it without racing the engine.
func (l *Ledger) Snapshot() []Outcome {
	out := make([]Outcome, len(l.outcomes))
	copy(out, l.outcomes)
	return out
}
