package sync

import "testing"

func TestLedger_UpsertReplacesInPlace(t *testing.T) {
	l := NewLedger()
	l.Upsert(Outcome{RecordID: "A", Status: StatusProcessing})
	l.Upsert(Outcome{RecordID: "B", Status: StatusProcessing})
	l.Upsert(Outcome{RecordID: "A", Status: StatusSuccess})

	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	snap := l.Snapshot()
	if snap[0].RecordID != "A" || snap[0].Status != StatusSuccess {
		t.Errorf("entry 0 = %+v, want A success in original position", snap[0])
	}
	if snap[1].RecordID != "B" {
		t.Errorf("entry 1 = %+v, want B", snap[1])
	}
}

func TestLedger_Get(t *testing.T) {
	l := NewLedger()
	l.Upsert(Outcome{RecordID: "A", Status: StatusError, Message: "boom"})

	got, ok := l.Get("A")
	if !ok || got.Message != "boom" {
		t.Errorf("Get(A) = %+v, %v", got, ok)
	}
	if _, ok := l.Get("missing"); ok {
		t.Error("Get(missing) = true, want false")
	}
}

func TestLedger_SnapshotIsACopy(t *testing.T) {
	l := NewLedger()
	l.Upsert(Outcome{RecordID: "A", Status: StatusProcessing})

	snap := l.Snapshot()
	l.Upsert(Outcome{RecordID: "A", Status: StatusSuccess})

	if snap[0].Status != StatusProcessing {
		t.Errorf("snapshot mutated by later upsert: %+v", snap[0])
	}
}

func TestOutcome_Terminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusSuccess, true},
		{StatusError, true},
	}

	for _, tt := range tests {
		if got := (Outcome{Status: tt.status}).Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
