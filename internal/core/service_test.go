package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/mapfolio/placesync/internal/catalog"
	"github.com/mapfolio/placesync/internal/sync"
	"github.com/mapfolio/placesync/internal/tabular"
)

// stubCatalog implements Catalog with scripted connectivity and updates.
type stubCatalog struct {
	mu        stdsync.Mutex
	ready     bool
	health    catalog.Health
	updated   []string
	updateErr map[string]error
}

func readyCatalog() *stubCatalog {
	return &stubCatalog{
		ready: true,
		health: catalog.Health{
			ServerReachable:      true,
			Authorized:           true,
			CollectionAccessible: true,
		},
	}
}

func (c *stubCatalog) CheckConnection(context.Context) (bool, catalog.Health) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready, c.health
}

func (c *stubCatalog) UpdateItem(_ context.Context, id string, _ map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, id)
	if c.updateErr != nil {
		return c.updateErr[id]
	}
	return nil
}

func (c *stubCatalog) Collection() string { return "shops" }

func (c *stubCatalog) updatedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.updated))
	copy(out, c.updated)
	return out
}

func newTestService(cat Catalog) *Service {
	return NewService(cat, Options{ThrottleDelay: time.Millisecond})
}

const sampleCSV = "id,shop_name,shop_malls,shop_location.type,shop_location.coordinates,shop_address\n" +
	"A1,Store One,,Point,\"[57.5, -20.1]\",12 Royal Rd\n" +
	",Broken Row,,Point,\"[57.5, -20.1]\",\n"

func TestEndToEnd_ImportThenSync(t *testing.T) {
	cat := readyCatalog()
	svc := newTestService(cat)

	// Two data rows: one valid, one with a missing id.
	imp, err := svc.CreateImport("shops.csv", sampleCSV)
	if err != nil {
		t.Fatalf("CreateImport() error = %v", err)
	}

	if imp.Summary.Total != 2 || imp.Summary.Valid != 1 || imp.Summary.Invalid != 1 {
		t.Fatalf("summary = %+v, want 2 total, 1 valid, 1 invalid", imp.Summary)
	}
	if imp.Summary.Eligible != 1 {
		t.Fatalf("eligible = %d, want 1", imp.Summary.Eligible)
	}

	syncID, err := svc.StartSync(context.Background(), imp.ID)
	if err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}

	result, err := svc.GetSyncResult(syncID)
	if err != nil {
		t.Fatalf("GetSyncResult() error = %v", err)
	}

	// Only the valid record was submitted; the invalid row produced no outcome.
	if got := cat.updatedIDs(); len(got) != 1 || got[0] != "A1" {
		t.Errorf("submitted ids = %v, want [A1]", got)
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(result.Outcomes))
	}
	if result.Outcomes[0].RecordID != "A1" || result.Outcomes[0].Status != sync.StatusSuccess {
		t.Errorf("outcome = %+v, want A1 success", result.Outcomes[0])
	}
	if result.Succeeded != 1 || result.Failed != 0 || result.Cancelled {
		t.Errorf("result tallies = %+v", result)
	}
}

func TestCreateImport_EmptyInput(t *testing.T) {
	svc := newTestService(readyCatalog())

	if _, err := svc.CreateImport("empty.csv", "   \n\n"); err == nil {
		t.Fatal("CreateImport() expected error for empty input")
	}
}

func TestCreateImport_SkippedRowsSurvive(t *testing.T) {
	svc := newTestService(readyCatalog())

	text := "id,shop_name,shop_location.coordinates\n" +
		"A1,Store One,\"[57.5, -20.1]\"\n" +
		"bad,row\n" +
		"A2,Store Two,\"[57.6, -20.2]\"\n"

	imp, err := svc.CreateImport("shops.csv", text)
	if err != nil {
		t.Fatalf("CreateImport() error = %v", err)
	}

	if imp.Summary.Total != 2 {
		t.Errorf("records = %d, want 2", imp.Summary.Total)
	}
	if imp.Summary.SkippedRows != 1 || len(imp.Skipped) != 1 {
		t.Fatalf("skipped = %d, want 1", imp.Summary.SkippedRows)
	}
	if imp.Skipped[0].FieldCount != 2 || imp.Skipped[0].Expected != 3 {
		t.Errorf("skipped diagnostic = %+v", imp.Skipped[0])
	}
}

func TestGetImport_NotFound(t *testing.T) {
	svc := newTestService(readyCatalog())

	if _, err := svc.GetImport("nope"); err == nil {
		t.Fatal("GetImport() expected error")
	}
}

func TestStartSync_CatalogNotReady(t *testing.T) {
	cat := &stubCatalog{
		ready:  false,
		health: catalog.Health{ServerReachable: true, Detail: "authentication failed (HTTP 401)"},
	}
	svc := newTestService(cat)

	imp, err := svc.CreateImport("shops.csv", sampleCSV)
	if err != nil {
		t.Fatalf("CreateImport() error = %v", err)
	}

	_, err = svc.StartSync(context.Background(), imp.ID)

	var unavailable *CatalogUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("StartSync() error = %v, want *CatalogUnavailableError", err)
	}
	if unavailable.Health.Detail != "authentication failed (HTTP 401)" {
		t.Errorf("health detail = %q", unavailable.Health.Detail)
	}
	if len(cat.updatedIDs()) != 0 {
		t.Error("no records should be submitted when the catalog is not ready")
	}
}

func TestStartSync_UnknownImport(t *testing.T) {
	svc := newTestService(readyCatalog())

	if _, err := svc.StartSync(context.Background(), "nope"); err == nil {
		t.Fatal("StartSync() expected error for unknown import")
	}
}

func TestSubscribeProgress_ReceivesTerminalPhase(t *testing.T) {
	svc := newTestService(readyCatalog())

	imp, err := svc.CreateImport("shops.csv", sampleCSV)
	if err != nil {
		t.Fatalf("CreateImport() error = %v", err)
	}

	syncID, err := svc.StartSync(context.Background(), imp.ID)
	if err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}

	ch, err := svc.SubscribeProgress(syncID)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}

	var last RunProgress
	for p := range ch {
		switch p.Phase {
		case PhaseStarting, PhaseSyncing, PhaseComplete:
		default:
			t.Errorf("unexpected phase %q", p.Phase)
		}
		last = p
	}

	if last.Phase != PhaseComplete {
		t.Errorf("final phase = %s, want complete", last.Phase)
	}
	if last.Fraction != 1 {
		t.Errorf("final fraction = %v, want 1", last.Fraction)
	}
}

func TestGetSyncProgress_ConcurrentWithRun(t *testing.T) {
	cat := readyCatalog()
	svc := newTestService(cat)

	var b strings.Builder
	b.WriteString("id,shop_name,shop_location.coordinates\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "A%d,Store %d,\"[57.5, -20.1]\"\n", i, i)
	}

	imp, err := svc.CreateImport("shops.csv", b.String())
	if err != nil {
		t.Fatalf("CreateImport() error = %v", err)
	}

	syncID, err := svc.StartSync(context.Background(), imp.ID)
	if err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}

	// Poll progress from a second goroutine for the lifetime of the run;
	// run with -race to verify the snapshot is safe to read mid-flight.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			p, err := svc.GetSyncProgress(syncID)
			if err != nil {
				return
			}
			switch p.Phase {
			case PhaseComplete, PhaseFailed, PhaseCancelled:
				return
			}
		}
	}()

	result, err := svc.GetSyncResult(syncID)
	if err != nil {
		t.Fatalf("GetSyncResult() error = %v", err)
	}
	<-done

	if result.Succeeded != 20 {
		t.Errorf("succeeded = %d, want 20", result.Succeeded)
	}
}

// panickyCatalog passes the connectivity gate and then panics on the
// first submission.
type panickyCatalog struct {
	*stubCatalog
}

func (c *panickyCatalog) UpdateItem(context.Context, string, map[string]any) error {
	panic("catalog client blew up")
}

func TestStartSync_PanicYieldsFailedResult(t *testing.T) {
	svc := newTestService(&panickyCatalog{stubCatalog: readyCatalog()})

	imp, err := svc.CreateImport("shops.csv", sampleCSV)
	if err != nil {
		t.Fatalf("CreateImport() error = %v", err)
	}

	syncID, err := svc.StartSync(context.Background(), imp.ID)
	if err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}

	result, err := svc.GetSyncResult(syncID)
	if err != nil {
		t.Fatalf("GetSyncResult() error = %v", err)
	}
	if result == nil {
		t.Fatal("GetSyncResult() = nil after panic, want failed result")
	}
	if !strings.Contains(result.Error, "internal error") {
		t.Errorf("result.Error = %q, want internal error text", result.Error)
	}
	if result.Succeeded != 0 || result.Cancelled {
		t.Errorf("result = %+v, want no successes and not cancelled", result)
	}

	progress, err := svc.GetSyncProgress(syncID)
	if err != nil {
		t.Fatalf("GetSyncProgress() error = %v", err)
	}
	if progress.Phase != PhaseFailed {
		t.Errorf("phase = %q, want failed", progress.Phase)
	}
	if progress.Error == "" {
		t.Error("progress.Error is empty, want panic detail")
	}
}

func TestCancelSync(t *testing.T) {
	cat := readyCatalog()
	// Long throttle so the run is mid-flight when cancelled.
	svc := NewService(cat, Options{ThrottleDelay: 200 * time.Millisecond})

	text := "id,shop_name,shop_location.coordinates\n" +
		"A1,Store One,\"[57.5, -20.1]\"\n" +
		"A2,Store Two,\"[57.6, -20.2]\"\n" +
		"A3,Store Three,\"[57.7, -20.3]\"\n"

	imp, err := svc.CreateImport("shops.csv", text)
	if err != nil {
		t.Fatalf("CreateImport() error = %v", err)
	}

	syncID, err := svc.StartSync(context.Background(), imp.ID)
	if err != nil {
		t.Fatalf("StartSync() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := svc.CancelSync(syncID); err != nil {
		t.Fatalf("CancelSync() error = %v", err)
	}

	result, err := svc.GetSyncResult(syncID)
	if err != nil {
		t.Fatalf("GetSyncResult() error = %v", err)
	}

	if !result.Cancelled {
		t.Error("result.Cancelled = false, want true")
	}
	if len(result.Outcomes) >= 3 {
		t.Errorf("outcomes = %d, want fewer than 3 after cancellation", len(result.Outcomes))
	}
}

func TestReconcile_ImportAndProbeTogether(t *testing.T) {
	cat := &stubCatalog{
		ready:  false,
		health: catalog.Health{Detail: "server unreachable: dial tcp: connection refused"},
	}
	svc := newTestService(cat)

	res, err := svc.Reconcile(context.Background(), "shops.csv", sampleCSV)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	// A failed probe must not fail the import itself.
	if res.Import == nil || res.Import.Summary.Total != 2 {
		t.Errorf("import = %+v, want 2 records", res.Import)
	}
	if res.Ready {
		t.Error("Ready = true, want false")
	}
	if res.Health.Detail == "" {
		t.Error("health detail missing")
	}
}

func TestListRuns_NoRecorder(t *testing.T) {
	svc := newTestService(readyCatalog())

	runs, err := svc.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %v, want empty", runs)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"catalog gate", &CatalogUnavailableError{}, "CAT001"},
		{"unreachable", errors.New("server unreachable: dial tcp"), "CAT002"},
		{"auth", errors.New("authentication failed (HTTP 401)"), "CAT003"},
		{"permission", errors.New(`token lacks permission to read collection "shops"`), "CAT004"},
		{"not found", errors.New(`id "X" does not exist in the remote catalog`), "CAT005"},
		{"empty input", tabular.ErrEmptyInput, "IMP001"},
		{"import gone", errors.New("import not found: abc"), "IMP002"},
		{"run gone", errors.New("sync run not found: abc"), "RUN001"},
		{"busy", ErrTooManyRuns, "RUN002"},
		{"fallback", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err); got.Code != tt.code {
				t.Errorf("MapError(%v).Code = %s, want %s", tt.err, got.Code, tt.code)
			}
		})
	}
}

func TestRunLimiter_SerializesRuns(t *testing.T) {
	l := NewRunLimiter(1, 50*time.Millisecond)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	if err := l.Acquire(context.Background()); !errors.Is(err, ErrTooManyRuns) {
		t.Errorf("second Acquire() error = %v, want ErrTooManyRuns", err)
	}

	l.Release()

	if err := l.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
	l.Release()
}

func TestRunLimiter_Status(t *testing.T) {
	l := NewRunLimiter(2, time.Second)
	l.Acquire(context.Background())
	defer l.Release()

	st := l.Status()
	if st.Active != 1 || st.MaxConcurrent != 2 || st.Available != 1 {
		t.Errorf("status = %+v", st)
	}
}
