package core

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapfolio/placesync/internal/catalog"
	"github.com/mapfolio/placesync/internal/record"
	"github.com/mapfolio/placesync/internal/sync"
	"github.com/mapfolio/placesync/internal/tabular"
)

// DefaultRunTimeout is the maximum duration for a sync run.
const DefaultRunTimeout = 30 * time.Minute

// DefaultRetainFor is how long finished imports and runs stay queryable.
const DefaultRetainFor = time.Hour

// Catalog is the slice of the catalog client the service needs.
type Catalog interface {
	CheckConnection(ctx context.Context) (bool, catalog.Health)
	UpdateItem(ctx context.Context, id string, payload map[string]any) error
	Collection() string
}

// CatalogUnavailableError is returned when a sync is requested while the
// connectivity check fails. It carries the health snapshot so callers can
// report which stage failed.
type CatalogUnavailableError struct {
	Health catalog.Health
}

func (e *CatalogUnavailableError) Error() string {
	if e.Health.Detail != "" {
		return "catalog not ready: " + e.Health.Detail
	}
	return "catalog not ready"
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Mapping       record.Mapping
	Fields        sync.FieldMap
	ThrottleDelay time.Duration
	RunTimeout    time.Duration
	MaxConcurrent int
	MaxRunWait    time.Duration
	RetainFor     time.Duration
	Recorder      RunRecorder
}

// Service coordinates imports and sync runs. Imports and active runs are
// tracked in memory; finished runs are additionally written to the
// recorder when one is configured.
type Service struct {
	catalog    Catalog
	engine     *sync.Engine
	mapping    record.Mapping
	runLimiter *RunLimiter
	recorder   RunRecorder
	runTimeout time.Duration
	retainFor  time.Duration

	mu      stdsync.RWMutex
	imports map[string]*Import
	runs    map[string]*activeRun
}

type activeRun struct {
	ID       string
	ImportID string
	Cancel   context.CancelFunc
	Result   *RunResult
	Done     chan struct{}

	// ListenerMu guards Progress and Listeners; the run goroutine writes
	// progress while handler goroutines read it and subscribe.
	ListenerMu stdsync.Mutex
	Progress   RunProgress
	Listeners  []chan RunProgress
}

// NewService creates a service backed by the given catalog client.
func NewService(cat Catalog, opts Options) *Service {
	mapping := opts.Mapping
	if mapping == (record.Mapping{}) {
		mapping = record.DefaultMapping()
	}
	runTimeout := opts.RunTimeout
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	retainFor := opts.RetainFor
	if retainFor <= 0 {
		retainFor = DefaultRetainFor
	}

	return &Service{
		catalog:    cat,
		engine:     sync.NewEngine(cat, opts.ThrottleDelay, opts.Fields),
		mapping:    mapping,
		runLimiter: NewRunLimiter(opts.MaxConcurrent, opts.MaxRunWait),
		recorder:   opts.Recorder,
		runTimeout: runTimeout,
		retainFor:  retainFor,
		imports:    make(map[string]*Import),
		runs:       make(map[string]*activeRun),
	}
}

// CreateImport parses and validates an uploaded file and registers the
// result. Structural problems in individual rows are collected as skipped
// row diagnostics; only an unusable file (no header and data row) fails.
func (s *Service) CreateImport(fileName, text string) (*Import, error) {
	parsed, err := tabular.Parse(text)
	if err != nil {
		return nil, err
	}

	records := record.ConvertAll(parsed.Rows, s.mapping)

	imp := &Import{
		ID:        uuid.New().String(),
		FileName:  fileName,
		CreatedAt: time.Now(),
		Records:   records,
		Skipped:   parsed.Skipped,
		Summary:   summarize(records, len(parsed.Skipped)),
	}

	s.mu.Lock()
	s.imports[imp.ID] = imp
	s.mu.Unlock()

	s.cleanupImport(imp.ID, s.retainFor)

	slog.Info("import created",
		"import_id", imp.ID,
		"file", fileName,
		"records", imp.Summary.Total,
		"invalid", imp.Summary.Invalid,
		"skipped_rows", imp.Summary.SkippedRows,
	)

	return imp, nil
}

// GetImport returns a registered import.
func (s *Service) GetImport(importID string) (*Import, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("import not found: %s", importID)
	}
	return imp, nil
}

// CheckConnection probes the catalog service.
func (s *Service) CheckConnection(ctx context.Context) (bool, catalog.Health) {
	return s.catalog.CheckConnection(ctx)
}

// Reconcile parses and validates an upload while probing the catalog in
// parallel, so the operator sees validation results and connectivity
// status from a single request. A failed probe does not fail the import;
// it only means a sync cannot start yet.
func (s *Service) Reconcile(ctx context.Context, fileName, text string) (*ReconcileResult, error) {
	type probe struct {
		ready  bool
		health catalog.Health
	}
	probeCh := make(chan probe, 1)

	go func() {
		ready, health := s.catalog.CheckConnection(ctx)
		probeCh <- probe{ready: ready, health: health}
	}()

	imp, err := s.CreateImport(fileName, text)
	if err != nil {
		return nil, err
	}

	p := <-probeCh
	return &ReconcileResult{Import: imp, Ready: p.ready, Health: p.health}, nil
}

// StartSync begins an asynchronous sync run for a registered import.
// Returns the sync ID immediately; use SubscribeProgress for updates.
//
// The catalog must pass the connectivity check first; otherwise a
// *CatalogUnavailableError is returned and nothing is submitted. Returns
// ErrTooManyRuns when the concurrent run limit is reached and no slot
// frees up within the wait window.
func (s *Service) StartSync(ctx context.Context, importID string) (string, error) {
	imp, err := s.GetImport(importID)
	if err != nil {
		return "", err
	}

	if err := s.runLimiter.Acquire(ctx); err != nil {
		return "", err
	}

	ready, health := s.catalog.CheckConnection(ctx)
	if !ready {
		s.runLimiter.Release()
		return "", &CatalogUnavailableError{Health: health}
	}

	syncID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)

	run := &activeRun{
		ID:       syncID,
		ImportID: importID,
		Cancel:   cancel,
		Progress: RunProgress{
			SyncID:   syncID,
			ImportID: importID,
			Phase:    PhaseStarting,
			Total:    imp.Summary.Eligible,
		},
		Done:      make(chan struct{}),
		Listeners: make([]chan RunProgress, 0),
	}

	s.mu.Lock()
	s.runs[syncID] = run
	s.mu.Unlock()

	// Process in background with panic recovery to ensure limiter release
	go func() {
		defer s.runLimiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in sync run",
					"sync_id", syncID,
					"import_id", importID,
					"panic", r,
				)
				run.Result = &RunResult{
					SyncID:   syncID,
					ImportID: importID,
					Outcomes: []sync.Outcome{},
					Error:    fmt.Sprintf("internal error: %v", r),
				}
				run.updateProgress(func(p *RunProgress) {
					p.Phase = PhaseFailed
					p.Error = fmt.Sprintf("internal error: %v", r)
				})
				close(run.Done)
				run.closeListeners()
				s.cleanupRun(syncID, 5*time.Minute)
			}
		}()
		s.processRun(runCtx, run, imp)
	}()

	return syncID, nil
}

// processRun drives the engine and publishes progress and the result.
func (s *Service) processRun(ctx context.Context, run *activeRun, imp *Import) {
	started := time.Now()

	run.updateProgress(func(p *RunProgress) {
		p.Phase = PhaseSyncing
	})

	outcomes := s.engine.Run(ctx, imp.Records, func(fraction float64, latest sync.Outcome) {
		out := latest
		run.updateProgress(func(p *RunProgress) {
			p.Fraction = fraction
			p.Completed++
			p.Latest = &out
		})
	})

	result := &RunResult{
		SyncID:   run.ID,
		ImportID: run.ImportID,
		Outcomes: outcomes,
		Duration: time.Since(started),
	}
	for _, o := range outcomes {
		switch o.Status {
		case sync.StatusSuccess:
			result.Succeeded++
		case sync.StatusError:
			result.Failed++
		}
	}

	if ctx.Err() != nil && len(outcomes) < imp.Summary.Eligible {
		result.Cancelled = true
	}

	run.Result = result
	run.updateProgress(func(p *RunProgress) {
		if result.Cancelled {
			p.Phase = PhaseCancelled
			return
		}
		p.Phase = PhaseComplete
		p.Fraction = 1
		if p.Total == 0 {
			p.Fraction = 0
		}
	})
	// Done closes before the listener channels so a late subscriber
	// either joins the close below or takes the already-done path.
	close(run.Done)
	run.closeListeners()

	s.record(result, started)
	s.cleanupRun(run.ID, s.retainFor)

	slog.Info("sync run finished",
		"sync_id", run.ID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
		"duration", result.Duration,
	)
}

// record writes the run to the recorder when one is configured.
func (s *Service) record(result *RunResult, started time.Time) {
	if s.recorder == nil {
		return
	}

	status := "complete"
	if result.Cancelled {
		status = "cancelled"
	}

	recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.recorder.RecordRun(recordCtx, RunRecord{
		ID:        result.SyncID,
		ImportID:  result.ImportID,
		StartedAt: started,
		Duration:  result.Duration,
		Total:     len(result.Outcomes),
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Status:    status,
	})
	if err != nil {
		slog.Warn("record sync run", "sync_id", result.SyncID, "error", err)
	}
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the run completes.
func (s *Service) SubscribeProgress(syncID string) (<-chan RunProgress, error) {
	s.mu.RLock()
	run, ok := s.runs[syncID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("sync run not found: %s", syncID)
	}

	ch := make(chan RunProgress, 10)

	run.ListenerMu.Lock()
	// A run that already finished has closed its listeners; deliver the
	// final state and close so late subscribers still terminate.
	select {
	case <-run.Done:
		ch <- run.Progress
		close(ch)
	default:
		run.Listeners = append(run.Listeners, ch)
		// Send current progress immediately
		select {
		case ch <- run.Progress:
		default:
		}
	}
	run.ListenerMu.Unlock()

	return ch, nil
}

// CancelSync cancels an in-progress sync run. Outcomes recorded before
// the cancellation are preserved in the result.
func (s *Service) CancelSync(syncID string) error {
	s.mu.RLock()
	run, ok := s.runs[syncID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("sync run not found: %s", syncID)
	}

	run.Cancel()
	return nil
}

// GetSyncResult returns the result of a sync run.
// Blocks until the run completes if still in progress.
func (s *Service) GetSyncResult(syncID string) (*RunResult, error) {
	s.mu.RLock()
	run, ok := s.runs[syncID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("sync run not found: %s", syncID)
	}

	<-run.Done

	return run.Result, nil
}

// GetSyncProgress returns the current progress without blocking.
func (s *Service) GetSyncProgress(syncID string) (RunProgress, error) {
	s.mu.RLock()
	run, ok := s.runs[syncID]
	s.mu.RUnlock()

	if !ok {
		return RunProgress{}, fmt.Errorf("sync run not found: %s", syncID)
	}

	return run.progressSnapshot(), nil
}

// ListRuns returns recent runs from the recorder.
// Returns an empty slice when no recorder is configured.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.recorder == nil {
		return []RunRecord{}, nil
	}
	return s.recorder.ListRuns(ctx, limit)
}

// RunnerStatus reports the run limiter's current state.
func (s *Service) RunnerStatus() RunLimiterStatus {
	return s.runLimiter.Status()
}

// WaitForRuns blocks until all active sync runs complete or the context
// is cancelled. Used during graceful shutdown.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.runLimiter.WaitForDrain(ctx)
}

// updateProgress mutates the progress snapshot and notifies listeners
// under the same lock, so readers never observe a partial update.
func (run *activeRun) updateProgress(mutate func(p *RunProgress)) {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	mutate(&run.Progress)

	for _, ch := range run.Listeners {
		select {
		case ch <- run.Progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// progressSnapshot returns a copy of the current progress.
func (run *activeRun) progressSnapshot() RunProgress {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()
	return run.Progress
}

// closeListeners closes all listener channels.
func (run *activeRun) closeListeners() {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	for _, ch := range run.Listeners {
		close(ch)
	}
	run.Listeners = nil
}

// cleanupImport removes the import from tracking after a delay.
func (s *Service) cleanupImport(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, importID)
		s.mu.Unlock()
	})
}

// cleanupRun removes the run from tracking after a delay.
func (s *Service) cleanupRun(syncID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, syncID)
		s.mu.Unlock()
	})
}

func summarize(records []record.Record, skipped int) ImportSummary {
	summary := ImportSummary{Total: len(records), SkippedRows: skipped}
	for _, rec := range records {
		switch rec.Classification {
		case record.ClassificationValid:
			summary.Valid++
		case record.ClassificationWarning:
			summary.Warning++
		case record.ClassificationInvalid:
			summary.Invalid++
		}
		if rec.Eligible() {
			summary.Eligible++
		}
	}
	return summary
}
