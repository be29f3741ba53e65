package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mapfolio/placesync/internal/catalog"
	"github.com/mapfolio/placesync/internal/record"
)

// DefaultThrottleDelay is the default pause between successive submissions,
// a deliberate brake to respect the catalog service's rate limits.
const DefaultThrottleDelay = 500 * time.Millisecond

// Submitter is the slice of the catalog client the engine needs.
type Submitter interface {
	UpdateItem(ctx context.Context, id string, payload map[string]any) error
}

// ProgressFunc receives one notification per completed record.
// fractionComplete is (index+1)/totalEligible for the just-finished record.
type ProgressFunc func(fractionComplete float64, latest Outcome)

// FieldMap names the remote catalog fields the engine writes.
type FieldMap struct {
	SyncedFlag string // boolean flag marking the record's location as refreshed
	Name       string // display name field
	Geometry   string // point geometry field
	Address    string // free-text address field
}

// DefaultFieldMap returns the field names of the standard shops collection.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		SyncedFlag: "location_synced",
		Name:       "shop_name",
		Geometry:   "shop_location",
		Address:    "shop_address",
	}
}

// Engine replays eligible records against the remote catalog.
//
// Processing is strictly sequential and order-preserving: no two
// submissions are ever in flight at once, and outcome N is observable via
// the progress callback before work on record N+1 begins. The engine never
// retries; every failure is captured as an error outcome and processing
// moves on.
type Engine struct {
	submitter Submitter
	fields    FieldMap
	throttle  time.Duration
	logger    *slog.Logger
}

// NewEngine creates an engine submitting through the given client.
// A non-positive throttle falls back to DefaultThrottleDelay.
func NewEngine(submitter Submitter, throttle time.Duration, fields FieldMap) *Engine {
	if throttle <= 0 {
		throttle = DefaultThrottleDelay
	}
	if fields == (FieldMap{}) {
		fields = DefaultFieldMap()
	}

	return &Engine{
		submitter: submitter,
		fields:    fields,
		throttle:  throttle,
		logger:    slog.Default().With("component", "sync-engine"),
	}
}

// Run submits every eligible record in order and returns the full outcome
// ledger once all of them reached a terminal status.
//
// Records classified invalid are never enqueued and produce no outcome.
// Between submissions the engine waits the configured throttle delay; the
// first submission is not delayed. Cancelling the context aborts the run
// and returns the ledger accumulated so far; record-level failures never
// escape as errors.
func (e *Engine) Run(ctx context.Context, records []record.Record, progress ProgressFunc) []Outcome {
	var eligible []record.Record
	for _, rec := range records {
		if rec.Eligible() {
			eligible = append(eligible, rec)
		}
	}

	ledger := NewLedger()
	total := len(eligible)
	if total == 0 {
		return ledger.Snapshot()
	}

	e.logger.Info("batch sync started",
		"eligible", total,
		"skipped_invalid", len(records)-total,
		"throttle", e.throttle,
	)

	// Burst 1 means the first Wait returns immediately and every later
	// Wait spaces submissions one throttle interval apart.
	limiter := rate.NewLimiter(rate.Every(e.throttle), 1)

	for i, rec := range eligible {
		if err := limiter.Wait(ctx); err != nil {
			e.logger.Warn("batch sync cancelled", "completed", i, "eligible", total)
			return ledger.Snapshot()
		}

		ledger.Upsert(Outcome{RecordID: rec.ID, Status: StatusProcessing, Record: rec})

		outcome := e.submit(ctx, rec)
		ledger.Upsert(outcome)

		if outcome.Status == StatusError {
			e.logger.Warn("record sync failed", "id", rec.ID, "message", outcome.Message)
		} else {
			e.logger.Debug("record synced", "id", rec.ID)
		}

		if progress != nil {
			progress(float64(i+1)/float64(total), outcome)
		}
	}

	e.logger.Info("batch sync finished", "outcomes", ledger.Len())
	return ledger.Snapshot()
}

// submit performs one partial update and maps the result to an outcome.
func (e *Engine) submit(ctx context.Context, rec record.Record) Outcome {
	outcome := Outcome{RecordID: rec.ID, Record: rec}

	err := e.submitter.UpdateItem(ctx, rec.ID, e.payload(rec))
	switch {
	case err == nil:
		outcome.Status = StatusSuccess

	default:
		outcome.Status = StatusError
		var notFound *catalog.NotFoundError
		var httpErr *catalog.HTTPError
		switch {
		case errors.As(err, &notFound):
			outcome.Message = notFound.Error()
		case errors.As(err, &httpErr):
			outcome.Message = httpErr.Error()
		default:
			outcome.Message = err.Error()
		}
	}

	return outcome
}

// payload builds the partial update for one record: the refresh flag,
// the display name when non-empty, a Point geometry when the record has
// coordinates, and the address when present.
func (e *Engine) payload(rec record.Record) map[string]any {
	payload := map[string]any{
		e.fields.SyncedFlag: true,
	}

	if rec.DisplayName != "" {
		payload[e.fields.Name] = rec.DisplayName
	}

	if rec.HasCoordinates() {
		payload[e.fields.Geometry] = map[string]any{
			"type":        "Point",
			"coordinates": []float64{rec.Longitude, rec.Latitude},
		}
	}

	if rec.Address != "" {
		payload[e.fields.Address] = rec.Address
	}

	return payload
}
