package access

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
)

const recordTimeout = 3 * time.Second

// Recorder receives the audit event of every identification attempt.
// Failures are logged by the engine and never change the decision.
type Recorder interface {
	Record(ctx context.Context, ev models.AccessEvent) error
}

type RecorderFunc func(ctx context.Context, ev models.AccessEvent) error

func (f RecorderFunc) Record(ctx context.Context, ev models.AccessEvent) error {
	return f(ctx, ev)
}

// StoreRecorder persists events and then hands them to listeners, e.g. the
// websocket hub.
type StoreRecorder struct {
	store     storage.AccessEventStore
	listeners []func(models.AccessEvent)
}

func NewStoreRecorder(store storage.AccessEventStore, listeners ...func(models.AccessEvent)) *StoreRecorder {
	return &StoreRecorder{store: store, listeners: listeners}
}

func (r *StoreRecorder) Record(ctx context.Context, ev models.AccessEvent) error {
	err := r.store.RecordAccessEvent(ctx, &ev)
	if err != nil {
		observability.EventsRecorded.WithLabelValues("error").Inc()
	} else {
		observability.EventsRecorded.WithLabelValues("ok").Inc()
	}
	for _, l := range r.listeners {
		l(ev)
	}
	return err
}

func (e *Engine) record(ctx context.Context, id uuid.UUID, image []byte, res *Result, failure error) {
	if failure != nil {
		observability.AccessDecisions.WithLabelValues(string(models.OutcomeRejected)).Inc()
	}
	if e.recorder == nil {
		return
	}

	ev := models.AccessEvent{ID: id, DecidedAt: e.now().UTC()}
	if failure != nil {
		ev.Outcome = models.OutcomeRejected
		ev.Reason = FailureReason(failure)
	} else {
		ev.Outcome = res.Outcome
		ev.Confidence = RoundConfidence(res.Confidence)
		if res.Client != nil {
			ev.ClientID = &res.Client.ID
			ev.ClientName = res.Client.Name
		}
	}

	// Detached from the request so a client hanging up still gets audited.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if e.opts.ArchiveProbes {
		ev.SnapshotKey = e.archiveImage(rctx, storage.SnapshotKey(id), image)
	}
	if err := e.recorder.Record(rctx, ev); err != nil {
		slog.Warn("record access event", "event_id", id, "outcome", ev.Outcome, "error", err)
	}
}

// FailureReason is the machine-readable reason of a failed attempt.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrScanAborted):
		return "scan_aborted"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	return string(biometric.ReasonOf(err))
}

// RoundConfidence rounds to two decimals for display and storage.
func RoundConfidence(c float64) float64 {
	return math.Round(c*100) / 100
}
