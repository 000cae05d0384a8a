package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/flight"
	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/store"
)

// ReconcilerConfig tunes the background saga resolution.
type ReconcilerConfig struct {
	// Grace is how long a saga must sit untouched before it is picked up,
	// so in-flight requests are never raced.
	Grace       time.Duration
	MaxAttempts int
	BatchSize   int
}

// Reconciler resolves sagas where the provider booked but the local commit
// did not happen, and escalates sagas whose provider outcome is unknown.
type Reconciler struct {
	store     store.Store
	committer *Committer
	provider  FlightProvider
	cfg       ReconcilerConfig
	log       logrus.FieldLogger
	now       func() time.Time
}

// ReconcileSummary counts what a pass did.
type ReconcileSummary struct {
	Scanned     int
	Completed   int
	Aborted     int
	NeedsManual int
	Retrying    int
}

// NewReconciler returns a reconciler with defaults for zero config values.
func NewReconciler(st store.Store, committer *Committer, provider FlightProvider, cfg ReconcilerConfig, log logrus.FieldLogger) *Reconciler {
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{
		store:     st,
		committer: committer,
		provider:  provider,
		cfg:       cfg,
		log:       log.WithField("component", "reconciler"),
		now:       time.Now,
	}
}

// Run calls RunOnce every interval until ctx is cancelled.  A non-positive
// interval means 30s.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum, err := r.RunOnce(ctx)
			if err != nil {
				r.log.WithError(err).Error("reconcile pass failed")
				continue
			}
			if sum.Scanned > 0 {
				r.log.WithFields(logrus.Fields{
					"scanned":      sum.Scanned,
					"completed":    sum.Completed,
					"aborted":      sum.Aborted,
					"needs_manual": sum.NeedsManual,
					"retrying":     sum.Retrying,
				}).Info("reconcile pass finished")
			}
		}
	}
}

// RunOnce processes one batch of stale sagas.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileSummary, error) {
	var sum ReconcileSummary
	sagas, err := r.store.ListSagas(ctx, []string{
		model.SagaProviderCommitted,
		model.SagaPartialFailure,
		model.SagaProviderUnknown,
		model.SagaProviderPending,
	}, r.now().Add(-r.cfg.Grace), r.cfg.BatchSize)
	if err != nil {
		return sum, errs.Wrap(errs.Internal, "reconciler.RunOnce", err)
	}
	for i := range sagas {
		if ctx.Err() != nil {
			break
		}
		sum.Scanned++
		sg := sagas[i]
		switch r.resolve(ctx, &sg) {
		case model.SagaCompleted:
			sum.Completed++
		case model.SagaAborted:
			sum.Aborted++
		case model.SagaNeedsManual:
			sum.NeedsManual++
		default:
			sum.Retrying++
		}
	}
	return sum, nil
}

// resolve moves one saga forward and returns its new status.
func (r *Reconciler) resolve(ctx context.Context, sg *model.FlightSaga) string {
	log := r.log.WithFields(logrus.Fields{"saga_id": sg.ID, "correlation_id": sg.CorrelationID, "status": sg.Status})
	sg.Attempts++

	if sg.ProviderReference == nil || *sg.ProviderReference == "" {
		// Without a reference the provider cannot be asked; a human has to
		// look the booking up.
		return r.finish(ctx, log, sg, model.SagaNeedsManual, "provider outcome unknown and no booking reference")
	}
	ref := *sg.ProviderReference

	pb, err := r.provider.Verify(ctx, sg.LastName, ref)
	if err != nil {
		if e := providerStatus(err); errs.Is(err, errs.ProviderRejected) && (e == http.StatusNotFound || e == http.StatusGone) {
			return r.finish(ctx, log, sg, model.SagaAborted, "provider no longer knows the booking")
		}
		return r.retryOrEscalate(ctx, log, sg, err)
	}

	if existing, ok := r.findLocal(ctx, sg.UserID, ref); ok {
		sg.BookingID = &existing
		return r.finish(ctx, log, sg, model.SagaCompleted, "")
	}

	var hotelLegs []HotelLeg
	if len(sg.HotelLegs) > 0 {
		if err := json.Unmarshal(sg.HotelLegs, &hotelLegs); err != nil {
			return r.finish(ctx, log, sg, model.SagaNeedsManual, fmt.Sprintf("journaled hotel legs unreadable: %v", err))
		}
	}
	var requested []string
	_ = json.Unmarshal(sg.FlightIDs, &requested)
	journaled := pb
	if len(sg.ProviderPayload) > 0 {
		var fromJournal flight.ProviderBooking
		if err := json.Unmarshal(sg.ProviderPayload, &fromJournal); err == nil && len(fromJournal.Flights) > 0 {
			journaled = fromJournal
		}
	}

	b, err := r.committer.Commit(ctx, CommitRequest{
		UserID:            sg.UserID,
		HotelLegs:         hotelLegs,
		FlightLegs:        flightLegs(journaled, requested),
		ProviderReference: ref,
	})
	if err != nil {
		switch errs.KindOf(err) {
		case errs.InsufficientInventory, errs.InvalidInput, errs.NotFound:
			return r.finish(ctx, log, sg, model.SagaNeedsManual, err.Error())
		}
		return r.retryOrEscalate(ctx, log, sg, err)
	}
	sg.BookingID = &b.ID
	return r.finish(ctx, log, sg, model.SagaCompleted, "")
}

// findLocal guards against replaying a commit that already happened but
// whose saga update was lost.
func (r *Reconciler) findLocal(ctx context.Context, userID uint64, ref string) (uint64, bool) {
	bookings, err := r.store.ListBookingsByUser(ctx, userID)
	if err != nil {
		return 0, false
	}
	for _, b := range bookings {
		if b.ProviderReference != nil && *b.ProviderReference == ref && b.Status != model.BookingCancelled {
			return b.ID, true
		}
	}
	return 0, false
}

func (r *Reconciler) retryOrEscalate(ctx context.Context, log logrus.FieldLogger, sg *model.FlightSaga, cause error) string {
	if sg.Attempts >= r.cfg.MaxAttempts {
		return r.finish(ctx, log, sg, model.SagaNeedsManual, cause.Error())
	}
	return r.finish(ctx, log, sg, sg.Status, cause.Error())
}

func (r *Reconciler) finish(ctx context.Context, log logrus.FieldLogger, sg *model.FlightSaga, status, reason string) string {
	sg.Status = status
	if reason != "" {
		sg.LastError = &reason
	}
	if err := r.store.UpdateSaga(ctx, sg); err != nil {
		log.WithError(err).Error("saga update failed")
	}
	entry := log.WithFields(logrus.Fields{"new_status": status, "attempts": sg.Attempts})
	switch status {
	case model.SagaNeedsManual:
		entry.WithField("alert", "needs_manual").WithField("reason", reason).Error("saga needs manual resolution")
	case model.SagaCompleted, model.SagaAborted:
		entry.Info("saga resolved")
	default:
		entry.WithField("reason", reason).Warn("saga still unresolved")
	}
	return status
}

func providerStatus(err error) int {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.ProviderStatus
	}
	return 0
}
