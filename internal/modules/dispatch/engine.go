// README: Dispatch engine: proximity search, driver locking, transactional assignment and rejection retry.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hail/internal/config"
	"hail/internal/modules/driver"
	"hail/internal/modules/ride"
	"hail/internal/observability"
	"hail/internal/stream"
	"hail/internal/types"
)

// DriverIndex is the candidate set: proximity queries plus the membership
// writes that keep the set limited to drivers a pass could actually bind.
type DriverIndex interface {
	Nearby(ctx context.Context, p types.Point, radiusMeters float64, limit int) ([]driver.Candidate, error)
	RemoveFromIndex(ctx context.Context, driverID int64) error
	RestoreToIndex(ctx context.Context, driverID int64) error
}

// AssignmentStore is the slice of the ride store the engine drives.
type AssignmentStore interface {
	Get(ctx context.Context, id int64) (*ride.Ride, error)
	AssignDriver(ctx context.Context, rideID, driverID int64) error
	Reject(ctx context.Context, rideID, driverID int64, reason string, maxAttempts int) (attempts int, cancelled bool, err error)
}

type Engine struct {
	rides  AssignmentStore
	index  DriverIndex
	locks  LockManager
	events ride.EventSink
	cfg    config.DispatchConfig
	log    *slog.Logger
}

func NewEngine(rides AssignmentStore, index DriverIndex, locks LockManager, cfg config.DispatchConfig, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{rides: rides, index: index, locks: locks, cfg: cfg, log: log}
}

func (e *Engine) SetEventSink(sink ride.EventSink) { e.events = sink }

// Assign runs one dispatch pass: query candidates around the pickup, walk
// them nearest first, and bind the first driver that survives both the lock
// and the transaction's availability re-check. Running out of candidates is
// not an error; the ride stays pending for the timeout sweep to judge.
func (e *Engine) Assign(ctx context.Context, rideID int64, pickup types.Point) (int64, bool, error) {
	candidates, err := e.index.Nearby(ctx, pickup, e.cfg.RadiusMeters, e.cfg.CandidateLimit)
	if err != nil {
		return 0, false, err
	}
	if len(candidates) == 0 {
		e.log.Info("no nearby drivers found", "ride_id", rideID)
		observability.DispatchExhaustedTotal.Inc()
		return 0, false, nil
	}

	for _, c := range candidates {
		locked, err := e.locks.TryAcquire(ctx, c.ID, e.cfg.LockTTL)
		if err != nil {
			e.log.Warn("driver lock acquire failed", "driver_id", c.ID, "error", err)
			continue
		}
		if !locked {
			observability.LockContentionTotal.Inc()
			continue
		}

		observability.AssignmentAttemptsTotal.Inc()
		assignErr := e.rides.AssignDriver(ctx, rideID, c.ID)
		// The lock only guards the assignment window; drop it no matter how
		// the transaction went.
		if err := e.locks.Release(ctx, c.ID); err != nil {
			e.log.Error("driver lock release failed", "driver_id", c.ID, "error", err)
		}

		switch {
		case assignErr == nil:
			observability.AssignmentsTotal.Inc()
			// The driver is on a trip now and must stop occupying candidate
			// slots. Best effort: a stale entry only wastes a lock attempt,
			// the availability CAS still rejects it.
			if err := e.index.RemoveFromIndex(ctx, c.ID); err != nil {
				e.log.Warn("candidate index remove failed", "driver_id", c.ID, "error", err)
			}
			e.log.Info("ride assigned", "ride_id", rideID, "driver_id", c.ID, "distance_m", c.DistanceM)
			e.publish(ctx, stream.RideEvent{
				RideID: rideID, DriverID: c.ID,
				From: string(ride.StatusPending), To: string(ride.StatusAssigned), Actor: "system",
			})
			return c.ID, true, nil
		case errors.Is(assignErr, ride.ErrDriverUnavailable):
			// Lost the race for this driver; the next candidate may still do.
			e.log.Info("candidate no longer available", "ride_id", rideID, "driver_id", c.ID)
			continue
		default:
			// The ride itself is gone or no longer assignable.
			return 0, false, assignErr
		}
	}

	observability.DispatchExhaustedTotal.Inc()
	e.log.Info("dispatch pass exhausted", "ride_id", rideID, "candidates", len(candidates))
	return 0, false, nil
}

// RejectOutcome reports what happened after a driver turned a ride down.
type RejectOutcome struct {
	Attempts   int
	Cancelled  bool
	Reassigned bool
	DriverID   int64
}

// Reject processes a driver's refusal: the store hands the ride back and
// frees the driver atomically, then the engine runs exactly one synchronous
// re-dispatch pass unless the attempt cap already cancelled the ride.
func (e *Engine) Reject(ctx context.Context, rideID, driverID int64, reason string) (RejectOutcome, error) {
	attempts, cancelled, err := e.rides.Reject(ctx, rideID, driverID, reason, e.cfg.MaxAttempts)
	if err != nil {
		return RejectOutcome{}, err
	}
	// The assignment-window lock may still be live; drop it so the driver is
	// immediately schedulable for other rides.
	if err := e.locks.Release(ctx, driverID); err != nil {
		e.log.Warn("driver lock release failed", "driver_id", driverID, "error", err)
	}
	// The refusal freed the driver; they rejoin the candidate set after the
	// re-dispatch pass below, so the same ride is not offered straight back.
	defer func() {
		if err := e.index.RestoreToIndex(ctx, driverID); err != nil {
			e.log.Warn("candidate index restore failed", "driver_id", driverID, "error", err)
		}
	}()
	observability.RejectionsTotal.Inc()
	e.log.Info("ride rejected", "ride_id", rideID, "driver_id", driverID, "attempts", attempts, "reason", reason)

	out := RejectOutcome{Attempts: attempts, Cancelled: cancelled}
	if cancelled {
		observability.RidesCancelledTotal.WithLabelValues("rejected").Inc()
		e.log.Info("ride cancelled after attempt cap", "ride_id", rideID, "attempts", attempts)
		e.publish(ctx, stream.RideEvent{
			RideID: rideID, DriverID: driverID,
			From: string(ride.StatusAssigned), To: string(ride.StatusCancelled),
			Actor: "system", Reason: ride.CancelReasonRejected,
		})
		return out, nil
	}

	e.publish(ctx, stream.RideEvent{
		RideID: rideID, DriverID: driverID,
		From: string(ride.StatusAssigned), To: string(ride.StatusPending),
		Actor: "driver", Reason: reason,
	})

	r, err := e.rides.Get(ctx, rideID)
	if err != nil {
		e.log.Error("reload for re-dispatch failed", "ride_id", rideID, "error", err)
		return out, nil
	}
	next, assigned, err := e.Assign(ctx, rideID, r.Pickup)
	if err != nil {
		e.log.Error("re-dispatch failed", "ride_id", rideID, "error", err)
		return out, nil
	}
	out.Reassigned = assigned
	out.DriverID = next
	return out, nil
}

func (e *Engine) publish(ctx context.Context, ev stream.RideEvent) {
	if e.events == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := e.events.PublishRideEvent(ctx, ev); err != nil {
		e.log.Warn("ride event publish failed", "ride_id", ev.RideID, "error", err)
	}
}
