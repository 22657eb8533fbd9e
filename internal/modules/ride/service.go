// README: Ride service: request intake, lifecycle commands and the timeout sweep.
package ride

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hail/internal/config"
	"hail/internal/observability"
	"hail/internal/stream"
	"hail/internal/types"
)

var (
	ErrNotFound          = errors.New("ride not found")
	ErrInvalidState      = errors.New("ride is not in a state that allows this operation")
	ErrForbidden         = errors.New("ride does not belong to caller")
	ErrBadRequest        = errors.New("bad request")
	ErrDriverUnavailable = errors.New("driver no longer available")
)

// Dispatcher finds and binds a driver for a pending ride. Implemented by the
// dispatch engine; declared here so this package does not import it.
type Dispatcher interface {
	Assign(ctx context.Context, rideID int64, pickup types.Point) (driverID int64, assigned bool, err error)
}

// EventSink receives lifecycle events. A nil sink disables the feed.
type EventSink interface {
	PublishRideEvent(ctx context.Context, e stream.RideEvent) error
}

// DriverIndex re-admits freed drivers to the dispatch candidate set.
// Implemented by the driver service; declared here so this package does not
// import it.
type DriverIndex interface {
	RestoreToIndex(ctx context.Context, driverID int64) error
}

type Service struct {
	store    *Store
	dispatch Dispatcher
	events   EventSink
	index    DriverIndex
	cfg      config.DispatchConfig
	log      *slog.Logger
}

func NewService(store *Store, cfg config.DispatchConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, cfg: cfg, log: log}
}

// SetDispatcher wires the dispatch engine in after construction; the engine
// itself is built on top of this service's store.
func (s *Service) SetDispatcher(d Dispatcher) { s.dispatch = d }

func (s *Service) SetEventSink(e EventSink) { s.events = e }

func (s *Service) SetDriverIndex(idx DriverIndex) { s.index = idx }

type RequestCommand struct {
	RiderID        int64
	Pickup         types.Point
	Dropoff        types.Point
	PassengerCount int
}

type DriverCommand struct {
	RideID   int64
	DriverID int64
}

type CancelCommand struct {
	RideID  int64
	RiderID int64
	Reason  string
}

// Request creates the ride and immediately tries to dispatch it. Dispatch
// failure is not the rider's problem: the ride stays pending and the timeout
// sweep is the backstop.
func (s *Service) Request(ctx context.Context, cmd RequestCommand) (int64, error) {
	if cmd.RiderID <= 0 || cmd.PassengerCount < 1 {
		return 0, ErrBadRequest
	}
	if !cmd.Pickup.Valid() || !cmd.Dropoff.Valid() {
		return 0, ErrBadRequest
	}

	id, err := s.store.Create(ctx, &Ride{
		RiderID:        cmd.RiderID,
		PassengerCount: cmd.PassengerCount,
		Pickup:         cmd.Pickup,
		Dropoff:        cmd.Dropoff,
	})
	if err != nil {
		return 0, err
	}
	s.publish(ctx, stream.RideEvent{RideID: id, From: "", To: string(StatusPending), Actor: "rider"})

	if s.dispatch != nil {
		if _, _, err := s.dispatch.Assign(ctx, id, cmd.Pickup); err != nil {
			s.log.Error("initial dispatch failed", "ride_id", id, "error", err)
		}
	}
	return id, nil
}

func (s *Service) Accept(ctx context.Context, cmd DriverCommand) error {
	if err := s.store.Accept(ctx, cmd.RideID, cmd.DriverID); err != nil {
		return err
	}
	s.log.Info("ride accepted", "ride_id", cmd.RideID, "driver_id", cmd.DriverID)
	s.publish(ctx, stream.RideEvent{
		RideID: cmd.RideID, DriverID: cmd.DriverID,
		From: string(StatusAssigned), To: string(StatusAccepted), Actor: "driver",
	})
	return nil
}

func (s *Service) Start(ctx context.Context, cmd DriverCommand) error {
	if err := s.store.Start(ctx, cmd.RideID, cmd.DriverID); err != nil {
		return err
	}
	s.publish(ctx, stream.RideEvent{
		RideID: cmd.RideID, DriverID: cmd.DriverID,
		From: string(StatusAccepted), To: string(StatusStarted), Actor: "driver",
	})
	return nil
}

func (s *Service) Complete(ctx context.Context, cmd DriverCommand) error {
	if err := s.store.Complete(ctx, cmd.RideID, cmd.DriverID); err != nil {
		return err
	}
	s.restoreToIndex(ctx, cmd.DriverID)
	s.log.Info("ride completed", "ride_id", cmd.RideID, "driver_id", cmd.DriverID)
	s.publish(ctx, stream.RideEvent{
		RideID: cmd.RideID, DriverID: cmd.DriverID,
		From: string(StatusStarted), To: string(StatusCompleted), Actor: "driver",
	})
	return nil
}

// Cancel handles the rider's own cancellation. Driver-side refusal goes
// through the dispatch engine's Reject instead.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	reason := cmd.Reason
	if reason == "" {
		reason = "cancelled by rider"
	}
	freed, err := s.store.CancelByRider(ctx, cmd.RideID, cmd.RiderID, reason)
	if err != nil {
		return err
	}
	if freed != nil {
		s.restoreToIndex(ctx, *freed)
	}
	observability.RidesCancelledTotal.WithLabelValues("rider").Inc()
	s.publish(ctx, stream.RideEvent{
		RideID: cmd.RideID, To: string(StatusCancelled), Actor: "rider", Reason: reason,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Assignments(ctx context.Context, rideID int64) ([]Assignment, error) {
	return s.store.ListAssignments(ctx, rideID)
}

func (s *Service) ListActive(ctx context.Context) ([]Ride, error) {
	return s.store.ListActive(ctx)
}

func (s *Service) DriverHistory(ctx context.Context, driverID int64) ([]Ride, error) {
	return s.store.HistoryByDriver(ctx, driverID)
}

// RunTimeoutMonitor sweeps for rides nobody accepted in time. Runs until the
// context is cancelled; call it from its own goroutine.
func (s *Service) RunTimeoutMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	s.log.Info("ride timeout monitor started",
		"interval", s.cfg.SweepInterval.String(), "ttl", s.cfg.RequestTTL.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("ride timeout monitor stopped")
			return
		case <-ticker.C:
			s.sweepExpired(ctx)
		}
	}
}

func (s *Service) sweepExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.RequestTTL)
	expired, err := s.store.CancelExpired(ctx, cutoff, CancelReasonTimeout)
	if err != nil {
		s.log.Error("timeout sweep failed", "error", err)
		return
	}
	for _, e := range expired {
		observability.RidesCancelledTotal.WithLabelValues("timeout").Inc()
		s.log.Info("ride cancelled by timeout", "ride_id", e.RideID)
		ev := stream.RideEvent{RideID: e.RideID, To: string(StatusCancelled), Actor: "system", Reason: CancelReasonTimeout}
		if e.DriverID != nil {
			ev.DriverID = *e.DriverID
			s.restoreToIndex(ctx, *e.DriverID)
		}
		s.publish(ctx, ev)
	}
}

// restoreToIndex is best effort: a missing index entry costs the driver
// dispatch offers until their next location push, nothing more.
func (s *Service) restoreToIndex(ctx context.Context, driverID int64) {
	if s.index == nil {
		return
	}
	if err := s.index.RestoreToIndex(ctx, driverID); err != nil {
		s.log.Warn("candidate index restore failed", "driver_id", driverID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, e stream.RideEvent) {
	if s.events == nil {
		return
	}
	e.At = time.Now().UTC()
	if err := s.events.PublishRideEvent(ctx, e); err != nil {
		s.log.Warn("ride event publish failed", "ride_id", e.RideID, "error", err)
	}
}
