// README: Driver service: onboarding, availability toggles and location pushes.
package driver

import (
	"context"
	"errors"
	"time"

	"hail/internal/types"
)

var (
	ErrNotFound      = errors.New("driver not found")
	ErrAlreadyDriver = errors.New("user already has a driver profile")
	ErrConflict      = errors.New("driver status conflict")
	ErrBadRequest    = errors.New("bad request")
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

type RegisterCommand struct {
	UserID      int64
	VehicleType string
	Capacity    int
}

type AvailabilityCommand struct {
	UserID int64
	Status Status
}

type LocationCommand struct {
	UserID   int64
	Position types.Point
}

// Register creates the caller's driver profile. One profile per user; a
// second registration fails with ErrAlreadyDriver.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (int64, error) {
	if cmd.UserID <= 0 || cmd.VehicleType == "" || cmd.Capacity < 1 {
		return 0, ErrBadRequest
	}
	return s.store.Create(ctx, &Driver{
		UserID:      cmd.UserID,
		VehicleType: cmd.VehicleType,
		Capacity:    cmd.Capacity,
	})
}

// SetAvailability applies the driver's own online/offline toggle. It is
// rejected with ErrConflict while the driver is on a trip; trip completion
// is the only path back to available from there.
func (s *Service) SetAvailability(ctx context.Context, cmd AvailabilityCommand) error {
	if cmd.Status != StatusAvailable && cmd.Status != StatusOffline {
		return ErrBadRequest
	}
	d, err := s.store.GetByUserID(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	return s.store.SetStatus(ctx, d.ID, cmd.Status)
}

func (s *Service) UpdateLocation(ctx context.Context, cmd LocationCommand) error {
	if !cmd.Position.Valid() {
		return ErrBadRequest
	}
	d, err := s.store.GetByUserID(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	return s.store.UpdateLocation(ctx, d.ID, cmd.Position, time.Now())
}

func (s *Service) Get(ctx context.Context, id int64) (*Driver, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetByUser(ctx context.Context, userID int64) (*Driver, error) {
	return s.store.GetByUserID(ctx, userID)
}

// Nearby exposes the proximity query consumed by the dispatch engine.
func (s *Service) Nearby(ctx context.Context, p types.Point, radiusMeters float64, limit int) ([]Candidate, error) {
	return s.store.Nearby(ctx, p, radiusMeters, limit)
}

// RemoveFromIndex takes a driver out of the candidate set when a trip binds
// them, so busy drivers do not occupy dispatch slots.
func (s *Service) RemoveFromIndex(ctx context.Context, driverID int64) error {
	return s.store.RemoveFromIndex(ctx, driverID)
}

// RestoreToIndex returns a freed driver to the candidate set after a
// rejection, completion, cancellation or timeout sweep.
func (s *Service) RestoreToIndex(ctx context.Context, driverID int64) error {
	return s.store.RestoreToIndex(ctx, driverID)
}
