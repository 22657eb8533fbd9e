// README: Ride store: every state transition runs as a row-locked Postgres transaction.
package ride

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hail/internal/modules/driver"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, r *Ride) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO rides (rider_id, status, passenger_count,
		                   pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		                   assignment_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, now(), now())
		RETURNING id`,
		r.RiderID, string(StatusPending), r.PassengerCount,
		r.Pickup.Lat, r.Pickup.Lng, r.Dropoff.Lat, r.Dropoff.Lng,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*Ride, error) {
	return scanRide(s.db.QueryRow(ctx, selectRide+` WHERE id = $1`, id))
}

// AssignDriver pairs a pending ride with a driver. The ride row is locked
// first, then the driver's availability is re-checked with a conditional
// update; the advisory Redis lock outside this call only thins the herd,
// this transaction is what actually guarantees mutual exclusion.
func (s *Store) AssignDriver(ctx context.Context, rideID, driverID int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		status, _, _, err := lockRide(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if status != StatusPending {
			return ErrInvalidState
		}

		tag, err := tx.Exec(ctx, `
			UPDATE drivers SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3`,
			string(driver.StatusOnTrip), driverID, string(driver.StatusAvailable),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ErrDriverUnavailable
		}

		if _, err := tx.Exec(ctx, `
			UPDATE rides
			SET driver_id = $1, status = $2,
			    assignment_attempts = assignment_attempts + 1, updated_at = now()
			WHERE id = $3`,
			driverID, string(StatusAssigned), rideID,
		); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO ride_assignments (ride_id, driver_id, status, created_at)
			VALUES ($1, $2, $3, now())`,
			rideID, driverID, string(AssignmentAssigned),
		)
		return err
	})
}

// Accept moves assigned -> accepted, but only for the driver the ride was
// offered to.
func (s *Store) Accept(ctx context.Context, rideID, driverID int64) error {
	return s.driverTransition(ctx, rideID, driverID, StatusAssigned, StatusAccepted, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE ride_assignments SET status = $1
			WHERE ride_id = $2 AND driver_id = $3 AND status = $4`,
			string(AssignmentAccepted), rideID, driverID, string(AssignmentAssigned),
		)
		return err
	})
}

// Start moves accepted -> started.
func (s *Store) Start(ctx context.Context, rideID, driverID int64) error {
	return s.driverTransition(ctx, rideID, driverID, StatusAccepted, StatusStarted, nil)
}

// Complete moves started -> completed and frees the driver in the same
// transaction, so there is no window where the trip is over but the driver
// still looks busy.
func (s *Store) Complete(ctx context.Context, rideID, driverID int64) error {
	return s.driverTransition(ctx, rideID, driverID, StatusStarted, StatusCompleted, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE drivers SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3`,
			string(driver.StatusAvailable), driverID, string(driver.StatusOnTrip),
		)
		return err
	})
}

// Reject records the driver's refusal, hands the ride back and frees the
// driver, all in one transaction. Once maxAttempts offers have been refused
// the ride is cancelled instead of returning to pending. The caller decides
// whether to re-dispatch from the returned state.
func (s *Store) Reject(ctx context.Context, rideID, driverID int64, reason string, maxAttempts int) (attempts int, cancelled bool, err error) {
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		status, assignedTo, att, err := lockRide(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if status != StatusAssigned {
			return ErrInvalidState
		}
		if assignedTo == nil || *assignedTo != driverID {
			return ErrForbidden
		}

		if _, err := tx.Exec(ctx, `
			UPDATE ride_assignments SET status = $1, reason = $2
			WHERE ride_id = $3 AND driver_id = $4 AND status = $5`,
			string(AssignmentRejected), reason, rideID, driverID, string(AssignmentAssigned),
		); err != nil {
			return err
		}

		attempts = att
		if attempts >= maxAttempts {
			cancelled = true
			if _, err := tx.Exec(ctx, `
				UPDATE rides
				SET driver_id = NULL, status = $1, cancel_reason = $2, updated_at = now()
				WHERE id = $3`,
				string(StatusCancelled), CancelReasonRejected, rideID,
			); err != nil {
				return err
			}
		} else if _, err := tx.Exec(ctx, `
			UPDATE rides SET driver_id = NULL, status = $1, updated_at = now()
			WHERE id = $2`,
			string(StatusPending), rideID,
		); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE drivers SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3`,
			string(driver.StatusAvailable), driverID, string(driver.StatusOnTrip),
		)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return attempts, cancelled, nil
}

// CancelByRider cancels the rider's own ride. Allowed from pending, assigned
// and accepted; once the trip has started the ride must run to completion.
// Returns the driver freed by the cancellation, if any. Cancellation detaches
// the driver: cancelled rides never carry a driver_id.
func (s *Store) CancelByRider(ctx context.Context, rideID, riderID int64, reason string) (*int64, error) {
	var freed *int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var ownerID int64
		var status string
		var driverID *int64
		err := tx.QueryRow(ctx, `
			SELECT rider_id, status, driver_id FROM rides WHERE id = $1 FOR UPDATE`,
			rideID,
		).Scan(&ownerID, &status, &driverID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if ownerID != riderID {
			return ErrForbidden
		}
		if !CanTransition(Status(status), StatusCancelled) {
			return ErrInvalidState
		}

		if _, err := tx.Exec(ctx, `
			UPDATE rides
			SET status = $1, cancel_reason = $2, driver_id = NULL, updated_at = now()
			WHERE id = $3`,
			string(StatusCancelled), reason, rideID,
		); err != nil {
			return err
		}
		if driverID != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE drivers SET status = $1, updated_at = now()
				WHERE id = $2 AND status = $3`,
				string(driver.StatusAvailable), *driverID, string(driver.StatusOnTrip),
			); err != nil {
				return err
			}
			freed = driverID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return freed, nil
}

// Expired is one ride cancelled by the timeout sweep.
type Expired struct {
	RideID   int64
	DriverID *int64
}

// CancelExpired cancels every pending or assigned ride created before cutoff
// and frees any driver still attached. Rides that were accepted in time are
// untouched.
func (s *Store) CancelExpired(ctx context.Context, cutoff time.Time, reason string) ([]Expired, error) {
	var expired []Expired
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, driver_id FROM rides
			WHERE status IN ($1, $2) AND created_at < $3
			FOR UPDATE`,
			string(StatusPending), string(StatusAssigned), cutoff,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e Expired
			if err := rows.Scan(&e.RideID, &e.DriverID); err != nil {
				return err
			}
			expired = append(expired, e)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		rideIDs := make([]int64, 0, len(expired))
		var driverIDs []int64
		for _, e := range expired {
			rideIDs = append(rideIDs, e.RideID)
			if e.DriverID != nil {
				driverIDs = append(driverIDs, *e.DriverID)
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE rides
			SET status = $1, cancel_reason = $2, driver_id = NULL, updated_at = now()
			WHERE id = ANY($3)`,
			string(StatusCancelled), reason, rideIDs,
		); err != nil {
			return err
		}
		if len(driverIDs) > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE drivers SET status = $1, updated_at = now()
				WHERE id = ANY($2) AND status = $3`,
				string(driver.StatusAvailable), driverIDs, string(driver.StatusOnTrip),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// ListActive returns rides in pending, assigned or started, newest first.
func (s *Store) ListActive(ctx context.Context) ([]Ride, error) {
	rows, err := s.db.Query(ctx, selectRide+`
		WHERE status IN ($1, $2, $3)
		ORDER BY created_at DESC`,
		string(StatusPending), string(StatusAssigned), string(StatusStarted),
	)
	if err != nil {
		return nil, err
	}
	return scanRides(rows)
}

// HistoryByDriver returns the driver's completed rides, most recent first.
func (s *Store) HistoryByDriver(ctx context.Context, driverID int64) ([]Ride, error) {
	rows, err := s.db.Query(ctx, selectRide+`
		WHERE driver_id = $1 AND status = $2
		ORDER BY updated_at DESC`,
		driverID, string(StatusCompleted),
	)
	if err != nil {
		return nil, err
	}
	return scanRides(rows)
}

func (s *Store) ListAssignments(ctx context.Context, rideID int64) ([]Assignment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, driver_id, status, reason, created_at
		FROM ride_assignments WHERE ride_id = $1
		ORDER BY created_at`,
		rideID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var a Assignment
		var status string
		if err := rows.Scan(&a.ID, &a.RideID, &a.DriverID, &status, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Status = AssignmentStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// driverTransition is the shared shape of Accept/Start/Complete: lock the
// ride, check the expected state and the caller's claim on it, advance the
// status and run any extra writes in the same transaction.
func (s *Store) driverTransition(ctx context.Context, rideID, driverID int64, from, to Status, extra func(pgx.Tx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		status, assignedTo, _, err := lockRide(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if status != from {
			return ErrInvalidState
		}
		if assignedTo == nil || *assignedTo != driverID {
			return ErrForbidden
		}
		if _, err := tx.Exec(ctx, `
			UPDATE rides SET status = $1, updated_at = now() WHERE id = $2`,
			string(to), rideID,
		); err != nil {
			return err
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func lockRide(ctx context.Context, tx pgx.Tx, rideID int64) (Status, *int64, int, error) {
	var status string
	var driverID *int64
	var attempts int
	err := tx.QueryRow(ctx, `
		SELECT status, driver_id, assignment_attempts
		FROM rides WHERE id = $1 FOR UPDATE`,
		rideID,
	).Scan(&status, &driverID, &attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, 0, ErrNotFound
	}
	if err != nil {
		return "", nil, 0, err
	}
	return Status(status), driverID, attempts, nil
}

const selectRide = `
	SELECT id, rider_id, driver_id, status, passenger_count,
	       pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	       assignment_attempts, cancel_reason, created_at, updated_at
	FROM rides`

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var status string
	err := row.Scan(
		&r.ID, &r.RiderID, &r.DriverID, &status, &r.PassengerCount,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Dropoff.Lat, &r.Dropoff.Lng,
		&r.AssignmentAttempts, &r.CancelReason, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	return &r, nil
}

func scanRides(rows pgx.Rows) ([]Ride, error) {
	defer rows.Close()
	var out []Ride
	for rows.Next() {
		var r Ride
		var status string
		if err := rows.Scan(
			&r.ID, &r.RiderID, &r.DriverID, &status, &r.PassengerCount,
			&r.Pickup.Lat, &r.Pickup.Lng, &r.Dropoff.Lat, &r.Dropoff.Lng,
			&r.AssignmentAttempts, &r.CancelReason, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
