// README: Driver store backed by Postgres rows, a Redis geo set and a TTL location cache.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"hail/internal/types"
)

const (
	driverGeoKey      = "drivers:geo"
	locationKeyPrefix = "driver:%d:location"
)

type Store struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewStore(db *pgxpool.Pool, redis *redis.Client, cacheTTL time.Duration) *Store {
	return &Store{db: db, redis: redis, cacheTTL: cacheTTL}
}

func (s *Store) Create(ctx context.Context, d *Driver) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO drivers (user_id, vehicle_type, capacity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id`,
		d.UserID, d.VehicleType, d.Capacity, string(StatusOffline),
	).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return 0, ErrAlreadyDriver
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*Driver, error) {
	return s.scanOne(s.db.QueryRow(ctx, selectDriver+` WHERE id = $1`, id))
}

func (s *Store) GetByUserID(ctx context.Context, userID int64) (*Driver, error) {
	return s.scanOne(s.db.QueryRow(ctx, selectDriver+` WHERE user_id = $1`, userID))
}

// SetStatus applies the driver's own available/offline toggle. The write is
// guarded so it cannot clobber an in-flight trip; the assignment and
// completion protocols are the only writers of on_trip.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET status = $1, updated_at = now()
		WHERE id = $2 AND status <> $3`,
		string(status), id, string(StatusOnTrip),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	if status == StatusOffline {
		return s.RemoveFromIndex(ctx, id)
	}
	// Coming online re-admits the driver at their last known position.
	return s.RestoreToIndex(ctx, id)
}

// UpdateLocation persists the position and caches the live location with a
// short TTL so stale positions age out on their own. Only available drivers
// enter the geo index; busy and offline drivers keep the cache fresh without
// occupying dispatch candidate slots.
func (s *Store) UpdateLocation(ctx context.Context, id int64, p types.Point, at time.Time) error {
	var status string
	err := s.db.QueryRow(ctx, `
		UPDATE drivers
		SET location_lat = $1, location_lng = $2, location_updated_at = $3, updated_at = now()
		WHERE id = $4
		RETURNING status`,
		p.Lat, p.Lng, at, id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	cached, _ := json.Marshal(map[string]any{"lat": p.Lat, "lng": p.Lng, "updated_at": at.UTC().Format(time.RFC3339)})
	pipe := s.redis.Pipeline()
	if Status(status) == StatusAvailable {
		pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
			Name:      strconv.FormatInt(id, 10),
			Longitude: p.Lng,
			Latitude:  p.Lat,
		})
	}
	pipe.Set(ctx, locationKey(id), cached, s.cacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Nearby returns up to limit drivers within radiusMeters of p, nearest first.
// An empty result is not an error. Membership in the geo set is advisory:
// the assignment transaction re-checks availability against the row itself.
func (s *Store) Nearby(ctx context.Context, p types.Point, radiusMeters float64, limit int) ([]Candidate, error) {
	locs, err := s.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(locs))
	for _, l := range locs {
		id, err := strconv.ParseInt(l.Name, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Candidate{ID: id, DistanceM: l.Dist})
	}
	return out, nil
}

// RemoveFromIndex drops a driver from the candidate set. Called when a driver
// goes offline or enters a trip; the geo set must only hold drivers a
// dispatch pass could actually use.
func (s *Store) RemoveFromIndex(ctx context.Context, id int64) error {
	return s.redis.ZRem(ctx, driverGeoKey, strconv.FormatInt(id, 10)).Err()
}

// RestoreToIndex puts a freed driver back into the candidate set at their
// last known position. A driver with no recorded location, or who is no
// longer available, is left out; the next location push re-adds them.
func (s *Store) RestoreToIndex(ctx context.Context, id int64) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != StatusAvailable || d.Location == nil {
		return nil
	}
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      strconv.FormatInt(id, 10),
		Longitude: d.Location.Lng,
		Latitude:  d.Location.Lat,
	}).Err()
}

const selectDriver = `
	SELECT id, user_id, vehicle_type, capacity, status,
	       location_lat, location_lng, location_updated_at,
	       created_at, updated_at
	FROM drivers`

func (s *Store) scanOne(row pgx.Row) (*Driver, error) {
	var d Driver
	var status string
	var lat, lng *float64
	err := row.Scan(
		&d.ID, &d.UserID, &d.VehicleType, &d.Capacity, &status,
		&lat, &lng, &d.LocationUpdatedAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Status = Status(status)
	if lat != nil && lng != nil {
		d.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &d, nil
}

func locationKey(id int64) string {
	return fmt.Sprintf(locationKeyPrefix, id)
}
