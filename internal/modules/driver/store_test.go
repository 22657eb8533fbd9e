package driver

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"hail/internal/types"
)

// setupGeoStore returns a store wired to a real Redis for geo-index tests.
// The Postgres side is nil; tests here must stay on the Redis paths.
func setupGeoStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	addr := os.Getenv("HAIL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HAIL_TEST_REDIS_ADDR not set; skipping Redis integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		rdb.Del(context.Background(), driverGeoKey)
		rdb.Close()
	})
	return NewStore(nil, rdb, 2*time.Minute), rdb
}

func seedDriverAt(t *testing.T, rdb *redis.Client, id int64, lat, lng float64) {
	t.Helper()
	err := rdb.GeoAdd(context.Background(), driverGeoKey, &redis.GeoLocation{
		Name:      strconv.FormatInt(id, 10),
		Longitude: lng,
		Latitude:  lat,
	}).Err()
	if err != nil {
		t.Fatalf("seed driver %d: %v", id, err)
	}
}

func TestNearby_OrderedByDistance(t *testing.T) {
	store, rdb := setupGeoStore(t)
	ctx := context.Background()

	pickup := types.Point{Lat: 25.0330, Lng: 121.5654}
	seedDriverAt(t, rdb, 1, 25.0340, 121.5654) // ~110m north
	seedDriverAt(t, rdb, 2, 25.0331, 121.5655) // ~15m away
	seedDriverAt(t, rdb, 3, 25.0600, 121.5654) // ~3km north

	got, err := store.Nearby(ctx, pickup, 5000, 3)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].ID != 2 || got[1].ID != 1 || got[2].ID != 3 {
		t.Fatalf("unexpected order: %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceM < got[i-1].DistanceM {
			t.Fatalf("distances not ascending: %+v", got)
		}
	}
}

func TestNearby_RespectsRadiusAndLimit(t *testing.T) {
	store, rdb := setupGeoStore(t)
	ctx := context.Background()

	pickup := types.Point{Lat: 25.0330, Lng: 121.5654}
	seedDriverAt(t, rdb, 1, 25.0331, 121.5655)
	seedDriverAt(t, rdb, 2, 25.0333, 121.5656)
	seedDriverAt(t, rdb, 3, 25.0335, 121.5657)
	seedDriverAt(t, rdb, 4, 26.0000, 121.5654) // ~100km, outside any sane radius

	got, err := store.Nearby(ctx, pickup, 5000, 2)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2 candidates, got %d", len(got))
	}
	for _, c := range got {
		if c.ID == 4 {
			t.Fatalf("driver outside radius returned: %+v", got)
		}
	}
}

func TestNearby_EmptyIndex(t *testing.T) {
	store, _ := setupGeoStore(t)

	got, err := store.Nearby(context.Background(), types.Point{Lat: 25.0330, Lng: 121.5654}, 5000, 3)
	if err != nil {
		t.Fatalf("nearby on empty index: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestRemoveFromIndex(t *testing.T) {
	store, rdb := setupGeoStore(t)
	ctx := context.Background()

	seedDriverAt(t, rdb, 9, 25.0330, 121.5654)
	if err := store.RemoveFromIndex(ctx, 9); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err := store.Nearby(ctx, types.Point{Lat: 25.0330, Lng: 121.5654}, 5000, 3)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected driver gone from index, got %+v", got)
	}
	// Removing again is a no-op, not an error.
	if err := store.RemoveFromIndex(ctx, 9); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
