// README: Driver records, availability states and geo-index candidates.
package driver

import (
	"time"

	"hail/internal/types"
)

type Status string

const (
	StatusOffline   Status = "offline"
	StatusAvailable Status = "available"
	// StatusOnTrip is written only by the assignment/completion protocol,
	// never by the driver's own availability toggle.
	StatusOnTrip Status = "on_trip"
)

type Driver struct {
	ID                int64
	UserID            int64
	VehicleType       string
	Capacity          int
	Status            Status
	Location          *types.Point
	LocationUpdatedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Candidate is one driver returned by the proximity query, nearest first.
type Candidate struct {
	ID        int64
	DistanceM float64
}
