// README: Ride records, the lifecycle state machine and assignment audit rows.
package ride

import (
	"time"

	"hail/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusAccepted  Status = "accepted"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// AllowedTransitions is the single source of truth for the ride lifecycle.
// assigned -> pending is the rejection edge; completed and cancelled are
// terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAssigned, StatusCancelled},
	StatusAssigned: {StatusAccepted, StatusPending, StatusCancelled},
	StatusAccepted: {StatusStarted, StatusCancelled},
	StatusStarted:  {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

const (
	CancelReasonRejected = "all drivers rejected"
	CancelReasonTimeout  = "no driver accepted within 15 minutes"
)

type Ride struct {
	ID                 int64
	RiderID            int64
	DriverID           *int64
	Status             Status
	PassengerCount     int
	Pickup             types.Point
	Dropoff            types.Point
	AssignmentAttempts int
	CancelReason       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type AssignmentStatus string

const (
	AssignmentAssigned AssignmentStatus = "assigned"
	AssignmentAccepted AssignmentStatus = "accepted"
	AssignmentRejected AssignmentStatus = "rejected"
)

// Assignment is the audit trail of each dispatch offer: one row per
// ride/driver pairing, updated in place when the driver answers.
type Assignment struct {
	ID        int64
	RideID    int64
	DriverID  int64
	Status    AssignmentStatus
	Reason    *string
	CreatedAt time.Time
}
