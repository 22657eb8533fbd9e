// README: HTTP endpoints for the ride lifecycle: request, accept, reject, start, complete, cancel.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hail/internal/http/middleware"
	"hail/internal/modules/dispatch"
	"hail/internal/modules/driver"
	"hail/internal/modules/ride"
	"hail/internal/types"
)

type RideHandler struct {
	rides   *ride.Service
	drivers *driver.Service
	engine  *dispatch.Engine
}

func NewRideHandler(rides *ride.Service, drivers *driver.Service, engine *dispatch.Engine) *RideHandler {
	return &RideHandler{rides: rides, drivers: drivers, engine: engine}
}

// Coordinates deliberately carry no "required" tag: zero is a legal value on
// the equator and prime meridian. Range checks live in the service.
type requestRideBody struct {
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	DropoffLat     float64 `json:"dropoff_lat"`
	DropoffLng     float64 `json:"dropoff_lng"`
	PassengerCount int     `json:"passenger_count" binding:"required,min=1"`
}

// Request creates a ride and kicks off dispatch. The response is always the
// pending ride; assignment is reported asynchronously through GET.
func (h *RideHandler) Request(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	var body requestRideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.rides.Request(c.Request.Context(), ride.RequestCommand{
		RiderID:        p.UserID,
		Pickup:         types.Point{Lat: body.PickupLat, Lng: body.PickupLng},
		Dropoff:        types.Point{Lat: body.DropoffLat, Lng: body.DropoffLng},
		PassengerCount: body.PassengerCount,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ride_id": id, "status": ride.StatusPending})
}

func (h *RideHandler) Accept(c *gin.Context) {
	h.driverAction(c, func(cmd ride.DriverCommand) error {
		return h.rides.Accept(c.Request.Context(), cmd)
	}, ride.StatusAccepted)
}

func (h *RideHandler) Start(c *gin.Context) {
	h.driverAction(c, func(cmd ride.DriverCommand) error {
		return h.rides.Start(c.Request.Context(), cmd)
	}, ride.StatusStarted)
}

func (h *RideHandler) Complete(c *gin.Context) {
	h.driverAction(c, func(cmd ride.DriverCommand) error {
		return h.rides.Complete(c.Request.Context(), cmd)
	}, ride.StatusCompleted)
}

func (h *RideHandler) driverAction(c *gin.Context, op func(ride.DriverCommand) error, result ride.Status) {
	rideID, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, ok := h.callerDriver(c)
	if !ok {
		return
	}
	if err := op(ride.DriverCommand{RideID: rideID, DriverID: d.ID}); err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ride_id": rideID, "status": result})
}

type rejectBody struct {
	Reason string `json:"reason"`
}

// Reject routes through the dispatch engine: the refusal is recorded and the
// ride immediately re-offered unless the attempt cap cancelled it.
func (h *RideHandler) Reject(c *gin.Context) {
	rideID, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, ok := h.callerDriver(c)
	if !ok {
		return
	}
	var body rejectBody
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "rejected by driver"
	}

	out, err := h.engine.Reject(c.Request.Context(), rideID, d.ID, body.Reason)
	if err != nil {
		writeRideError(c, err)
		return
	}
	resp := gin.H{"ride_id": rideID, "attempts": out.Attempts}
	switch {
	case out.Cancelled:
		resp["status"] = ride.StatusCancelled
	case out.Reassigned:
		resp["status"] = ride.StatusAssigned
		resp["driver_id"] = out.DriverID
	default:
		resp["status"] = ride.StatusPending
	}
	c.JSON(http.StatusOK, resp)
}

type cancelBody struct {
	Reason string `json:"reason"`
}

func (h *RideHandler) Cancel(c *gin.Context) {
	rideID, ok := pathID(c, "id")
	if !ok {
		return
	}
	p := middleware.PrincipalFrom(c)
	var body cancelBody
	_ = c.ShouldBindJSON(&body)
	err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID:  rideID,
		RiderID: p.UserID,
		Reason:  body.Reason,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ride_id": rideID, "status": ride.StatusCancelled})
}

func (h *RideHandler) Get(c *gin.Context) {
	rideID, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), rideID)
	if err != nil {
		writeRideError(c, err)
		return
	}
	asgs, err := h.rides.Assignments(c.Request.Context(), rideID)
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ride": rideView(r), "assignments": assignmentViews(asgs)})
}

func (h *RideHandler) ListActive(c *gin.Context) {
	rides, err := h.rides.ListActive(c.Request.Context())
	if err != nil {
		writeRideError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rides))
	for i := range rides {
		out = append(out, rideView(&rides[i]))
	}
	c.JSON(http.StatusOK, gin.H{"rides": out})
}

// callerDriver resolves the authenticated driver's profile; role gating has
// already happened in middleware.
func (h *RideHandler) callerDriver(c *gin.Context) (*driver.Driver, bool) {
	p := middleware.PrincipalFrom(c)
	d, err := h.drivers.GetByUser(c.Request.Context(), p.UserID)
	if err != nil {
		writeDriverError(c, err)
		return nil, false
	}
	return d, true
}

func rideView(r *ride.Ride) gin.H {
	v := gin.H{
		"id":              r.ID,
		"rider_id":        r.RiderID,
		"status":          r.Status,
		"passenger_count": r.PassengerCount,
		"pickup":          gin.H{"lat": r.Pickup.Lat, "lng": r.Pickup.Lng},
		"dropoff":         gin.H{"lat": r.Dropoff.Lat, "lng": r.Dropoff.Lng},
		"attempts":        r.AssignmentAttempts,
		"created_at":      r.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":      r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if r.DriverID != nil {
		v["driver_id"] = *r.DriverID
	}
	if r.CancelReason != nil {
		v["cancel_reason"] = *r.CancelReason
	}
	return v
}

func assignmentViews(asgs []ride.Assignment) []gin.H {
	out := make([]gin.H, 0, len(asgs))
	for _, a := range asgs {
		v := gin.H{
			"driver_id":  a.DriverID,
			"status":     a.Status,
			"created_at": a.CreatedAt.UTC().Format(time.RFC3339),
		}
		if a.Reason != nil {
			v["reason"] = *a.Reason
		}
		out = append(out, v)
	}
	return out
}
