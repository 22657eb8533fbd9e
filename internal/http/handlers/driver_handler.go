// README: HTTP endpoints for driver onboarding, availability and location pushes.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hail/internal/http/middleware"
	"hail/internal/modules/driver"
	"hail/internal/modules/ride"
	"hail/internal/types"
)

type DriverHandler struct {
	drivers *driver.Service
	rides   *ride.Service
}

func NewDriverHandler(drivers *driver.Service, rides *ride.Service) *DriverHandler {
	return &DriverHandler{drivers: drivers, rides: rides}
}

type registerBody struct {
	VehicleType string `json:"vehicle_type" binding:"required"`
	Capacity    int    `json:"capacity" binding:"required,min=1"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.drivers.Register(c.Request.Context(), driver.RegisterCommand{
		UserID:      p.UserID,
		VehicleType: body.VehicleType,
		Capacity:    body.Capacity,
	})
	if err != nil {
		writeDriverError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"driver_id": id, "status": driver.StatusOffline})
}

type statusBody struct {
	Status string `json:"status" binding:"required"`
}

func (h *DriverHandler) SetStatus(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	var body statusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.drivers.SetAvailability(c.Request.Context(), driver.AvailabilityCommand{
		UserID: p.UserID,
		Status: driver.Status(body.Status),
	})
	if err != nil {
		writeDriverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": body.Status})
}

type locationBody struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	var body locationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.drivers.UpdateLocation(c.Request.Context(), driver.LocationCommand{
		UserID:   p.UserID,
		Position: types.Point{Lat: body.Lat, Lng: body.Lng},
	})
	if err != nil {
		writeDriverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// History returns a driver's completed rides.
func (h *DriverHandler) History(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.drivers.Get(c.Request.Context(), driverID); err != nil {
		writeDriverError(c, err)
		return
	}
	rides, err := h.rides.DriverHistory(c.Request.Context(), driverID)
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
