// README: Route table and HTTP server assembly.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hail/internal/auth"
	"hail/internal/http/handlers"
	"hail/internal/http/middleware"
	"hail/internal/modules/dispatch"
	"hail/internal/modules/driver"
	"hail/internal/modules/ride"
)

type Deps struct {
	Rides   *ride.Service
	Drivers *driver.Service
	Engine  *dispatch.Engine
	Secret  string
	Log     *slog.Logger
}

// NewRouter builds the full route table. Ride mutations are split by role:
// riders request and cancel, drivers answer offers and drive the trip.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.RequestLogger(d.Log), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rideH := handlers.NewRideHandler(d.Rides, d.Drivers, d.Engine)
	driverH := handlers.NewDriverHandler(d.Drivers, d.Rides)

	api := r.Group("/api", middleware.Authenticate(d.Secret))

	rides := api.Group("/rides")
	rides.POST("", middleware.RequireRole(auth.RolePassenger), rideH.Request)
	rides.PATCH("/:id/cancel", middleware.RequireRole(auth.RolePassenger), rideH.Cancel)
	rides.PATCH("/:id/accept", middleware.RequireRole(auth.RoleDriver), rideH.Accept)
	rides.PATCH("/:id/reject", middleware.RequireRole(auth.RoleDriver), rideH.Reject)
	rides.PATCH("/:id/start", middleware.RequireRole(auth.RoleDriver), rideH.Start)
	rides.PATCH("/:id/complete", middleware.RequireRole(auth.RoleDriver), rideH.Complete)
	rides.GET("/active", rideH.ListActive)
	rides.GET("/:id", rideH.Get)

	drivers := api.Group("/drivers")
	drivers.POST("", middleware.RequireRole(auth.RolePassenger), driverH.Register)
	drivers.PATCH("/status", middleware.RequireRole(auth.RoleDriver), driverH.SetStatus)
	drivers.PATCH("/location", middleware.RequireRole(auth.RoleDriver), driverH.UpdateLocation)
	drivers.GET("/:id/rides", driverH.History)

	return r
}

// NewServer wraps the router in an http.Server with sane timeouts.
func NewServer(addr string, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
