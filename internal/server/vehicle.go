package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/karsada/fleetcore/internal/authorization"
	"github.com/karsada/fleetcore/internal/ratelimit"
	vehicledomain "github.com/karsada/fleetcore/internal/vehicle/domain"
)

func (s *Server) registerVehicleRoutes() {
	vehicles := s.engine.Group("/v1/vehicles",
		s.requireAuth(),
		s.rateLimit(ratelimit.ClassAuthenticatedAPI),
	)

	vehicles.GET("", s.authorize(authorization.ObjectVehicle, authorization.ActionVehicleView), s.ListVehicles)
	vehicles.POST("", s.authorize(authorization.ObjectVehicle, authorization.ActionVehicleCreate), s.CreateVehicle)
	vehicles.GET("/:id", s.authorize(authorization.ObjectVehicle, authorization.ActionVehicleView), s.GetVehicle)
	vehicles.PATCH("/:id", s.authorize(authorization.ObjectVehicle, authorization.ActionVehicleUpdate), s.UpdateVehicle)
	vehicles.DELETE("/:id", s.authorize(authorization.ObjectVehicle, authorization.ActionVehicleDelete), s.RetireVehicle)
	vehicles.PATCH("/:id/state", s.authorize(authorization.ObjectVehicle, authorization.ActionVehicleStateUpdate), s.ChangeVehicleState)
	vehicles.POST("/:id/odometer", s.authorize(authorization.ObjectVehicle, authorization.ActionVehicleOdometerAppend), s.RecordOdometer)
	vehicles.PATCH("/:id/location", s.authorize(authorization.ObjectVehicle, authorization.ActionVehicleLocationUpdate), s.UpdateVehicleLocation)
}

func (s *Server) ListVehicles(c *gin.Context) {
	var req vehicledomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	resp, err := s.vehicleSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) CreateVehicle(c *gin.Context) {
	var req vehicledomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	vehicle, err := s.vehicleSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, vehicle)
}

func (s *Server) GetVehicle(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	vehicle, err := s.vehicleSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, vehicle)
}

func (s *Server) UpdateVehicle(c *gin.Context) {
	var req vehicledomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	vehicle, err := s.vehicleSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, vehicle)
}

func (s *Server) RetireVehicle(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if _, err := s.vehicleSvc.Retire(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ChangeVehicleState(c *gin.Context) {
	var req struct {
		State vehicledomain.State `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}
	id := strings.TrimSpace(c.Param("id"))

	vehicle, err := s.vehicleSvc.ChangeState(c.Request.Context(), id, req.State)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, vehicle)
}

func (s *Server) RecordOdometer(c *gin.Context) {
	var req vehicledomain.OdometerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}
	req.VehicleID = strings.TrimSpace(c.Param("id"))

	reading, err := s.vehicleSvc.RecordOdometer(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, reading)
}

func (s *Server) UpdateVehicleLocation(c *gin.Context) {
	var req vehicledomain.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}
	req.VehicleID = strings.TrimSpace(c.Param("id"))

	vehicle, err := s.vehicleSvc.UpdateLocation(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, vehicle)
}
