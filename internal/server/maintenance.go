package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/karsada/fleetcore/internal/authorization"
	maintenancedomain "github.com/karsada/fleetcore/internal/maintenance/domain"
	"github.com/karsada/fleetcore/internal/ratelimit"
)

func (s *Server) registerMaintenanceRoutes() {
	jobs := s.engine.Group("/v1/maintenance",
		s.requireAuth(),
		s.rateLimit(ratelimit.ClassAuthenticatedAPI),
	)

	jobs.GET("", s.authorize(authorization.ObjectMaintenance, authorization.ActionMaintenanceView), s.ListMaintenanceJobs)
	jobs.POST("", s.authorize(authorization.ObjectMaintenance, authorization.ActionMaintenanceCreate), s.CreateMaintenanceJob)
	jobs.GET("/:id", s.authorize(authorization.ObjectMaintenance, authorization.ActionMaintenanceView), s.GetMaintenanceJob)
	jobs.POST("/:id/start", s.authorize(authorization.ObjectMaintenance, authorization.ActionMaintenanceStart), s.StartMaintenanceJob)
	jobs.POST("/:id/complete", s.authorize(authorization.ObjectMaintenance, authorization.ActionMaintenanceComplete), s.CompleteMaintenanceJob)
	jobs.POST("/:id/cancel", s.authorize(authorization.ObjectMaintenance, authorization.ActionMaintenanceCancel), s.CancelMaintenanceJob)
}

func (s *Server) ListMaintenanceJobs(c *gin.Context) {
	var req maintenancedomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	resp, err := s.maintenanceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) CreateMaintenanceJob(c *gin.Context) {
	var req maintenancedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	job, err := s.maintenanceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, job)
}

func (s *Server) GetMaintenanceJob(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	job, err := s.maintenanceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, job)
}

func (s *Server) StartMaintenanceJob(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	job, err := s.maintenanceSvc.Start(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, job)
}

func (s *Server) CompleteMaintenanceJob(c *gin.Context) {
	var req maintenancedomain.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	job, err := s.maintenanceSvc.Complete(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, job)
}

func (s *Server) CancelMaintenanceJob(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	job, err := s.maintenanceSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, job)
}
