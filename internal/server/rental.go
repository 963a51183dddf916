package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/karsada/fleetcore/internal/authorization"
	"github.com/karsada/fleetcore/internal/ratelimit"
	rentaldomain "github.com/karsada/fleetcore/internal/rental/domain"
)

func (s *Server) registerRentalRoutes() {
	rentals := s.engine.Group("/v1/rentals",
		s.requireAuth(),
		s.rateLimit(ratelimit.ClassAuthenticatedAPI),
	)

	rentals.GET("", s.authorize(authorization.ObjectRental, authorization.ActionRentalView), s.ListRentals)
	rentals.POST("", s.authorize(authorization.ObjectRental, authorization.ActionRentalCreate), s.CreateRental)
	rentals.GET("/:id", s.authorize(authorization.ObjectRental, authorization.ActionRentalView), s.GetRental)
	rentals.POST("/:id/activate", s.authorize(authorization.ObjectRental, authorization.ActionRentalActivate), s.ActivateRental)
	rentals.POST("/:id/complete", s.authorize(authorization.ObjectRental, authorization.ActionRentalComplete), s.CompleteRental)
	rentals.POST("/:id/cancel", s.authorize(authorization.ObjectRental, authorization.ActionRentalCancel), s.CancelRental)
}

func (s *Server) ListRentals(c *gin.Context) {
	var req rentaldomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	resp, err := s.rentalSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) CreateRental(c *gin.Context) {
	var req rentaldomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	rental, err := s.rentalSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, rental)
}

func (s *Server) GetRental(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	rental, err := s.rentalSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, rental)
}

func (s *Server) ActivateRental(c *gin.Context) {
	var req rentaldomain.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	rental, err := s.rentalSvc.Activate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, rental)
}

func (s *Server) CompleteRental(c *gin.Context) {
	var req rentaldomain.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	rental, err := s.rentalSvc.Complete(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, rental)
}

func (s *Server) CancelRental(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	rental, err := s.rentalSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, rental)
}
