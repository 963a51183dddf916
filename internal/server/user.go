package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/karsada/fleetcore/internal/ratelimit"
	userdomain "github.com/karsada/fleetcore/internal/user/domain"
)

func (s *Server) registerUserRoutes() {
	users := s.engine.Group("/v1/users")

	users.POST("/register", s.rateLimit(ratelimit.ClassAuthStrict), s.Register)
	users.POST("/login", s.rateLimit(ratelimit.ClassAuthStrict), s.Login)
	users.POST("/refresh", s.rateLimit(ratelimit.ClassPublicAPI), s.Refresh)
	users.GET("/me", s.requireAuth(), s.rateLimit(ratelimit.ClassAuthenticatedAPI), s.Me)
}

func (s *Server) Register(c *gin.Context) {
	var req userdomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	user, err := s.userSvc.Register(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, user)
}

func (s *Server) Login(c *gin.Context) {
	var req userdomain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	result, err := s.userSvc.Login(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, result)
}

func (s *Server) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	result, err := s.userSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, result)
}

func (s *Server) Me(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		AbortWithError(c, errMissingAuth)
		return
	}

	user, err := s.userSvc.Me(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, user)
}
