package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/authorization"
	"github.com/karsada/fleetcore/internal/ratelimit"
)

func (s *Server) registerAuditLogRoutes() {
	logs := s.engine.Group("/v1/audit-logs", s.requireAuth(), s.rateLimit(ratelimit.ClassAuthenticatedAPI))
	logs.GET("", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var req auditdomain.ListAuditLogRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}
	req.Action = strings.TrimSpace(c.Query("action"))
	req.TargetType = strings.TrimSpace(c.Query("targetType"))
	req.TargetID = strings.TrimSpace(c.Query("targetId"))
	req.ActorType = strings.TrimSpace(c.Query("actorType"))

	start, err := parseTimeQuery(c, "startAt")
	if err != nil {
		AbortWithError(c, auditdomain.ErrInvalidTimeRange)
		return
	}
	end, err := parseTimeQuery(c, "endAt")
	if err != nil {
		AbortWithError(c, auditdomain.ErrInvalidTimeRange)
		return
	}
	if !start.IsZero() {
		req.StartAt = &start
	}
	if !end.IsZero() {
		req.EndAt = &end
	}

	out, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}
