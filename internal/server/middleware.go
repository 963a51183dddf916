package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	auditcontext "github.com/karsada/fleetcore/internal/auditcontext"
	"github.com/karsada/fleetcore/internal/auth/token"
	"github.com/karsada/fleetcore/internal/authorization"
	obscontext "github.com/karsada/fleetcore/internal/observability/context"
	"github.com/karsada/fleetcore/internal/ratelimit"
)

const principalContextKey = "auth.principal"

func principalFrom(c *gin.Context) *token.Principal {
	value, ok := c.Get(principalContextKey)
	if !ok {
		return nil
	}
	principal, ok := value.(*token.Principal)
	if !ok {
		return nil
	}
	return principal
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	scheme, raw, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(raw)
}

// requireAuth verifies the bearer token and stamps the principal into
// the gin and request contexts so services can attribute their work.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithError(c, errMissingAuth)
			return
		}

		principal, err := s.tokens.VerifyAccess(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(principalContextKey, principal)

		userID := principal.UserID.String()
		ctx := obscontext.WithUserID(c.Request.Context(), userID)
		ctx = obscontext.WithActor(ctx, "user", userID)
		ctx = auditcontext.WithActor(ctx, "user", userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// authorize checks the principal against the casbin policy for one
// object/action pair. requireAuth must run first.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := principalFrom(c)
		if principal == nil {
			AbortWithError(c, errMissingAuth)
			return
		}

		actor := authorization.UserActor(principal.UserID)
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, principal.Roles, object, action); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Next()
	}
}

// rateLimit consumes one token from the class bucket. The key is the
// authenticated user when a principal is already present, otherwise the
// client IP. A limiter failure lets the request through; losing Redis
// must not take the API down with it.
func (s *Server) rateLimit(class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		key := c.ClientIP()
		if principal := principalFrom(c); principal != nil {
			key = principal.UserID.String()
		}

		result, err := s.limiter.Allow(c.Request.Context(), class, key)
		if err != nil {
			s.metrics.ObserveRateLimited(string(class) + "_unavailable")
			s.log.Warn("rate limiter unavailable, allowing request",
				zap.String("class", string(class)),
				zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			s.metrics.ObserveRateLimited(string(class))
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, errRateLimited)
			return
		}

		c.Next()
	}
}
