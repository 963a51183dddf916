package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	auditcontext "github.com/karsada/fleetcore/internal/auditcontext"
	obscontext "github.com/karsada/fleetcore/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDPrefix = "req_"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware stamps every request with a request ID (minted when the
// client sent none), seeds the audit and observability context, and
// writes one access-log line per request after the handler chain ran.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = auditcontext.WithRequestID(ctx, requestID)
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		route := strings.TrimSpace(c.FullPath())
		if route == "" {
			route = "unknown"
		}

		fields := make([]zap.Field, 0, 10)
		fields = append(fields,
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max64(c.Request.ContentLength, 0)),
			zap.Int64("bytes_out", max64(int64(c.Writer.Size()), 0)),
		)

		var errorType string
		if lastErr := c.Errors.Last(); lastErr != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := FromContext(c.Request.Context())
		switch accessLogLevel(route, status, errorType) {
		case zap.DebugLevel:
			log.Debug("http_request", fields...)
		case zap.ErrorLevel:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

// ensureRequestID reuses the caller's request ID when present and echoes
// it back; otherwise it mints a req_<ulid>. Header lookup is
// case-insensitive through net/http canonicalization.
func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetString("request_id"))
	}
	if requestID == "" {
		requestID = requestIDPrefix + ulid.Make().String()
	}

	c.Set("request_id", requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}

// accessLogLevel decides the line's level. Server faults are errors.
// Two chatty cases are demoted to debug: metrics scrapes, and rejected
// location pings, which arrive at device frequency and would otherwise
// dominate the log at info.
func accessLogLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case strings.EqualFold(route, "/metrics"):
		return zapcore.DebugLevel
	case strings.EqualFold(route, "/v1/vehicles/:id/location") &&
		status >= http.StatusBadRequest && errorType == "VALIDATION_ERROR":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func max64(value, floor int64) int64 {
	if value < floor {
		return floor
	}
	return value
}
