package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/karsada/fleetcore/internal/idempotency"
)

// responseRecorder mirrors everything written to the client so the
// idempotency store can replay it byte for byte.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// idempotent reserves the Idempotency-Key before the handler runs and
// finalizes it with the captured response afterwards. Completed keys
// replay without touching the handler; a 5xx releases the key so the
// client's retry executes instead of replaying a failure.
func (s *Server) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			AbortWithError(c, errMalformedRequest)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		reservation, outcome, err := s.idemStore.Begin(c.Request.Context(), key, c.Request.Method, c.Request.URL.Path, body)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		switch outcome {
		case idempotency.OutcomeReplay:
			s.metrics.ObserveIdempotentReplay()
			status := reservation.ResponseStatus
			if status == 0 {
				status = http.StatusOK
			}
			c.Data(status, "application/json; charset=utf-8", reservation.ResponseBody)
			c.Abort()
			return
		case idempotency.OutcomeInProgress:
			AbortWithError(c, errRequestInProgress)
			return
		case idempotency.OutcomeMismatch:
			AbortWithError(c, errIdempotencyReuse)
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		// Translate any recorded error now, inside the capture, so the
		// stored response matches what the client receives. The outer
		// error middleware skips responses that are already written.
		if !c.Writer.Written() {
			if last := c.Errors.Last(); last != nil {
				status, code, message, details := mapError(last.Err)
				respondError(c, status, code, message, details)
			}
		}

		// The client may be gone by now; bookkeeping still has to land.
		ctx := context.WithoutCancel(c.Request.Context())
		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			if err := s.idemStore.Release(ctx, reservation.ID); err != nil {
				s.log.Warn("idempotency release failed",
					zap.String("key", key), zap.Error(err))
			}
			return
		}
		if err := s.idemStore.Finalize(ctx, reservation.ID, status, recorder.body.Bytes()); err != nil {
			s.log.Warn("idempotency finalize failed",
				zap.String("key", key), zap.Error(err))
		}
	}
}
