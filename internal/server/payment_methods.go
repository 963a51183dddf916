package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	paymentdomain "github.com/karsada/fleetcore/internal/payment/domain"
)

func (s *Server) ListPaymentMethods(c *gin.Context) {
	var req paymentdomain.ListMethodsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	methods, err := s.paymentSvc.ListMethods(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"methods": methods})
}

func (s *Server) CreatePaymentMethod(c *gin.Context) {
	var req paymentdomain.CreateMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errMalformedRequest)
		return
	}

	method, err := s.paymentSvc.CreateMethod(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, method)
}
