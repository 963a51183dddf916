package auditcontext

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type ipAddressKey struct{}
type userAgentKey struct{}
type actorKey struct{}
type rentalIDKey struct{}
type invoiceIDKey struct{}

type actorValue struct {
	Type string
	ID   string
}

// WithRequestID stores the request ID for audit trail correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request ID, or empty string.
func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey{})
}

// WithIPAddress stores the caller IP address.
func WithIPAddress(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ipAddressKey{}, ip)
}

// IPAddressFromContext returns the caller IP address, or empty string.
func IPAddressFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ipAddressKey{})
}

// WithUserAgent stores the caller user agent.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

// UserAgentFromContext returns the caller user agent, or empty string.
func UserAgentFromContext(ctx context.Context) string {
	return stringFromContext(ctx, userAgentKey{})
}

// WithActor stores the acting principal for audit attribution.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	actorType = strings.TrimSpace(actorType)
	if actorType == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorValue{
		Type: actorType,
		ID:   strings.TrimSpace(actorID),
	})
}

// ActorFromContext returns the acting principal, or empty strings.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actorValue)
	if !ok {
		return "", ""
	}
	return value.Type, value.ID
}

// WithRentalID tags the context with the rental being acted on.
func WithRentalID(ctx context.Context, rentalID string) context.Context {
	rentalID = strings.TrimSpace(rentalID)
	if rentalID == "" {
		return ctx
	}
	return context.WithValue(ctx, rentalIDKey{}, rentalID)
}

// RentalIDFromContext returns the rental being acted on, or empty string.
func RentalIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, rentalIDKey{})
}

// WithInvoiceID tags the context with the invoice being acted on.
func WithInvoiceID(ctx context.Context, invoiceID string) context.Context {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return ctx
	}
	return context.WithValue(ctx, invoiceIDKey{}, invoiceID)
}

// InvoiceIDFromContext returns the invoice being acted on, or empty string.
func InvoiceIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, invoiceIDKey{})
}

func stringFromContext(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}
