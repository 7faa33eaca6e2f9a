package core

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxKeyCallerID  contextKey = "caller_id"
	ctxKeyIPAddress contextKey = "client_ip"
)

// ContextWithCaller stores the authenticated caller id.
func ContextWithCaller(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKeyCallerID, id)
}

// CallerFromContext returns the authenticated caller id, or uuid.Nil.
func CallerFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(ctxKeyCallerID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// ContextWithIPAddress stores the client IP for logging.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// IPAddressFromContext extracts the client IP.
func IPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}
