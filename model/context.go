package model

import (
	"context"
	"slices"
)

// Roles carried in bearer tokens.
const (
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// LocalSubject identifies the caller when authentication is off: the
// designer running the editor on their own machine.
const LocalSubject = "local"

// RequestContext identifies the caller of one request and links it to the
// request's correlation and trace ids. It is not modified once attached.
type RequestContext struct {
	SubjectID     string
	Roles         []string
	Claims        map[string]any
	CorrelationID string
	TraceID       string
	SpanID        string
}

// LocalCaller is the request context of an unauthenticated request. The
// local designer may edit.
func LocalCaller(correlationID string) *RequestContext {
	return &RequestContext{
		SubjectID:     LocalSubject,
		Roles:         []string{RoleEditor},
		CorrelationID: correlationID,
	}
}

// IsLocal reports whether the caller came in without a token.
func (rc *RequestContext) IsLocal() bool {
	return rc.SubjectID == LocalSubject && rc.Claims == nil
}

func (rc *RequestContext) HasRole(role string) bool {
	return slices.Contains(rc.Roles, role)
}

// CanWrite reports whether the caller may change documents or the project.
func (rc *RequestContext) CanWrite() bool {
	return rc.HasRole(RoleEditor)
}

type contextKey struct{}

func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom returns the caller attached to ctx, or nil outside a
// request.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
