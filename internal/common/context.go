package common

import (
	"context"
	"errors"
)

// Context keys
type contextKey string

const (
	ViewerKey contextKey = "viewer"
)

// Roles carried in access tokens
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var ErrNoViewer = errors.New("viewer not found in context")

// Viewer is the authenticated identity behind a request
type Viewer struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
	Role      string
}

// IsAdmin reports whether the viewer may moderate
func (v *Viewer) IsAdmin() bool {
	return v != nil && v.Role == RoleAdmin
}

// WithViewer returns a context carrying the viewer
func WithViewer(ctx context.Context, viewer *Viewer) context.Context {
	return context.WithValue(ctx, ViewerKey, viewer)
}

// GetViewer extracts the viewer from context
func GetViewer(ctx context.Context) (*Viewer, error) {
	viewer, ok := ctx.Value(ViewerKey).(*Viewer)
	if !ok || viewer == nil {
		return nil, ErrNoViewer
	}
	return viewer, nil
}
