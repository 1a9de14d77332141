package moderation

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

import (
	"context"

	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

// StatusFilter selects a moderation-status partition on the backing store
type StatusFilter string

const (
	FilterPending  StatusFilter = "pending"
	FilterApproved StatusFilter = "approved"
	FilterAll      StatusFilter = "all"
)

// ListParams parameterise a backing-store read. Reads never apply the
// public visibility rule.
type ListParams struct {
	Status    StatusFilter
	AdminOnly bool
	AuthorID  string
	Limit     int
	Offset    int
}

// ListResult is a page of highlights
type ListResult struct {
	Success bool
	Items   []*highlights.Item
	Total   int64
}

// StatusUpdate is the partial update sent by a moderator
type StatusUpdate struct {
	Status          highlights.Status `json:"moderation_status"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
}

// Store is the backing store the moderation queue talks to
type Store interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, id string, update StatusUpdate) (*highlights.Item, error)
	Delete(ctx context.Context, id string) error
	Create(ctx context.Context, req *highlights.SubmitRequest) (*highlights.Item, error)
}
