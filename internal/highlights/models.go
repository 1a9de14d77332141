package highlights

import (
	"time"
)

// Status is the moderation state of a highlight
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known moderation status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusInactive:
		return true
	}
	return false
}

// MediaType of the highlight payload
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

const (
	// MaxPriority is stamped on admin-authored highlights
	MaxPriority = 10

	DefaultTTL = 24 * time.Hour
)

// Item is a time-limited promotional highlight
type Item struct {
	ID              string     `json:"id" db:"id"`
	Title           string     `json:"title" db:"title"`
	Description     *string    `json:"description,omitempty" db:"description"`
	MediaURL        string     `json:"media_url" db:"media_url"`
	MediaType       MediaType  `json:"media_type" db:"media_type"`
	LinkURL         *string    `json:"link_url,omitempty" db:"link_url"`
	LinkText        *string    `json:"link_text,omitempty" db:"link_text"`
	AuthorID        string     `json:"author_id" db:"author_id"`
	AuthorName      string     `json:"author_name" db:"author_name"`
	AuthorAvatarURL *string    `json:"author_avatar_url,omitempty" db:"author_avatar_url"`
	AuthorEmail     *string    `json:"author_email,omitempty" db:"author_email"`
	IsAdminPost     bool       `json:"is_admin_post" db:"is_admin_post"`
	Priority        int        `json:"priority" db:"priority"`
	Status          Status     `json:"moderation_status" db:"moderation_status"`
	RejectionReason *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ViewCount       int64      `json:"view_count" db:"view_count"`
	ModeratedBy     *string    `json:"moderated_by,omitempty" db:"moderated_by"`
	ModeratedAt     *time.Time `json:"moderated_at,omitempty" db:"moderated_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at" db:"expires_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the item is operator content
func (i *Item) IsAdmin() bool {
	return i.IsAdminPost || i.Priority >= MaxPriority
}

// IsVideo reports whether the item should be played as a video
func (i *Item) IsVideo() bool {
	return DetectMediaType(i.MediaType, i.MediaURL) == MediaVideo
}

// Public returns a copy safe to serve to anonymous viewers
func (i *Item) Public() *Item {
	cp := *i
	cp.AuthorEmail = nil
	cp.ModeratedBy = nil
	cp.MediaURL = DisplayURL(i.MediaURL)
	return &cp
}

// Actor is the user performing an operation
type Actor struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
	IsAdmin   bool
}

// ListFilter selects highlights for administrative listing.
// An empty Status means every status.
type ListFilter struct {
	Status    Status
	AdminOnly bool
	AuthorID  string
	Search    string
	Limit     int
	Offset    int
}

// Stats counts highlights per moderation status
type Stats struct {
	Total    int64 `json:"total" db:"total"`
	Pending  int64 `json:"pending" db:"pending"`
	Approved int64 `json:"approved" db:"approved"`
	Rejected int64 `json:"rejected" db:"rejected"`
	Inactive int64 `json:"inactive" db:"inactive"`
	Admin    int64 `json:"admin" db:"admin"`
	Expired  int64 `json:"expired" db:"expired"`
}

// StatusUpdate is applied by a moderator
type StatusUpdate struct {
	Status          Status
	RejectionReason *string
	ModeratedBy     string
	ModeratedAt     time.Time
}

// SubmitRequest creates a highlight
type SubmitRequest struct {
	Title       string     `json:"title" validate:"required,notblank,max=120"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=1000"`
	MediaURL    string     `json:"media_url" validate:"required,notblank"`
	MediaType   MediaType  `json:"media_type,omitempty" validate:"omitempty,oneof=image video"`
	LinkURL     *string    `json:"link_url,omitempty" validate:"omitempty,url"`
	LinkText    *string    `json:"link_text,omitempty" validate:"omitempty,max=60"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ModerateRequest changes the moderation status of a highlight
type ModerateRequest struct {
	Status          Status  `json:"moderation_status" validate:"required,oneof=approved rejected inactive"`
	RejectionReason *string `json:"rejection_reason,omitempty" validate:"omitempty,max=500"`
}
