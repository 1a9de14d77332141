package highlights

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("highlight not found")
	ErrInvalidTransition = errors.New("invalid moderation transition")
	ErrNotAdminAuthored  = errors.New("only admin-authored highlights can be deactivated or reactivated")
	ErrReasonRequired    = errors.New("rejection reason is required")
	ErrStatusChanged     = errors.New("highlight status changed concurrently")
	ErrInvalidMedia      = errors.New("invalid media url")
	ErrInvalidExpiry     = errors.New("invalid expiration time")
	ErrRateLimited       = errors.New("too many submissions")
	ErrForbidden         = errors.New("forbidden")
)

// Transition validates a moderation status change.
// Rejected is terminal and expiration never appears here:
// it is evaluated at read time by IsVisible.
func Transition(from, to Status, adminAuthored bool) error {
	switch {
	case from == StatusPending && (to == StatusApproved || to == StatusRejected):
		return nil
	case from == StatusApproved && to == StatusInactive,
		from == StatusInactive && to == StatusApproved:
		if !adminAuthored {
			return ErrNotAdminAuthored
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// NormalizeReason trims a rejection reason and reports whether it is usable
func NormalizeReason(reason *string) (string, bool) {
	if reason == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*reason)
	return trimmed, trimmed != ""
}
