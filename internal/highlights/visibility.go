package highlights

import "time"

// IsVisible reports whether an item may be shown publicly at now.
// The expiry boundary is exclusive: at now == ExpiresAt the item is hidden.
func IsVisible(item *Item, now time.Time) bool {
	if item == nil {
		return false
	}
	return item.Status == StatusApproved && item.ExpiresAt.After(now)
}

// FilterVisible returns the visible subset of items, preserving order.
// The input slice is not modified.
func FilterVisible(items []*Item, now time.Time) []*Item {
	visible := make([]*Item, 0, len(items))
	for _, item := range items {
		if IsVisible(item, now) {
			visible = append(visible, item)
		}
	}
	return visible
}
