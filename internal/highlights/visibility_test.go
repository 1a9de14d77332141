package highlights

import (
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newItem(id, author string, createdOffset time.Duration, status Status) *Item {
	created := baseTime.Add(createdOffset)
	return &Item{
		ID:         id,
		Title:      "title " + id,
		MediaURL:   "https://cdn.example.com/" + id + ".jpg",
		MediaType:  MediaImage,
		AuthorID:   author,
		AuthorName: "name " + author,
		Status:     status,
		CreatedAt:  created,
		ExpiresAt:  created.Add(DefaultTTL),
	}
}

func TestIsVisible(t *testing.T) {
	item := newItem("a", "u1", 0, StatusApproved)

	tests := []struct {
		name   string
		status Status
		now    time.Time
		want   bool
	}{
		{"approved before expiry", StatusApproved, item.ExpiresAt.Add(-time.Nanosecond), true},
		{"approved at expiry", StatusApproved, item.ExpiresAt, false},
		{"approved after expiry", StatusApproved, item.ExpiresAt.Add(time.Second), false},
		{"pending", StatusPending, baseTime, false},
		{"rejected", StatusRejected, baseTime, false},
		{"inactive", StatusInactive, baseTime, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := *item
			cp.Status = tt.status
			if got := IsVisible(&cp, tt.now); got != tt.want {
				t.Fatalf("IsVisible = %v, want %v", got, tt.want)
			}
		})
	}

	if IsVisible(nil, baseTime) {
		t.Fatalf("nil item must not be visible")
	}
}

func TestFilterVisibleKeepsInput(t *testing.T) {
	items := []*Item{
		newItem("a", "u1", 0, StatusApproved),
		newItem("b", "u1", time.Minute, StatusPending),
		newItem("c", "u2", 2*time.Minute, StatusApproved),
	}

	visible := FilterVisible(items, baseTime.Add(time.Hour))
	if len(visible) != 2 || visible[0].ID != "a" || visible[1].ID != "c" {
		t.Fatalf("unexpected visible set: %v", ids(visible))
	}
	if len(items) != 3 || items[1].ID != "b" {
		t.Fatalf("input was modified")
	}
}

func ids(items []*Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
