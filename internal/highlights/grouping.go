package highlights

import (
	"sort"
	"time"
)

// AuthorGroup bundles one author's highlights.
// Items are kept in playback order (oldest first).
type AuthorGroup struct {
	AuthorID        string  `json:"author_id"`
	AuthorName      string  `json:"author_name"`
	AuthorAvatarURL *string `json:"author_avatar_url,omitempty"`
	IsAdmin         bool    `json:"is_admin"`
	Items           []*Item `json:"items"`
}

// PlaybackOrder returns the items oldest first
func (g *AuthorGroup) PlaybackOrder() []*Item {
	out := make([]*Item, len(g.Items))
	copy(out, g.Items)
	return out
}

// PreviewOrder returns the items newest first
func (g *AuthorGroup) PreviewOrder() []*Item {
	out := make([]*Item, len(g.Items))
	for i, item := range g.Items {
		out[len(g.Items)-1-i] = item
	}
	return out
}

// Preview is the item shown on the author's tile
func (g *AuthorGroup) Preview() *Item {
	if len(g.Items) == 0 {
		return nil
	}
	return g.Items[len(g.Items)-1]
}

// LatestAt is the creation time of the newest item
func (g *AuthorGroup) LatestAt() time.Time {
	if preview := g.Preview(); preview != nil {
		return preview.CreatedAt
	}
	return time.Time{}
}

// Group partitions items by author and orders the result.
// Groups containing admin content come first, then groups by their newest
// item descending, with author id as the final tie-break. Within a group
// items are ordered by creation time, ties broken by id.
// The input is never modified.
func Group(items []*Item) []*AuthorGroup {
	byAuthor := make(map[string]*AuthorGroup)
	for _, item := range items {
		if item == nil {
			continue
		}
		group, ok := byAuthor[item.AuthorID]
		if !ok {
			group = &AuthorGroup{AuthorID: item.AuthorID}
			byAuthor[item.AuthorID] = group
		}
		group.Items = append(group.Items, item)
		if item.IsAdmin() {
			group.IsAdmin = true
		}
	}

	groups := make([]*AuthorGroup, 0, len(byAuthor))
	for _, group := range byAuthor {
		sort.SliceStable(group.Items, func(i, j int) bool {
			return itemBefore(group.Items[i], group.Items[j])
		})
		// Display identity follows the newest item
		newest := group.Preview()
		group.AuthorName = newest.AuthorName
		group.AuthorAvatarURL = newest.AuthorAvatarURL
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.IsAdmin != b.IsAdmin {
			return a.IsAdmin
		}
		if la, lb := a.LatestAt(), b.LatestAt(); !la.Equal(lb) {
			return la.After(lb)
		}
		return a.AuthorID < b.AuthorID
	})

	return groups
}

func itemBefore(a, b *Item) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Thumbnail is an author tile for the public feed
type Thumbnail struct {
	AuthorID        string    `json:"author_id"`
	AuthorName      string    `json:"author_name"`
	AuthorAvatarURL *string   `json:"author_avatar_url,omitempty"`
	IsAdmin         bool      `json:"is_admin"`
	PreviewID       string    `json:"preview_id"`
	PreviewTitle    string    `json:"preview_title"`
	PreviewMediaURL string    `json:"preview_media_url"`
	PreviewIsVideo  bool      `json:"preview_is_video"`
	Count           int       `json:"count"`
	LatestAt        time.Time `json:"latest_at"`
}

// Thumbnails projects ordered groups into tiles, keeping their order
func Thumbnails(groups []*AuthorGroup) []Thumbnail {
	tiles := make([]Thumbnail, 0, len(groups))
	for _, g := range groups {
		preview := g.Preview()
		if preview == nil {
			continue
		}
		tiles = append(tiles, Thumbnail{
			AuthorID:        g.AuthorID,
			AuthorName:      g.AuthorName,
			AuthorAvatarURL: g.AuthorAvatarURL,
			IsAdmin:         g.IsAdmin,
			PreviewID:       preview.ID,
			PreviewTitle:    preview.Title,
			PreviewMediaURL: DisplayURL(preview.MediaURL),
			PreviewIsVideo:  preview.IsVideo(),
			Count:           len(g.Items),
			LatestAt:        preview.CreatedAt,
		})
	}
	return tiles
}
