package highlights

import (
	"net/url"
	"path"
	"strings"
	"unicode"
)

// PlaceholderMediaURL is served when a stored media reference is unusable
const PlaceholderMediaURL = "/static/highlight-placeholder.png"

var quoteStripper = strings.NewReplacer(`\"`, "", `"`, "", `\'`, "", `'`, "", "`", "", `\`, "")

var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".ogg":  true,
	".mov":  true,
	".avi":  true,
}

// SanitizeMediaURL repairs quoting and spacing artifacts in a stored media
// reference. Protocol-relative and scheme-less references are promoted to
// https; site-relative paths and data URIs are kept. The boolean is false
// when nothing usable remains.
func SanitizeMediaURL(raw string) (string, bool) {
	s := quoteStripper.Replace(strings.TrimSpace(raw))
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "", false
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "data:") {
		ok := strings.HasPrefix(lower, "data:image/") || strings.HasPrefix(lower, "data:video/")
		return s, ok
	}

	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case strings.HasPrefix(s, "/"):
		if _, err := url.Parse(s); err != nil {
			return "", false
		}
		return s, true
	default:
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// DisplayURL returns a sanitized media reference or the placeholder
func DisplayURL(raw string) string {
	if s, ok := SanitizeMediaURL(raw); ok {
		return s
	}
	return PlaceholderMediaURL
}

// DetectMediaType infers whether a highlight is a video from its declared
// type, a data:video URI or a known video file extension.
func DetectMediaType(declared MediaType, rawURL string) MediaType {
	if declared == MediaVideo {
		return MediaVideo
	}

	lower := strings.ToLower(strings.TrimSpace(rawURL))
	if strings.HasPrefix(lower, "data:video/") {
		return MediaVideo
	}

	p := lower
	if u, err := url.Parse(lower); err == nil {
		p = u.Path
	}
	if videoExtensions[path.Ext(p)] {
		return MediaVideo
	}
	return MediaImage
}
