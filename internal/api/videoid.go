package api

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidReference indicates the request did not carry a resolvable video
// reference.
var ErrInvalidReference = errors.New("api: invalid video reference")

var (
	videoIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	embeddedIDMatch = regexp.MustCompile(`(?:v=|/)([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`)
)

// ExtractVideoID resolves a raw reference, either a canonical 11-character
// video ID or any of the common watch/share URL shapes, into the canonical
// ID. The last resort is scanning the reference for an embedded ID.
func ExtractVideoID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidReference
	}
	if videoIDPattern.MatchString(ref) {
		return ref, nil
	}

	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		path := strings.Trim(u.Path, "/")

		switch {
		case host == "youtu.be":
			if id := firstSegment(path); videoIDPattern.MatchString(id) {
				return id, nil
			}
		default:
			if id := u.Query().Get("v"); videoIDPattern.MatchString(id) {
				return id, nil
			}
			for _, prefix := range []string{"shorts/", "embed/", "live/", "v/"} {
				if rest, ok := strings.CutPrefix(path, prefix); ok {
					if id := firstSegment(rest); videoIDPattern.MatchString(id) {
						return id, nil
					}
				}
			}
		}
	}

	if m := embeddedIDMatch.FindStringSubmatch(ref); m != nil {
		return m[1], nil
	}
	return "", ErrInvalidReference
}

func firstSegment(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
