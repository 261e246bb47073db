package format

import "strings"

// Role restricts selection to variants with a particular track layout.
type Role string

const (
	RoleAny       Role = ""
	RoleCombined  Role = "combined"
	RoleVideoOnly Role = "videoOnly"
	RoleAudioOnly Role = "audioOnly"
)

// Matches reports whether v satisfies the role's capability predicate.
func (r Role) Matches(v Variant) bool {
	switch r {
	case RoleCombined:
		return v.HasVideo && v.HasAudio
	case RoleVideoOnly:
		return v.HasVideo && !v.HasAudio
	case RoleAudioOnly:
		return v.HasAudio && !v.HasVideo
	default:
		return true
	}
}

// Constraint narrows a variant listing down to at most one variant.
// Selection is a pure function of the constraint and the listing.
type Constraint struct {
	// Itag selects one exact variant when non-zero.
	Itag int
	// QualityLabel selects the first case-insensitive exact label match.
	QualityLabel string
	// Role restricts candidates to a track layout.
	Role Role
	// Container is a soft preference for a container family ("mp4", "webm").
	// It never empties the candidate set.
	Container string
}

// Select returns the variant matching the constraint, or false if none does.
//
// Ranking is deterministic: candidates are compared by the role's quality
// axis and ties resolve to the earlier listing position.
func Select(variants []Variant, c Constraint) (Variant, bool) {
	if c.Itag != 0 {
		for _, v := range variants {
			if v.Itag == c.Itag {
				if !c.Role.Matches(v) {
					return Variant{}, false
				}
				return v, true
			}
		}
		return Variant{}, false
	}

	candidates := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if c.Role.Matches(v) {
			candidates = append(candidates, v)
		}
	}

	if c.Container != "" {
		narrowed := make([]Variant, 0, len(candidates))
		for _, v := range candidates {
			if Family(v.MimeType) == c.Container {
				narrowed = append(narrowed, v)
			}
		}
		// Soft filter: an empty narrowing falls back to the role-filtered set.
		if len(narrowed) > 0 {
			candidates = narrowed
		}
	}

	if c.QualityLabel != "" {
		for _, v := range candidates {
			if strings.EqualFold(v.QualityLabel, c.QualityLabel) {
				return v, true
			}
		}
	}

	if len(candidates) == 0 {
		return Variant{}, false
	}

	best := candidates[0]
	for _, v := range candidates[1:] {
		if better(v, best, c.Role) {
			best = v
		}
	}
	return best, true
}

// better reports whether a outranks b for the given role. Strict inequality
// keeps ties resolved by listing order.
func better(a, b Variant, role Role) bool {
	switch role {
	case RoleVideoOnly:
		ra, rb := resolution(a), resolution(b)
		if ra != rb {
			return ra > rb
		}
		return a.Bitrate > b.Bitrate
	case RoleAudioOnly:
		return audioBitrate(a) > audioBitrate(b)
	default:
		return a.Bitrate > b.Bitrate
	}
}

func resolution(v Variant) int {
	if v.Height > 0 {
		return v.Height
	}
	return v.Width
}

func audioBitrate(v Variant) int64 {
	if v.AudioBitrate > 0 {
		return v.AudioBitrate
	}
	return v.Bitrate
}
