// Package format normalizes upstream media variant descriptors and selects
// the variant matching a download constraint.
package format

import (
	"strconv"
	"strings"
)

// RawVariant mirrors one entry of the upstream streaming data. The upstream
// payload is loosely shaped and mixes camelCase and snake_case spellings
// depending on the client surface, so both are accepted where they occur.
type RawVariant struct {
	Itag            int    `json:"itag"`
	MimeType        string `json:"mimeType"`
	MimeTypeSnake   string `json:"mime_type"`
	Bitrate         int64  `json:"bitrate"`
	AverageBitrate  int64  `json:"averageBitrate"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	FPS             int    `json:"fps"`
	QualityLabel    string `json:"qualityLabel"`
	QualityLabelSnake string `json:"quality_label"`
	Quality         string `json:"quality"`
	AudioQuality    string `json:"audioQuality"`
	AudioSampleRate string `json:"audioSampleRate"` // sent as a quoted number
	AudioBitrate    int64  `json:"audio_bitrate"`
	AudioChannels   int    `json:"audioChannels"`
	ContentLength   string `json:"contentLength"` // sent as a quoted number
	URL             string `json:"url"`
}

// Variant is one selectable encoded representation of the source media.
// Numeric fields use zero for "not declared upstream"; none of them has a
// meaningful zero value. A Variant is immutable once listed.
type Variant struct {
	Itag            int    `json:"itag"`
	MimeType        string `json:"mimeType"`
	QualityLabel    string `json:"qualityLabel,omitempty"`
	Bitrate         int64  `json:"bitrate,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	FPS             int    `json:"fps,omitempty"`
	AudioSampleRate int    `json:"audioSampleRate,omitempty"`
	AudioBitrate    int64  `json:"audioBitrate,omitempty"`
	AudioChannels   int    `json:"audioChannels,omitempty"`
	ContentLength   int64  `json:"contentLength,omitempty"`
	HasVideo        bool   `json:"hasVideo"`
	HasAudio        bool   `json:"hasAudio"`

	// URL is the direct stream location. It is carried for the platform
	// client and never serialized to API consumers.
	URL string `json:"-"`
}

// Normalize maps a raw upstream descriptor onto the Variant shape.
func Normalize(raw RawVariant) Variant {
	mime := raw.MimeType
	if mime == "" {
		mime = raw.MimeTypeSnake
	}
	label := raw.QualityLabel
	if label == "" {
		label = raw.QualityLabelSnake
	}
	if label == "" {
		label = raw.Quality
	}
	bitrate := raw.Bitrate
	if bitrate == 0 {
		bitrate = raw.AverageBitrate
	}

	v := Variant{
		Itag:            raw.Itag,
		MimeType:        mime,
		QualityLabel:    label,
		Bitrate:         bitrate,
		Width:           raw.Width,
		Height:          raw.Height,
		FPS:             raw.FPS,
		AudioSampleRate: parseQuotedInt(raw.AudioSampleRate),
		AudioBitrate:    raw.AudioBitrate,
		AudioChannels:   raw.AudioChannels,
		ContentLength:   parseQuotedInt64(raw.ContentLength),
		URL:             raw.URL,
	}
	v.HasVideo = raw.QualityLabel != "" || raw.QualityLabelSnake != "" || raw.Width > 0
	v.HasAudio = raw.AudioQuality != "" || raw.AudioSampleRate != "" || raw.AudioBitrate > 0 || raw.AudioChannels > 0
	return v
}

// List normalizes raw descriptors, dropping entries without an identifier and
// deduplicating by itag. The first occurrence wins and insertion order is
// preserved.
func List(raw []RawVariant) []Variant {
	seen := make(map[int]struct{}, len(raw))
	out := make([]Variant, 0, len(raw))
	for _, r := range raw {
		if r.Itag == 0 {
			continue
		}
		if _, dup := seen[r.Itag]; dup {
			continue
		}
		seen[r.Itag] = struct{}{}
		out = append(out, Normalize(r))
	}
	return out
}

// BaseMime strips the codecs parameter from a MIME type:
// "video/mp4; codecs=\"avc1.64001f\"" -> "video/mp4".
func BaseMime(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	return strings.TrimSpace(base)
}

// Family returns the container family of a MIME type ("mp4", "webm", ...),
// i.e. the subtype shared by the audio and video flavors of a container.
func Family(mime string) string {
	base := BaseMime(mime)
	_, sub, ok := strings.Cut(base, "/")
	if !ok {
		return ""
	}
	return sub
}

func parseQuotedInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseQuotedInt64 parses declared byte lengths, which exceed the native int
// range on 32-bit builds for large media.
func parseQuotedInt64(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
