// Package mux builds a fresh output container around one video and one audio
// elementary stream, accepting already-encoded packets and emitting the
// container progressively to a byte sink.
package mux

import "github.com/tubemux/tubemux/internal/format"

// ContainerKind is the output container family.
type ContainerKind string

const (
	// KindMP4 is fragmented MP4. It tolerates mixed codec families and is
	// the universal fallback.
	KindMP4 ContainerKind = "mp4"
	// KindWebM is the WebM family. Recognized by kind selection but not
	// writable by this build; Start reports ErrUnsupportedTrack.
	KindWebM ContainerKind = "webm"
)

// MimeType returns the canonical MIME type of a muxed video+audio file of
// this kind.
func (k ContainerKind) MimeType() string {
	if k == KindWebM {
		return "video/webm"
	}
	return "video/mp4"
}

// Extension returns the filename extension for this kind, without dot.
func (k ContainerKind) Extension() string {
	if k == KindWebM {
		return "webm"
	}
	return "mp4"
}

// ChooseContainerKind picks the output container for the given source
// container MIME types. An explicit preference wins; otherwise a family
// shared by both sources is reused, and mixed families fall back to the
// universal kind.
func ChooseContainerKind(videoMime, audioMime, preference string) ContainerKind {
	if preference != "" {
		if format.Family(preference) == string(KindWebM) || preference == string(KindWebM) {
			return KindWebM
		}
		return KindMP4
	}

	vf, af := format.Family(videoMime), format.Family(audioMime)
	if vf != "" && vf == af {
		switch vf {
		case string(KindMP4):
			return KindMP4
		case string(KindWebM):
			return KindWebM
		}
	}
	return KindMP4
}
