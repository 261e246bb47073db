package demux

// TrackKind identifies the elementary stream kind expected in a container.
type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// handlerType returns the mp4 handler fourcc for the kind.
func (k TrackKind) handlerType() string {
	if k == KindAudio {
		return "soun"
	}
	return "vide"
}

// CodecInfo describes the elementary track's codec and its decoder
// configuration as found in the sample description. Parameter sets and the
// AudioSpecificConfig are best-effort: a missing configuration leaves the
// fields empty without failing the demux session.
type CodecInfo struct {
	// FourCC is the sample entry type, e.g. "avc1", "mp4a".
	FourCC string

	// H.264 parameter sets (from avcC).
	SPS [][]byte
	PPS [][]byte

	// AAC AudioSpecificConfig (from esds).
	AudioSpecificConfig []byte

	Width      int
	Height     int
	Channels   int
	SampleRate int
}

// HasConfig reports whether any out-of-band decoder configuration was found.
func (c CodecInfo) HasConfig() bool {
	return len(c.SPS) > 0 || len(c.PPS) > 0 || len(c.AudioSpecificConfig) > 0
}

// Packet is one encoded sample with timing metadata. The payload is opaque
// and relayed without inspection.
type Packet struct {
	// DTS in track timescale units.
	DTS int64
	// PTSOffset is the composition time offset in timescale units.
	PTSOffset int32
	// Duration in timescale units.
	Duration uint32
	// IsNonSync marks samples that are not random access points.
	IsNonSync bool

	Payload []byte
}

// Track is the single elementary track extracted from one container stream.
// Its packet sequence is lazy, forward-only and non-restartable; the Track is
// owned by the demux session that produced it.
type Track struct {
	Kind      TrackKind
	TrackID   uint32
	Timescale uint32
	Codec     CodecInfo
	// Rotation is the display rotation in degrees (video only): 0, 90, 180
	// or 270, counter-clockwise.
	Rotation int

	d *Demuxer
}

// Next returns the next encoded packet, io.EOF on natural end of stream, or
// an error wrapping ErrPacketRead on underlying failure.
func (t *Track) Next() (*Packet, error) {
	return t.d.next()
}

// Close releases the underlying byte stream. Idempotent.
func (t *Track) Close() error {
	return t.d.Close()
}
