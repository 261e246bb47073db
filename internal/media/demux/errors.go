package demux

import "errors"

var (
	// ErrContainerParse indicates the byte stream could not be parsed as a
	// recognized container.
	ErrContainerParse = errors.New("demux: unrecognized or malformed container")
	// ErrTrackNotFound indicates the container carries no track of the
	// expected kind.
	ErrTrackNotFound = errors.New("demux: no track of expected kind")
	// ErrPacketRead indicates the underlying stream failed mid-packet.
	ErrPacketRead = errors.New("demux: packet read failed")
)
