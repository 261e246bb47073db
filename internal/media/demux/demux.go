// Package demux extracts one elementary track from a fragmented MP4 byte
// stream. The stream is consumed progressively: the init section (ftyp+moov)
// is parsed up front, then moof+mdat pairs are walked as packets are pulled,
// so memory stays bounded by the fragment size.
package demux

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

const (
	maxInitSize     = 32 << 20 // moov boxes beyond this are treated as malformed
	maxFragmentSize = 8 << 20  // moof boxes beyond this are treated as malformed
)

// Demuxer owns one upstream byte stream and exposes the single track of the
// expected kind found in it.
type Demuxer struct {
	src io.ReadCloser
	r   *bufio.Reader
	pos uint64 // absolute offset of the next unread byte

	track   *Track
	trex    map[uint32]trexDefaults
	nextDTS int64 // fallback decode time when a fragment lacks tfdt

	frag    []sampleInfo
	fragIdx int
	mdatEnd uint64 // absolute end of the open mdat payload, 0 when closed

	closeOnce sync.Once
	closeErr  error
	sticky    error
}

type trexDefaults struct {
	duration uint32
	size     uint32
	flags    uint32
}

type sampleInfo struct {
	offset    uint64 // absolute stream offset
	size      uint32
	dts       int64
	ptsOffset int32
	duration  uint32
	isNonSync bool
}

// Open parses the stream's init section and locates the single track of the
// expected kind. On failure the source stream is closed. The returned Track
// holds the stream open until Close is called.
func Open(src io.ReadCloser, kind TrackKind) (*Track, error) {
	d := &Demuxer{
		src:  src,
		r:    bufio.NewReaderSize(src, 64<<10),
		trex: make(map[uint32]trexDefaults),
	}
	track, err := d.readInit(kind)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	track.d = d
	d.track = track
	return track, nil
}

// Close releases the upstream stream. Idempotent.
func (d *Demuxer) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.src.Close()
	})
	return d.closeErr
}

// readInit consumes boxes until moov is parsed.
func (d *Demuxer) readInit(kind TrackKind) (*Track, error) {
	first := true
	for {
		typ, payloadSize, err := d.readBoxHeader()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContainerParse, err)
		}
		if first && !knownTopLevelBox(typ) {
			return nil, fmt.Errorf("%w: unexpected leading box %q", ErrContainerParse, typ)
		}
		first = false

		switch typ {
		case "moov":
			if payloadSize > maxInitSize {
				return nil, fmt.Errorf("%w: oversized moov (%d bytes)", ErrContainerParse, payloadSize)
			}
			payload := make([]byte, payloadSize)
			if _, err := io.ReadFull(d.r, payload); err != nil {
				return nil, fmt.Errorf("%w: truncated moov: %v", ErrContainerParse, err)
			}
			d.pos += payloadSize
			return d.parseMoov(payload, kind)
		case "moof", "mdat":
			return nil, fmt.Errorf("%w: fragment before init section", ErrContainerParse)
		default:
			// ftyp, styp, sidx, free and friends carry nothing we need.
			if err := d.discard(payloadSize); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrContainerParse, err)
			}
		}
	}
}

// next returns the following packet of the demuxer's track.
func (d *Demuxer) next() (*Packet, error) {
	if d.sticky != nil {
		return nil, d.sticky
	}
	pkt, err := d.advance()
	if err != nil && err != io.EOF {
		d.sticky = err
	}
	return pkt, err
}

func (d *Demuxer) advance() (*Packet, error) {
	for {
		// Emit pending fragment samples once their mdat is open.
		if d.fragIdx < len(d.frag) && d.mdatEnd > 0 {
			s := d.frag[d.fragIdx]
			if s.offset < d.pos || uint64(s.size) > d.mdatEnd-s.offset {
				return nil, fmt.Errorf("%w: sample outside mdat bounds", ErrPacketRead)
			}
			if err := d.discard(s.offset - d.pos); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPacketRead, err)
			}
			payload := make([]byte, s.size)
			if _, err := io.ReadFull(d.r, payload); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPacketRead, err)
			}
			d.pos += uint64(s.size)
			d.fragIdx++
			return &Packet{
				DTS:       s.dts,
				PTSOffset: s.ptsOffset,
				Duration:  s.duration,
				IsNonSync: s.isNonSync,
				Payload:   payload,
			}, nil
		}

		// Fragment exhausted: skip whatever trails in the mdat.
		if d.mdatEnd > d.pos {
			if err := d.discard(d.mdatEnd - d.pos); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPacketRead, err)
			}
		}
		if d.mdatEnd > 0 {
			d.mdatEnd = 0
			d.frag = nil
			d.fragIdx = 0
		}

		typ, payloadSize, err := d.readBoxHeader()
		if err == io.EOF {
			if d.fragIdx < len(d.frag) {
				return nil, fmt.Errorf("%w: stream ended before fragment data", ErrPacketRead)
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPacketRead, err)
		}

		switch typ {
		case "moof":
			if payloadSize > maxFragmentSize {
				return nil, fmt.Errorf("%w: oversized moof (%d bytes)", ErrPacketRead, payloadSize)
			}
			moofStart := d.pos - 8 // header already consumed
			payload := make([]byte, payloadSize)
			if _, err := io.ReadFull(d.r, payload); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPacketRead, err)
			}
			d.pos += payloadSize
			frag, err := d.parseMoof(payload, moofStart)
			if err != nil {
				return nil, err
			}
			d.frag = frag
			d.fragIdx = 0
		case "mdat":
			if len(d.frag) == 0 || d.fragIdx >= len(d.frag) {
				// mdat without samples for our track, e.g. a fragment of a
				// track kind we do not carry.
				if err := d.discard(payloadSize); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrPacketRead, err)
				}
				continue
			}
			d.mdatEnd = d.pos + payloadSize
		default:
			if err := d.discard(payloadSize); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPacketRead, err)
			}
		}
	}
}

// readBoxHeader reads the next top-level box header. io.EOF is returned only
// on a clean box boundary.
func (d *Demuxer) readBoxHeader() (string, uint64, error) {
	var hdr [8]byte
	n, err := io.ReadFull(d.r, hdr[:])
	if err == io.EOF && n == 0 {
		return "", 0, io.EOF
	}
	if err != nil {
		return "", 0, fmt.Errorf("short box header: %v", err)
	}
	d.pos += 8

	size := uint64(binary.BigEndian.Uint32(hdr[:4]))
	typ := string(hdr[4:8])
	headerSize := uint64(8)

	if size == 1 {
		var ext [8]byte
		if _, err := io.ReadFull(d.r, ext[:]); err != nil {
			return "", 0, fmt.Errorf("short largesize header: %v", err)
		}
		d.pos += 8
		size = binary.BigEndian.Uint64(ext[:])
		headerSize = 16
	}
	if size < headerSize {
		return "", 0, fmt.Errorf("invalid box size %d for %q", size, typ)
	}
	return typ, size - headerSize, nil
}

func (d *Demuxer) discard(n uint64) error {
	if n == 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, d.r, int64(n)); err != nil {
		return err
	}
	d.pos += n
	return nil
}

func knownTopLevelBox(typ string) bool {
	switch typ {
	case "ftyp", "styp", "moov", "moof", "mdat", "sidx", "free", "skip",
		"wide", "pdin", "emsg", "prft", "uuid", "meta":
		return true
	}
	return false
}
