package demux

import (
	"bytes"
	"fmt"

	gomp4 "github.com/abema/go-mp4"
)

var (
	boxTypeAvc1 = gomp4.StrToBoxType("avc1")
	boxTypeAvc3 = gomp4.StrToBoxType("avc3")
	boxTypeHev1 = gomp4.StrToBoxType("hev1")
	boxTypeHvc1 = gomp4.StrToBoxType("hvc1")
	boxTypeVp09 = gomp4.StrToBoxType("vp09")
	boxTypeAv01 = gomp4.StrToBoxType("av01")
	boxTypeMp4a = gomp4.StrToBoxType("mp4a")
	boxTypeOpus = gomp4.StrToBoxType("Opus")
	boxTypeAvcC = gomp4.StrToBoxType("avcC")
	boxTypeEsds = gomp4.StrToBoxType("esds")
)

type trackMeta struct {
	id        uint32
	timescale uint32
	handler   string
	rotation  int
	codec     CodecInfo
}

// parseMoov walks the moov payload, fills fragment defaults from mvex and
// returns the single track of the expected kind.
func (d *Demuxer) parseMoov(payload []byte, kind TrackKind) (*Track, error) {
	var (
		tracks []*trackMeta
		cur    *trackMeta
	)

	_, err := gomp4.ReadBoxStructure(bytes.NewReader(payload), func(h *gomp4.ReadHandle) (any, error) {
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeTrak():
			cur = &trackMeta{}
			tracks = append(tracks, cur)
			return h.Expand()

		case gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(),
			gomp4.BoxTypeStsd(), gomp4.BoxTypeMvex():
			return h.Expand()

		case gomp4.BoxTypeTkhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if cur != nil {
				tkhd := box.(*gomp4.Tkhd)
				cur.id = tkhd.TrackID
				cur.rotation = rotationFromMatrix(tkhd.Matrix)
			}
			return nil, nil

		case gomp4.BoxTypeMdhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if cur != nil {
				cur.timescale = box.(*gomp4.Mdhd).Timescale
			}
			return nil, nil

		case gomp4.BoxTypeHdlr():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if cur != nil {
				hdlr := box.(*gomp4.Hdlr)
				cur.handler = string(hdlr.HandlerType[:])
			}
			return nil, nil

		case boxTypeAvc1, boxTypeAvc3, boxTypeHev1, boxTypeHvc1, boxTypeVp09, boxTypeAv01:
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if cur != nil {
				entry := box.(*gomp4.VisualSampleEntry)
				cur.codec.FourCC = h.BoxInfo.Type.String()
				cur.codec.Width = int(entry.Width)
				cur.codec.Height = int(entry.Height)
			}
			return h.Expand()

		case boxTypeMp4a, boxTypeOpus:
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if cur != nil {
				entry := box.(*gomp4.AudioSampleEntry)
				cur.codec.FourCC = h.BoxInfo.Type.String()
				cur.codec.Channels = int(entry.ChannelCount)
				cur.codec.SampleRate = int(entry.SampleRate >> 16) // 16.16 fixed point
			}
			return h.Expand()

		case boxTypeAvcC:
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if cur != nil {
				avcc := box.(*gomp4.AVCDecoderConfiguration)
				for _, ps := range avcc.SequenceParameterSets {
					cur.codec.SPS = append(cur.codec.SPS, ps.NALUnit)
				}
				for _, ps := range avcc.PictureParameterSets {
					cur.codec.PPS = append(cur.codec.PPS, ps.NALUnit)
				}
			}
			return nil, nil

		case boxTypeEsds:
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if cur != nil {
				esds := box.(*gomp4.Esds)
				for _, desc := range esds.Descriptors {
					if desc.Tag == gomp4.DecSpecificInfoTag {
						cur.codec.AudioSpecificConfig = desc.Data
					}
				}
			}
			return nil, nil

		case gomp4.BoxTypeTrex():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			trex := box.(*gomp4.Trex)
			d.trex[trex.TrackID] = trexDefaults{
				duration: trex.DefaultSampleDuration,
				size:     trex.DefaultSampleSize,
				flags:    trex.DefaultSampleFlags,
			}
			return nil, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainerParse, err)
	}

	for _, meta := range tracks {
		if meta.handler != kind.handlerType() {
			continue
		}
		if meta.timescale == 0 {
			return nil, fmt.Errorf("%w: track %d has no timescale", ErrContainerParse, meta.id)
		}
		return &Track{
			Kind:      kind,
			TrackID:   meta.id,
			Timescale: meta.timescale,
			Codec:     meta.codec,
			Rotation:  meta.rotation,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, kind)
}

// rotationFromMatrix derives the display rotation in degrees from the tkhd
// transformation matrix (16.16 fixed point).
func rotationFromMatrix(m [9]int32) int {
	a, b := m[0]>>16, m[1]>>16
	c, e := m[3]>>16, m[4]>>16
	switch {
	case a == 0 && e == 0 && b == 1 && c == -1:
		return 90
	case a == -1 && e == -1:
		return 180
	case a == 0 && e == 0 && b == -1 && c == 1:
		return 270
	default:
		return 0
	}
}
