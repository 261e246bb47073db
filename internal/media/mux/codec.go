package mux

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	mcmp4 "github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/tubemux/tubemux/internal/media/demux"
)

// codecFor maps a demuxed codec description onto a muxable codec. Decoder
// configuration is applied best-effort: an AAC track without an explicit
// AudioSpecificConfig falls back to AAC-LC parameters from the sample entry.
func codecFor(info demux.CodecInfo) (mcmp4.Codec, error) {
	switch info.FourCC {
	case "avc1", "avc3":
		if len(info.SPS) == 0 || len(info.PPS) == 0 {
			return nil, fmt.Errorf("%w: H.264 track without parameter sets", ErrUnsupportedTrack)
		}
		return &mcmp4.CodecH264{
			SPS: info.SPS[0],
			PPS: info.PPS[0],
		}, nil

	case "mp4a":
		var conf mpeg4audio.Config
		if len(info.AudioSpecificConfig) > 0 {
			if err := conf.Unmarshal(info.AudioSpecificConfig); err != nil {
				return nil, fmt.Errorf("%w: invalid AudioSpecificConfig: %v", ErrUnsupportedTrack, err)
			}
		} else {
			conf = mpeg4audio.Config{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   orDefault(info.SampleRate, 44100),
				ChannelCount: orDefault(info.Channels, 2),
			}
		}
		return &mcmp4.CodecMPEG4Audio{Config: conf}, nil

	default:
		return nil, fmt.Errorf("%w: codec %q", ErrUnsupportedTrack, info.FourCC)
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
