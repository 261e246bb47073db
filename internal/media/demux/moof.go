package demux

import (
	"bytes"
	"fmt"

	gomp4 "github.com/abema/go-mp4"
)

// tfhd / trun flag bits per ISO 14496-12.
const (
	tfhdBaseDataOffsetPresent  = 0x000001
	tfhdDefaultDurationPresent = 0x000008
	tfhdDefaultSizePresent     = 0x000010
	tfhdDefaultFlagsPresent    = 0x000020

	trunDataOffsetPresent       = 0x000001
	trunFirstSampleFlagsPresent = 0x000004
	trunSampleDurationPresent   = 0x000100
	trunSampleSizePresent       = 0x000200
	trunSampleFlagsPresent      = 0x000400
	trunSampleCTSPresent        = 0x000800

	sampleFlagIsNonSync = 0x00010000
)

// parseMoof extracts the sample table of the demuxer's track from one movie
// fragment. Sample offsets are absolute stream positions, resolved against
// the moof start per the default-base-is-moof convention.
func (d *Demuxer) parseMoof(payload []byte, moofStart uint64) ([]sampleInfo, error) {
	var (
		samples []sampleInfo

		inOurTraf bool
		defaults  trexDefaults
		curOffset uint64
		dts       int64
	)

	_, err := gomp4.ReadBoxStructure(bytes.NewReader(payload), func(h *gomp4.ReadHandle) (any, error) {
		switch h.BoxInfo.Type {
		case gomp4.BoxTypeTraf():
			inOurTraf = false
			return h.Expand()

		case gomp4.BoxTypeTfhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tfhd := box.(*gomp4.Tfhd)
			if tfhd.TrackID != d.track.TrackID {
				return nil, nil
			}
			inOurTraf = true
			defaults = d.trex[tfhd.TrackID]
			if tfhd.CheckFlag(tfhdDefaultDurationPresent) {
				defaults.duration = tfhd.DefaultSampleDuration
			}
			if tfhd.CheckFlag(tfhdDefaultSizePresent) {
				defaults.size = tfhd.DefaultSampleSize
			}
			if tfhd.CheckFlag(tfhdDefaultFlagsPresent) {
				defaults.flags = tfhd.DefaultSampleFlags
			}
			if tfhd.CheckFlag(tfhdBaseDataOffsetPresent) {
				curOffset = tfhd.BaseDataOffset
			} else {
				curOffset = moofStart
			}
			dts = d.nextDTS
			return nil, nil

		case gomp4.BoxTypeTfdt():
			if !inOurTraf {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tfdt := box.(*gomp4.Tfdt)
			if tfdt.GetVersion() == 0 {
				dts = int64(tfdt.BaseMediaDecodeTimeV0)
			} else {
				dts = int64(tfdt.BaseMediaDecodeTimeV1)
			}
			return nil, nil

		case gomp4.BoxTypeTrun():
			if !inOurTraf {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			trun := box.(*gomp4.Trun)

			offset := curOffset
			if trun.CheckFlag(trunDataOffsetPresent) {
				offset = moofStart + uint64(int64(trun.DataOffset))
			}

			for i, e := range trun.Entries {
				duration := defaults.duration
				if trun.CheckFlag(trunSampleDurationPresent) {
					duration = e.SampleDuration
				}
				size := defaults.size
				if trun.CheckFlag(trunSampleSizePresent) {
					size = e.SampleSize
				}
				flags := defaults.flags
				if trun.CheckFlag(trunSampleFlagsPresent) {
					flags = e.SampleFlags
				}
				if i == 0 && trun.CheckFlag(trunFirstSampleFlagsPresent) {
					flags = trun.FirstSampleFlags
				}
				var cts int32
				if trun.CheckFlag(trunSampleCTSPresent) {
					if trun.GetVersion() == 0 {
						cts = int32(e.SampleCompositionTimeOffsetV0)
					} else {
						cts = e.SampleCompositionTimeOffsetV1
					}
				}

				samples = append(samples, sampleInfo{
					offset:    offset,
					size:      size,
					dts:       dts,
					ptsOffset: cts,
					duration:  duration,
					isNonSync: flags&sampleFlagIsNonSync != 0,
				})
				offset += uint64(size)
				dts += int64(duration)
			}
			curOffset = offset
			return nil, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: malformed moof: %v", ErrPacketRead, err)
	}

	d.nextDTS = dts
	return samples, nil
}
