package mux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubemux/tubemux/internal/media/demux"
)

var (
	testSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02, 0x27, 0xe5, 0x84,
		0x00, 0x00, 0x03, 0x00, 0x04, 0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c,
		0x60, 0xc9, 0x20,
	}
	testPPS = []byte{0x68, 0xee, 0x3c, 0x80}
)

func h264Codec() demux.CodecInfo {
	return demux.CodecInfo{
		FourCC: "avc1",
		SPS:    [][]byte{testSPS},
		PPS:    [][]byte{testPPS},
		Width:  1920,
		Height: 1080,
	}
}

func aacCodec() demux.CodecInfo {
	return demux.CodecInfo{
		FourCC:     "mp4a",
		Channels:   2,
		SampleRate: 44100,
	}
}

func TestChooseContainerKind(t *testing.T) {
	tests := []struct {
		name       string
		videoMime  string
		audioMime  string
		preference string
		want       ContainerKind
	}{
		{"both mp4", "video/mp4; codecs=\"avc1.640028\"", "audio/mp4; codecs=\"mp4a.40.2\"", "", KindMP4},
		{"both webm", "video/webm; codecs=\"vp9\"", "audio/webm; codecs=\"opus\"", "", KindWebM},
		{"mixed families fall back", "video/webm; codecs=\"vp9\"", "audio/mp4; codecs=\"mp4a.40.2\"", "", KindMP4},
		{"mixed reversed", "video/mp4", "audio/webm", "", KindMP4},
		{"preference wins", "video/mp4", "audio/mp4", "webm", KindWebM},
		{"mp4 preference", "video/webm", "audio/webm", "mp4", KindMP4},
		{"unknown mimes", "", "", "", KindMP4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseContainerKind(tt.videoMime, tt.audioMime, tt.preference))
		})
	}
}

func TestContainerKindMeta(t *testing.T) {
	assert.Equal(t, "video/mp4", KindMP4.MimeType())
	assert.Equal(t, "mp4", KindMP4.Extension())
	assert.Equal(t, "video/webm", KindWebM.MimeType())
	assert.Equal(t, "webm", KindWebM.Extension())
}

func TestOutputTrackOrdering(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(KindMP4, &buf)

	err := out.AddAudioTrack(aacCodec(), 44100)
	require.ErrorIs(t, err, ErrUnsupportedTrack)

	require.NoError(t, out.AddVideoTrack(h264Codec(), 90000, 0))
	require.NoError(t, out.AddAudioTrack(aacCodec(), 44100))

	err = out.AddVideoTrack(h264Codec(), 90000, 0)
	require.ErrorIs(t, err, ErrUnsupportedTrack)
}

func TestOutputStartRequiresBothTracks(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(KindMP4, &buf)
	require.NoError(t, out.AddVideoTrack(h264Codec(), 90000, 0))

	err := out.Start()
	require.ErrorIs(t, err, ErrUnsupportedTrack)
	assert.Zero(t, buf.Len())
}

func TestOutputStartWritesInit(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(KindMP4, &buf)
	require.NoError(t, out.AddVideoTrack(h264Codec(), 90000, 0))
	require.NoError(t, out.AddAudioTrack(aacCodec(), 44100))
	require.NoError(t, out.Start())

	require.Greater(t, buf.Len(), 8)
	assert.Equal(t, []byte("ftyp"), buf.Bytes()[4:8])
	assert.Contains(t, buf.String(), "moov")
}

func TestOutputRejectsWritesBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(KindMP4, &buf)
	require.NoError(t, out.AddVideoTrack(h264Codec(), 90000, 0))
	require.NoError(t, out.AddAudioTrack(aacCodec(), 44100))

	err := out.WriteVideoSample(Sample{Payload: []byte{0x01}})
	require.ErrorIs(t, err, ErrWrite)
}

func TestOutputFinalizeRequiresSamplesOnBothTracks(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(KindMP4, &buf)
	require.NoError(t, out.AddVideoTrack(h264Codec(), 90000, 0))
	require.NoError(t, out.AddAudioTrack(aacCodec(), 44100))
	require.NoError(t, out.Start())

	require.NoError(t, out.WriteVideoSample(Sample{Duration: 3000, Payload: []byte{0x01}}))

	err := out.Finalize()
	require.ErrorIs(t, err, ErrFinalize)
}

func TestOutputLifecycle(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(KindMP4, &buf)
	require.NoError(t, out.AddVideoTrack(h264Codec(), 90000, 0))
	require.NoError(t, out.AddAudioTrack(aacCodec(), 44100))
	require.NoError(t, out.Start())
	initLen := buf.Len()

	for i := 0; i < 3; i++ {
		require.NoError(t, out.WriteVideoSample(Sample{
			DTS:      int64(i) * 3000,
			Duration: 3000,
			Payload:  []byte{0xaa, byte(i)},
		}))
		require.NoError(t, out.WriteAudioSample(Sample{
			DTS:      int64(i) * 1024,
			Duration: 1024,
			Payload:  []byte{0xbb, byte(i)},
		}))
	}

	require.NoError(t, out.Finalize())
	// Fragments follow the init section once finalized.
	require.Greater(t, buf.Len(), initLen)
	assert.Contains(t, buf.String(), "moof")
	assert.Contains(t, buf.String(), "mdat")

	// Double finalize and post-finalize writes are rejected.
	require.ErrorIs(t, out.Finalize(), ErrFinalize)
	require.ErrorIs(t, out.WriteVideoSample(Sample{Payload: []byte{0x01}}), ErrWrite)
}

func TestOutputWebMNotWritable(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(KindWebM, &buf)
	require.NoError(t, out.AddVideoTrack(h264Codec(), 90000, 0))
	require.NoError(t, out.AddAudioTrack(aacCodec(), 44100))

	err := out.Start()
	require.ErrorIs(t, err, ErrUnsupportedTrack)
	assert.Zero(t, buf.Len())
}

func TestCodecForUnsupported(t *testing.T) {
	_, err := codecFor(demux.CodecInfo{FourCC: "vp09"})
	require.ErrorIs(t, err, ErrUnsupportedTrack)

	_, err = codecFor(demux.CodecInfo{FourCC: "avc1"})
	require.ErrorIs(t, err, ErrUnsupportedTrack)
}

func TestCodecForAACFallback(t *testing.T) {
	c, err := codecFor(demux.CodecInfo{FourCC: "mp4a"})
	require.NoError(t, err)
	require.NotNil(t, c)
}
