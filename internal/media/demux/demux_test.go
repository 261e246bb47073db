package demux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	mcmp4 "github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02, 0x27, 0xe5, 0x84,
		0x00, 0x00, 0x03, 0x00, 0x04, 0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c,
		0x60, 0xc9, 0x20,
	}
	testPPS = []byte{0x68, 0xee, 0x3c, 0x80}
)

type closeCounter struct {
	io.Reader
	mu     sync.Mutex
	closes int
}

func (c *closeCounter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *closeCounter) closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func videoInit(t *testing.T) []byte {
	t.Helper()
	var buf seekablebuffer.Buffer
	init := fmp4.Init{Tracks: []*fmp4.InitTrack{{
		ID:        1,
		TimeScale: 90000,
		Codec:     &mcmp4.CodecH264{SPS: testSPS, PPS: testPPS},
	}}}
	require.NoError(t, init.Marshal(&buf))
	return append([]byte(nil), buf.Bytes()...)
}

func audioInit(t *testing.T) []byte {
	t.Helper()
	var buf seekablebuffer.Buffer
	init := fmp4.Init{Tracks: []*fmp4.InitTrack{{
		ID:        1,
		TimeScale: 44100,
		Codec: &mcmp4.CodecMPEG4Audio{Config: mpeg4audio.Config{
			Type:         mpeg4audio.ObjectTypeAACLC,
			SampleRate:   44100,
			ChannelCount: 2,
		}},
	}}}
	require.NoError(t, init.Marshal(&buf))
	return append([]byte(nil), buf.Bytes()...)
}

func videoFragment(t *testing.T, seq uint32, baseTime uint64, payloads ...[]byte) []byte {
	t.Helper()
	samples := make([]*fmp4.PartSample, len(payloads))
	for i, p := range payloads {
		samples[i] = &fmp4.PartSample{
			Duration:        3000,
			PTSOffset:       int32(i) * 10,
			IsNonSyncSample: i > 0,
			Payload:         p,
		}
	}
	var buf seekablebuffer.Buffer
	part := fmp4.Part{
		SequenceNumber: seq,
		Tracks: []*fmp4.PartTrack{{
			ID:       1,
			BaseTime: baseTime,
			Samples:  samples,
		}},
	}
	require.NoError(t, part.Marshal(&buf))
	return append([]byte(nil), buf.Bytes()...)
}

func TestOpenRejectsGarbage(t *testing.T) {
	src := &closeCounter{Reader: bytes.NewReader([]byte("definitely not an iso bmff stream"))}

	_, err := Open(src, KindVideo)
	require.ErrorIs(t, err, ErrContainerParse)
	assert.Equal(t, 1, src.closed())
}

func TestOpenEmptyStream(t *testing.T) {
	src := &closeCounter{Reader: bytes.NewReader(nil)}

	_, err := Open(src, KindVideo)
	require.ErrorIs(t, err, ErrContainerParse)
	assert.Equal(t, 1, src.closed())
}

func TestOpenFragmentBeforeInit(t *testing.T) {
	frag := videoFragment(t, 1, 0, []byte{0x01, 0x02})
	// Valid ftyp, then a fragment with no moov in between.
	stream := append([]byte{0x00, 0x00, 0x00, 0x10, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 0, 1}, frag...)
	src := &closeCounter{Reader: bytes.NewReader(stream)}

	_, err := Open(src, KindVideo)
	require.ErrorIs(t, err, ErrContainerParse)
	assert.Equal(t, 1, src.closed())
}

func TestOpenTrackKindMismatch(t *testing.T) {
	src := &closeCounter{Reader: bytes.NewReader(audioInit(t))}

	_, err := Open(src, KindVideo)
	require.ErrorIs(t, err, ErrTrackNotFound)
	assert.Equal(t, 1, src.closed())
}

func TestOpenVideoTrack(t *testing.T) {
	src := &closeCounter{Reader: bytes.NewReader(videoInit(t))}

	track, err := Open(src, KindVideo)
	require.NoError(t, err)
	defer track.Close() //nolint:errcheck

	assert.Equal(t, KindVideo, track.Kind)
	assert.Equal(t, uint32(1), track.TrackID)
	assert.Equal(t, uint32(90000), track.Timescale)
	assert.Equal(t, "avc1", track.Codec.FourCC)
	require.Len(t, track.Codec.SPS, 1)
	assert.Equal(t, testSPS, track.Codec.SPS[0])
	require.Len(t, track.Codec.PPS, 1)
	assert.Equal(t, testPPS, track.Codec.PPS[0])
	assert.True(t, track.Codec.HasConfig())
	assert.Equal(t, 0, track.Rotation)
}

func TestDemuxPackets(t *testing.T) {
	stream := videoInit(t)
	stream = append(stream, videoFragment(t, 1, 0, []byte{0xaa, 0xbb}, []byte{0xcc})...)
	stream = append(stream, videoFragment(t, 2, 6000, []byte{0xdd, 0xee, 0xff})...)
	src := &closeCounter{Reader: bytes.NewReader(stream)}

	track, err := Open(src, KindVideo)
	require.NoError(t, err)
	defer track.Close() //nolint:errcheck

	wantPayloads := [][]byte{
		{0xaa, 0xbb}, {0xcc},
		{0xdd, 0xee, 0xff},
	}
	wantDTS := []int64{0, 3000, 6000}
	wantNonSync := []bool{false, true, false}

	for i := range wantPayloads {
		pkt, err := track.Next()
		require.NoError(t, err, "packet %d", i)
		assert.Equal(t, wantPayloads[i], pkt.Payload, "packet %d payload", i)
		assert.Equal(t, wantDTS[i], pkt.DTS, "packet %d dts", i)
		assert.Equal(t, uint32(3000), pkt.Duration, "packet %d duration", i)
		assert.Equal(t, wantNonSync[i], pkt.IsNonSync, "packet %d sync flag", i)
	}

	_, err = track.Next()
	require.ErrorIs(t, err, io.EOF)
	// End of stream is sticky.
	_, err = track.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDemuxTruncatedFragment(t *testing.T) {
	stream := videoInit(t)
	frag := videoFragment(t, 1, 0, bytes.Repeat([]byte{0x42}, 512))
	stream = append(stream, frag[:len(frag)-100]...)
	src := &closeCounter{Reader: bytes.NewReader(stream)}

	track, err := Open(src, KindVideo)
	require.NoError(t, err)
	defer track.Close() //nolint:errcheck

	_, err = track.Next()
	require.ErrorIs(t, err, ErrPacketRead)
	// Failures are sticky.
	_, err = track.Next()
	require.ErrorIs(t, err, ErrPacketRead)
}

func TestDemuxReadErrorMidStream(t *testing.T) {
	boom := errors.New("connection reset")
	stream := videoInit(t)
	stream = append(stream, videoFragment(t, 1, 0, []byte{0x01})...)
	src := &closeCounter{Reader: io.MultiReader(
		bytes.NewReader(stream),
		readerFunc(func([]byte) (int, error) { return 0, boom }),
	)}

	track, err := Open(src, KindVideo)
	require.NoError(t, err)
	defer track.Close() //nolint:errcheck

	pkt, err := track.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, pkt.Payload)

	_, err = track.Next()
	require.ErrorIs(t, err, ErrPacketRead)
}

func TestCloseIdempotent(t *testing.T) {
	src := &closeCounter{Reader: bytes.NewReader(videoInit(t))}

	track, err := Open(src, KindVideo)
	require.NoError(t, err)

	require.NoError(t, track.Close())
	require.NoError(t, track.Close())
	assert.Equal(t, 1, src.closed())
}

func TestRotationFromMatrix(t *testing.T) {
	identity := [9]int32{1 << 16, 0, 0, 0, 1 << 16, 0, 0, 0, 1 << 30}
	rot90 := [9]int32{0, 1 << 16, 0, -(1 << 16), 0, 0, 0, 0, 1 << 30}
	rot180 := [9]int32{-(1 << 16), 0, 0, 0, -(1 << 16), 0, 0, 0, 1 << 30}
	rot270 := [9]int32{0, -(1 << 16), 0, 1 << 16, 0, 0, 0, 0, 1 << 30}

	assert.Equal(t, 0, rotationFromMatrix(identity))
	assert.Equal(t, 90, rotationFromMatrix(rot90))
	assert.Equal(t, 180, rotationFromMatrix(rot180))
	assert.Equal(t, 270, rotationFromMatrix(rot270))
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
