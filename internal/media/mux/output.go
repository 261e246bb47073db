package mux

import (
	"fmt"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"

	"github.com/tubemux/tubemux/internal/log"
	"github.com/tubemux/tubemux/internal/media/demux"
)

const (
	videoTrackID = 1
	audioTrackID = 2

	// Pending samples are flushed as one fMP4 part once the batch reaches
	// this count, bounding both memory and part overhead.
	flushBatch = 64
)

// Sample is one encoded sample handed to a track sink. Timing is expressed
// in the timescale the track was added with.
type Sample struct {
	DTS       int64
	PTSOffset int32
	Duration  uint32
	IsNonSync bool
	Payload   []byte
}

type outTrack struct {
	id        int
	timescale uint32
	codec     demux.CodecInfo
	rotation  int

	pending  []*fmp4.PartSample
	baseTime uint64
	wrote    bool
}

// Output writes one video and one audio elementary stream into a fresh
// container bound to a byte sink. AddVideoTrack and AddAudioTrack must both
// be called, in that order, before Start. Concurrent writes to the two track
// sinks are serialized internally; sink backpressure propagates to callers.
type Output struct {
	mu   sync.Mutex
	w    io.Writer
	kind ContainerKind

	video *outTrack
	audio *outTrack

	started   bool
	finalized bool
	writeErr  error
	seq       uint32
	buf       seekablebuffer.Buffer
}

// NewOutput builds a container writer bound to the outgoing byte sink.
func NewOutput(kind ContainerKind, w io.Writer) *Output {
	return &Output{w: w, kind: kind}
}

// AddVideoTrack declares the video elementary stream. rotation is the
// display rotation in degrees.
func (o *Output) AddVideoTrack(codec demux.CodecInfo, timescale uint32, rotation int) error {
	if o.started {
		return fmt.Errorf("%w: track added after start", ErrUnsupportedTrack)
	}
	if o.video != nil {
		return fmt.Errorf("%w: video track already added", ErrUnsupportedTrack)
	}
	o.video = &outTrack{id: videoTrackID, timescale: timescale, codec: codec, rotation: rotation}
	return nil
}

// AddAudioTrack declares the audio elementary stream. The video track must
// have been added first.
func (o *Output) AddAudioTrack(codec demux.CodecInfo, timescale uint32) error {
	if o.started {
		return fmt.Errorf("%w: track added after start", ErrUnsupportedTrack)
	}
	if o.video == nil {
		return fmt.Errorf("%w: audio track added before video track", ErrUnsupportedTrack)
	}
	if o.audio != nil {
		return fmt.Errorf("%w: audio track already added", ErrUnsupportedTrack)
	}
	o.audio = &outTrack{id: audioTrackID, timescale: timescale, codec: codec}
	return nil
}

// Start validates the track configuration against the container kind and
// writes the init section to the sink.
func (o *Output) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return fmt.Errorf("%w: already started", ErrUnsupportedTrack)
	}
	if o.video == nil || o.audio == nil {
		return fmt.Errorf("%w: both tracks must be added before start", ErrUnsupportedTrack)
	}
	if o.kind != KindMP4 {
		return fmt.Errorf("%w: container kind %q is not writable", ErrUnsupportedTrack, o.kind)
	}

	videoCodec, err := codecFor(o.video.codec)
	if err != nil {
		return err
	}
	audioCodec, err := codecFor(o.audio.codec)
	if err != nil {
		return err
	}
	if o.video.rotation != 0 {
		// Adaptive streams arrive pre-rotated; rotation metadata cannot be
		// carried into the fragmented init section and is dropped.
		logger := log.WithComponent("mux")
		logger.Warn().
			Int("rotation", o.video.rotation).
			Msg("dropping source rotation metadata")
	}

	init := fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{ID: o.video.id, TimeScale: o.video.timescale, Codec: videoCodec},
			{ID: o.audio.id, TimeScale: o.audio.timescale, Codec: audioCodec},
		},
	}

	o.buf.Reset()
	if err := init.Marshal(&o.buf); err != nil {
		return fmt.Errorf("%w: init section: %v", ErrWrite, err)
	}
	if _, err := o.w.Write(o.buf.Bytes()); err != nil {
		o.writeErr = err
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	o.started = true
	return nil
}

// WriteVideoSample appends one sample to the video track sink.
func (o *Output) WriteVideoSample(s Sample) error {
	return o.write(o.video, s)
}

// WriteAudioSample appends one sample to the audio track sink.
func (o *Output) WriteAudioSample(s Sample) error {
	return o.write(o.audio, s)
}

func (o *Output) write(t *outTrack, s Sample) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started || o.finalized {
		return fmt.Errorf("%w: output not accepting samples", ErrWrite)
	}
	if o.writeErr != nil {
		return fmt.Errorf("%w: %v", ErrWrite, o.writeErr)
	}

	if len(t.pending) == 0 {
		t.baseTime = uint64(s.DTS)
	}
	t.pending = append(t.pending, &fmp4.PartSample{
		Duration:        s.Duration,
		PTSOffset:       s.PTSOffset,
		IsNonSyncSample: s.IsNonSync,
		Payload:         s.Payload,
	})
	t.wrote = true

	if len(t.pending) >= flushBatch {
		return o.flushLocked(t)
	}
	return nil
}

// flushLocked emits the track's pending samples as one fMP4 part.
// Caller holds o.mu.
func (o *Output) flushLocked(t *outTrack) error {
	if len(t.pending) == 0 {
		return nil
	}
	part := fmp4.Part{
		SequenceNumber: o.seq,
		Tracks: []*fmp4.PartTrack{{
			ID:       t.id,
			BaseTime: t.baseTime,
			Samples:  t.pending,
		}},
	}
	o.seq++
	t.pending = nil

	o.buf.Reset()
	if err := part.Marshal(&o.buf); err != nil {
		o.writeErr = err
		return fmt.Errorf("%w: part: %v", ErrWrite, err)
	}
	if _, err := o.w.Write(o.buf.Bytes()); err != nil {
		o.writeErr = err
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Finalize flushes pending samples and completes the container. It fails if
// either track never received a sample or a prior write failed. The sink is
// not closed; that remains the caller's responsibility.
func (o *Output) Finalize() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return fmt.Errorf("%w: output never started", ErrFinalize)
	}
	if o.finalized {
		return fmt.Errorf("%w: already finalized", ErrFinalize)
	}
	if o.writeErr != nil {
		return fmt.Errorf("%w: prior write error: %v", ErrFinalize, o.writeErr)
	}
	if !o.video.wrote || !o.audio.wrote {
		return fmt.Errorf("%w: a track received no samples", ErrFinalize)
	}

	if err := o.flushLocked(o.video); err != nil {
		return fmt.Errorf("%w: %v", ErrFinalize, err)
	}
	if err := o.flushLocked(o.audio); err != nil {
		return fmt.Errorf("%w: %v", ErrFinalize, err)
	}
	o.finalized = true
	return nil
}
