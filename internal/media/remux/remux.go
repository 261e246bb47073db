// Package remux merges a video-only and an audio-only stream into one fresh
// output container, on the fly, without touching encoded payloads. The two
// sources are demuxed concurrently and relayed packet by packet into the
// container builder; the first abnormal end on either side aborts the whole
// session and tears down the peer.
package remux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tubemux/tubemux/internal/log"
	"github.com/tubemux/tubemux/internal/media/demux"
	"github.com/tubemux/tubemux/internal/media/mux"
	"github.com/tubemux/tubemux/internal/metrics"
)

// packetSource is the forward-only packet sequence a pump drains.
type packetSource interface {
	Next() (*demux.Packet, error)
	Close() error
}

// Merge demuxes videoSrc and audioSrc, remultiplexes both elementary tracks
// into a container of the given kind and streams it to w. It returns nil
// only when both sources ended naturally and the container was finalized.
//
// On any failure the error that triggered the abort is returned; errors from
// tearing down the peer are logged, not surfaced. Both sources are closed
// before Merge returns, on every path. Cancelling ctx aborts the session by
// closing both sources, which abandons any in-flight read.
func Merge(ctx context.Context, videoSrc, audioSrc io.ReadCloser, kind mux.ContainerKind, w io.Writer) error {
	start := time.Now()
	logger := log.WithComponentFromContext(ctx, "remux").With().
		Str("session_id", uuid.NewString()).
		Str("container", string(kind)).
		Logger()

	metrics.RemuxSessionsActive.Inc()
	defer metrics.RemuxSessionsActive.Dec()

	closeSources := func() {
		_ = videoSrc.Close()
		_ = audioSrc.Close()
	}
	stopOpen := context.AfterFunc(ctx, closeSources)

	video, audio, err := openTracks(videoSrc, audioSrc)
	stopOpen()
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		logger.Error().Err(err).Str("event", "remux.open_failed").Msg("source demux failed")
		metrics.ObserveRemuxSession("aborted", reason(err), time.Since(start))
		return err
	}
	defer func() {
		if cerr := video.Close(); cerr != nil {
			logger.Debug().Err(cerr).Msg("video source close")
		}
		if cerr := audio.Close(); cerr != nil {
			logger.Debug().Err(cerr).Msg("audio source close")
		}
	}()

	out := mux.NewOutput(kind, w)
	if err := configureOutput(out, video, audio); err != nil {
		logger.Error().Err(err).Str("event", "remux.configure_failed").Msg("output configuration failed")
		metrics.ObserveRemuxSession("aborted", reason(err), time.Since(start))
		return err
	}

	logger.Info().
		Str("event", "remux.streaming").
		Str("video_codec", video.Codec.FourCC).
		Str("audio_codec", audio.Codec.FourCC).
		Uint32("video_timescale", video.Timescale).
		Uint32("audio_timescale", audio.Timescale).
		Msg("merge pipeline streaming")

	g, gctx := errgroup.WithContext(ctx)
	// Closing the sources is the only way to abandon a pump blocked in a
	// network read; gctx is done as soon as either pump fails or ctx is
	// cancelled.
	stop := context.AfterFunc(gctx, closeSources)
	defer stop()

	var videoPackets, audioPackets int
	g.Go(func() error {
		return pump(gctx, video, out.WriteVideoSample, &videoPackets)
	})
	g.Go(func() error {
		return pump(gctx, audio, out.WriteAudioSample, &audioPackets)
	})
	err = g.Wait()

	metrics.IncRemuxPackets("video", videoPackets)
	metrics.IncRemuxPackets("audio", audioPackets)

	if err != nil {
		logger.Warn().Err(err).
			Str("event", "remux.aborted").
			Int("video_packets", videoPackets).
			Int("audio_packets", audioPackets).
			Msg("merge pipeline aborted")
		metrics.ObserveRemuxSession("aborted", reason(err), time.Since(start))
		return err
	}

	if err := out.Finalize(); err != nil {
		logger.Error().Err(err).Str("event", "remux.finalize_failed").Msg("container finalize failed")
		metrics.ObserveRemuxSession("aborted", reason(err), time.Since(start))
		return err
	}

	logger.Info().
		Str("event", "remux.completed").
		Int("video_packets", videoPackets).
		Int("audio_packets", audioPackets).
		Dur("duration", time.Since(start)).
		Msg("merge pipeline completed")
	metrics.ObserveRemuxSession("completed", "", time.Since(start))
	return nil
}

// openTracks demuxes both sources concurrently. On failure the track that
// did open is closed; a source whose open failed is already closed by the
// demuxer.
func openTracks(videoSrc, audioSrc io.ReadCloser) (*demux.Track, *demux.Track, error) {
	var (
		g     errgroup.Group
		video *demux.Track
		audio *demux.Track
	)
	g.Go(func() error {
		t, err := demux.Open(videoSrc, demux.KindVideo)
		if err != nil {
			return fmt.Errorf("video stream: %w", err)
		}
		video = t
		return nil
	})
	g.Go(func() error {
		t, err := demux.Open(audioSrc, demux.KindAudio)
		if err != nil {
			return fmt.Errorf("audio stream: %w", err)
		}
		audio = t
		return nil
	})
	if err := g.Wait(); err != nil {
		if video != nil {
			_ = video.Close()
		}
		if audio != nil {
			_ = audio.Close()
		}
		return nil, nil, err
	}
	return video, audio, nil
}

func configureOutput(out *mux.Output, video, audio *demux.Track) error {
	if err := out.AddVideoTrack(video.Codec, video.Timescale, video.Rotation); err != nil {
		return err
	}
	if err := out.AddAudioTrack(audio.Codec, audio.Timescale); err != nil {
		return err
	}
	return out.Start()
}

// pump drains one track into its sink until natural end of stream. A read
// failure caused by an abort-driven source close is reported as the context
// error so that the triggering failure, not the teardown fallout, wins.
func pump(ctx context.Context, src packetSource, sink func(mux.Sample) error, relayed *int) error {
	for {
		pkt, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return err
		}
		err = sink(mux.Sample{
			DTS:       pkt.DTS,
			PTSOffset: pkt.PTSOffset,
			Duration:  pkt.Duration,
			IsNonSync: pkt.IsNonSync,
			Payload:   pkt.Payload,
		})
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return err
		}
		*relayed++
	}
}

// reason buckets an abort cause for metrics labels.
func reason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, demux.ErrContainerParse), errors.Is(err, demux.ErrTrackNotFound):
		return "parse"
	case errors.Is(err, demux.ErrPacketRead):
		return "read"
	case errors.Is(err, mux.ErrUnsupportedTrack):
		return "codec"
	case errors.Is(err, mux.ErrWrite), errors.Is(err, mux.ErrFinalize):
		return "write"
	default:
		return "other"
	}
}
