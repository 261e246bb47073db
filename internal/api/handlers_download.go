package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tubemux/tubemux/internal/format"
	"github.com/tubemux/tubemux/internal/log"
	"github.com/tubemux/tubemux/internal/media/mux"
	"github.com/tubemux/tubemux/internal/media/remux"
	"github.com/tubemux/tubemux/internal/metrics"
)

type deliveryMode string

const (
	modeDirect deliveryMode = "direct"
	modeMerge  deliveryMode = "merge"
)

// deliveryPlan is the resolved decision of how a download is served: one
// variant relayed as-is, or a video-only and an audio-only variant merged
// into a fresh container.
type deliveryPlan struct {
	mode   deliveryMode
	direct format.Variant

	video format.Variant
	audio format.Variant
	kind  mux.ContainerKind
}

// planDelivery maps the request constraint onto a delivery plan.
//
// An explicit itag pins that exact variant; a combined or audio-only pick is
// relayed directly, a video-only pick is merged with the best audio variant.
// Without an itag the best video variant wins, preferring resolution over
// the convenience of a combined stream.
func planDelivery(variants []format.Variant, itag int, quality, mediaType, container string) (deliveryPlan, error) {
	if mediaType == "audio" {
		v, ok := format.Select(variants, format.Constraint{
			Itag:      itag,
			Role:      format.RoleAudioOnly,
			Container: container,
		})
		if !ok {
			return deliveryPlan{}, ErrFormatNotFound
		}
		return deliveryPlan{mode: modeDirect, direct: v}, nil
	}

	if itag != 0 {
		v, ok := format.Select(variants, format.Constraint{Itag: itag})
		if !ok {
			return deliveryPlan{}, ErrFormatNotFound
		}
		if v.HasAudio || !v.HasVideo {
			return deliveryPlan{mode: modeDirect, direct: v}, nil
		}
		return mergePlan(variants, v, container)
	}

	videoOnly, haveVideoOnly := format.Select(variants, format.Constraint{
		Role:         format.RoleVideoOnly,
		QualityLabel: quality,
		Container:    container,
	})
	combined, haveCombined := format.Select(variants, format.Constraint{
		Role:         format.RoleCombined,
		QualityLabel: quality,
		Container:    container,
	})

	switch {
	case !haveVideoOnly && !haveCombined:
		return deliveryPlan{}, ErrFormatNotFound
	case !haveVideoOnly:
		return deliveryPlan{mode: modeDirect, direct: combined}, nil
	case !haveCombined:
		return mergePlan(variants, videoOnly, container)
	}

	// A quality label match beats ranking; otherwise the higher resolution
	// wins and ties go to the combined stream, which needs no merge.
	if quality != "" {
		vMatch := strings.EqualFold(videoOnly.QualityLabel, quality)
		cMatch := strings.EqualFold(combined.QualityLabel, quality)
		if cMatch && !vMatch {
			return deliveryPlan{mode: modeDirect, direct: combined}, nil
		}
		if vMatch && !cMatch {
			return mergePlan(variants, videoOnly, container)
		}
	}
	if height(videoOnly) > height(combined) {
		return mergePlan(variants, videoOnly, container)
	}
	return deliveryPlan{mode: modeDirect, direct: combined}, nil
}

// mergePlan pairs a video-only variant with the best audio-only variant. A
// listing without any audio degrades to serving the video variant directly.
func mergePlan(variants []format.Variant, video format.Variant, container string) (deliveryPlan, error) {
	audio, ok := format.Select(variants, format.Constraint{
		Role:      format.RoleAudioOnly,
		Container: format.Family(video.MimeType),
	})
	if !ok {
		return deliveryPlan{mode: modeDirect, direct: video}, nil
	}
	return deliveryPlan{
		mode:  modeMerge,
		video: video,
		audio: audio,
		kind:  mux.ChooseContainerKind(video.MimeType, audio.MimeType, container),
	}, nil
}

func height(v format.Variant) int {
	if v.Height > 0 {
		return v.Height
	}
	return v.Width
}

// handleDownload serves a video download, either relaying one upstream
// variant or merging separate video and audio streams on the fly.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := log.WithComponentFromContext(ctx, "api")

	q := r.URL.Query()
	ref := q.Get("url")
	if ref == "" {
		ref = q.Get("v")
	}

	video, err := s.resolveVideo(ctx, ref)
	if err != nil {
		l.Warn().Err(err).Str("event", "download.resolve_failed").Str("ref", ref).Msg("video resolution failed")
		writeErrorStatus(w, err)
		return
	}

	itag, _ := strconv.Atoi(q.Get("itag"))
	plan, err := planDelivery(video.Variants, itag, q.Get("quality"), q.Get("type"), q.Get("container"))
	if err != nil {
		l.Warn().Err(err).
			Str("event", "download.no_format").
			Str("video_id", video.ID).
			Int("itag", itag).
			Msg("no variant matches the constraint")
		writeErrorStatus(w, err)
		return
	}

	if !s.acquireDownloadSlot() {
		l.Warn().Str("event", "download.rejected").Str("video_id", video.ID).Msg("concurrent download limit reached")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "too many concurrent downloads, try again later",
		})
		return
	}
	defer s.releaseDownloadSlot()

	name := sanitizeFilename(video.Title)
	switch plan.mode {
	case modeMerge:
		s.serveMerged(w, r, plan, name, video.ID)
	default:
		s.serveDirect(w, r, plan.direct, name, video.ID)
	}
}

// serveDirect relays one upstream variant body to the client unchanged.
func (s *Server) serveDirect(w http.ResponseWriter, r *http.Request, v format.Variant, name, videoID string) {
	ctx := r.Context()
	l := log.WithComponentFromContext(ctx, "api")

	body, length, err := s.yt.OpenStream(ctx, v.URL)
	if err != nil {
		l.Error().Err(err).Str("event", "download.open_failed").Str("video_id", videoID).Int("itag", v.Itag).Msg("upstream stream open failed")
		metrics.IncDownload(string(modeDirect), false)
		writeErrorStatus(w, err)
		return
	}
	defer body.Close()

	if length <= 0 {
		length = v.ContentLength
	}
	setDownloadHeaders(w, name+"."+extensionFor(v.MimeType), format.BaseMime(v.MimeType), length)
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(newFlushWriter(w), body)
	metrics.AddDownloadBytes(string(modeDirect), n)
	metrics.IncDownload(string(modeDirect), err == nil)
	if err != nil {
		l.Warn().Err(err).
			Str("event", "download.truncated").
			Str("video_id", videoID).
			Int64("bytes", n).
			Msg("direct download ended early")
		// The status line is long gone. Tearing the connection down is the
		// only way left to signal the client that the body is incomplete.
		panic(http.ErrAbortHandler)
	}
	l.Info().
		Str("event", "download.completed").
		Str("video_id", videoID).
		Str("mode", string(modeDirect)).
		Int("itag", v.Itag).
		Int64("bytes", n).
		Msg("download completed")
}

// serveMerged streams a merged container built from separate video and audio
// variants.
func (s *Server) serveMerged(w http.ResponseWriter, r *http.Request, plan deliveryPlan, name, videoID string) {
	ctx := r.Context()
	l := log.WithComponentFromContext(ctx, "api")

	videoBody, _, err := s.yt.OpenStream(ctx, plan.video.URL)
	if err != nil {
		l.Error().Err(err).Str("event", "download.open_failed").Str("video_id", videoID).Msg("video stream open failed")
		metrics.IncDownload(string(modeMerge), false)
		writeErrorStatus(w, err)
		return
	}
	audioBody, _, err := s.yt.OpenStream(ctx, plan.audio.URL)
	if err != nil {
		_ = videoBody.Close()
		l.Error().Err(err).Str("event", "download.open_failed").Str("video_id", videoID).Msg("audio stream open failed")
		metrics.IncDownload(string(modeMerge), false)
		writeErrorStatus(w, err)
		return
	}

	// The merged size is unknowable up front; the response streams chunked.
	setDownloadHeaders(w, name+"."+plan.kind.Extension(), plan.kind.MimeType(), 0)
	w.WriteHeader(http.StatusOK)

	fw := newFlushWriter(w)
	err = remux.Merge(ctx, videoBody, audioBody, plan.kind, fw)
	metrics.AddDownloadBytes(string(modeMerge), fw.n)
	metrics.IncDownload(string(modeMerge), err == nil)
	if err != nil {
		l.Warn().Err(err).
			Str("event", "download.truncated").
			Str("video_id", videoID).
			Int64("bytes", fw.n).
			Msg("merged download aborted")
		// A finished chunked body would look like a complete download. Abort
		// the connection so the client sees the truncation as an error.
		panic(http.ErrAbortHandler)
	}
	l.Info().
		Str("event", "download.completed").
		Str("video_id", videoID).
		Str("mode", string(modeMerge)).
		Int("video_itag", plan.video.Itag).
		Int("audio_itag", plan.audio.Itag).
		Int64("bytes", fw.n).
		Msg("download completed")
}
