package api

import (
	"context"
	"net/http"

	"github.com/tubemux/tubemux/internal/log"
	"github.com/tubemux/tubemux/internal/youtube"
)

// resolveVideo turns a raw reference into resolved video metadata, consulting
// the metadata cache first.
func (s *Server) resolveVideo(ctx context.Context, ref string) (*youtube.Video, error) {
	id, err := ExtractVideoID(ref)
	if err != nil {
		return nil, err
	}

	key := "video:" + id
	if cached, ok := s.cache.Get(key); ok {
		if v, ok := cached.(*youtube.Video); ok {
			return v, nil
		}
	}

	v, err := s.yt.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, v, s.cfg.CacheTTL)
	return v, nil
}

// handleInfo resolves a video reference and returns its metadata and variant
// listing.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("url")
	if ref == "" {
		ref = r.URL.Query().Get("v")
	}

	video, err := s.resolveVideo(r.Context(), ref)
	if err != nil {
		l := log.WithComponentFromContext(r.Context(), "api")
		l.Warn().Err(err).Str("event", "info.failed").Str("ref", ref).Msg("video resolution failed")
		writeErrorStatus(w, err)
		return
	}

	writeJSON(w, http.StatusOK, video)
}
