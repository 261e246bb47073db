// Package youtube talks to the platform's Innertube API to resolve a video
// into its playable variants and to open raw media streams.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tubemux/tubemux/internal/format"
	"github.com/tubemux/tubemux/internal/metrics"
)

const (
	defaultBaseURL = "https://www.youtube.com"

	// The ANDROID client surface returns direct, unthrottled stream URLs
	// without a signature deciphering step.
	androidClientName    = "ANDROID"
	androidClientVersion = "19.09.37"
	androidSDKVersion    = 30
	androidUserAgent     = "com.google.android.youtube/" + androidClientVersion + " (Linux; U; Android 11) gzip"
)

// Video is the resolved metadata and variant listing of one video.
type Video struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Author          string           `json:"author"`
	DurationSeconds int              `json:"durationSeconds"`
	ViewCount       int64            `json:"viewCount"`
	Thumbnail       string           `json:"thumbnail,omitempty"` // largest of Thumbnails
	Thumbnails      []Thumbnail      `json:"thumbnails,omitempty"`
	Variants        []format.Variant `json:"variants"`
}

// Thumbnail is one preview image size offered by the platform.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Client resolves video references and opens raw media streams.
type Client interface {
	Resolve(ctx context.Context, videoID string) (*Video, error)
	OpenStream(ctx context.Context, streamURL string) (io.ReadCloser, int64, error)
}

// InnertubeClient is the production Client backed by the Innertube player
// endpoint.
type InnertubeClient struct {
	base string

	// api bounds metadata lookups with a whole-request deadline. stream
	// carries no deadline: a download body is read for the length of the
	// media and is bounded by the request context instead.
	api    *http.Client
	stream *http.Client
}

// Option customizes an InnertubeClient.
type Option func(*InnertubeClient)

// WithHTTPClient replaces both underlying HTTP clients.
func WithHTTPClient(h *http.Client) Option {
	return func(c *InnertubeClient) {
		c.api = h
		c.stream = h
	}
}

// NewInnertube builds a client against the given base URL; an empty base
// selects the public endpoint. timeout applies to metadata lookups only.
func NewInnertube(base string, timeout time.Duration, opts ...Option) *InnertubeClient {
	if base == "" {
		base = defaultBaseURL
	}
	c := &InnertubeClient{
		base:   strings.TrimRight(base, "/"),
		api:    &http.Client{Timeout: timeout},
		stream: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type playerRequest struct {
	VideoID        string        `json:"videoId"`
	ContentCheckOK bool          `json:"contentCheckOk"`
	RacyCheckOK    bool          `json:"racyCheckOk"`
	Context        playerContext `json:"context"`
}

type playerContext struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSDKVersion int    `json:"androidSdkVersion"`
	HL                string `json:"hl"`
}

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails struct {
		VideoID       string `json:"videoId"`
		Title         string `json:"title"`
		Author        string `json:"author"`
		LengthSeconds string `json:"lengthSeconds"`
		ViewCount     string `json:"viewCount"`
		Thumbnail struct {
			Thumbnails []Thumbnail `json:"thumbnails"`
		} `json:"thumbnail"`
	} `json:"videoDetails"`
	StreamingData struct {
		Formats         []format.RawVariant `json:"formats"`
		AdaptiveFormats []format.RawVariant `json:"adaptiveFormats"`
	} `json:"streamingData"`
}

// Resolve looks up a video by its canonical ID and returns its metadata and
// normalized variant listing. Progressive formats precede adaptive ones so
// that duplicate itags resolve in their favor.
func (c *InnertubeClient) Resolve(ctx context.Context, videoID string) (*Video, error) {
	start := time.Now()

	body, err := json.Marshal(playerRequest{
		VideoID:        videoID,
		ContentCheckOK: true,
		RacyCheckOK:    true,
		Context: playerContext{Client: innertubeClient{
			ClientName:        androidClientName,
			ClientVersion:     androidClientVersion,
			AndroidSDKVersion: androidSDKVersion,
			HL:                "en",
		}},
	})
	if err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "resolve", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/youtubei/v1/player", bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "resolve", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUserAgent)

	res, err := c.api.Do(req)
	if err != nil {
		return nil, &APIError{Sentinel: classifyTransport(err), Operation: "resolve", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		sentinel := ErrUpstreamError
		if res.StatusCode == http.StatusNotFound {
			sentinel = ErrVideoNotFound
		}
		return nil, &APIError{Sentinel: sentinel, Operation: "resolve", Status: res.StatusCode}
	}

	var p playerResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 16<<20)).Decode(&p); err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "resolve", Err: err}
	}

	switch p.PlayabilityStatus.Status {
	case "OK":
	case "ERROR":
		return nil, &APIError{Sentinel: ErrVideoNotFound, Operation: "resolve", Reason: p.PlayabilityStatus.Reason}
	default:
		return nil, &APIError{Sentinel: ErrUnplayable, Operation: "resolve", Reason: p.PlayabilityStatus.Reason}
	}

	raw := make([]format.RawVariant, 0, len(p.StreamingData.Formats)+len(p.StreamingData.AdaptiveFormats))
	raw = append(raw, p.StreamingData.Formats...)
	raw = append(raw, p.StreamingData.AdaptiveFormats...)
	variants := format.List(raw)
	if len(variants) == 0 {
		return nil, &APIError{Sentinel: ErrUnplayable, Operation: "resolve", Reason: "no playable variants"}
	}

	length, _ := strconv.Atoi(p.VideoDetails.LengthSeconds)
	views, _ := strconv.ParseInt(p.VideoDetails.ViewCount, 10, 64)
	v := &Video{
		ID:              videoID,
		Title:           p.VideoDetails.Title,
		Author:          p.VideoDetails.Author,
		DurationSeconds: length,
		ViewCount:       views,
		Thumbnail:       largestThumbnail(p.VideoDetails.Thumbnail.Thumbnails),
		Thumbnails:      p.VideoDetails.Thumbnail.Thumbnails,
		Variants:        variants,
	}

	metrics.ObserveUpstreamLookup(time.Since(start))
	return v, nil
}

// OpenStream starts a streaming GET against a variant URL. The returned
// length is the advertised content length, or -1 when unknown. The caller
// owns the returned body.
func (c *InnertubeClient) OpenStream(ctx context.Context, streamURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, 0, &APIError{Sentinel: ErrBadResponse, Operation: "open_stream", Err: err}
	}
	req.Header.Set("User-Agent", androidUserAgent)

	res, err := c.stream.Do(req)
	if err != nil {
		return nil, 0, &APIError{Sentinel: classifyTransport(err), Operation: "open_stream", Err: err}
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		_ = res.Body.Close()
		sentinel := ErrUpstreamError
		if res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone {
			sentinel = ErrVideoNotFound
		}
		return nil, 0, &APIError{Sentinel: sentinel, Operation: "open_stream", Status: res.StatusCode}
	}
	return res.Body, res.ContentLength, nil
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return ErrUpstreamUnavailable
}

func largestThumbnail(ths []Thumbnail) string {
	var (
		best     string
		bestArea int
	)
	for _, th := range ths {
		if area := th.Width * th.Height; area > bestArea || best == "" {
			best = th.URL
			bestArea = area
		}
	}
	return best
}

var _ Client = (*InnertubeClient)(nil)
