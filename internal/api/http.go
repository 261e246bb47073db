// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tubemux/tubemux/internal/format"
)

// extensionFor maps a variant MIME type onto a download file extension.
func extensionFor(mime string) string {
	switch format.BaseMime(mime) {
	case "video/mp4":
		return "mp4"
	case "audio/mp4":
		return "m4a"
	case "video/webm", "audio/webm":
		return "webm"
	case "audio/mpeg":
		return "mp3"
	default:
		if fam := format.Family(mime); fam != "" {
			return fam
		}
		return "bin"
	}
}

// setDownloadHeaders sets the headers for a media download response. size <= 0
// leaves the content length unset (streamed response of unknown length).
func setDownloadHeaders(w http.ResponseWriter, filename, mime string, size int64) {
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", contentDisposition(filename))
	w.Header().Set("Cache-Control", "no-store")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
}

// contentDisposition builds an attachment header with an ASCII fallback and
// an RFC 5987 encoded full name.
func contentDisposition(filename string) string {
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' {
			return '_'
		}
		return r
	}, filename)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		ascii, url.PathEscape(filename))
}

// flushWriter forwards writes to the response and flushes after each one so
// that merged output reaches the client without buffering delays. It counts
// payload bytes for metrics.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
	n int64
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	f, _ := w.(http.Flusher)
	return &flushWriter{w: w, f: f}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.n += int64(n)
	if err == nil && fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}
