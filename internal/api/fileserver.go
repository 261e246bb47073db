// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tubemux/tubemux/internal/log"
)

// staticFileServer serves the bundled frontend from the public directory
// with checks against path traversal, symlink escapes and directory
// listing. The root path serves index.html.
func (s *Server) staticFileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "api")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		path := r.URL.Path
		if path == "/" || path == "" {
			path = "/index.html"
		}
		if isPathTraversal(path) {
			logger.Warn().Str("event", "file_req.denied").Str("path", r.URL.Path).Str("reason", "path_escape").Msg("detected traversal sequence")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		absDir, err := filepath.Abs(s.cfg.PublicDir)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		fullPath := filepath.Join(absDir, filepath.Clean("/"+path))

		realPath, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		realDir, err := filepath.EvalSymlinks(absDir)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		rel, err := filepath.Rel(realDir, realPath)
		if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			logger.Warn().Str("event", "file_req.denied").Str("path", path).Str("reason", "path_escape").Msg("path escapes public directory")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		info, err := os.Stat(realPath)
		if err != nil || info.IsDir() {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		http.ServeFile(w, r, realPath)
	})
}

// isPathTraversal detects traversal sequences, including URL-encoded and
// NUL-byte variants.
func isPathTraversal(path string) bool {
	if strings.ContainsRune(path, 0) {
		return true
	}
	// Two decode passes catch double-encoded sequences.
	decoded := path
	for i := 0; i < 2; i++ {
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		}
	}
	return strings.Contains(decoded, "..") || strings.ContainsRune(decoded, 0)
}
