package middleware

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// StaticFileServer serves files under dir, such as the OpenAPI document. Paths escaping dir and
// directories are answered with 404.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Clean("/" + r.URL.Path)
		path := filepath.Join(dir, clean)
		if !strings.HasPrefix(path, filepath.Clean(dir)) {
			http.NotFound(w, r)
			return
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			w.Header().Set("Content-Type", "application/yaml")
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		http.ServeFile(w, r, path)
	})
}
