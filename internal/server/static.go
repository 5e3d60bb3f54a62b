package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// staticHandler serves s.opts.Assets. Missing files fall back to the
// history index when a plugin enabled it, and 404 otherwise.
func (s *Server) staticHandler() http.Handler {
	if s.opts.Assets == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.setHeaders(w)
			http.NotFound(w, r)
		})
	}

	fileServer := http.FileServer(http.FS(s.opts.Assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setHeaders(w)

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		if !s.assetExists(name) {
			if s.fallbackIndex == "" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
				http.NotFound(w, r)
				return
			}
			// Unknown path: serve the index so the client-side router can handle it.
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/" + s.fallbackIndex
			if s.fallbackIndex == "index.html" {
				r2.URL.Path = "/"
			}
			fileServer.ServeHTTP(w, r2)
			return
		}

		if typ, ok := s.mimeTypes[path.Ext(name)]; ok {
			w.Header().Set("Content-Type", typ)
		}
		fileServer.ServeHTTP(w, r)
	})
}

// assetExists reports whether name is a file, or a directory holding an
// index.html. Bare directories are never listed.
func (s *Server) assetExists(name string) bool {
	info, err := fs.Stat(s.opts.Assets, name)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return true
	}
	_, err = fs.Stat(s.opts.Assets, path.Join(name, "index.html"))
	return err == nil
}

func (s *Server) setHeaders(w http.ResponseWriter) {
	for k, v := range s.opts.Headers {
		w.Header().Set(k, v)
	}
}
