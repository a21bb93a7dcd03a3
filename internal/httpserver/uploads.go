package httpserver

import (
	"net/http"
	"strings"
)

// uploadsHandler serves stored files from root. Directory listings are not
// exposed.
func uploadsHandler(root string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") || strings.Contains(r.URL.Path, "..") {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fs.ServeHTTP(w, r)
	})
}
