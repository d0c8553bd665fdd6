package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dmserver/internal/media"
)

// UploadRoutes returns the sub-router mounted at /api/uploads. Uploading goes
// through /api/users/me/avatar; this only serves stored images.
func UploadRoutes(avatars *media.AvatarStore) chi.Router {
	r := chi.NewRouter()

	r.Get("/{key}", func(w http.ResponseWriter, r *http.Request) {
		path, err := avatars.Path(chi.URLParam(r, "key"))
		if err != nil {
			http.Error(w, "invalid key", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, path)
	})

	return r
}
