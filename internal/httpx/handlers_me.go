package httpx

import (
	"net/http"

	"local.dev/socialfeed/internal/models"
)

type profileView struct {
	User    *models.User   `json:"user"`
	Profile models.Profile `json:"profile"`
}

// HandleProfile: GET shows the signed-in user's profile, PATCH edits it
// (multipart "name", "bio" and an optional "photo").
func HandleProfile(app *AppCtx) http.HandlerFunc {
	return RequireSession(app, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			p, err := app.Feed.LoadProfile(r.Context())
			if err != nil && app.SurfaceErrors {
				writeError(w, statusOf(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, profileView{User: app.Feed.Session().Current(), Profile: p})

		case http.MethodPatch:
			r.Body = http.MaxBytesReader(w, r.Body, maxProfileBody)
			if err := r.ParseMultipartForm(multipartMem); err != nil {
				writeError(w, formStatus(err), "parse form: "+err.Error())
				return
			}
			defer r.MultipartForm.RemoveAll()

			var photo *models.MediaFile
			if hdrs := r.MultipartForm.File["photo"]; len(hdrs) > 0 {
				files, closeFiles, err := openMedia(hdrs[:1], kindImage)
				if err != nil {
					writeError(w, http.StatusUnsupportedMediaType, err.Error())
					return
				}
				defer closeFiles()
				photo = &files[0]
			}

			user, err := app.Feed.UpdateProfile(r.Context(), r.FormValue("name"), r.FormValue("bio"), photo)
			if err != nil {
				if app.SurfaceErrors {
					writeError(w, statusOf(err), err.Error())
					return
				}
				// show whatever was actually stored
				p, _ := app.Feed.LoadProfile(r.Context())
				writeJSON(w, http.StatusOK, profileView{User: app.Feed.Session().Current(), Profile: p})
				return
			}
			writeJSON(w, http.StatusOK, profileView{
				User:    &user,
				Profile: models.Profile{ID: user.ID, DisplayName: user.Name, PhotoURL: user.PhotoURL, Bio: r.FormValue("bio")},
			})

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
