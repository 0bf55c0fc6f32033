package httpx

import (
	"net/http"
	"strings"
)

// HandleFeed renders the feed view. Like a page mount, every render
// starts from the newest page.
func HandleFeed(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		RequireSession(app, func(w http.ResponseWriter, r *http.Request) {
			respond(app, w, app.Feed.FetchPosts(r.Context()))
		})(w, r)
	}
}

// HandleCreatePost takes multipart "content" plus any number of "media" files.
func HandleCreatePost(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxPostBody)
		if err := r.ParseMultipartForm(multipartMem); err != nil {
			writeError(w, formStatus(err), "parse form: "+err.Error())
			return
		}
		defer r.MultipartForm.RemoveAll()

		media, closeMedia, err := openMedia(r.MultipartForm.File["media"], kindImage, kindVideo)
		if err != nil {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		defer closeMedia()

		respond(app, w, app.Feed.CreatePost(r.Context(), r.FormValue("content"), media))
	}
}

func HandleRefresh(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		respond(app, w, app.Feed.FetchPosts(r.Context()))
	}
}

func HandleLoadMore(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		respond(app, w, app.Feed.LoadMorePosts(r.Context()))
	}
}

// HandlePostDetail serves /posts/{id}/like: POST likes, DELETE unlikes.
func HandlePostDetail(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/posts/"), "/")
		parts := strings.Split(path, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "like" {
			http.NotFound(w, r)
			return
		}
		id := parts[0]

		var err error
		switch r.Method {
		case http.MethodPost:
			err = app.Feed.LikePost(r.Context(), id)
		case http.MethodDelete:
			err = app.Feed.UnlikePost(r.Context(), id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		respond(app, w, err)
	}
}

// postsMux splits /posts/ between the fixed actions and per-post routes.
func postsMux(app *AppCtx) http.HandlerFunc {
	refresh, more, create, detail := HandleRefresh(app), HandleLoadMore(app), HandleCreatePost(app), HandlePostDetail(app)
	return func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimSuffix(r.URL.Path, "/") {
		case "/posts":
			create(w, r)
		case "/posts/refresh":
			refresh(w, r)
		case "/posts/more":
			more(w, r)
		default:
			detail(w, r)
		}
	}
}
