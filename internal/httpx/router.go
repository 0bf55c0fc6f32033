package httpx

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the views, actions and ops endpoints.
func NewRouter(app *AppCtx) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	// views
	mux.HandleFunc("/", HandleFeed(app))
	mux.HandleFunc("/profile", HandleProfile(app))
	mux.HandleFunc("/login", HandleLogin(app))
	mux.HandleFunc("/events", HandleEvents(app))

	// actions
	mux.HandleFunc("/logout", HandleLogout(app))
	posts := postsMux(app)
	mux.HandleFunc("/posts", posts)
	mux.HandleFunc("/posts/", posts)

	if app.UploadsDir != "" {
		mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(app.UploadsDir))))
	}

	return CORS(app.AllowedOrigin, RequestLogger(app.Log, mux))
}
