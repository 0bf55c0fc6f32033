package httpx

import (
	"net/http"
)

// HandleLogin: GET renders the login view for guests; POST signs in with
// the request credential. Sign-in failure is always reported.
func HandleLogin(app *AppCtx) http.HandlerFunc {
	return RequireGuest(app, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"signedIn": false, "noAuth": app.NoAuth})
		case http.MethodPost:
			cred := credential(app, w, r)
			if _, err := app.Feed.SignIn(r.Context(), cred); err != nil {
				writeError(w, http.StatusUnauthorized, signInFailed)
				return
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// HandleLogout signs out and sends the view back to /login.
func HandleLogout(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := app.Feed.SignOut(r.Context()); err != nil {
			respond(app, w, err)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}
