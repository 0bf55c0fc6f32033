package httpx

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"local.dev/socialfeed/internal/feed"
	"local.dev/socialfeed/internal/observability"
	"local.dev/socialfeed/internal/store"
)

// AppCtx is what every handler needs: the feed store (which also owns the
// session) and a few switches from config.
type AppCtx struct {
	Feed *feed.Store
	Log  *observability.Logger
	// NoAuth accepts dev credentials instead of verified ID tokens.
	NoAuth bool
	// SurfaceErrors turns failed actions into JSON errors; otherwise they
	// answer like no-ops with the current snapshot.
	SurfaceErrors bool
	// UploadsDir is served under /uploads/ when the local object store is used.
	UploadsDir string
	// AllowedOrigin is the one browser origin (scheme://host[:port]) trusted
	// for cross-origin reads and for actions. Empty trusts none.
	AllowedOrigin string
}

const signInFailed = "Failed to sign in. Please try again."

// ---- NO_AUTH: a per-browser DEV_UID cookie is the last fallback ----
const devUIDCookie = "DEV_UID"

func genDevUID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return "dev_" + hex.EncodeToString(b[:])
}

func devUIDFromCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(devUIDCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := genDevUID()
	http.SetCookie(w, &http.Cookie{
		Name:     devUIDCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
	})
	return id
}

// devClaimsFromBearer reads email/uid from a JWT payload without checking
// the signature. Only used with NO_AUTH.
func devClaimsFromBearer(authz string) (email, uid string) {
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return "", ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ""
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", ""
	}
	get := func(k string) string {
		if v, ok := m[k]; ok && v != nil {
			return strings.TrimSpace(fmt.Sprintf("%v", v))
		}
		return ""
	}
	email = get("email")
	uid = get("user_id")
	if uid == "" {
		uid = get("uid")
	}
	if uid == "" {
		uid = get("sub")
	}
	return email, uid
}

// credential extracts what the identity provider signs in with.
// NO_AUTH: Debug > Bearer (claims only) > cookie. Otherwise the raw
// Bearer ID token, which the provider verifies.
func credential(app *AppCtx, w http.ResponseWriter, r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if !app.NoAuth {
		if !strings.HasPrefix(authz, "Bearer ") {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}

	var key string
	switch {
	case strings.HasPrefix(authz, "Debug "):
		key = strings.TrimSpace(strings.TrimPrefix(authz, "Debug "))
		if strings.Contains(key, "@") {
			key = strings.ToLower(key)
		}
	case strings.HasPrefix(authz, "Bearer "):
		key = store.IdentityKey(devClaimsFromBearer(authz))
	}
	if key == "" {
		key = devUIDFromCookie(w, r)
	}
	return key
}

// RequireSession redirects to /login when nobody is signed in.
func RequireSession(app *AppCtx, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !app.Feed.Session().SignedIn() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// RequireGuest redirects to the feed when someone is already signed in.
func RequireGuest(app *AppCtx, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.Feed.Session().SignedIn() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// CORS only answers the allowed origin. The session is process-wide, so a
// state-changing request carrying any other Origin is refused outright.
func CORS(allowed string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")
		if origin != "" && !sameOrigin(allowed, origin) {
			if !safeMethod(r.Method) {
				writeError(w, http.StatusForbidden, "cross-origin request rejected")
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sameOrigin(allowed, origin string) bool {
	return allowed != "" && strings.EqualFold(strings.TrimSuffix(origin, "/"), allowed)
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack keeps websocket upgrades working behind the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RequestLogger logs one line per request.
func RequestLogger(log *observability.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respond finishes an action. Failures were already logged by the store;
// unless errors are surfaced the caller just sees the current snapshot.
func respond(app *AppCtx, w http.ResponseWriter, err error) {
	if err != nil && app.SurfaceErrors {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, app.Feed.Snapshot())
}

func statusOf(err error) int {
	switch feed.KindOf(err) {
	case feed.KindUnauthenticated:
		return http.StatusUnauthorized
	case feed.KindInvalid:
		return http.StatusBadRequest
	case feed.KindBusy:
		return http.StatusConflict
	case feed.KindBackend:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// formStatus maps a multipart parse failure.
func formStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
