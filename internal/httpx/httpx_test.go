package httpx

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local.dev/socialfeed/internal/feed"
	"local.dev/socialfeed/internal/models"
	"local.dev/socialfeed/internal/observability"
	"local.dev/socialfeed/internal/session"
	"local.dev/socialfeed/internal/store"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

type testServer struct {
	*httptest.Server
	app    *AppCtx
	docs   *store.Store
	client *http.Client
}

func newTestServer(t *testing.T, noAuth, surface bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	docs := store.NewStore("", "")
	log := observability.Discard()

	srv := httptest.NewUnstartedServer(nil)
	origin := "http://" + srv.Listener.Addr().String()
	app := &AppCtx{Log: log, NoAuth: noAuth, SurfaceErrors: surface, UploadsDir: dir, AllowedOrigin: origin}
	objects := store.NewObjects(dir, origin)
	app.Feed = feed.New(docs, objects, store.NewIdentity(""), session.New(), feed.Options{Logger: log})
	srv.Config.Handler = NewRouter(app)
	srv.Start()
	t.Cleanup(func() {
		srv.Close()
		app.Feed.Close()
	})

	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &testServer{Server: srv, app: app, docs: docs, client: client}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) login(t *testing.T, key string) {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/login", nil, http.Header{"Authorization": {"Debug " + key}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

type part struct {
	field, filename string
	data            []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...part) (io.Reader, http.Header) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, http.Header{"Content-Type": {mw.FormDataContentType()}}
}

func decodeSnapshot(t *testing.T, resp *http.Response) feed.Snapshot {
	t.Helper()
	var snap feed.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func TestRouteGuards(t *testing.T) {
	s := newTestServer(t, true, false)

	for _, path := range []string{"/", "/profile"} {
		resp := s.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}
	resp := s.do(t, http.MethodGet, "/login", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.login(t, "Ann@Example.com")

	resp = s.do(t, http.MethodGet, "/login", nil, nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp = s.do(t, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeSnapshot(t, resp)
	require.NotNil(t, snap.User)
	assert.Equal(t, "ann@example.com", snap.User.ID)
}

func TestLogin_FailureMessage(t *testing.T) {
	s := newTestServer(t, false, false)

	resp := s.do(t, http.MethodPost, "/login", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Failed to sign in. Please try again.", body["error"])
	assert.False(t, s.app.Feed.Session().SignedIn())
}

func TestLogin_NoAuthBearerClaims(t *testing.T) {
	s := newTestServer(t, true, false)
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"email":"Bob@X.io","user_id":"b1"}`))

	resp := s.do(t, http.MethodPost, "/login", nil, http.Header{"Authorization": {"Bearer hdr." + payload + ".sig"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "bob@x.io", s.app.Feed.Session().Current().ID)
}

func TestLogin_NoAuthCookieFallback(t *testing.T) {
	s := newTestServer(t, true, false)

	resp := s.do(t, http.MethodPost, "/login", nil, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	u := s.app.Feed.Session().Current()
	require.NotNil(t, u)
	assert.True(t, strings.HasPrefix(u.ID, "dev_"))
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == devUIDCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, u.ID, cookie.Value)
}

func TestDevClaimsFromBearer(t *testing.T) {
	enc := func(s string) string { return "Bearer x." + base64.RawURLEncoding.EncodeToString([]byte(s)) + ".y" }

	email, uid := devClaimsFromBearer(enc(`{"email":"a@b.c","sub":"s1"}`))
	assert.Equal(t, "a@b.c", email)
	assert.Equal(t, "s1", uid)

	_, uid = devClaimsFromBearer(enc(`{"uid":"u9","sub":"s1"}`))
	assert.Equal(t, "u9", uid)

	email, uid = devClaimsFromBearer("Bearer not-a-jwt")
	assert.Empty(t, email)
	assert.Empty(t, uid)
}

func TestCreatePost_WithMedia(t *testing.T) {
	s := newTestServer(t, true, true)
	s.login(t, "u1")

	body, hdr := multipartBody(t, map[string]string{"content": "hello"}, part{"media", "cat pic.png", pngBytes})
	resp := s.do(t, http.MethodPost, "/posts", body, hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decodeSnapshot(t, resp)
	require.Len(t, snap.Posts, 1)
	p := snap.Posts[0]
	assert.Equal(t, "hello", p.Content)
	assert.Equal(t, "u1", p.AuthorID)
	require.Len(t, p.MediaURLs, 1)
	assert.Contains(t, p.MediaURLs[0], "/uploads/posts/")
	assert.True(t, strings.HasSuffix(p.MediaURLs[0], "_cat-pic.png"))

	path := p.MediaURLs[0][strings.Index(p.MediaURLs[0], "/uploads/"):]
	got := s.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, got.StatusCode)
	b, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, b)
}

func TestCreatePost_RejectsUnsupportedMedia(t *testing.T) {
	s := newTestServer(t, true, true)
	s.login(t, "u1")

	body, hdr := multipartBody(t, nil, part{"media", "notes.txt", []byte("just text")})
	resp := s.do(t, http.MethodPost, "/posts", body, hdr)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, 0, s.docs.Len())
}

func TestCreatePost_SilentAndSurfacedFailures(t *testing.T) {
	silent := newTestServer(t, true, false)
	body, hdr := multipartBody(t, map[string]string{"content": "hi"})
	resp := silent.do(t, http.MethodPost, "/posts", body, hdr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeSnapshot(t, resp).Posts)

	surfaced := newTestServer(t, true, true)
	body, hdr = multipartBody(t, map[string]string{"content": "hi"})
	resp = surfaced.do(t, http.MethodPost, "/posts", body, hdr)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	surfaced.login(t, "u1")
	body, hdr = multipartBody(t, map[string]string{"content": "   "})
	resp = surfaced.do(t, http.MethodPost, "/posts", body, hdr)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, surfaced.docs.Len())
}

func TestLikeUnlikeAndPaging(t *testing.T) {
	s := newTestServer(t, true, true)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 22; i++ {
		id, err := s.docs.InsertPost(ctx, models.NewPost{Content: "p", AuthorID: "x"})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(time.Millisecond)
	}
	s.login(t, "u1")

	snap := decodeSnapshot(t, s.do(t, http.MethodGet, "/", nil, nil))
	require.Len(t, snap.Posts, 20)
	assert.True(t, snap.HasMore)

	snap = decodeSnapshot(t, s.do(t, http.MethodPost, "/posts/more", nil, nil))
	assert.Len(t, snap.Posts, 22)

	target := ids[21]
	snap = decodeSnapshot(t, s.do(t, http.MethodPost, "/posts/"+target+"/like", nil, nil))
	assert.Equal(t, []string{"u1"}, snap.Posts[0].Likes)

	snap = decodeSnapshot(t, s.do(t, http.MethodDelete, "/posts/"+target+"/like", nil, nil))
	assert.Empty(t, snap.Posts[0].Likes)

	snap = decodeSnapshot(t, s.do(t, http.MethodPost, "/posts/refresh", nil, nil))
	assert.Len(t, snap.Posts, 20)

	resp := s.do(t, http.MethodPost, "/posts/missing/like", nil, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/posts/"+target+"/like", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp = s.do(t, http.MethodPost, "/posts/"+target+"/comments", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProfile_EditAndView(t *testing.T) {
	s := newTestServer(t, true, true)
	s.login(t, "u1")

	resp := s.do(t, http.MethodGet, "/profile", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view profileView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "u1", view.Profile.ID)
	assert.Empty(t, view.Profile.Bio)

	body, hdr := multipartBody(t, map[string]string{"name": "Ann", "bio": "likes cats"}, part{"photo", "me.png", pngBytes})
	resp = s.do(t, http.MethodPatch, "/profile", body, hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/profile", nil, nil)
	view = profileView{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "likes cats", view.Profile.Bio)
	assert.Equal(t, "Ann", view.Profile.DisplayName)
	assert.True(t, strings.HasSuffix(view.Profile.PhotoURL, "/uploads/profiles/u1"))
	require.NotNil(t, view.User)
	assert.Equal(t, "Ann", view.User.Name)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t, true, false)
	s.login(t, "u1")

	resp := s.do(t, http.MethodPost, "/logout", nil, nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.False(t, s.app.Feed.Session().SignedIn())
}

func TestEvents_StreamsSnapshots(t *testing.T) {
	s := newTestServer(t, true, false)
	_, err := s.docs.InsertPost(context.Background(), models.NewPost{Content: "p", AuthorID: "x"})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first feed.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Nil(t, first.User)

	s.login(t, "u1")
	require.NoError(t, s.app.Feed.FetchPosts(context.Background()))

	// snapshots coalesce; read until the fetched post shows up
	for {
		var snap feed.Snapshot
		require.NoError(t, conn.ReadJSON(&snap))
		if len(snap.Posts) == 1 && !snap.Busy {
			require.NotNil(t, snap.User)
			assert.Equal(t, "u1", snap.User.ID)
			break
		}
	}
}

func TestOpsEndpoints(t *testing.T) {
	s := newTestServer(t, true, false)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil, nil).StatusCode)

	resp := s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "go_goroutines")

	resp = s.do(t, http.MethodOptions, "/posts", nil, http.Header{"Origin": {s.URL}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, s.URL, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORS_RejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, true, true)
	id, err := s.docs.InsertPost(context.Background(), models.NewPost{Content: "p", AuthorID: "x"})
	require.NoError(t, err)
	s.login(t, "u1")
	evil := http.Header{"Origin": {"https://evil.example"}}

	resp := s.do(t, http.MethodPost, "/posts/"+id+"/like", nil, evil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = s.do(t, http.MethodPost, "/logout", nil, evil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.True(t, s.app.Feed.Session().SignedIn())

	resp = s.do(t, http.MethodOptions, "/posts", nil, evil)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = s.do(t, http.MethodGet, "/", nil, evil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	snap := decodeSnapshot(t, resp)
	require.Len(t, snap.Posts, 1)
	assert.Empty(t, snap.Posts[0].Likes)

	snap = decodeSnapshot(t, s.do(t, http.MethodPost, "/posts/"+id+"/like", nil, http.Header{"Origin": {s.URL}}))
	assert.Equal(t, []string{"u1"}, snap.Posts[0].Likes)
}

func TestEvents_RejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, true, false)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/events"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {s.URL}})
	require.NoError(t, err)
	conn.Close()
}
