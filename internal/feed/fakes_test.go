package feed

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"local.dev/socialfeed/internal/models"
	"local.dev/socialfeed/internal/observability"
	"local.dev/socialfeed/internal/session"
	"local.dev/socialfeed/internal/store"
)

// fakeDocs wraps the local document store with failure injection and call counts.
type fakeDocs struct {
	*store.Store

	mu          sync.Mutex
	inserts     []models.NewPost
	queries     int
	likeCalls   int
	insertErr   error
	queryErr    error
	likesErr    error
	profileErr  error
	beforeQuery func(after *models.Cursor)
}

func (d *fakeDocs) InsertPost(ctx context.Context, p models.NewPost) (string, error) {
	d.mu.Lock()
	d.inserts = append(d.inserts, p)
	err := d.insertErr
	d.mu.Unlock()
	if err != nil {
		return "", err
	}
	return d.Store.InsertPost(ctx, p)
}

func (d *fakeDocs) QueryPosts(ctx context.Context, after *models.Cursor, limit int) ([]models.Post, error) {
	d.mu.Lock()
	d.queries++
	err, hook := d.queryErr, d.beforeQuery
	d.mu.Unlock()
	if hook != nil {
		hook(after)
	}
	if err != nil {
		return nil, err
	}
	return d.Store.QueryPosts(ctx, after, limit)
}

func (d *fakeDocs) UpdateLikes(ctx context.Context, postID, uid string, add bool) error {
	d.mu.Lock()
	d.likeCalls++
	err := d.likesErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return d.Store.UpdateLikes(ctx, postID, uid, add)
}

func (d *fakeDocs) GetProfile(ctx context.Context, uid string) (models.Profile, bool, error) {
	if d.profileErr != nil {
		return models.Profile{}, false, d.profileErr
	}
	return d.Store.GetProfile(ctx, uid)
}

func (d *fakeDocs) calls() (inserts, queries, likes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inserts), d.queries, d.likeCalls
}

// fakeObjects keeps uploads in memory.
type fakeObjects struct {
	mu          sync.Mutex
	objects     map[string]string
	uploads     []string
	deletes     []string
	failOn      map[string]bool // by key suffix (file name)
	beforeWrite func(key string)
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string]string{}, failOn: map[string]bool{}}
}

func (o *fakeObjects) Upload(_ context.Context, key, _ string, body io.Reader) (string, error) {
	if o.beforeWrite != nil {
		o.beforeWrite(key)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uploads = append(o.uploads, key)
	for suffix := range o.failOn {
		if len(key) >= len(suffix) && key[len(key)-len(suffix):] == suffix {
			return "", fmt.Errorf("quota exceeded for %s", key)
		}
	}
	o.objects[key] = string(b)
	return "https://cdn.test/" + key, nil
}

func (o *fakeObjects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deletes = append(o.deletes, key)
	delete(o.objects, key)
	return nil
}

func (o *fakeObjects) stored() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]string, len(o.objects))
	for k, v := range o.objects {
		out[k] = v
	}
	return out
}

type harness struct {
	store   *Store
	docs    *fakeDocs
	objects *fakeObjects
	ident   *store.Identity
	sess    *session.State
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := store.NewStore("", "")
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	backend.Now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	h := &harness{
		docs:    &fakeDocs{Store: backend},
		objects: newFakeObjects(),
		ident:   store.NewIdentity(""),
		sess:    session.New(),
	}
	h.store = New(h.docs, h.objects, h.ident, h.sess, Options{
		Logger: observability.Discard(),
		Now:    func() time.Time { return time.UnixMilli(1700000000000) },
	})
	t.Cleanup(h.store.Close)
	return h
}

func (h *harness) signIn(t *testing.T, uid string) {
	t.Helper()
	_, err := h.store.SignIn(context.Background(), uid)
	require.NoError(t, err)
}

// seed inserts n posts directly into the backend, oldest first.
func (h *harness) seed(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := h.docs.Store.InsertPost(context.Background(), models.NewPost{
			Content:  fmt.Sprintf("post %d", i),
			AuthorID: "someone",
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}
