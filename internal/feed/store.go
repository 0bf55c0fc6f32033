// Package feed is the client-side data layer: it owns the in-memory feed
// (posts + pagination cursor), mediates every read and write against the
// document and object stores, and tells subscribed views when state changes.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"local.dev/socialfeed/internal/models"
	"local.dev/socialfeed/internal/observability"
	"local.dev/socialfeed/internal/session"
)

const DefaultPageSize = 20

type Options struct {
	PageSize int
	Logger   *observability.Logger
	// Now is used for upload keys; defaults to time.Now.
	Now func() time.Time
}

// Snapshot is what views render.
type Snapshot struct {
	User    *models.User  `json:"user"`
	Posts   []models.Post `json:"posts"`
	Busy    bool          `json:"busy"`
	HasMore bool          `json:"hasMore"`
}

// Store is the only writer of the post list and cursor.
type Store struct {
	docs     Documents
	objects  Objects
	identity Identity
	session  *session.State
	log      *observability.Logger
	pageSize int
	now      func() time.Time

	mu         sync.Mutex
	posts      []models.Post
	cursor     *models.Cursor
	busy       int
	creating   bool
	generation uint64

	// pageMu keeps loadMorePosts calls from sharing a stale cursor.
	pageMu sync.Mutex
	// likes serializes like/unlike per post id.
	likes *keyLock

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	unsubscribeSession func()
}

func New(docs Documents, objects Objects, identity Identity, sess *session.State, opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = observability.GlobalLogger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		docs:     docs,
		objects:  objects,
		identity: identity,
		session:  sess,
		log:      opts.Logger.Component("feed"),
		pageSize: opts.PageSize,
		now:      opts.Now,
		likes:    newKeyLock(),
		subs:     make(map[int]func(Snapshot)),
	}
	s.unsubscribeSession = sess.Subscribe(func(*models.User) { s.notify() })
	return s
}

// Close detaches the store from the session.
func (s *Store) Close() {
	if s.unsubscribeSession != nil {
		s.unsubscribeSession()
	}
}

func (s *Store) Session() *session.State { return s.session }

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	posts := make([]models.Post, len(s.posts))
	for i, p := range s.posts {
		posts[i] = p.Clone()
	}
	snap := Snapshot{Posts: posts, Busy: s.busy > 0, HasMore: s.cursor != nil}
	s.mu.Unlock()
	snap.User = s.session.Current()
	return snap
}

func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy > 0
}

// Subscribe calls fn with a fresh snapshot after every change.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	if len(subs) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) begin() {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()
	s.notify()
}

func (s *Store) end() {
	s.mu.Lock()
	s.busy--
	s.mu.Unlock()
	s.notify()
}

// fail logs the failure, counts it and returns the typed error.
func (s *Store) fail(op string, kind Kind, err error, attrs ...any) error {
	observability.FeedOperations.WithLabelValues(op, string(kind)).Inc()
	attrs = append(attrs, slog.String("op", op), slog.String("kind", string(kind)), slog.String("error", err.Error()))
	if kind == KindBackend {
		s.log.Error("feed operation failed", attrs...)
	} else {
		s.log.Warn("feed operation rejected", attrs...)
	}
	return opErr(op, kind, err)
}

func (s *Store) ok(op string) {
	observability.FeedOperations.WithLabelValues(op, "ok").Inc()
}

// FetchPosts replaces the list with the newest page and resets paging.
func (s *Store) FetchPosts(ctx context.Context) error {
	const op = "fetchPosts"
	s.begin()
	defer s.end()

	done := observability.TrackBackend("documents", "query")
	posts, err := s.docs.QueryPosts(ctx, nil, s.pageSize)
	done()
	if err != nil {
		return s.fail(op, KindBackend, err)
	}

	s.mu.Lock()
	s.posts = posts
	s.cursor = models.CursorOf(posts)
	s.generation++
	s.mu.Unlock()

	s.ok(op)
	s.notify()
	return nil
}

// LoadMorePosts appends the page after the cursor. It is a no-op when no
// cursor is held: never fetched, or the previous page came back empty.
func (s *Store) LoadMorePosts(ctx context.Context) error {
	const op = "loadMorePosts"
	s.pageMu.Lock()
	defer s.pageMu.Unlock()

	s.mu.Lock()
	cursor, gen := s.cursor, s.generation
	s.mu.Unlock()
	if cursor == nil {
		return nil
	}

	s.begin()
	defer s.end()

	done := observability.TrackBackend("documents", "query")
	page, err := s.docs.QueryPosts(ctx, cursor, s.pageSize)
	done()
	if err != nil {
		return s.fail(op, KindBackend, err)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.log.Info("dropping page fetched before feed reset", slog.Int("posts", len(page)))
		return nil
	}
	s.posts = append(s.posts, page...)
	s.cursor = models.CursorOf(page)
	s.mu.Unlock()

	s.ok(op)
	s.notify()
	return nil
}

func (s *Store) LikePost(ctx context.Context, postID string) error {
	return s.setLike(ctx, "likePost", postID, true)
}

func (s *Store) UnlikePost(ctx context.Context, postID string) error {
	return s.setLike(ctx, "unlikePost", postID, false)
}

// setLike writes the likes change remotely first; the local list is only
// touched once the backend accepted it.
func (s *Store) setLike(ctx context.Context, op, postID string, add bool) error {
	user := s.session.Current()
	if user == nil {
		return s.fail(op, KindUnauthenticated, ErrNotSignedIn, slog.String("post_id", postID))
	}

	unlock := s.likes.Lock(postID)
	defer unlock()

	done := observability.TrackBackend("documents", "update_likes")
	err := s.docs.UpdateLikes(ctx, postID, user.ID, add)
	done()
	if err != nil {
		return s.fail(op, KindBackend, err, slog.String("post_id", postID))
	}

	s.mu.Lock()
	for i := range s.posts {
		if s.posts[i].ID != postID {
			continue
		}
		if add {
			s.posts[i].Likes = addID(s.posts[i].Likes, user.ID)
		} else {
			s.posts[i].Likes = removeID(s.posts[i].Likes, user.ID)
		}
	}
	s.mu.Unlock()

	s.ok(op)
	s.notify()
	return nil
}

func addID(ids []string, id string) []string {
	out := append(make([]string, 0, len(ids)+1), ids...)
	for _, x := range ids {
		if x == id {
			return out
		}
	}
	return append(out, id)
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
