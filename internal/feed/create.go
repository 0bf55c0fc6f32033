package feed

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"local.dev/socialfeed/internal/models"
	"local.dev/socialfeed/internal/observability"
)

// CreatePost uploads the media, writes the post with the author fields
// copied from the session, then refetches the feed from the start.
// Uploads are removed again if any upload or the insert fails.
func (s *Store) CreatePost(ctx context.Context, content string, media []models.MediaFile) error {
	const op = "createPost"
	user := s.session.Current()
	if user == nil {
		return s.fail(op, KindUnauthenticated, ErrNotSignedIn)
	}
	if strings.TrimSpace(content) == "" && len(media) == 0 {
		return s.fail(op, KindInvalid, ErrEmptyPost)
	}

	s.mu.Lock()
	if s.creating {
		s.mu.Unlock()
		return s.fail(op, KindBusy, ErrBusy)
	}
	s.creating = true
	s.busy++
	s.mu.Unlock()
	s.notify()
	defer func() {
		s.mu.Lock()
		s.creating = false
		s.busy--
		s.mu.Unlock()
		s.notify()
	}()

	urls, keys, err := s.uploadMedia(ctx, media)
	if err != nil {
		s.discardUploads(keys)
		return s.fail(op, KindBackend, err, slog.Int("media", len(media)))
	}

	post := models.NewPost{
		Content:        content,
		MediaURLs:      urls,
		AuthorID:       user.ID,
		AuthorName:     user.Name,
		AuthorPhotoURL: user.PhotoURL,
	}
	done := observability.TrackBackend("documents", "insert")
	id, err := s.docs.InsertPost(ctx, post)
	done()
	if err != nil {
		s.discardUploads(keys)
		return s.fail(op, KindBackend, err, slog.Int("media", len(media)))
	}
	s.ok(op)
	s.log.Info("post created", slog.String("post_id", id), slog.Int("media", len(urls)))

	// The new post shows up through the refetch; its failure is already
	// logged and does not undo the create.
	_ = s.FetchPosts(ctx)
	return nil
}

// uploadMedia uploads all files concurrently. urls keep submission order;
// keys holds the key of every upload that succeeded ("" otherwise).
func (s *Store) uploadMedia(ctx context.Context, media []models.MediaFile) ([]string, []string, error) {
	urls := make([]string, len(media))
	keys := make([]string, len(media))
	if len(media) == 0 {
		return urls, keys, nil
	}

	submitted := s.now()
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range media {
		g.Go(func() error {
			key := MediaKey("posts", submitted, f.Name)
			done := observability.TrackBackend("objects", "upload")
			url, err := s.objects.Upload(gctx, key, f.ContentType, f.Body)
			done()
			if err != nil {
				return fmt.Errorf("upload %s: %w", f.Name, err)
			}
			if f.Size > 0 {
				observability.UploadedBytes.Add(float64(f.Size))
			}
			urls[i] = url
			keys[i] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, keys, err
	}
	return urls, keys, nil
}

// discardUploads deletes orphaned uploads. It runs detached from the
// request context so a cancelled create still cleans up.
func (s *Store) discardUploads(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.objects.Delete(ctx, key); err != nil {
			observability.OrphanedUploads.Inc()
			s.log.Error("could not remove orphaned upload", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// MediaKey builds "<prefix>/<unix millis>_<sanitized name>".
func MediaKey(prefix string, t time.Time, name string) string {
	return fmt.Sprintf("%s/%d_%s", prefix, t.UnixMilli(), SanitizeName(name))
}

// SanitizeName keeps letters, digits and -_. ; everything else becomes '-'.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == '.' ||
			(r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			return r
		}
		return '-'
	}, name)
}
