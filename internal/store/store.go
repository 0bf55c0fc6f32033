// Package store is the file-backed local backend: a JSON document store for
// posts and profiles, a filesystem object store and a dev identity provider.
// It serves BACKEND=local and NO_AUTH=1 setups and doubles as the test backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"local.dev/socialfeed/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store keeps posts and profiles in memory and rewrites the JSON files on
// every change. Empty file paths keep it purely in memory.
type Store struct {
	mu       sync.RWMutex
	posts    []models.Post
	profiles map[string]models.Profile // uid -> profile

	postsFile    string
	profilesFile string

	// Now assigns creation times; it stands in for the server clock.
	Now func() time.Time
}

func NewStore(postsFile, profilesFile string) *Store {
	return &Store{
		profiles:     map[string]models.Profile{},
		postsFile:    postsFile,
		profilesFile: profilesFile,
		Now:          time.Now,
	}
}

func readJSONFile[T any](path string, out *T) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func writeJSONFile(path string, v any) error {
	if path == "" {
		return nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadAll reads both files; a missing file leaves that collection empty.
func (s *Store) LoadAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.postsFile != "" {
		if err := readJSONFile(s.postsFile, &s.posts); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load posts: %w", err)
		}
	}
	if s.profilesFile != "" {
		if err := readJSONFile(s.profilesFile, &s.profiles); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load profiles: %w", err)
		}
	}
	if s.profiles == nil {
		s.profiles = map[string]models.Profile{}
	}
	return nil
}

// ===== posts =====

func (s *Store) InsertPost(ctx context.Context, p models.NewPost) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Empty() {
		return "", errors.New("post needs content or media")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	post := models.Post{
		ID:             uuid.NewString(),
		Content:        p.Content,
		MediaURLs:      append([]string{}, p.MediaURLs...),
		AuthorID:       p.AuthorID,
		AuthorName:     p.AuthorName,
		AuthorPhotoURL: p.AuthorPhotoURL,
		Likes:          []string{},
		CreatedAt:      models.NewTimestamp(s.Now()),
	}
	s.posts = append(s.posts, post)
	if err := writeJSONFile(s.postsFile, s.posts); err != nil {
		s.posts = s.posts[:len(s.posts)-1]
		return "", fmt.Errorf("save posts: %w", err)
	}
	return post.ID, nil
}

// QueryPosts orders by (createdAt desc, id desc) and starts strictly after the cursor.
func (s *Store) QueryPosts(ctx context.Context, after *models.Cursor, limit int) ([]models.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	sorted := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		sorted = append(sorted, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt.Time) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt.Time)
	})

	out := make([]models.Post, 0, limit)
	for _, p := range sorted {
		if after != nil && !after.Admits(p) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdateLikes applies a set-add or set-remove on the likes field.
func (s *Store) UpdateLikes(ctx context.Context, postID, uid string, add bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.posts {
		if p.ID == postID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}

	prev := s.posts[idx].Likes
	next := make([]string, 0, len(prev)+1)
	found := false
	for _, id := range prev {
		if id == uid {
			found = true
			if !add {
				continue
			}
		}
		next = append(next, id)
	}
	if add && !found {
		next = append(next, uid)
	}
	s.posts[idx].Likes = next
	if err := writeJSONFile(s.postsFile, s.posts); err != nil {
		s.posts[idx].Likes = prev
		return fmt.Errorf("save posts: %w", err)
	}
	return nil
}

// ByID returns a copy of the stored post.
func (s *Store) ByID(id string) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return models.Post{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}
