package models

import (
	"io"
	"strings"
	"time"
)

// User is the signed-in identity as issued by the identity provider.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoURL"`
}

// Profile is the per-user document kept next to the identity (users/<uid>).
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	Bio         string `json:"userBio"`
}

type Post struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	MediaURLs      []string  `json:"mediaUrls"`
	AuthorID       string    `json:"authorId"`
	AuthorName     string    `json:"authorName"`
	AuthorPhotoURL string    `json:"authorPhotoURL"`
	Likes          []string  `json:"likes"`
	CreatedAt      Timestamp `json:"createdAt"`
}

// NewPost is a post before the backend has assigned its id and timestamp.
type NewPost struct {
	Content        string
	MediaURLs      []string
	AuthorID       string
	AuthorName     string
	AuthorPhotoURL string
}

// Empty reports whether the post carries neither text nor media.
func (p NewPost) Empty() bool {
	return strings.TrimSpace(p.Content) == "" && len(p.MediaURLs) == 0
}

// LikedBy reports whether uid is in the likes set.
func (p Post) LikedBy(uid string) bool {
	for _, id := range p.Likes {
		if id == uid {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with p.
func (p Post) Clone() Post {
	cp := p
	cp.MediaURLs = append([]string{}, p.MediaURLs...)
	cp.Likes = append([]string{}, p.Likes...)
	return cp
}

// Cursor points at the last post of a page. Pages are ordered by
// (CreatedAt desc, ID desc); the next page starts strictly after it.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the cursor for the last post, or nil for an empty page.
func CursorOf(posts []Post) *Cursor {
	if len(posts) == 0 {
		return nil
	}
	last := posts[len(posts)-1]
	return &Cursor{CreatedAt: last.CreatedAt.Time, ID: last.ID}
}

// Admits reports whether p sorts strictly after the cursor position,
// i.e. belongs to a later page.
func (c Cursor) Admits(p Post) bool {
	if p.CreatedAt.Equal(c.CreatedAt) {
		return p.ID < c.ID
	}
	return p.CreatedAt.Before(c.CreatedAt)
}

// MediaFile is one file attached to a post or a profile edit.
type MediaFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}
