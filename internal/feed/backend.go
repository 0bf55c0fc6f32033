package feed

import (
	"context"
	"io"

	"local.dev/socialfeed/internal/models"
)

// Documents is the document database holding posts and profiles.
type Documents interface {
	// InsertPost stores p with an empty likes set and a server-assigned
	// creation time and returns the generated id.
	InsertPost(ctx context.Context, p models.NewPost) (string, error)
	// QueryPosts returns up to limit posts ordered newest first, strictly
	// after the cursor when one is given.
	QueryPosts(ctx context.Context, after *models.Cursor, limit int) ([]models.Post, error)
	// UpdateLikes adds (add=true) or removes uid from the post's likes set.
	UpdateLikes(ctx context.Context, postID, uid string, add bool) error
	// GetProfile reports ok=false when no profile document exists.
	GetProfile(ctx context.Context, uid string) (models.Profile, bool, error)
	// SetProfile creates the profile document or merges into it.
	SetProfile(ctx context.Context, p models.Profile) error
}

// Objects is the blob storage holding post media and profile photos.
type Objects interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// Identity is the external identity provider.
type Identity interface {
	// SignIn exchanges a credential (an ID token, or a dev key in NO_AUTH
	// mode) for the user record.
	SignIn(ctx context.Context, credential string) (models.User, error)
	SignOut(ctx context.Context, uid string) error
	UpdateProfile(ctx context.Context, uid, name, photoURL string) error
}
