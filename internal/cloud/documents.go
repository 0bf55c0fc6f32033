// Package cloud implements the feed backends on Firebase: posts and
// profiles in Firestore, media in Cloud Storage, users in Firebase Auth.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"local.dev/socialfeed/internal/models"
)

const (
	postsCollection    = "posts"
	profilesCollection = "users"
)

// postDoc is the stored shape of a post. CreatedAt is zero on insert so
// Firestore fills in the server time.
type postDoc struct {
	Content        string    `firestore:"content"`
	MediaURLs      []string  `firestore:"mediaUrls"`
	AuthorID       string    `firestore:"authorId"`
	AuthorName     string    `firestore:"authorName"`
	AuthorPhotoURL string    `firestore:"authorPhotoURL"`
	Likes          []string  `firestore:"likes"`
	CreatedAt      time.Time `firestore:"createdAt,serverTimestamp"`
}

func (d postDoc) toPost(id string) models.Post {
	p := models.Post{
		ID:             id,
		Content:        d.Content,
		MediaURLs:      d.MediaURLs,
		AuthorID:       d.AuthorID,
		AuthorName:     d.AuthorName,
		AuthorPhotoURL: d.AuthorPhotoURL,
		Likes:          d.Likes,
		CreatedAt:      models.NewTimestamp(d.CreatedAt),
	}
	if p.MediaURLs == nil {
		p.MediaURLs = []string{}
	}
	if p.Likes == nil {
		p.Likes = []string{}
	}
	return p
}

// Documents is the Firestore document store.
type Documents struct {
	client *firestore.Client
}

func NewDocuments(client *firestore.Client) *Documents {
	return &Documents{client: client}
}

func (d *Documents) InsertPost(ctx context.Context, p models.NewPost) (string, error) {
	if p.Empty() {
		return "", errors.New("post needs content or media")
	}
	urls := p.MediaURLs
	if urls == nil {
		urls = []string{}
	}
	ref, _, err := d.client.Collection(postsCollection).Add(ctx, postDoc{
		Content:        p.Content,
		MediaURLs:      urls,
		AuthorID:       p.AuthorID,
		AuthorName:     p.AuthorName,
		AuthorPhotoURL: p.AuthorPhotoURL,
		Likes:          []string{},
	})
	if err != nil {
		return "", fmt.Errorf("insert post: %w", err)
	}
	return ref.ID, nil
}

// QueryPosts orders by createdAt then document id, both descending, so a
// cursor is unambiguous even when two posts share a timestamp.
func (d *Documents) QueryPosts(ctx context.Context, after *models.Cursor, limit int) ([]models.Post, error) {
	q := d.client.Collection(postsCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if after != nil {
		q = q.StartAfter(after.CreatedAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	posts := []models.Post{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query posts: %w", err)
		}
		var doc postDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode post %s: %w", snap.Ref.ID, err)
		}
		posts = append(posts, doc.toPost(snap.Ref.ID))
	}
	return posts, nil
}

// UpdateLikes uses array union/remove so concurrent writers never lose
// each other's likes.
func (d *Documents) UpdateLikes(ctx context.Context, postID, uid string, add bool) error {
	_, err := d.client.Collection(postsCollection).Doc(postID).Update(ctx, []firestore.Update{likesUpdate(uid, add)})
	if err != nil {
		return fmt.Errorf("update likes on %s: %w", postID, err)
	}
	return nil
}

func likesUpdate(uid string, add bool) firestore.Update {
	if add {
		return firestore.Update{Path: "likes", Value: firestore.ArrayUnion(uid)}
	}
	return firestore.Update{Path: "likes", Value: firestore.ArrayRemove(uid)}
}

func (d *Documents) GetProfile(ctx context.Context, uid string) (models.Profile, bool, error) {
	snap, err := d.client.Collection(profilesCollection).Doc(uid).Get(ctx)
	if isNotFound(err) {
		return models.Profile{}, false, nil
	}
	if err != nil {
		return models.Profile{}, false, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return profileFromData(uid, snap.Data()), true, nil
}

// SetProfile merges so fields written by other clients survive.
func (d *Documents) SetProfile(ctx context.Context, p models.Profile) error {
	_, err := d.client.Collection(profilesCollection).Doc(p.ID).Set(ctx, map[string]any{
		"displayName": p.DisplayName,
		"photoURL":    p.PhotoURL,
		"userBio":     p.Bio,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("set profile %s: %w", p.ID, err)
	}
	return nil
}

// profileFromData reads the profile loosely; older documents may lack
// fields or carry other types.
func profileFromData(uid string, m map[string]any) models.Profile {
	get := func(k string) string {
		if s, ok := m[k].(string); ok {
			return strings.TrimSpace(s)
		}
		return ""
	}
	return models.Profile{
		ID:          uid,
		DisplayName: get("displayName"),
		PhotoURL:    get("photoURL"),
		Bio:         get("userBio"),
	}
}

func isNotFound(err error) bool {
	return err != nil && status.Code(err) == codes.NotFound
}
