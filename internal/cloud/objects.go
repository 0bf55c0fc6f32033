package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// downloadTokenKey is the metadata key Firebase Storage reads download tokens from.
const downloadTokenKey = "firebaseStorageDownloadTokens"

// bucket is the part of a storage bucket used here. A writer commits on
// Close unless its context was cancelled first.
type bucket interface {
	NewWriter(ctx context.Context, key, contentType string, metadata map[string]string) io.WriteCloser
	Delete(ctx context.Context, key string) error
}

type gcsBucket struct {
	h *storage.BucketHandle
}

func (b gcsBucket) NewWriter(ctx context.Context, key, contentType string, metadata map[string]string) io.WriteCloser {
	w := b.h.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	return w
}

func (b gcsBucket) Delete(ctx context.Context, key string) error {
	err := b.h.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

// Objects stores media in the Firebase default bucket and hands out
// token download URLs.
type Objects struct {
	bucket bucket
	name   string
}

func NewObjects(h *storage.BucketHandle, name string) *Objects {
	return &Objects{bucket: gcsBucket{h: h}, name: name}
}

// Upload streams body into key. A failed copy cancels the write so no
// partial object is left behind.
func (o *Objects) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	token := uuid.NewString()
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := o.bucket.NewWriter(wctx, key, contentType, map[string]string{downloadTokenKey: token})
	if _, err := io.Copy(w, body); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return DownloadURL(o.name, key, token), nil
}

// Delete removes the object; a missing object is not an error.
func (o *Objects) Delete(ctx context.Context, key string) error {
	if err := o.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DownloadURL is the public Firebase Storage URL of an object.
func DownloadURL(bucket, key, token string) string {
	u := fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media",
		bucket, url.PathEscape(key))
	if token != "" {
		u += "&token=" + url.QueryEscape(token)
	}
	return u
}
