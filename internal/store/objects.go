package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Objects stores blobs under a directory and serves them as
// <baseURL>/uploads/<key>.
type Objects struct {
	dir     string
	baseURL string
}

func NewObjects(dir, baseURL string) *Objects {
	return &Objects{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (o *Objects) Dir() string { return o.dir }

// cleanKey rejects keys that would escape the uploads directory.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + key)[1:]
	if k == "" || k != key || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return k, nil
}

func (o *Objects) Upload(ctx context.Context, key, _ string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(o.dir, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store file: %w", err)
	}
	return o.baseURL + "/uploads/" + k, nil
}

// Delete removes the object; deleting a missing object is not an error.
func (o *Objects) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(o.dir, filepath.FromSlash(k)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
