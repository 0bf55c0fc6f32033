package cloud

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
)

// Backend bundles the Firebase clients. Close releases the Firestore connection.
type Backend struct {
	Documents *Documents
	Objects   *Objects
	Identity  *Identity

	firestore *firestore.Client
}

// New opens Firestore, Storage and Auth on app. bucket is the configured
// storage bucket name and is only used to build download URLs.
func New(ctx context.Context, app *firebase.App, bucket string) (*Backend, error) {
	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore init: %w", err)
	}
	st, err := app.Storage(ctx)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("storage init: %w", err)
	}
	bh, err := st.DefaultBucket()
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("storage bucket: %w", err)
	}
	ac, err := app.Auth(ctx)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("firebase auth init: %w", err)
	}
	return &Backend{
		Documents: NewDocuments(fs),
		Objects:   NewObjects(bh, bucket),
		Identity:  NewIdentity(ac),
		firestore: fs,
	}, nil
}

func (b *Backend) Close() error { return b.firestore.Close() }
