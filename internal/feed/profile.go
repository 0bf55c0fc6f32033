package feed

import (
	"context"
	"log/slog"

	"local.dev/socialfeed/internal/models"
	"local.dev/socialfeed/internal/observability"
)

// LoadProfile reads the signed-in user's profile document. A missing
// document is not an error: the profile falls back to the identity with
// an empty bio. On a backend error that same fallback is returned with it.
func (s *Store) LoadProfile(ctx context.Context) (models.Profile, error) {
	const op = "loadProfile"
	user := s.session.Current()
	if user == nil {
		return models.Profile{}, s.fail(op, KindUnauthenticated, ErrNotSignedIn)
	}
	fallback := models.Profile{ID: user.ID, DisplayName: user.Name, PhotoURL: user.PhotoURL}

	done := observability.TrackBackend("documents", "get_profile")
	p, found, err := s.docs.GetProfile(ctx, user.ID)
	done()
	if err != nil {
		return fallback, s.fail(op, KindBackend, err)
	}
	s.ok(op)
	if !found {
		return fallback, nil
	}
	// name and photo come from the identity; the document only adds the bio
	fallback.Bio = p.Bio
	return fallback, nil
}

// UpdateProfile uploads an optional new photo to profiles/<uid>, updates
// the identity provider, refreshes the session, then create-or-merges the
// profile document. Steps that already succeeded are not rolled back.
func (s *Store) UpdateProfile(ctx context.Context, name, bio string, photo *models.MediaFile) (models.User, error) {
	const op = "updateProfile"
	user := s.session.Current()
	if user == nil {
		return models.User{}, s.fail(op, KindUnauthenticated, ErrNotSignedIn)
	}

	photoURL := user.PhotoURL
	if photo != nil {
		done := observability.TrackBackend("objects", "upload")
		url, err := s.objects.Upload(ctx, "profiles/"+user.ID, photo.ContentType, photo.Body)
		done()
		if err != nil {
			return *user, s.fail(op, KindBackend, err)
		}
		if photo.Size > 0 {
			observability.UploadedBytes.Add(float64(photo.Size))
		}
		photoURL = url
	}

	done := observability.TrackBackend("identity", "update_profile")
	err := s.identity.UpdateProfile(ctx, user.ID, name, photoURL)
	done()
	if err != nil {
		return *user, s.fail(op, KindBackend, err)
	}

	updated := *user
	updated.Name = name
	updated.PhotoURL = photoURL
	s.session.Set(&updated)

	done = observability.TrackBackend("documents", "set_profile")
	err = s.docs.SetProfile(ctx, models.Profile{ID: user.ID, DisplayName: name, PhotoURL: photoURL, Bio: bio})
	done()
	if err != nil {
		return updated, s.fail(op, KindBackend, err)
	}
	s.ok(op)
	s.log.Info("profile updated", slog.String("uid", user.ID))
	return updated, nil
}
