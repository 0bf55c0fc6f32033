package feed

import (
	"context"
	"errors"
	"log/slog"

	"local.dev/socialfeed/internal/models"
	"local.dev/socialfeed/internal/observability"
)

// SignIn asks the identity provider for the user behind credential and
// makes it the session user.
func (s *Store) SignIn(ctx context.Context, credential string) (models.User, error) {
	const op = "signIn"
	if credential == "" {
		return models.User{}, s.fail(op, KindUnauthenticated, errors.New("missing credential"))
	}
	done := observability.TrackBackend("identity", "sign_in")
	user, err := s.identity.SignIn(ctx, credential)
	done()
	if err != nil {
		return models.User{}, s.fail(op, KindUnauthenticated, err)
	}
	s.session.Set(&user)
	s.ok(op)
	s.log.Info("signed in", slog.String("uid", user.ID))
	return user, nil
}

// SignOut ends the session. Signing out with no session is a no-op; when
// the provider fails the session is kept.
func (s *Store) SignOut(ctx context.Context) error {
	const op = "signOut"
	user := s.session.Current()
	if user == nil {
		return nil
	}
	done := observability.TrackBackend("identity", "sign_out")
	err := s.identity.SignOut(ctx, user.ID)
	done()
	if err != nil {
		return s.fail(op, KindBackend, err)
	}
	s.session.Set(nil)
	s.ok(op)
	s.log.Info("signed out", slog.String("uid", user.ID))
	return nil
}
