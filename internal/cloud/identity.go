package cloud

import (
	"context"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"

	"local.dev/socialfeed/internal/models"
)

// authClient is the part of *auth.Client used here.
type authClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// Identity verifies Firebase ID tokens and manages the user record.
type Identity struct {
	client authClient
}

func NewIdentity(client *auth.Client) *Identity {
	return &Identity{client: client}
}

// SignIn verifies the ID token and loads the user it belongs to. Claims
// fill in when the user record cannot be read.
func (i *Identity) SignIn(ctx context.Context, credential string) (models.User, error) {
	idToken := strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	tok, err := i.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return models.User{}, fmt.Errorf("verify id token: %w", err)
	}
	u := models.User{
		ID:       tok.UID,
		Name:     claim(tok.Claims, "name"),
		Email:    claim(tok.Claims, "email"),
		PhotoURL: claim(tok.Claims, "picture"),
	}
	rec, err := i.client.GetUser(ctx, tok.UID)
	if err != nil || rec == nil || rec.UserInfo == nil {
		return u, nil
	}
	u.Name = rec.DisplayName
	u.Email = rec.Email
	u.PhotoURL = rec.PhotoURL
	return u, nil
}

// SignOut revokes the user's refresh tokens.
func (i *Identity) SignOut(ctx context.Context, uid string) error {
	if err := i.client.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("revoke tokens for %s: %w", uid, err)
	}
	return nil
}

func (i *Identity) UpdateProfile(ctx context.Context, uid, name, photoURL string) error {
	update := (&auth.UserToUpdate{}).DisplayName(name)
	if photoURL != "" {
		update = update.PhotoURL(photoURL)
	}
	if _, err := i.client.UpdateUser(ctx, uid, update); err != nil {
		return fmt.Errorf("update user %s: %w", uid, err)
	}
	return nil
}

func claim(claims map[string]any, k string) string {
	if s, ok := claims[k].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
