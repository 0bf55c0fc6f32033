package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"local.dev/socialfeed/internal/models"
)

// Identity is the dev identity provider: the credential itself is the
// identity key (an email, lowercased, or a uid). Users are created on
// first sign-in.
type Identity struct {
	mu        sync.Mutex
	users     map[string]models.User
	usersFile string
}

func NewIdentity(usersFile string) *Identity {
	return &Identity{users: map[string]models.User{}, usersFile: usersFile}
}

func (i *Identity) Load() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.usersFile == "" {
		return nil
	}
	if err := readJSONFile(i.usersFile, &i.users); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load users: %w", err)
	}
	if i.users == nil {
		i.users = map[string]models.User{}
	}
	return nil
}

// IdentityKey normalizes an email/uid pair: the lowercased email wins.
func IdentityKey(email, uid string) string {
	if e := strings.TrimSpace(strings.ToLower(email)); e != "" {
		return e
	}
	return strings.TrimSpace(uid)
}

func (i *Identity) SignIn(ctx context.Context, credential string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	key := strings.TrimSpace(credential)
	if strings.Contains(key, "@") {
		key = strings.ToLower(key)
	}
	if key == "" {
		return models.User{}, errors.New("empty credential")
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if u, ok := i.users[key]; ok {
		return u, nil
	}
	u := models.User{ID: key, Name: key}
	if at := strings.Index(key, "@"); at > 0 {
		u.Email = key
		u.Name = key[:at]
	}
	i.users[key] = u
	if err := writeJSONFile(i.usersFile, i.users); err != nil {
		delete(i.users, key)
		return models.User{}, fmt.Errorf("save users: %w", err)
	}
	return u, nil
}

func (i *Identity) SignOut(ctx context.Context, _ string) error { return ctx.Err() }

func (i *Identity) UpdateProfile(ctx context.Context, uid, name, photoURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	u, ok := i.users[uid]
	if !ok {
		return fmt.Errorf("user %s: %w", uid, ErrNotFound)
	}
	prev := u
	u.Name = name
	u.PhotoURL = photoURL
	i.users[uid] = u
	if err := writeJSONFile(i.usersFile, i.users); err != nil {
		i.users[uid] = prev
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}
