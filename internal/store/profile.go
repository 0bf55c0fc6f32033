package store

import (
	"context"
	"fmt"

	"local.dev/socialfeed/internal/models"
)

// GetProfile reads one user's profile document.
func (s *Store) GetProfile(ctx context.Context, uid string) (models.Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Profile{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[uid]
	return p, ok, nil
}

// SetProfile creates the document on first edit and overwrites the
// name, photo and bio fields afterwards.
func (s *Store) SetProfile(ctx context.Context, p models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("profile without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.profiles[p.ID]
	s.profiles[p.ID] = p
	if err := writeJSONFile(s.profilesFile, s.profiles); err != nil {
		if had {
			s.profiles[p.ID] = prev
		} else {
			delete(s.profiles, p.ID)
		}
		return fmt.Errorf("save profiles: %w", err)
	}
	return nil
}
