package store

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v6"

	"local.dev/socialfeed/internal/models"
)

// SeedDemo fills an empty store with n generated posts from a handful of
// demo authors, some with a picture. It does nothing when posts exist.
func SeedDemo(ctx context.Context, s *Store, n int, seed int64) (int, error) {
	if n <= 0 || s.Len() > 0 {
		return 0, nil
	}
	faker := gofakeit.New(seed)

	authors := make([]models.User, 4)
	for i := range authors {
		name := faker.FirstName()
		authors[i] = models.User{
			ID:       fmt.Sprintf("demo_%s", faker.LetterN(8)),
			Name:     name,
			PhotoURL: fmt.Sprintf("https://picsum.photos/seed/%s/200/200", faker.UUID()),
		}
	}

	for i := 0; i < n; i++ {
		a := authors[faker.Number(0, len(authors)-1)]
		p := models.NewPost{
			Content:        faker.Paragraph(1, 2, 12, " "),
			MediaURLs:      []string{},
			AuthorID:       a.ID,
			AuthorName:     a.Name,
			AuthorPhotoURL: a.PhotoURL,
		}
		if faker.Bool() {
			p.MediaURLs = append(p.MediaURLs, fmt.Sprintf("https://picsum.photos/seed/%s/800/800", faker.UUID()))
		}
		if _, err := s.InsertPost(ctx, p); err != nil {
			return i, fmt.Errorf("seed post %d: %w", i, err)
		}
	}
	return n, nil
}
