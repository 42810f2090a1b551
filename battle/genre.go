package battle

import (
	"fmt"
	"strings"

	"musicbattle/settlement"
	"musicbattle/tracks"
)

// Genre is a selectable genre and the fixed payment charged for battles and
// votes in it.
type Genre struct {
	Name   string
	Amount settlement.Amount
}

// GenreBook is the ordered, immutable set of configured genres.
type GenreBook struct {
	ordered []Genre
	byKey   map[string]Genre
}

// NewGenreBook validates the genres and preserves their order for menus.
func NewGenreBook(genres []Genre) (*GenreBook, error) {
	if len(genres) == 0 {
		return nil, fmt.Errorf("%w: at least one genre required", ErrValidation)
	}
	book := &GenreBook{byKey: make(map[string]Genre, len(genres))}
	for _, g := range genres {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: genre name required", ErrValidation)
		}
		if g.Amount.IsZero() {
			return nil, fmt.Errorf("%w: genre %q needs a positive amount", ErrValidation, name)
		}
		key := tracks.GenreKey(name)
		if _, exists := book.byKey[key]; exists {
			return nil, fmt.Errorf("%w: duplicate genre %q", ErrValidation, name)
		}
		g.Name = name
		book.byKey[key] = g
		book.ordered = append(book.ordered, g)
	}
	return book, nil
}

// Lookup resolves a genre case-insensitively.
func (b *GenreBook) Lookup(name string) (Genre, error) {
	g, ok := b.byKey[tracks.GenreKey(name)]
	if !ok {
		return Genre{}, fmt.Errorf("%w: %q", ErrUnknownGenre, strings.TrimSpace(name))
	}
	return g, nil
}

// All returns the genres in configured order.
func (b *GenreBook) All() []Genre {
	return append([]Genre(nil), b.ordered...)
}

// DefaultGenres mirrors the launch pricing.
func DefaultGenres() []Genre {
	return []Genre{
		{Name: "Pop", Amount: settlement.NewAmount(5)},
		{Name: "Rock", Amount: settlement.NewAmount(10)},
		{Name: "Hip-Hop", Amount: settlement.NewAmount(15)},
		{Name: "Classical", Amount: settlement.NewAmount(3)},
	}
}
