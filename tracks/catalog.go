package tracks

import (
	"context"
	"strconv"
	"strings"
)

// CatalogSong is a statically configured track with a known creator.
type CatalogSong struct {
	Title   string `yaml:"title" toml:"title"`
	Creator string `yaml:"creator" toml:"creator"`
}

// CatalogProvider serves a fixed per-genre song list. It is used when no
// streaming catalogue is configured and in local development.
type CatalogProvider struct {
	songs map[string][]Track
}

// NewCatalogProvider indexes the catalog by canonical genre key.
func NewCatalogProvider(catalog map[string][]CatalogSong) *CatalogProvider {
	songs := make(map[string][]Track, len(catalog))
	for genre, list := range catalog {
		key := GenreKey(genre)
		for i, song := range list {
			title := SanitizeTitle(song.Title)
			if title == "" {
				continue
			}
			songs[key] = append(songs[key], Track{
				ID:      key + ":" + strconv.Itoa(i),
				Title:   title,
				Creator: strings.TrimSpace(song.Creator),
			})
		}
	}
	return &CatalogProvider{songs: songs}
}

// Search returns a copy of the songs configured for the genre.
func (p *CatalogProvider) Search(_ context.Context, genre string) ([]Track, error) {
	list, ok := p.songs[GenreKey(genre)]
	if !ok {
		return nil, ErrUnknownGenre
	}
	return append([]Track(nil), list...), nil
}

// DefaultCatalog is the built-in demo catalogue.
func DefaultCatalog() map[string][]CatalogSong {
	return map[string][]CatalogSong{
		"Pop": {
			{Title: "Pop Song 1", Creator: "0x14dC79964da2C08b23698B3D3cc7Ca32193d9955"},
			{Title: "Pop Song 2", Creator: "0x23618e81E3f5cdF7f54C3d65f7FBc0aBf5B21E8f"},
		},
		"Rock": {
			{Title: "Rock Song 1", Creator: "0xa0Ee7A142d267C1f36714E4a8F75612F20a79720"},
			{Title: "Rock Song 2", Creator: "0xBcd4042DE499D14e55001CcbB24a551F3b954096"},
		},
		"Hip-Hop": {
			{Title: "Hip-Hop Song 1", Creator: "0x71bE63f3384f5fb98995898A86B02Fb2426c5788"},
			{Title: "Hip-Hop Song 2", Creator: "0x1CBd3b2770909D4e10f157cABC84C7264073C9Ec"},
		},
		"Classical": {
			{Title: "Classical Song 1", Creator: "0xdF3e18d64BC6A983f673Ab319CCaE4f1a57C7097"},
			{Title: "Classical Song 2", Creator: "0xcd3B766CCDd6AE721141F452C550Ca635964ce71"},
		},
	}
}
