package tracks

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownGenre is returned when a provider has nothing configured for the
// requested genre.
var ErrUnknownGenre = errors.New("tracks: unknown genre")

// ErrTransport marks provider calls that failed to complete: network errors,
// timeouts and unreadable responses.
var ErrTransport = errors.New("tracks: provider unreachable")

// Detail returns the provider failure without the package prefixes.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	marker := ErrTransport.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return msg
}

// Track is a single candidate returned by a provider. Creator is only set by
// providers that know the payout address of the track's creator.
type Track struct {
	ID               string
	Title            string
	PrimaryArtist    string
	PreviewAvailable bool
	Creator          string
}

// Provider returns candidate tracks for a genre. Results carry no ordering
// guarantee and may be fewer than requested or contain duplicates.
type Provider interface {
	Search(ctx context.Context, genre string) ([]Track, error)
}

// GenreKey canonicalises a genre name for case-insensitive lookups.
func GenreKey(genre string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(genre)))
}

// SanitizeTitle strips double quotes and surrounding whitespace and
// normalises the title to NFKC so it can be embedded in backend payloads and
// button labels.
func SanitizeTitle(title string) string {
	cleaned := strings.ReplaceAll(norm.NFKC.String(title), `"`, "")
	return strings.Join(strings.Fields(cleaned), " ")
}

// Distinct drops tracks without a title and keeps the first occurrence of
// each song. Two tracks are the same song when they share an ID, or when
// their titles and primary artists match after sanitising and case folding,
// which catches one recording listed under several releases.
func Distinct(in []Track) []Track {
	ids := make(map[string]struct{}, len(in))
	songs := make(map[string]struct{}, len(in))
	out := make([]Track, 0, len(in))
	for _, t := range in {
		title := SanitizeTitle(t.Title)
		if title == "" {
			continue
		}
		song := GenreKey(title) + "\x00" + GenreKey(SanitizeTitle(t.PrimaryArtist))
		if _, ok := songs[song]; ok {
			continue
		}
		id := strings.TrimSpace(t.ID)
		if id != "" {
			if _, ok := ids[id]; ok {
				continue
			}
			ids[id] = struct{}{}
		}
		songs[song] = struct{}{}
		out = append(out, t)
	}
	return out
}
