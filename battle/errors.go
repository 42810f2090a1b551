package battle

import "errors"

var (
	// ErrValidation marks malformed or missing caller input. It is always
	// raised before any network call.
	ErrValidation = errors.New("battle: invalid input")
	// ErrInsufficientCandidates is returned when the track draw yields fewer
	// than two distinct tracks.
	ErrInsufficientCandidates = errors.New("battle: insufficient track candidates")
	// ErrUnknownGenre is returned for genres that are not configured.
	ErrUnknownGenre = errors.New("battle: unknown genre")
	// ErrDuplicateBattle is returned when a battle id is already in the store.
	ErrDuplicateBattle = errors.New("battle: duplicate battle id")
)
