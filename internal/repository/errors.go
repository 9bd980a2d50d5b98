package repository

import "errors"

var (
	// ErrStaleToken is returned by SetToken when the stored access token no
	// longer matches the one the caller refreshed.
	ErrStaleToken = errors.New("social account token changed concurrently")
	// ErrNotClaimed is returned when completing a ledger entry that is not in
	// the publishing state, i.e. it was never claimed or is already terminal.
	ErrNotClaimed = errors.New("posting history entry is not claimed")
)
