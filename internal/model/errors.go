package model

import "github.com/rotisserie/eris"

// ErrInvariant marks an internal-consistency violation. Stages wrap it and
// callers halt instead of writing corrupted aggregates.
var ErrInvariant = eris.New("invariant violation")

// Invariantf wraps ErrInvariant with a formatted message.
func Invariantf(format string, args ...any) error {
	return eris.Wrapf(ErrInvariant, format, args...)
}
