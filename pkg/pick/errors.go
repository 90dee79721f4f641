package pick

import "errors"

// Domain sentinel errors. Callers match them with errors.Is via the
// predicates below rather than string comparison.
var (
	ErrNotFound      = errors.New("pick not found")
	ErrDuplicate     = errors.New("duplicate pick")
	ErrInvalidMarket = errors.New("invalid market")
	ErrMissingField  = errors.New("missing required field")
)

// IsNotFound reports whether err denotes a missing pick.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDuplicate reports whether err denotes a uniqueness violation.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }
