package answers

import "errors"

// ErrAlreadyAnswered rejects a duplicate submission for a question this
// participant has already answered. Surfaced as a no-op to the caller;
// the original score is never altered.
var ErrAlreadyAnswered = errors.New("question already answered")
