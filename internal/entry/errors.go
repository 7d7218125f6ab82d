package entry

import "errors"

// ErrMalformed is returned when a buffer is too short to hold the header
// it claims, or too short to hold the key/value it declares.
var ErrMalformed = errors.New("entry: malformed record")
