package experiments

import "errors"

// ErrInvalidInput is returned for empty variant lists, missing weights and
// weight/variant length mismatches.
var ErrInvalidInput = errors.New("invalid input")
