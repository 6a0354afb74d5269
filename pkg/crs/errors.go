package crs

import "github.com/pkg/errors"

// Sentinel errors for the CRS substrate. Callers classify with errors.Is
// after unwrapping pkg/errors wrapping via errors.Cause.
var (
	ErrCrsUnknown          = errors.New("unknown CRS")
	ErrCrsAxisOrderUnknown = errors.New("CRS axis order unknown")
	ErrTransformFailure    = errors.New("coordinate transform failed")
)
