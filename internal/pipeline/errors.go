package pipeline

import (
	"context"
	"errors"

	"github.com/local/pictopdf/internal/normalize"
)

// IsRecoverable reports whether err only affects a single input, so the run
// can skip it and continue.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var de *normalize.DecodeError
	if errors.As(err, &de) {
		return true
	}
	var ee *normalize.EncodeError
	return errors.As(err, &ee)
}
