package split

import "fmt"

// SplitError aborts a split run. Parts written earlier in the run are removed
// before it is returned.
type SplitError struct {
	Path string
	Op   string
	Err  error
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("split %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *SplitError) Unwrap() error { return e.Err }
