package normalize

import "fmt"

// DecodeError reports a source that could not be opened, sniffed or decoded.
type DecodeError struct {
	Index  int
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %d (%s): %v", e.Index, e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a failure writing the normalized image.
type EncodeError struct {
	Index  int
	Source string
	Path   string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode image %d (%s) to %s: %v", e.Index, e.Source, e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
