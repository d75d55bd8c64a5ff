package assemble

import "fmt"

// DocumentWriteError aborts an assembly run. Finalized lists the documents
// completed before the failure; they are valid and their sequence values are
// committed.
type DocumentWriteError struct {
	Path      string
	Finalized []Document
	Err       error
}

func (e *DocumentWriteError) Error() string {
	return fmt.Sprintf("write document %s: %v", e.Path, e.Err)
}

func (e *DocumentWriteError) Unwrap() error { return e.Err }
