package store

import "fmt"

// StorageError reports an I/O failure against the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotFoundError reports a missing dataset or related record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IntegrityError reports a content hash mismatch. VerifyIntegrity surfaces it
// as a boolean rather than returning it, but internal callers can still
// distinguish corruption from retrieval failure.
type IntegrityError struct {
	DatasetID string
	Expected  string
	Actual    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("dataset %s content hash mismatch: expected %s, got %s",
		e.DatasetID, e.Expected, e.Actual)
}
