package disk

import "errors"

var (
	// ErrStorageIO wraps every failure of the underlying file. It is not retried, callers abort the operation.
	ErrStorageIO = errors.New("storage io failure")

	ErrTupleNotInFile = errors.New("tuple does not belong to this file")
	ErrNotHeapPage    = errors.New("page is not a heap page")
)
