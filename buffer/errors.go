package buffer

import (
	"errors"
	"fmt"

	"bufmgr/disk"
)

// Error kinds. Every error returned by BufferPool matches exactly one of them with errors.Is.
var (
	ErrInvalidBufferSize = errors.New("buffer size must be positive")
	ErrBufferExceeded    = errors.New("all frames are pinned")
	ErrPageNotFound      = errors.New("page cannot be found in the buffer pool")
	ErrPageNotPinned     = errors.New("page is not pinned")
	ErrPinCountMismatch  = errors.New("page pin count does not allow the operation")
	ErrInvalidPageID     = errors.New("invalid page id")
	ErrPageWrite         = errors.New("page write failed")
	ErrPageRead          = errors.New("page read failed")
	ErrAllocate          = errors.New("page allocation failed")
	ErrDeallocate        = errors.New("page deallocation failed")
	ErrDirectoryConflict = errors.New("page is already mapped to another frame")
	ErrPoolClosed        = errors.New("buffer pool is closed")

	ErrUnknownReplacer = errors.New("unknown replacement policy")
)

// Error carries the operation and page that failed along with the error kind and, for disk failures, the error
// returned by the disk layer.
type Error struct {
	Op     string
	PageID disk.PageID
	Kind   error
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.PageID.IsValid() {
		msg = fmt.Sprintf("%s page %d", msg, e.PageID)
	}
	msg = msg + ": " + e.Kind.Error()
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(op string, pageId disk.PageID, kind, cause error) error {
	return &Error{
		Op:     op,
		PageID: pageId,
		Kind:   kind,
		Cause:  cause,
	}
}
