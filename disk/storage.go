package disk

import (
	"github.com/pkg/errors"
)

// PageSize is the size of every page moved between the disk layer and the buffer pool.
const PageSize int = 4096

// PageID identifies a page on disk. It is independent of which frame, if any, caches the page.
type PageID int64

// InvalidPageID denotes "no page".
const InvalidPageID PageID = -1

func (p PageID) IsValid() bool {
	return p >= 0
}

// IDiskManager is the page I/O surface the buffer pool is built on. Implementations own the file layout and the
// page id space; callers only see fixed size pages addressed by PageID.
type IDiskManager interface {
	// ReadPage fills dst, which must be PageSize long, with the content of the page.
	ReadPage(pageId PageID, dst []byte) error

	// WritePage persists src, which must be PageSize long, as the content of the page.
	WritePage(pageId PageID, src []byte) error

	// AllocatePage reserves count contiguous page ids and returns the first one.
	AllocatePage(count int) (PageID, error)

	// DeallocatePage releases count contiguous page ids starting from pageId.
	DeallocatePage(pageId PageID, count int) error

	Close() error
}

var (
	ErrInvalidPageID    = errors.New("invalid page id")
	ErrPageNotAllocated = errors.New("page is not allocated")
	ErrInvalidPageCount = errors.New("page count must be positive")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrShortBuffer      = errors.New("buffer length is not equal to page size")
	ErrClosed           = errors.New("disk manager is closed")
)
