package disk

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var _ IDiskManager = &MemManager{}

// IOStats counts the calls that reached a disk manager.
type IOStats struct {
	Reads    int64
	Writes   int64
	Allocs   int64
	Deallocs int64
}

// MemManager keeps pages in memory. Page ids start from 0 and are never reused. It is meant for tests and for
// running the pool without a backing file.
type MemManager struct {
	pages      map[PageID][]byte
	nextPageID PageID
	closed     bool
	mu         sync.Mutex

	reads, writes, allocs, deallocs atomic.Int64
}

func NewMemManager() *MemManager {
	return &MemManager{
		pages: map[PageID][]byte{},
	}
}

func (m *MemManager) ReadPage(pageId PageID, dst []byte) error {
	if len(dst) != PageSize {
		return errors.Wrapf(ErrShortBuffer, "read page %d", pageId)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.get(pageId)
	if err != nil {
		return err
	}

	m.reads.Add(1)
	copy(dst, data)
	return nil
}

func (m *MemManager) WritePage(pageId PageID, src []byte) error {
	if len(src) != PageSize {
		return errors.Wrapf(ErrShortBuffer, "write page %d", pageId)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.get(pageId)
	if err != nil {
		return err
	}

	m.writes.Add(1)
	copy(data, src)
	return nil
}

func (m *MemManager) AllocatePage(count int) (PageID, error) {
	if count <= 0 {
		return InvalidPageID, errors.Wrapf(ErrInvalidPageCount, "allocate %d pages", count)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return InvalidPageID, ErrClosed
	}

	first := m.nextPageID
	for i := 0; i < count; i++ {
		m.pages[first+PageID(i)] = make([]byte, PageSize)
	}
	m.nextPageID += PageID(count)
	m.allocs.Add(1)

	return first, nil
}

func (m *MemManager) DeallocatePage(pageId PageID, count int) error {
	if count <= 0 {
		return errors.Wrapf(ErrInvalidPageCount, "deallocate %d pages", count)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for p := pageId; p < pageId+PageID(count); p++ {
		if _, err := m.get(p); err != nil {
			return err
		}
	}
	for p := pageId; p < pageId+PageID(count); p++ {
		delete(m.pages, p)
	}
	m.deallocs.Add(1)

	return nil
}

func (m *MemManager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MemManager) IsAllocated(pageId PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.pages[pageId]
	return ok
}

func (m *MemManager) Stats() IOStats {
	return IOStats{
		Reads:    m.reads.Load(),
		Writes:   m.writes.Load(),
		Allocs:   m.allocs.Load(),
		Deallocs: m.deallocs.Load(),
	}
}

// get should be called with mu held.
func (m *MemManager) get(pageId PageID) ([]byte, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if pageId < 0 || pageId >= m.nextPageID {
		return nil, errors.Wrapf(ErrInvalidPageID, "page %d is out of range [0, %d)", pageId, m.nextPageID)
	}

	data, ok := m.pages[pageId]
	if !ok {
		return nil, errors.Wrapf(ErrPageNotAllocated, "page %d", pageId)
	}
	return data, nil
}
