package disk

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FlushInstantly should normally be set to true. If it is false then data might be lost even after a successful write
// operation when power loss occurs before os flushes its io buffers. Setting it to false should not change the
// validity of any tests unless a test is simulating a power loss.
const FlushInstantly bool = false

var _ IDiskManager = &Manager{}

// dbFile is the part of *os.File the manager uses.
type dbFile interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// Manager is a file backed IDiskManager. Slot 0 of the file keeps the header, which records the next never
// allocated page id and the head and tail of a free list. Freed pages are chained on disk: the first bytes of each
// free page point to the next one.
type Manager struct {
	file     dbFile
	filename string
	header   header
	free     map[PageID]struct{}
	closed   bool

	// mu guards header, free and closed. Page reads and writes do not hold it, ReadAt and WriteAt are safe to
	// call concurrently.
	mu sync.Mutex
}

// NewDiskManager opens or creates the db file. The returned bool is true when a new file is created.
func NewDiskManager(file string) (*Manager, bool, error) {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, errors.Wrapf(err, "open db file %s", file)
	}

	d := &Manager{
		file:     f,
		filename: file,
		free:     map[PageID]struct{}{},
	}

	stats, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, errors.Wrapf(err, "stat db file %s", file)
	}

	logrus.WithFields(logrus.Fields{"file": file, "size": stats.Size()}).Debug("db is initializing")

	if stats.Size() == 0 {
		d.header = newHeader()
		if err := d.syncHeader(); err != nil {
			f.Close()
			return nil, false, err
		}
		return d, true, nil
	}

	if err := d.loadHeader(); err != nil {
		f.Close()
		return nil, false, err
	}
	if err := d.loadFreeList(); err != nil {
		f.Close()
		return nil, false, err
	}

	return d, false, nil
}

func (d *Manager) ReadPage(pageId PageID, dst []byte) error {
	if len(dst) != PageSize {
		return errors.Wrapf(ErrShortBuffer, "read page %d", pageId)
	}

	d.mu.Lock()
	err := d.checkAllocated(pageId)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	return d.readSlot(pageId, dst)
}

func (d *Manager) WritePage(pageId PageID, src []byte) error {
	if len(src) != PageSize {
		return errors.Wrapf(ErrShortBuffer, "write page %d", pageId)
	}

	d.mu.Lock()
	err := d.checkAllocated(pageId)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	return d.writeSlot(pageId, src)
}

// AllocatePage pops the free list when a single page is requested. Contiguous runs are always carved from the end
// of the file.
func (d *Manager) AllocatePage(count int) (PageID, error) {
	if count <= 0 {
		return InvalidPageID, errors.Wrapf(ErrInvalidPageCount, "allocate %d pages", count)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return InvalidPageID, ErrClosed
	}

	if count == 1 && d.header.freeListHead.IsValid() {
		return d.popFreeList()
	}

	first := d.header.nextPageID
	d.header.nextPageID += PageID(count)
	if err := d.syncHeader(); err != nil {
		d.header.nextPageID = first
		return InvalidPageID, err
	}

	return first, nil
}

// DeallocatePage appends the pages to the tail of the free list. Either all pages in the run are freed or none. When
// a write fails midway the free list is restored, but content of pages in the run may already be overwritten.
func (d *Manager) DeallocatePage(pageId PageID, count int) error {
	if count <= 0 {
		return errors.Wrapf(ErrInvalidPageCount, "deallocate %d pages", count)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for p := pageId; p < pageId+PageID(count); p++ {
		if err := d.checkAllocated(p); err != nil {
			return err
		}
	}

	// the chain is only followed up to the tail recorded in the header, a link written past it before a failure is
	// unreachable once the header is restored.
	oldHeader := d.header
	rollback := func() {
		d.header = oldHeader
		for p := pageId; p < pageId+PageID(count); p++ {
			delete(d.free, p)
		}
	}

	for p := pageId; p < pageId+PageID(count); p++ {
		if err := d.pushFreeList(p); err != nil {
			rollback()
			return err
		}
	}

	if err := d.syncHeader(); err != nil {
		rollback()
		return err
	}

	return nil
}

func (d *Manager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.file.Sync(); err != nil {
		d.file.Close()
		return errors.Wrapf(err, "sync db file %s", d.filename)
	}
	return d.file.Close()
}

// checkAllocated should be called with mu held.
func (d *Manager) checkAllocated(pageId PageID) error {
	if d.closed {
		return ErrClosed
	}
	if pageId <= headerPageID || pageId >= d.header.nextPageID {
		return errors.Wrapf(ErrInvalidPageID, "page %d is out of range [1, %d)", pageId, d.header.nextPageID)
	}
	if _, ok := d.free[pageId]; ok {
		return errors.Wrapf(ErrPageNotAllocated, "page %d is on the free list", pageId)
	}

	return nil
}

func (d *Manager) readSlot(pageId PageID, dst []byte) error {
	slot := make([]byte, slotSize)
	n, err := d.file.ReadAt(slot, int64(pageId)*int64(slotSize))
	if err == io.EOF && n == 0 {
		// allocated but never synced to file
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read page %d", pageId)
	}

	if !verifyChecksum(slot) {
		return errors.Wrapf(ErrChecksumMismatch, "read page %d", pageId)
	}

	copy(dst, slot[:PageSize])
	return nil
}

func (d *Manager) writeSlot(pageId PageID, src []byte) error {
	slot := make([]byte, slotSize)
	copy(slot, src)
	putChecksum(slot)

	if _, err := d.file.WriteAt(slot, int64(pageId)*int64(slotSize)); err != nil {
		return errors.Wrapf(err, "write page %d", pageId)
	}

	if FlushInstantly {
		if err := d.file.Sync(); err != nil {
			return errors.Wrapf(err, "sync page %d", pageId)
		}
	}

	return nil
}

// popFreeList should be called with mu held and a non-empty free list.
func (d *Manager) popFreeList() (PageID, error) {
	h := d.header
	pageId := h.freeListHead

	if h.freeListHead == h.freeListTail {
		h.freeListHead, h.freeListTail = InvalidPageID, InvalidPageID
	} else {
		data := make([]byte, PageSize)
		if err := d.readSlot(pageId, data); err != nil {
			return InvalidPageID, err
		}
		h.freeListHead = readNextFree(data)
	}
	h.freeCount--

	old := d.header
	d.header = h
	if err := d.syncHeader(); err != nil {
		d.header = old
		return InvalidPageID, err
	}

	delete(d.free, pageId)
	return pageId, nil
}

// pushFreeList should be called with mu held. Header is only updated in memory, caller syncs it.
func (d *Manager) pushFreeList(pageId PageID) error {
	// freed page terminates the chain
	data := make([]byte, PageSize)
	writeNextFree(InvalidPageID, data)
	if err := d.writeSlot(pageId, data); err != nil {
		return err
	}

	if !d.header.freeListTail.IsValid() {
		d.header.freeListHead = pageId
		d.header.freeListTail = pageId
	} else {
		tail := make([]byte, PageSize)
		if err := d.readSlot(d.header.freeListTail, tail); err != nil {
			return err
		}
		writeNextFree(pageId, tail)
		if err := d.writeSlot(d.header.freeListTail, tail); err != nil {
			return err
		}
		d.header.freeListTail = pageId
	}

	d.header.freeCount++
	d.free[pageId] = struct{}{}
	return nil
}

func (d *Manager) syncHeader() error {
	data := make([]byte, PageSize)
	writeHeader(d.header, data)
	return d.writeSlot(headerPageID, data)
}

func (d *Manager) loadHeader() error {
	data := make([]byte, PageSize)
	if err := d.readSlot(headerPageID, data); err != nil {
		return errors.Wrap(err, "load header")
	}

	d.header = readHeader(data)
	if d.header.nextPageID <= headerPageID {
		return errors.Errorf("corrupted header in %s: next page id %d", d.filename, d.header.nextPageID)
	}
	return nil
}

// loadFreeList walks the on disk chain to rebuild the in memory set of free pages.
func (d *Manager) loadFreeList() error {
	data := make([]byte, PageSize)
	curr := d.header.freeListHead
	for i := int64(0); i < d.header.freeCount && curr.IsValid(); i++ {
		if curr <= headerPageID || curr >= d.header.nextPageID {
			return errors.Errorf("corrupted free list in %s: page %d", d.filename, curr)
		}
		d.free[curr] = struct{}{}

		if curr == d.header.freeListTail {
			break
		}
		if err := d.readSlot(curr, data); err != nil {
			return errors.Wrap(err, "load free list")
		}
		curr = readNextFree(data)
	}

	return nil
}
