package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"bufmgr/disk"
	"bufmgr/disk/pages"
)

type Pool interface {
	// PinPage pins the page, reading it from disk unless it is already resident or isEmpty is true. The returned
	// page stays valid until the matching UnpinPage.
	PinPage(pageId disk.PageID, isEmpty bool) (*pages.Page, error)
	UnpinPage(pageId disk.PageID, isDirty bool) error

	// FlushPage writes the page to disk if it is dirty. The page must be resident and unpinned, it stays resident.
	FlushPage(pageId disk.PageID) error

	// FlushAllPages flushes every unpinned dirty page. It returns an error if any resident page is pinned, after
	// flushing everything it could.
	FlushAllPages() error

	// NewPage allocates howMany contiguous pages and pins the first one.
	NewPage(howMany int) (disk.PageID, *pages.Page, error)

	// FreePage removes the page from the pool without writing it and deallocates it on disk.
	FreePage(pageId disk.PageID) error

	GetNumOfUnpinnedBuffers() int
	GetNumOfBuffers() int
	ResetStat()
	PrintStat(w io.Writer) error
}

var _ Pool = &BufferPool{}

type Config struct {
	Replacer string
	Logger   logrus.FieldLogger
}

type Option func(*Config)

// WithReplacer selects the replacement policy: ClockPolicy, LruPolicy or RandomPolicy. Clock is the default.
func WithReplacer(policy string) Option {
	return func(c *Config) {
		c.Replacer = policy
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

type BufferPool struct {
	poolSize    int
	frames      []*frame
	directory   *directory
	emptyFrames []int               // list of indexes that points to empty frames in the pool
	evicting    map[disk.PageID]int // pages whose write-back is in flight => frame that kept them
	closed      bool
	Replacer    IReplacer
	DiskManager disk.IDiskManager
	stats       *Stats
	log         logrus.FieldLogger

	// lock guards pool state. Disk io is done without holding it; a frame doing io is pinned and marked busy
	// beforehand so that nobody else can evict or observe it.
	lock sync.Mutex

	// ioDone is broadcast every time a frame stops being busy or an eviction finishes. Anyone who needs such a
	// frame or page waits on it and looks the page up again. It uses lock as its locker.
	ioDone *sync.Cond
}

func NewBufferPool(poolSize int, dm disk.IDiskManager, opts ...Option) (*BufferPool, error) {
	if poolSize <= 0 {
		return nil, newError("NewBufferPool", disk.InvalidPageID, ErrInvalidBufferSize, fmt.Errorf("got %d", poolSize))
	}
	if dm == nil {
		panic("buffer pool is created without a disk manager")
	}

	cfg := Config{Replacer: ClockPolicy}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	replacer, err := NewReplacer(cfg.Replacer, poolSize)
	if err != nil {
		return nil, err
	}

	frames := make([]*frame, poolSize)
	emptyFrames := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(i)
		emptyFrames[i] = i
	}

	bp := &BufferPool{
		poolSize:    poolSize,
		frames:      frames,
		directory:   newDirectory(poolSize),
		emptyFrames: emptyFrames,
		evicting:    map[disk.PageID]int{},
		Replacer:    replacer,
		DiskManager: dm,
		stats:       newStats(),
		log:         cfg.Logger.WithField("component", "bufferpool"),
	}
	bp.ioDone = sync.NewCond(&bp.lock)

	return bp, nil
}

func (b *BufferPool) PinPage(pageId disk.PageID, isEmpty bool) (*pages.Page, error) {
	const op = "PinPage"
	if !pageId.IsValid() {
		return nil, newError(op, pageId, ErrInvalidPageID, nil)
	}

	b.lock.Lock()
	for {
		if b.closed {
			b.lock.Unlock()
			return nil, newError(op, pageId, ErrPoolClosed, nil)
		}

		if frameIdx, ok := b.directory.find(pageId); ok {
			f := b.frames[frameIdx]
			if f.busy {
				b.ioDone.Wait()
				continue
			}

			b.pin(f)
			b.stats.recordPinRequest(true)
			b.lock.Unlock()
			return f.page, nil
		}

		// page is being written back by an eviction, reading it now could return stale content.
		if _, ok := b.evicting[pageId]; ok {
			b.ioDone.Wait()
			continue
		}

		break
	}
	b.stats.recordPinRequest(false)

	frameIdx, fromEmpty, err := b.reserveFrame()
	if err != nil {
		b.lock.Unlock()
		return nil, newError(op, pageId, ErrBufferExceeded, nil)
	}

	if err := b.directory.insert(pageId, frameIdx); err != nil {
		b.releaseReservation(frameIdx, fromEmpty)
		b.lock.Unlock()
		return nil, newError(op, pageId, ErrDirectoryConflict, err)
	}

	f := b.frames[frameIdx]
	victimPageId, victimDirty := f.pageId, f.dirty
	if !f.isEmpty() {
		b.directory.remove(victimPageId)
		if victimDirty {
			b.evicting[victimPageId] = frameIdx
		}
	}

	f.pageId = pageId
	f.pinCount = 1
	f.busy = true
	b.Replacer.Pin(frameIdx)
	b.lock.Unlock()

	if victimDirty {
		if err := b.writeBack(f, victimPageId, pageId); err != nil {
			return nil, newError(op, pageId, ErrPageWrite, err)
		}
	}

	if isEmpty {
		f.page.Clear()
	} else {
		if err := b.DiskManager.ReadPage(pageId, f.page.GetData()); err != nil {
			// victim, if any, is already on disk. frame is simply emptied.
			b.lock.Lock()
			b.directory.remove(pageId)
			b.Replacer.Remove(frameIdx)
			f.reset()
			b.emptyFrames = append(b.emptyFrames, frameIdx)
			b.ioDone.Broadcast()
			b.lock.Unlock()

			b.log.WithFields(logrus.Fields{"pageID": pageId, "frame": frameIdx}).WithError(err).Warn("page read failed")
			return nil, newError(op, pageId, ErrPageRead, err)
		}
		b.stats.recordRead()
	}

	b.lock.Lock()
	f.page.SetPageId(pageId)
	f.dirty = false
	f.busy = false
	b.ioDone.Broadcast()
	b.lock.Unlock()

	return f.page, nil
}

// writeBack writes the victim's content to disk before the frame is reused for pageId. On failure the victim is put
// back into the frame as it was, still dirty.
func (b *BufferPool) writeBack(f *frame, victimPageId, pageId disk.PageID) error {
	logger := b.log.WithFields(logrus.Fields{"pageID": victimPageId, "frame": f.index})
	logger.Debug("writing back dirty victim")

	err := b.DiskManager.WritePage(victimPageId, f.page.GetData())

	b.lock.Lock()
	defer b.lock.Unlock()
	defer b.ioDone.Broadcast()

	delete(b.evicting, victimPageId)
	if err != nil {
		b.directory.remove(pageId)
		// nobody could have mapped the victim page meanwhile, they all wait for the eviction to finish.
		if ierr := b.directory.insert(victimPageId, f.index); ierr != nil {
			panic(ierr)
		}
		f.pageId = victimPageId
		f.pinCount = 0
		f.busy = false
		b.Replacer.Unpin(f.index)

		logger.WithError(err).Warn("write back failed, victim stays in the pool")
		return err
	}

	b.stats.recordDirtyWrite()
	return nil
}

// reserveFrame returns an empty frame if there is any, else a victim chosen by the replacer. It should be called
// with lock held.
func (b *BufferPool) reserveFrame() (frameIdx int, fromEmpty bool, err error) {
	if len(b.emptyFrames) > 0 {
		frameIdx = b.emptyFrames[0]
		b.emptyFrames = b.emptyFrames[1:]
		return frameIdx, true, nil
	}

	frameIdx, err = b.Replacer.ChooseVictim()
	if err != nil {
		return 0, false, err
	}

	victim := b.frames[frameIdx]
	if victim.pinCount != 0 || victim.busy || victim.isEmpty() {
		panic(fmt.Sprintf("frame %d is chosen as victim while it is not evictable. pin count: %v, page_id: %v, busy: %v",
			frameIdx, victim.pinCount, victim.pageId, victim.busy))
	}

	return frameIdx, false, nil
}

// releaseReservation hands back a frame returned by reserveFrame that turned out not to be needed.
func (b *BufferPool) releaseReservation(frameIdx int, fromEmpty bool) {
	if fromEmpty {
		b.emptyFrames = append(b.emptyFrames, frameIdx)
		return
	}

	b.Replacer.Pin(frameIdx)
	b.Replacer.Unpin(frameIdx)
}

// pin increments frame's pin count and pins the frame in the replacer to avoid it being chosen as victim.
func (b *BufferPool) pin(f *frame) {
	f.pinCount++
	b.Replacer.Pin(f.index)
}

func (b *BufferPool) UnpinPage(pageId disk.PageID, isDirty bool) error {
	const op = "UnpinPage"

	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return newError(op, pageId, ErrPoolClosed, nil)
	}

	frameIdx, ok := b.directory.find(pageId)
	if !ok {
		return newError(op, pageId, ErrPageNotFound, nil)
	}

	// a busy frame is only pinned by the pool itself
	f := b.frames[frameIdx]
	if f.busy || f.pinCount <= 0 {
		return newError(op, pageId, ErrPageNotPinned, nil)
	}

	if isDirty {
		f.dirty = true
	}

	f.pinCount--
	if f.pinCount == 0 {
		b.Replacer.Unpin(frameIdx)
	}

	return nil
}

func (b *BufferPool) FlushPage(pageId disk.PageID) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return newError("FlushPage", pageId, ErrPoolClosed, nil)
	}

	return b.flush("FlushPage", pageId)
}

// flush should be called with lock held. It releases the lock while writing and returns with the lock held.
func (b *BufferPool) flush(op string, pageId disk.PageID) error {
	var f *frame
	for {
		frameIdx, ok := b.directory.find(pageId)
		if !ok {
			return newError(op, pageId, ErrPageNotFound, nil)
		}

		f = b.frames[frameIdx]
		if f.busy {
			b.ioDone.Wait()
			continue
		}
		break
	}

	if f.pinCount != 0 {
		return newError(op, pageId, ErrPinCountMismatch, fmt.Errorf("pin count is %d", f.pinCount))
	}

	if !f.dirty {
		return nil
	}

	// frame is held, not pinned, so that flushing does not count as a reference to the page.
	f.pinCount++
	b.Replacer.Hold(f.index)
	f.busy = true
	b.lock.Unlock()

	err := b.DiskManager.WritePage(pageId, f.page.GetData())

	b.lock.Lock()
	f.busy = false
	f.pinCount--
	b.Replacer.Unpin(f.index)
	if err == nil {
		f.dirty = false
		b.stats.recordFlushWrite()
	}
	b.ioDone.Broadcast()

	if err != nil {
		b.log.WithFields(logrus.Fields{"pageID": pageId, "frame": f.index}).WithError(err).Warn("flush failed")
		return newError(op, pageId, ErrPageWrite, err)
	}

	return nil
}

// FlushAllPages determines all resident pages at the time of call and flushes the dirty ones. Pages that are
// pinned are skipped and reported in the returned error.
func (b *BufferPool) FlushAllPages() error {
	const op = "FlushAllPages"

	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return newError(op, disk.InvalidPageID, ErrPoolClosed, nil)
	}

	return b.flushAll(op)
}

// flushAll should be called with lock held.
func (b *BufferPool) flushAll(op string) error {
	var errs []error
	pinned := 0
	for _, pageId := range b.directory.pageIds() {
		err := b.flush(op, pageId)
		switch {
		case err == nil:
		case errors.Is(err, ErrPageNotFound):
			// evicted meanwhile, eviction has already written it back.
		case errors.Is(err, ErrPinCountMismatch):
			pinned++
		default:
			errs = append(errs, err)
		}
	}

	if pinned > 0 {
		errs = append(errs, newError(op, disk.InvalidPageID, ErrPinCountMismatch, fmt.Errorf("%d pages are pinned", pinned)))
	}

	return errors.Join(errs...)
}

// NewPage allocates howMany pages on disk and pins the first one without reading it. If it cannot be pinned, the
// allocated pages are given back to the disk manager.
func (b *BufferPool) NewPage(howMany int) (disk.PageID, *pages.Page, error) {
	const op = "NewPage"
	if howMany <= 0 {
		return disk.InvalidPageID, nil, newError(op, disk.InvalidPageID, ErrAllocate, fmt.Errorf("howMany must be positive, got %d", howMany))
	}

	if b.isClosed() {
		return disk.InvalidPageID, nil, newError(op, disk.InvalidPageID, ErrPoolClosed, nil)
	}

	pageId, err := b.DiskManager.AllocatePage(howMany)
	if err != nil {
		return disk.InvalidPageID, nil, newError(op, disk.InvalidPageID, ErrAllocate, err)
	}

	p, err := b.PinPage(pageId, true)
	if err != nil {
		if derr := b.DiskManager.DeallocatePage(pageId, howMany); derr != nil {
			b.log.WithField("pageID", pageId).WithError(derr).Error("rolling back page allocation failed")
			return disk.InvalidPageID, nil, errors.Join(err, newError(op, pageId, ErrDeallocate, derr))
		}
		return disk.InvalidPageID, nil, err
	}

	return pageId, p, nil
}

// FreePage drops the page from the pool, discarding its content, and deallocates it on disk. The frame is freed even
// if deallocation fails.
func (b *BufferPool) FreePage(pageId disk.PageID) error {
	const op = "FreePage"
	if !pageId.IsValid() {
		return newError(op, pageId, ErrInvalidPageID, nil)
	}

	b.lock.Lock()
	for {
		if b.closed {
			b.lock.Unlock()
			return newError(op, pageId, ErrPoolClosed, nil)
		}

		if frameIdx, ok := b.directory.find(pageId); ok {
			f := b.frames[frameIdx]
			if f.busy {
				b.ioDone.Wait()
				continue
			}
			if f.pinCount > 1 {
				b.lock.Unlock()
				return newError(op, pageId, ErrPinCountMismatch, fmt.Errorf("freeing a pinned page, pin count: %d", f.pinCount))
			}

			b.directory.remove(pageId)
			b.Replacer.Remove(frameIdx)
			f.reset()
			b.emptyFrames = append(b.emptyFrames, frameIdx)
		} else if _, ok := b.evicting[pageId]; ok {
			b.ioDone.Wait()
			continue
		}

		break
	}
	b.lock.Unlock()

	if err := b.DiskManager.DeallocatePage(pageId, 1); err != nil {
		return newError(op, pageId, ErrDeallocate, err)
	}

	return nil
}

func (b *BufferPool) GetNumOfUnpinnedBuffers() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	n := 0
	for _, f := range b.frames {
		if f.pinCount == 0 {
			n++
		}
	}
	return n
}

func (b *BufferPool) GetNumOfBuffers() int {
	return b.poolSize
}

// EmptyFrameSize returns the number empty frames which does not hold data of any physical page
func (b *BufferPool) EmptyFrameSize() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.emptyFrames)
}

func (b *BufferPool) ResetStat() {
	b.stats.reset()
}

func (b *BufferPool) Stats() StatsSnapshot {
	return b.stats.snapshot()
}

func (b *BufferPool) PrintStat(w io.Writer) error {
	_, err := b.stats.snapshot().WriteTo(w)
	return err
}

// Close flushes every page and closes the pool. The disk manager is not closed, it is owned by the caller.
//
// Operations started after Close fail with ErrPoolClosed. Disk io already in flight is waited for before the final
// flush, so a victim whose write-back fails is back in its frame and flushed again.
func (b *BufferPool) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	defer b.ioDone.Broadcast()

	for b.ioInFlight() {
		b.ioDone.Wait()
	}

	err := b.flushAll("Close")
	if err != nil {
		b.log.WithError(err).Warn("buffer pool is closed with pages that could not be flushed")
	}
	return err
}

// ioInFlight should be called with lock held.
func (b *BufferPool) ioInFlight() bool {
	if len(b.evicting) > 0 {
		return true
	}
	for _, f := range b.frames {
		if f.busy {
			return true
		}
	}
	return false
}

func (b *BufferPool) isClosed() bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.closed
}
