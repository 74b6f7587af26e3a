package buffer

import (
	"errors"
	"sync"

	"bufmgr/disk"
)

var errInjected = errors.New("injected disk fault")

// faultyDisk is a MemManager that fails the requests it is told to and counts writes per page. Writes block while
// a write gate is set and not closed.
type faultyDisk struct {
	*disk.MemManager

	mu          sync.Mutex
	failRead    map[disk.PageID]bool
	failWrite   map[disk.PageID]bool
	failAlloc   bool
	failDealloc bool
	writeGate   chan struct{}
	writes      map[disk.PageID]int
	reads       map[disk.PageID]int
}

func newFaultyDisk() *faultyDisk {
	return &faultyDisk{
		MemManager: disk.NewMemManager(),
		failRead:   map[disk.PageID]bool{},
		failWrite:  map[disk.PageID]bool{},
		writes:     map[disk.PageID]int{},
		reads:      map[disk.PageID]int{},
	}
}

func (f *faultyDisk) ReadPage(pageId disk.PageID, dst []byte) error {
	f.mu.Lock()
	fail := f.failRead[pageId]
	f.mu.Unlock()
	if fail {
		return errInjected
	}

	if err := f.MemManager.ReadPage(pageId, dst); err != nil {
		return err
	}

	f.mu.Lock()
	f.reads[pageId]++
	f.mu.Unlock()
	return nil
}

func (f *faultyDisk) WritePage(pageId disk.PageID, src []byte) error {
	f.mu.Lock()
	gate := f.writeGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	fail := f.failWrite[pageId]
	f.mu.Unlock()
	if fail {
		return errInjected
	}

	if err := f.MemManager.WritePage(pageId, src); err != nil {
		return err
	}

	f.mu.Lock()
	f.writes[pageId]++
	f.mu.Unlock()
	return nil
}

func (f *faultyDisk) AllocatePage(count int) (disk.PageID, error) {
	f.mu.Lock()
	fail := f.failAlloc
	f.mu.Unlock()
	if fail {
		return disk.InvalidPageID, errInjected
	}

	return f.MemManager.AllocatePage(count)
}

func (f *faultyDisk) DeallocatePage(pageId disk.PageID, count int) error {
	f.mu.Lock()
	fail := f.failDealloc
	f.mu.Unlock()
	if fail {
		return errInjected
	}

	return f.MemManager.DeallocatePage(pageId, count)
}

func (f *faultyDisk) setFailRead(pageId disk.PageID, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRead[pageId] = fail
}

func (f *faultyDisk) setFailWrite(pageId disk.PageID, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrite[pageId] = fail
}

func (f *faultyDisk) setFailAlloc(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAlloc = fail
}

func (f *faultyDisk) setFailDealloc(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDealloc = fail
}

func (f *faultyDisk) setWriteGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeGate = gate
}

func (f *faultyDisk) writeCount(pageId disk.PageID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[pageId]
}

func (f *faultyDisk) readCount(pageId disk.PageID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[pageId]
}

func (f *faultyDisk) totalWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.writes {
		n += c
	}
	return n
}
