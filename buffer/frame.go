package buffer

import (
	"bufmgr/disk"
	"bufmgr/disk/pages"
)

// frame is one slot of the pool. All fields except page content are guarded by BufferPool.lock.
type frame struct {
	index    int
	pageId   disk.PageID // InvalidPageID when the frame is empty
	pinCount int
	dirty    bool

	// busy is set while the frame's content is being read from or written to disk. The frame is pinned for the
	// whole duration so that it cannot be chosen as victim.
	busy bool

	page *pages.Page
}

func newFrame(index int) *frame {
	return &frame{
		index:  index,
		pageId: disk.InvalidPageID,
		page:   pages.NewPage(),
	}
}

func (f *frame) isEmpty() bool {
	return !f.pageId.IsValid()
}

// reset empties the frame without touching its content.
func (f *frame) reset() {
	f.pageId = disk.InvalidPageID
	f.pinCount = 0
	f.dirty = false
	f.busy = false
	f.page.SetPageId(disk.InvalidPageID)
}
