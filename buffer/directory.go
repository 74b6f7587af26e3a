package buffer

import (
	"fmt"

	"bufmgr/disk"
)

// directory maps a resident page to the frame keeping it. It is not safe for concurrent use, BufferPool guards it
// with its lock.
type directory struct {
	entries map[disk.PageID]int
}

func newDirectory(size int) *directory {
	return &directory{
		entries: make(map[disk.PageID]int, size),
	}
}

func (d *directory) find(pageId disk.PageID) (int, bool) {
	frameIdx, ok := d.entries[pageId]
	return frameIdx, ok
}

// insert fails if the page is already mapped to a different frame. Inserting an existing mapping again is a no-op.
func (d *directory) insert(pageId disk.PageID, frameIdx int) error {
	if curr, ok := d.entries[pageId]; ok {
		if curr == frameIdx {
			return nil
		}
		return fmt.Errorf("%w: page %d is in frame %d, cannot map it to frame %d", ErrDirectoryConflict, pageId, curr, frameIdx)
	}

	d.entries[pageId] = frameIdx
	return nil
}

func (d *directory) remove(pageId disk.PageID) {
	delete(d.entries, pageId)
}

func (d *directory) len() int {
	return len(d.entries)
}

// pageIds returns the resident pages at the time of call.
func (d *directory) pageIds() []disk.PageID {
	res := make([]disk.PageID, 0, len(d.entries))
	for pageId := range d.entries {
		res = append(res, pageId)
	}
	return res
}
