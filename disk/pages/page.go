package pages

import (
	"sync"

	"bufmgr/disk"
)

// Page is the in memory image of a physical page. The buffer pool owns one Page per frame and hands out a pointer to
// it while the page is pinned; the content is opaque to the pool.
//
// The latch is not used by the buffer pool. It is there for the layer above, which decides who may mutate a page
// that is pinned more than once.
type Page struct {
	pageId  disk.PageID
	rwLatch sync.RWMutex
	Data    []byte
}

func NewPage() *Page {
	return &Page{
		pageId: disk.InvalidPageID,
		Data:   make([]byte, disk.PageSize),
	}
}

func (p *Page) GetData() []byte {
	return p.Data
}

// GetPageId returns the id of the physical page held in this page. It is only meaningful while the page is pinned.
func (p *Page) GetPageId() disk.PageID {
	return p.pageId
}

func (p *Page) SetPageId(pageId disk.PageID) {
	p.pageId = pageId
}

// Clear zeroes the content.
func (p *Page) Clear() {
	for i := range p.Data {
		p.Data[i] = 0
	}
}

func (p *Page) WLatch() {
	p.rwLatch.Lock()
}

func (p *Page) WUnlatch() {
	p.rwLatch.Unlock()
}

func (p *Page) RLatch() {
	p.rwLatch.RLock()
}

func (p *Page) RUnLatch() {
	p.rwLatch.RUnlock()
}
