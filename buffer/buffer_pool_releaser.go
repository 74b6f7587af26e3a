package buffer

import (
	"bufmgr/disk"
	"bufmgr/disk/pages"
)

const (
	Read = iota
	Write
)

// PageReleaser is a pinned and latched page. Release unlatches and unpins it.
type PageReleaser interface {
	GetData() []byte
	GetPageId() disk.PageID
	Release(dirty bool) error
}

// GetPageReleaser pins the page and takes its latch in the given mode.
func (b *BufferPool) GetPageReleaser(pageId disk.PageID, mode int) (PageReleaser, error) {
	p, err := b.PinPage(pageId, false)
	if err != nil {
		return nil, err
	}

	if mode == Read {
		p.RLatch()
		return &readPageReleaser{p, b}, nil
	}

	p.WLatch()
	return &writePageReleaser{p, b}, nil
}

// NewPageWithReleaser allocates a single page and returns it write latched.
func (b *BufferPool) NewPageWithReleaser() (PageReleaser, error) {
	_, p, err := b.NewPage(1)
	if err != nil {
		return nil, err
	}

	p.WLatch()
	return &writePageReleaser{p, b}, nil
}

type readPageReleaser struct {
	*pages.Page
	pool *BufferPool
}

// Release of a read latched page never marks it dirty.
func (n *readPageReleaser) Release(bool) error {
	pageId := n.GetPageId()
	n.RUnLatch()
	return n.pool.UnpinPage(pageId, false)
}

type writePageReleaser struct {
	*pages.Page
	pool *BufferPool
}

func (n *writePageReleaser) Release(isDirty bool) error {
	pageId := n.GetPageId()
	n.WUnlatch()
	return n.pool.UnpinPage(pageId, isDirty)
}
