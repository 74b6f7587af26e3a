package buffer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

var _ IReplacer = &LruReplacer{}

// LruReplacer evicts the frame that has been unpinned for the longest time. Unpinned frames are kept in an lru
// cache ordered by the time they were unpinned; pinning a frame takes it out of the cache. A held frame stays in the
// cache at its position and is skipped by ChooseVictim.
type LruReplacer struct {
	unpinned *lru.Cache
	pinned   map[int]struct{}
	held     map[int]struct{}
	size     int
	lock     sync.Mutex
}

func (l *LruReplacer) Pin(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.unpinned.Remove(frameId)
	l.pinned[frameId] = struct{}{}
}

func (l *LruReplacer) Hold(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.pinned[frameId]; ok {
		return
	}
	l.held[frameId] = struct{}{}
}

func (l *LruReplacer) Unpin(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.held[frameId]; ok {
		delete(l.held, frameId)
		return
	}

	if _, ok := l.pinned[frameId]; !ok {
		panic("unpinning a frame which is not pinned")
	}

	delete(l.pinned, frameId)
	l.unpinned.Add(frameId, struct{}{})
}

func (l *LruReplacer) Remove(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.unpinned.Remove(frameId)
	delete(l.pinned, frameId)
	delete(l.held, frameId)
}

func (l *LruReplacer) ChooseVictim() (frameId int, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	// keys are ordered from the oldest to the newest
	for _, key := range l.unpinned.Keys() {
		frameId := key.(int)
		if _, ok := l.held[frameId]; ok {
			continue
		}

		l.unpinned.Remove(frameId)
		return frameId, nil
	}

	return 0, ErrBufferExceeded
}

func (l *LruReplacer) GetSize() int {
	return l.size
}

func (l *LruReplacer) NumPinnedPages() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	return len(l.pinned) + len(l.held)
}

func NewLruReplacer(poolSize int) *LruReplacer {
	c, err := lru.New(poolSize)
	if err != nil {
		panic(err)
	}

	return &LruReplacer{
		unpinned: c,
		pinned:   make(map[int]struct{}),
		held:     make(map[int]struct{}),
		size:     poolSize,
	}
}
