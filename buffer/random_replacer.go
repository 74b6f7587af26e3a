package buffer

import (
	"math/rand"
	"sync"
	"time"
)

var _ IReplacer = &RandomReplacer{}

// RandomReplacer picks a victim uniformly among resident unpinned frames.
type RandomReplacer struct {
	resident map[int]bool // frame => pinned
	size     int
	rnd      *rand.Rand
	lock     sync.Mutex
}

func NewRandomReplacer(poolSize int) *RandomReplacer {
	return &RandomReplacer{
		resident: make(map[int]bool),
		size:     poolSize,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RandomReplacer) Pin(frameId int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.resident[frameId] = true
}

// Hold is Pin, random choice keeps no reference history.
func (r *RandomReplacer) Hold(frameId int) {
	r.Pin(frameId)
}

func (r *RandomReplacer) Unpin(frameId int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.resident[frameId] {
		panic("unpinning a frame which is already unpinned or not pinned at all")
	}
	r.resident[frameId] = false
}

func (r *RandomReplacer) Remove(frameId int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.resident, frameId)
}

func (r *RandomReplacer) ChooseVictim() (frameId int, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	frames := make([]int, r.size)
	for i := 0; i < len(frames); i++ {
		frames[i] = i
	}
	r.rnd.Shuffle(len(frames), func(i, j int) { frames[i], frames[j] = frames[j], frames[i] })

	for _, frameIdx := range frames {
		if pinned, ok := r.resident[frameIdx]; ok && !pinned {
			return frameIdx, nil
		}
	}

	return 0, ErrBufferExceeded
}

func (r *RandomReplacer) GetSize() int {
	// NOTE: no need thread safe access
	return r.size
}

func (r *RandomReplacer) NumPinnedPages() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0
	for _, pinned := range r.resident {
		if pinned {
			n++
		}
	}
	return n
}
