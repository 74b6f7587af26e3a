package buffer

import "fmt"

// IReplacer decides which frame is evicted when the pool has no empty frame left. Only frames that hold a page are
// tracked: a frame enters the replacer with Pin and leaves it with Remove.
type IReplacer interface {
	// Pin marks the frame as in use and as recently referenced.
	Pin(frameId int)

	// Hold keeps the frame from being chosen without counting as a reference. It is released with Unpin and is used
	// when the pool itself reserves a resident frame, e.g. to flush it.
	Hold(frameId int)

	// Unpin makes the frame a candidate for eviction. It is called when the frame's pin count drops to zero.
	Unpin(frameId int)

	// Remove forgets the frame, it will not be chosen until it is pinned again.
	Remove(frameId int)

	// ChooseVictim returns an unpinned frame or ErrBufferExceeded if every tracked frame is pinned.
	ChooseVictim() (frameId int, err error)

	GetSize() int
	NumPinnedPages() int
}

const (
	ClockPolicy  = "clock"
	LruPolicy    = "lru"
	RandomPolicy = "random"
)

func NewReplacer(policy string, poolSize int) (IReplacer, error) {
	switch policy {
	case ClockPolicy, "":
		return NewClockReplacer(poolSize), nil
	case LruPolicy:
		return NewLruReplacer(poolSize), nil
	case RandomPolicy:
		return NewRandomReplacer(poolSize), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReplacer, policy)
	}
}
