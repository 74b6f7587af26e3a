package buffer

import (
	"sync"
)

const (
	PinnedBit       uint8 = 1 << 7
	SecondChanceBit uint8 = 1 << 6
	ResidentBit     uint8 = 1 << 5
)

type counter struct {
	bits uint8
}

var _ IReplacer = &ClockReplacer{}

// ClockReplacer is a second chance replacer. A pinned frame gets its second chance bit set; the clock hand skips
// pinned frames and clears the bit of unpinned ones, the first unpinned frame found without the bit is the victim.
type ClockReplacer struct {
	frames         []counter
	victimIterator int
	lock           sync.Mutex // NOTE: is this needed? access to buffer pool is already synchronized right now.
}

func (c *ClockReplacer) Pin(frameId int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.frames[frameId].bits |= ResidentBit | PinnedBit | SecondChanceBit
}

func (c *ClockReplacer) Hold(frameId int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.frames[frameId].bits |= ResidentBit | PinnedBit
}

func (c *ClockReplacer) Unpin(frameId int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if (c.frames[frameId].bits & PinnedBit) == 0 {
		panic("unpinning a frame which is already unpinned or not pinned at all")
	}

	c.frames[frameId].bits &= ^PinnedBit
}

func (c *ClockReplacer) Remove(frameId int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.frames[frameId].bits = 0
}

// ChooseVictim sweeps at most twice around the clock. The first sweep may only clear second chance bits, the
// second one is then guaranteed to find a victim if any resident frame is unpinned.
func (c *ClockReplacer) ChooseVictim() (frameId int, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	size := len(c.frames)
	for i := 0; i < 2*size; i++ {
		curr := c.victimIterator
		c.victimIterator = (c.victimIterator + 1) % size

		f := &c.frames[curr]
		if f.bits&ResidentBit == 0 || f.bits&PinnedBit > 0 {
			continue
		}

		if f.bits&SecondChanceBit > 0 {
			f.bits &= ^SecondChanceBit
			continue
		}

		return curr, nil
	}

	return 0, ErrBufferExceeded
}

func (c *ClockReplacer) GetSize() int {
	return len(c.frames)
}

func (c *ClockReplacer) NumPinnedPages() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	i := 0
	for _, frame := range c.frames {
		if frame.bits&PinnedBit > 0 {
			i++
		}
	}

	return i
}

func NewClockReplacer(size int) *ClockReplacer {
	return &ClockReplacer{
		frames: make([]counter, size),
		lock:   sync.Mutex{},
	}
}
