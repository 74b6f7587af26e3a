package buffer

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bufmgr/disk"
	"bufmgr/disk/pages"
)

// pinWithRetry retries while every frame is momentarily pinned by other goroutines.
func pinWithRetry(b *BufferPool, pageId disk.PageID) (*pages.Page, error) {
	for {
		p, err := b.PinPage(pageId, false)
		if !errors.Is(err, ErrBufferExceeded) {
			return p, err
		}
		runtime.Gosched()
	}
}

func TestBuffer_Pool_Concurrent_Writers_Should_Not_Lose_Updates(t *testing.T) {
	for _, policy := range replacers {
		t.Run(policy, func(t *testing.T) {
			const poolSize, numPages, workers, rounds = 4, 16, 8, 300
			b, _ := newTestPool(t, poolSize, numPages, WithReplacer(policy))

			// every page keeps a counter in its first 8 bytes, incremented under the page's write latch
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(seed int64) {
					defer wg.Done()
					r := rand.New(rand.NewSource(seed))

					for i := 0; i < rounds; i++ {
						pageId := disk.PageID(r.Intn(numPages))
						p, err := pinWithRetry(b, pageId)
						if !assert.NoError(t, err) {
							return
						}

						p.WLatch()
						binary.BigEndian.PutUint64(p.GetData(), binary.BigEndian.Uint64(p.GetData())+1)
						p.WUnlatch()

						if !assert.NoError(t, b.UnpinPage(pageId, true)) {
							return
						}
					}
				}(int64(w))
			}
			wg.Wait()

			total := uint64(0)
			for i := 0; i < numPages; i++ {
				p, err := b.PinPage(disk.PageID(i), false)
				require.NoError(t, err)
				total += binary.BigEndian.Uint64(p.GetData())
				require.NoError(t, b.UnpinPage(disk.PageID(i), false))
			}
			assert.Equal(t, uint64(workers*rounds), total)
			assert.Equal(t, poolSize, b.GetNumOfUnpinnedBuffers())
			assert.Empty(t, b.evicting)
		})
	}
}

func TestBuffer_Pool_Concurrent_Flush_And_Free_Should_Keep_Pool_Consistent(t *testing.T) {
	const poolSize, numPages = 3, 12
	b, d := newTestPool(t, poolSize, numPages)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))

			for i := 0; i < 200; i++ {
				pageId := disk.PageID(r.Intn(numPages))
				if _, err := pinWithRetry(b, pageId); err != nil {
					// page is freed by FreePage below
					assert.ErrorIs(t, err, ErrPageRead)
					continue
				}
				assert.NoError(t, b.UnpinPage(pageId, r.Intn(2) == 0))

				switch r.Intn(10) {
				case 0:
					err := b.FlushAllPages()
					if err != nil {
						assert.ErrorIs(t, err, ErrPinCountMismatch)
					}
				case 1:
					err := b.FlushPage(pageId)
					if err != nil && !errors.Is(err, ErrPageNotFound) {
						assert.ErrorIs(t, err, ErrPinCountMismatch)
					}
				}
			}
		}(int64(w))
	}

	// the last page is freed while the others work. freeing needs the only pin on the page, so back off while a
	// worker holds it too.
	wg.Add(1)
	go func() {
		defer wg.Done()
		const pageId = disk.PageID(numPages - 1)
		for {
			if _, err := pinWithRetry(b, pageId); !assert.NoError(t, err) {
				return
			}

			err := b.FreePage(pageId)
			if err == nil {
				return
			}
			assert.ErrorIs(t, err, ErrPinCountMismatch)
			assert.NoError(t, b.UnpinPage(pageId, false))
			runtime.Gosched()
		}
	}()
	wg.Wait()

	assert.Equal(t, poolSize, b.GetNumOfUnpinnedBuffers())
	assert.NoError(t, b.FlushAllPages())
	assert.Empty(t, b.evicting)

	b.lock.Lock()
	defer b.lock.Unlock()
	for pageId, frameIdx := range b.directory.entries {
		f := b.frames[frameIdx]
		assert.Equal(t, pageId, f.pageId)
		assert.False(t, f.dirty)
		assert.False(t, f.busy)
		assert.True(t, d.IsAllocated(pageId))
	}
	assert.Equal(t, poolSize, b.directory.len()+len(b.emptyFrames))
}

func TestBuffer_Pool_Page_Releasers(t *testing.T) {
	b, d := newTestPool(t, 1, 2)

	w, err := b.NewPageWithReleaser()
	require.NoError(t, err)
	pageId := w.GetPageId()
	assert.Equal(t, disk.PageID(2), pageId)
	fill(w.GetData(), 5)
	expected := append([]byte(nil), w.GetData()...)
	require.NoError(t, w.Release(true))

	r, err := b.GetPageReleaser(0, Read)
	require.NoError(t, err)
	assert.Equal(t, 1, d.writeCount(pageId))
	require.NoError(t, r.Release(true))

	// a read releaser never dirties the page, so evicting it writes nothing
	w, err = b.GetPageReleaser(1, Write)
	require.NoError(t, err)
	assert.Zero(t, d.writeCount(0))
	require.NoError(t, w.Release(false))

	r, err = b.GetPageReleaser(pageId, Read)
	require.NoError(t, err)
	assert.Equal(t, expected, r.GetData())
	require.NoError(t, r.Release(false))
	assert.Zero(t, d.writeCount(1))

	_, err = b.GetPageReleaser(disk.PageID(99), Read)
	assert.ErrorIs(t, err, ErrPageRead)
	assert.ErrorIs(t, err, disk.ErrInvalidPageID)
}

func TestBuffer_Pool_Close_Should_Wait_For_Eviction_In_Flight(t *testing.T) {
	b, d := newTestPool(t, 1, 2)

	_, err := b.PinPage(0, false)
	require.NoError(t, err)
	require.NoError(t, b.UnpinPage(0, true))

	gate := make(chan struct{})
	d.setWriteGate(gate)
	d.setFailWrite(0, true)

	pinned := make(chan error, 1)
	go func() {
		_, err := b.PinPage(1, false)
		pinned <- err
	}()

	require.Eventually(t, func() bool {
		b.lock.Lock()
		defer b.lock.Unlock()
		return len(b.evicting) > 0
	}, time.Second, time.Millisecond)

	closed := make(chan error, 1)
	go func() {
		closed <- b.Close()
	}()

	select {
	case <-closed:
		t.Fatal("pool is closed while page 0 is being written back")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate)

	assert.ErrorIs(t, <-pinned, ErrPageWrite)

	// write-back failed, page 0 is back in its frame and the final flush tries it again
	err = <-closed
	assert.ErrorIs(t, err, ErrPageWrite)
	assert.ErrorIs(t, err, errInjected)

	f := frameOf(b, 0)
	require.NotNil(t, f)
	assert.True(t, f.dirty)
	assert.False(t, f.busy)
	assert.Zero(t, d.writeCount(0))
	assert.Empty(t, b.evicting)
}
