package disk

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
)

// Every page occupies a slot on disk: the page content followed by an xxhash64 checksum of that content.
const (
	checksumSize = 8
	slotSize     = PageSize + checksumSize
)

// headerPageID is the slot keeping the header. It is never handed out by AllocatePage.
const headerPageID PageID = 0

type header struct {
	nextPageID   PageID
	freeListHead PageID
	freeListTail PageID
	freeCount    int64
}

func newHeader() header {
	return header{
		nextPageID:   headerPageID + 1,
		freeListHead: InvalidPageID,
		freeListTail: InvalidPageID,
	}
}

func readHeader(data []byte) header {
	return header{
		nextPageID:   PageID(binary.BigEndian.Uint64(data)),
		freeListHead: PageID(binary.BigEndian.Uint64(data[8:])),
		freeListTail: PageID(binary.BigEndian.Uint64(data[16:])),
		freeCount:    int64(binary.BigEndian.Uint64(data[24:])),
	}
}

func writeHeader(h header, dest []byte) {
	binary.BigEndian.PutUint64(dest, uint64(h.nextPageID))
	binary.BigEndian.PutUint64(dest[8:], uint64(h.freeListHead))
	binary.BigEndian.PutUint64(dest[16:], uint64(h.freeListTail))
	binary.BigEndian.PutUint64(dest[24:], uint64(h.freeCount))
}

// readNextFree and writeNextFree access the link stored in the first bytes of a page on the free list.
func readNextFree(data []byte) PageID {
	return PageID(binary.BigEndian.Uint64(data))
}

func writeNextFree(next PageID, dest []byte) {
	binary.BigEndian.PutUint64(dest, uint64(next))
}

func putChecksum(slot []byte) {
	binary.BigEndian.PutUint64(slot[PageSize:], xxhash.Checksum64(slot[:PageSize]))
}

// verifyChecksum reports whether the slot is intact. An all zero slot is a page that was allocated but never
// written, which is valid.
func verifyChecksum(slot []byte) bool {
	stored := binary.BigEndian.Uint64(slot[PageSize:])
	if stored == 0 && isZero(slot[:PageSize]) {
		return true
	}

	return stored == xxhash.Checksum64(slot[:PageSize])
}

func isZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
