// Package alloc provides the bitmap primitives used by the inode and
// data-block allocators.
//
// The helpers are stateless: they operate on a bitmap block image the
// caller read from disk. Bit i set means resource i is allocated.
// There is no free operation; nothing in this filesystem deletes.
package alloc

// TestBit reports whether bit bn is set.
func TestBit(bm []byte, bn uint64) bool {
	byteNum := bn / 8
	bit := bn % 8
	return bm[byteNum]&(1<<bit) != 0
}

// SetBit marks bit bn allocated.
func SetBit(bm []byte, bn uint64) {
	byteNum := bn / 8
	bit := bn % 8
	bm[byteNum] = bm[byteNum] | (1 << bit)
}

// FindFree scans from bit 0 upward and returns the first clear bit
// below max. The scan order is part of the contract: repeated runs
// against the same bitmap always pick the same resource.
func FindFree(bm []byte, max uint64) (uint64, bool) {
	for bn := uint64(0); bn < max; bn++ {
		if !TestBit(bm, bn) {
			return bn, true
		}
	}
	return 0, false
}
