package dir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vsfs-lab/vsfs/disk"
)

func rootBlock() []byte {
	blk := make([]byte, disk.BlockSize)
	PutEnt(blk, 0, Ent{Inum: 0, Name: "."})
	PutEnt(blk, 1, Ent{Inum: 0, Name: ".."})
	return blk
}

func TestPutGetEnt(t *testing.T) {
	assert := assert.New(t)
	blk := make([]byte, disk.BlockSize)

	PutEnt(blk, 2, Ent{Inum: 1, Name: "a.txt"})
	e := GetEnt(blk, 2)
	assert.Equal(uint64(1), e.Inum)
	assert.Equal("a.txt", e.Name)

	// overlong names are truncated to NameLen-1 bytes
	long := strings.Repeat("x", 40)
	PutEnt(blk, 3, Ent{Inum: 2, Name: long})
	e = GetEnt(blk, 3)
	assert.Equal(long[:NameLen-1], e.Name)
}

func TestFindFreeSlotSkipsRootEntries(t *testing.T) {
	assert := assert.New(t)
	blk := rootBlock()

	// "." and ".." store inode 0 but are occupied; the dual
	// inum==0 && name=="" test must not pick them
	slot, ok := FindFreeSlot(blk)
	assert.True(ok)
	assert.Equal(uint64(2), slot)

	PutEnt(blk, 2, Ent{Inum: 1, Name: "a.txt"})
	slot, ok = FindFreeSlot(blk)
	assert.True(ok)
	assert.Equal(uint64(3), slot)
}

func TestFindFreeSlotFull(t *testing.T) {
	assert := assert.New(t)
	blk := rootBlock()
	for slot := uint64(2); slot < NumEnts; slot++ {
		PutEnt(blk, slot, Ent{Inum: 1, Name: "f"})
	}
	_, ok := FindFreeSlot(blk)
	assert.False(ok)
}

func TestFindName(t *testing.T) {
	assert := assert.New(t)
	blk := rootBlock()
	PutEnt(blk, 2, Ent{Inum: 5, Name: "a.txt"})

	slot, e, ok := FindName(blk, "a.txt")
	assert.True(ok)
	assert.Equal(uint64(2), slot)
	assert.Equal(uint64(5), e.Inum)

	_, _, ok = FindName(blk, "missing")
	assert.False(ok)
}

func TestEndOffset(t *testing.T) {
	assert := assert.New(t)
	blk := rootBlock()
	assert.Equal(2*EntSz, EndOffset(blk))

	PutEnt(blk, 2, Ent{Inum: 1, Name: "a.txt"})
	assert.Equal(3*EntSz, EndOffset(blk))

	// a hole before the last entry doesn't move the end
	PutEnt(blk, 5, Ent{Inum: 2, Name: "b.txt"})
	assert.Equal(6*EntSz, EndOffset(blk))

	assert.Equal(uint64(0), EndOffset(make([]byte, disk.BlockSize)))
}
