// Package dir defines directory entries and the scans over a directory
// block.
package dir

import (
	"bytes"

	"github.com/tchajed/marshal"

	"github.com/vsfs-lab/vsfs/common"
	"github.com/vsfs-lab/vsfs/disk"
)

const (
	// EntSz is the on-disk size of one directory entry.
	EntSz uint64 = 32
	// NameLen is the size of the name field; the writer always leaves a
	// terminating NUL, so usable names are at most NameLen-1 bytes.
	NameLen uint64 = 28
	// NumEnts is the number of entries in one directory block.
	NumEnts uint64 = disk.BlockSize / EntSz
)

// Ent is one directory entry: an inode number and a NUL-terminated
// name.
type Ent struct {
	Inum common.Inum
	Name string
}

// GetEnt decodes entry slot in a directory block image.
func GetEnt(blk []byte, slot uint64) Ent {
	off := slot * EntSz
	dec := marshal.NewDec(blk[off : off+4])
	inum := common.Inum(dec.GetInt32())
	name := blk[off+4 : off+EntSz]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Ent{Inum: inum, Name: string(name)}
}

// PutEnt writes an entry into a slot of a directory block image,
// truncating the name to NameLen-1 bytes and NUL-terminating it.
func PutEnt(blk []byte, slot uint64, e Ent) {
	off := slot * EntSz
	enc := marshal.NewEnc(4)
	enc.PutInt32(uint32(e.Inum))
	copy(blk[off:off+4], enc.Finish())
	name := blk[off+4 : off+EntSz]
	for i := range name {
		name[i] = 0
	}
	copy(name[:NameLen-1], e.Name)
}

// FindFreeSlot returns the first unused slot in a directory block.
//
// A slot is free when its inode field is 0 and its name is empty; the
// inode field alone is not enough because 0 is also the root's own
// inode number (the root's "." and ".." entries store it).
func FindFreeSlot(blk []byte) (uint64, bool) {
	for slot := uint64(0); slot < NumEnts; slot++ {
		e := GetEnt(blk, slot)
		if e.Inum == common.ROOTINUM && e.Name == "" {
			return slot, true
		}
	}
	return 0, false
}

// FindName returns the slot holding name, if any.
func FindName(blk []byte, name string) (uint64, Ent, bool) {
	for slot := uint64(0); slot < NumEnts; slot++ {
		e := GetEnt(blk, slot)
		if e.Name == name {
			return slot, e, true
		}
	}
	return 0, Ent{}, false
}

// EndOffset returns the byte offset one past the last occupied slot,
// which is what the directory's inode size is expected to equal.
func EndOffset(blk []byte) uint64 {
	var end uint64
	for slot := uint64(0); slot < NumEnts; slot++ {
		e := GetEnt(blk, slot)
		if !(e.Inum == common.ROOTINUM && e.Name == "") {
			end = (slot + 1) * EntSz
		}
	}
	return end
}
