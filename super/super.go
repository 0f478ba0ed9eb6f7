// Package super defines the superblock record and the geometry
// accessors derived from it.
package super

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/vsfs-lab/vsfs/common"
	"github.com/vsfs-lab/vsfs/disk"
	"github.com/vsfs-lab/vsfs/util"
)

var ErrBadMagic = errors.New("super: bad filesystem magic")

// FsSuper is the 128-byte superblock stored at block 0. It is written
// once at format time and read-only afterwards.
type FsSuper struct {
	Magic       uint32
	BlockSize   uint32
	TotalBlocks uint32
	InodeCount  uint32
	JrnlStart   uint32
	InodeBitmap uint32
	DataBitmap  uint32
	InodeStart  uint32
	DataStart   uint32
}

// MkFsSuper returns a superblock describing the default image geometry.
func MkFsSuper() *FsSuper {
	return &FsSuper{
		Magic:       common.FSMagic,
		BlockSize:   uint32(disk.BlockSize),
		TotalBlocks: uint32(common.TOTALBLOCKS),
		InodeCount:  uint32(common.NINODE),
		JrnlStart:   uint32(common.JRNLSTART),
		InodeBitmap: uint32(common.INODEBITMAP),
		DataBitmap:  uint32(common.DATABITMAP),
		InodeStart:  uint32(common.INODESTART),
		DataStart:   uint32(common.DATASTART),
	}
}

// Encode packs the superblock into a full block image (the record
// occupies the first 128 bytes; the rest is zero).
func (sb *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt32(sb.Magic)
	enc.PutInt32(sb.BlockSize)
	enc.PutInt32(sb.TotalBlocks)
	enc.PutInt32(sb.InodeCount)
	enc.PutInt32(sb.JrnlStart)
	enc.PutInt32(sb.InodeBitmap)
	enc.PutInt32(sb.DataBitmap)
	enc.PutInt32(sb.InodeStart)
	enc.PutInt32(sb.DataStart)
	return enc.Finish()
}

// Decode unpacks a superblock from block 0's image without checking the
// magic; callers that require a valid filesystem should use Load.
func Decode(blk disk.Block) *FsSuper {
	dec := marshal.NewDec(blk)
	sb := &FsSuper{}
	sb.Magic = dec.GetInt32()
	sb.BlockSize = dec.GetInt32()
	sb.TotalBlocks = dec.GetInt32()
	sb.InodeCount = dec.GetInt32()
	sb.JrnlStart = dec.GetInt32()
	sb.InodeBitmap = dec.GetInt32()
	sb.DataBitmap = dec.GetInt32()
	sb.InodeStart = dec.GetInt32()
	sb.DataStart = dec.GetInt32()
	return sb
}

// Load reads and decodes the superblock, verifying its magic.
func Load(d disk.Disk) (*FsSuper, error) {
	blk, err := d.Read(0)
	if err != nil {
		return nil, fmt.Errorf("super: %w", err)
	}
	sb := Decode(blk)
	if sb.Magic != common.FSMagic {
		return nil, ErrBadMagic
	}
	util.DPrintf(5, "super: loaded %+v\n", sb)
	return sb, nil
}

// JrnlRegionBlocks is the number of blocks reserved for the journal.
func (sb *FsSuper) JrnlRegionBlocks() uint64 {
	return uint64(sb.InodeBitmap) - uint64(sb.JrnlStart)
}

// InodeTableBlocks is the number of blocks the inode table occupies.
func (sb *FsSuper) InodeTableBlocks() uint64 {
	return util.RoundUp(uint64(sb.InodeCount)*common.INODESZ, disk.BlockSize)
}

// DataBlocks is the number of blocks in the data region.
func (sb *FsSuper) DataBlocks() uint64 {
	return uint64(sb.TotalBlocks) - uint64(sb.DataStart)
}

// InDataRegion reports whether bn is a valid data-region block.
func (sb *FsSuper) InDataRegion(bn common.Bnum) bool {
	return bn >= uint64(sb.DataStart) && bn < uint64(sb.TotalBlocks)
}

// BlockForInum returns the inode-table block holding inum and the byte
// offset of the inode within that block.
func (sb *FsSuper) BlockForInum(inum common.Inum) (common.Bnum, uint64) {
	blk := uint64(sb.InodeStart) + inum/common.INODEBLK
	off := (inum % common.INODEBLK) * common.INODESZ
	return blk, off
}
