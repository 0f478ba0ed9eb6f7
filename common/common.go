// Package common holds the on-disk geometry of the filesystem image.
//
// The layout is fixed: block 0 is the superblock, a 16-block journal
// follows, then one bitmap block each for inodes and data, a 2-block
// inode table, and finally the data region.
package common

import (
	"github.com/vsfs-lab/vsfs/disk"
)

const (
	// FSMagic identifies the superblock ("VSFS").
	FSMagic uint32 = 0x56534653
	// JrnlMagic identifies an initialized journal header ("JRNL").
	JrnlMagic uint32 = 0x4A524E4C

	INODESZ uint64 = 128 // on-disk size
	NDIRECT uint64 = 8

	INODEBLK uint64 = disk.BlockSize / INODESZ // inodes per block

	JRNLSTART   uint64 = 1
	JRNLBLOCKS  uint64 = 16
	INODEBITMAP uint64 = JRNLSTART + JRNLBLOCKS
	DATABITMAP  uint64 = INODEBITMAP + 1
	INODESTART  uint64 = DATABITMAP + 1
	INODEBLOCKS uint64 = 2
	DATASTART   uint64 = INODESTART + INODEBLOCKS
	DATABLOCKS  uint64 = 64
	TOTALBLOCKS uint64 = DATASTART + DATABLOCKS

	NINODE uint64 = INODEBLOCKS * INODEBLK
)

type Inum = uint64
type Bnum = uint64

const (
	// ROOTINUM doubles as the "unused slot" marker in directory
	// entries; see dir.FindFreeSlot.
	ROOTINUM Inum = 0
	NULLBNUM Bnum = 0
)
