// Package mkfs lays out an empty, self-consistent filesystem image.
package mkfs

import (
	"fmt"
	"time"

	"github.com/vsfs-lab/vsfs/alloc"
	"github.com/vsfs-lab/vsfs/common"
	"github.com/vsfs-lab/vsfs/dir"
	"github.com/vsfs-lab/vsfs/disk"
	"github.com/vsfs-lab/vsfs/inode"
	"github.com/vsfs-lab/vsfs/jrnl"
	"github.com/vsfs-lab/vsfs/super"
)

// Mkfs formats d with the default geometry: superblock, empty journal,
// bitmaps with only the root's resources marked, a root directory
// inode, and a root directory block holding "." and "..".
func Mkfs(d disk.Disk) error {
	sz, err := d.Size()
	if err != nil {
		return err
	}
	if sz < common.TOTALBLOCKS {
		return fmt.Errorf("mkfs: disk has %d blocks, need %d", sz, common.TOTALBLOCKS)
	}

	sb := super.MkFsSuper()
	if err := d.Write(0, sb.Encode()); err != nil {
		return err
	}

	zero := make(disk.Block, disk.BlockSize)
	if err := d.Write(common.JRNLSTART, jrnl.EmptyHeaderBlock()); err != nil {
		return err
	}
	for i := uint64(1); i < common.JRNLBLOCKS; i++ {
		if err := d.Write(common.JRNLSTART+i, zero); err != nil {
			return err
		}
	}

	now := uint32(time.Now().Unix())

	// root owns inode 0 and the first data block
	ibm := make(disk.Block, disk.BlockSize)
	alloc.SetBit(ibm, common.ROOTINUM)
	if err := d.Write(common.INODEBITMAP, ibm); err != nil {
		return err
	}
	dbm := make(disk.Block, disk.BlockSize)
	alloc.SetBit(dbm, 0) // bit i covers data block DATASTART+i
	if err := d.Write(common.DATABITMAP, dbm); err != nil {
		return err
	}

	rootIp := inode.MkInode(inode.KindDir, now)
	rootIp.Nlink = 2 // "." and ".."
	rootIp.Size = uint32(2 * dir.EntSz)
	rootIp.Direct[0] = common.DATASTART
	tbl := make(disk.Block, disk.BlockSize)
	inode.PutInode(tbl, 0, rootIp)
	if err := d.Write(common.INODESTART, tbl); err != nil {
		return err
	}
	for i := uint64(1); i < common.INODEBLOCKS; i++ {
		if err := d.Write(common.INODESTART+i, zero); err != nil {
			return err
		}
	}

	rootDir := make(disk.Block, disk.BlockSize)
	dir.PutEnt(rootDir, 0, dir.Ent{Inum: common.ROOTINUM, Name: "."})
	dir.PutEnt(rootDir, 1, dir.Ent{Inum: common.ROOTINUM, Name: ".."})
	if err := d.Write(common.DATASTART, rootDir); err != nil {
		return err
	}
	for i := uint64(1); i < common.DATABLOCKS; i++ {
		if err := d.Write(common.DATASTART+i, zero); err != nil {
			return err
		}
	}

	return d.Barrier()
}
