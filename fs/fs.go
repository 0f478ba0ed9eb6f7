// Package fs ties the disk, superblock, and journal together into the
// user-facing operations.
//
// A FileSys owns the open disk for one invocation; nothing here keeps
// process-wide state. CreateFile only reads the permanent region and
// only writes the journal — its effects become visible when a later
// Install replays them.
package fs

import (
	"errors"
	"fmt"
	"time"

	"github.com/vsfs-lab/vsfs/alloc"
	"github.com/vsfs-lab/vsfs/common"
	"github.com/vsfs-lab/vsfs/dir"
	"github.com/vsfs-lab/vsfs/disk"
	"github.com/vsfs-lab/vsfs/inode"
	"github.com/vsfs-lab/vsfs/jrnl"
	"github.com/vsfs-lab/vsfs/super"
	"github.com/vsfs-lab/vsfs/util"
)

var (
	ErrNoFreeInodes = errors.New("fs: no free inodes")
	ErrDirFull      = errors.New("fs: root directory is full")
	ErrEmptyName    = errors.New("fs: empty file name")
)

// FileSys is a session against one disk image.
type FileSys struct {
	d     disk.Disk
	Super *super.FsSuper
}

// Load opens a session: reads the superblock and verifies its magic.
func Load(d disk.Disk) (*FileSys, error) {
	sb, err := super.Load(d)
	if err != nil {
		return nil, err
	}
	return &FileSys{d: d, Super: sb}, nil
}

func (fs *FileSys) loadJrnl() (*jrnl.Jrnl, error) {
	return jrnl.Load(fs.d, common.Bnum(fs.Super.JrnlStart), fs.Super.JrnlRegionBlocks())
}

// CreateFile stages a file-creation transaction in the journal.
//
// The new inode, bitmap bit, and directory entry are composed in
// memory from the permanent region's current state (never from the
// journal, which is not yet authoritative) and appended as full block
// images followed by a commit record. The permanent region itself is
// untouched. Names longer than the entry's name field are truncated.
func (fs *FileSys) CreateFile(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	sb := fs.Super

	j, err := fs.loadJrnl()
	if err != nil {
		return err
	}
	if err := j.Init(); err != nil {
		return err
	}

	ibm, err := fs.d.Read(common.Bnum(sb.InodeBitmap))
	if err != nil {
		return err
	}
	if _, err := fs.d.Read(common.Bnum(sb.DataBitmap)); err != nil {
		// create allocates no data block (new files start empty), but
		// an unreadable bitmap means the image is unusable
		return err
	}

	inum, ok := alloc.FindFree(ibm, uint64(sb.InodeCount))
	if !ok {
		return ErrNoFreeInodes
	}

	rootBn, rootOff := sb.BlockForInum(common.ROOTINUM)
	rootBlk, err := fs.d.Read(rootBn)
	if err != nil {
		return err
	}
	rootIp := inode.GetInode(rootBlk, rootOff)
	dirBn := rootIp.Direct[0]
	if dirBn == common.NULLBNUM || !sb.InDataRegion(dirBn) {
		return fmt.Errorf("fs: root directory has no valid data block (%d)", dirBn)
	}
	dirBlk, err := fs.d.Read(dirBn)
	if err != nil {
		return err
	}

	slot, ok := dir.FindFreeSlot(dirBlk)
	if !ok {
		return ErrDirFull
	}

	now := uint32(time.Now().Unix())
	util.DPrintf(1, "fs: creating %q as inode %d in slot %d\n", name, inum, slot)

	tblBn, tblOff := sb.BlockForInum(inum)
	var tblBlk []byte
	if tblBn == rootBn {
		tblBlk = rootBlk
	} else {
		tblBlk, err = fs.d.Read(tblBn)
		if err != nil {
			return err
		}
	}
	inode.PutInode(tblBlk, tblOff, inode.MkInode(inode.KindFile, now))

	// the new entry extends the root directory
	rootIp.Size = uint32((slot + 1) * dir.EntSz)
	rootIp.Mtime = now
	inode.PutInode(rootBlk, rootOff, rootIp)

	alloc.SetBit(ibm, inum)
	dir.PutEnt(dirBlk, slot, dir.Ent{Inum: inum, Name: name})

	if err := j.AppendData(common.Bnum(sb.InodeBitmap), ibm); err != nil {
		return err
	}
	if err := j.AppendData(tblBn, tblBlk); err != nil {
		return err
	}
	if tblBn != rootBn {
		if err := j.AppendData(rootBn, rootBlk); err != nil {
			return err
		}
	}
	if err := j.AppendData(dirBn, dirBlk); err != nil {
		return err
	}
	if err := j.AppendCommit(); err != nil {
		return err
	}
	return j.Flush()
}

// Install replays the journal's committed transactions into the
// permanent region and clears the journal.
func (fs *FileSys) Install() (jrnl.Report, error) {
	j, err := fs.loadJrnl()
	if err != nil {
		return jrnl.Report{}, err
	}
	return j.Install()
}
