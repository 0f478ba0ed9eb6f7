// Package fsck independently re-derives the filesystem's invariants
// from the permanent region and reports every divergence.
//
// The journal region is never read: uninstalled journal content is
// unapplied intent, not corruption. Checking never mutates the image
// and never stops at the first problem; all findings are accumulated
// and the verdict is the summary.
package fsck

import (
	"fmt"
	"sort"

	"github.com/vsfs-lab/vsfs/alloc"
	"github.com/vsfs-lab/vsfs/common"
	"github.com/vsfs-lab/vsfs/dir"
	"github.com/vsfs-lab/vsfs/disk"
	"github.com/vsfs-lab/vsfs/inode"
	"github.com/vsfs-lab/vsfs/super"
	"github.com/vsfs-lab/vsfs/util"
)

// Report accumulates the findings of one Check pass.
type Report struct {
	Findings []string
}

func (r *Report) errorf(format string, a ...interface{}) {
	r.Findings = append(r.Findings, fmt.Sprintf(format, a...))
}

// Consistent reports whether the pass found zero problems.
func (r *Report) Consistent() bool {
	return len(r.Findings) == 0
}

type checker struct {
	d      disk.Disk
	diskSz uint64
	sb     *super.FsSuper
	rpt    *Report

	ibm    []byte
	dbm    []byte
	inodes []*inode.Inode

	refs     map[common.Bnum]uint64 // live references per data block
	linkRefs map[common.Inum]uint64 // directory entries per inode
}

// Check walks the superblock, bitmaps, inode table, and directory
// blocks of d. The returned error covers I/O failures only; structural
// problems are findings in the Report.
func Check(d disk.Disk) (*Report, error) {
	rpt := &Report{}
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	blk, err := d.Read(0)
	if err != nil {
		return nil, err
	}
	chk := &checker{
		d:        d,
		diskSz:   sz,
		sb:       super.Decode(blk),
		rpt:      rpt,
		refs:     make(map[common.Bnum]uint64),
		linkRefs: make(map[common.Inum]uint64),
	}
	if !chk.checkSuper() {
		// geometry is unusable; deeper checks would chase garbage
		return rpt, nil
	}
	if err := chk.load(); err != nil {
		return nil, err
	}
	chk.checkInodeBitmap()
	chk.checkPointers()
	chk.checkAliasing()
	if err := chk.checkDirs(); err != nil {
		return nil, err
	}
	chk.checkLinks()
	util.DPrintf(1, "fsck: %d finding(s)\n", len(rpt.Findings))
	return rpt, nil
}

// checkSuper validates the superblock's internal consistency and
// reports whether the geometry is sound enough to keep walking.
func (chk *checker) checkSuper() bool {
	sb := chk.sb
	usable := true
	if sb.Magic != common.FSMagic {
		chk.rpt.errorf("superblock: bad magic 0x%08x (want 0x%08x)", sb.Magic, common.FSMagic)
		usable = false
	}
	if uint64(sb.BlockSize) != disk.BlockSize {
		chk.rpt.errorf("superblock: block size %d (want %d)", sb.BlockSize, disk.BlockSize)
	}
	if !(sb.JrnlStart >= 1 && sb.JrnlStart < sb.InodeBitmap &&
		sb.InodeBitmap < sb.DataBitmap &&
		sb.DataBitmap < sb.InodeStart &&
		sb.InodeStart < sb.DataStart &&
		sb.DataStart <= sb.TotalBlocks) {
		chk.rpt.errorf("superblock: region offsets out of order "+
			"(journal %d, inode bitmap %d, data bitmap %d, inode table %d, data %d, total %d)",
			sb.JrnlStart, sb.InodeBitmap, sb.DataBitmap, sb.InodeStart, sb.DataStart, sb.TotalBlocks)
		usable = false
	}
	if uint64(sb.TotalBlocks) > chk.diskSz {
		chk.rpt.errorf("superblock: total blocks %d exceeds disk size %d", sb.TotalBlocks, chk.diskSz)
		usable = false
	}
	if usable {
		got := uint64(sb.DataStart) - uint64(sb.InodeStart)
		if got != sb.InodeTableBlocks() {
			chk.rpt.errorf("superblock: inode table spans %d blocks but %d inodes need %d",
				got, sb.InodeCount, sb.InodeTableBlocks())
			usable = false
		}
		if sb.DataStart >= sb.TotalBlocks {
			chk.rpt.errorf("superblock: empty data region (data start %d, total %d)",
				sb.DataStart, sb.TotalBlocks)
		}
	}
	return usable
}

func (chk *checker) load() error {
	var err error
	chk.ibm, err = chk.d.Read(common.Bnum(chk.sb.InodeBitmap))
	if err != nil {
		return err
	}
	chk.dbm, err = chk.d.Read(common.Bnum(chk.sb.DataBitmap))
	if err != nil {
		return err
	}
	for bn := uint64(chk.sb.InodeStart); bn < uint64(chk.sb.DataStart); bn++ {
		blk, err := chk.d.Read(bn)
		if err != nil {
			return err
		}
		for off := uint64(0); off+common.INODESZ <= disk.BlockSize; off += common.INODESZ {
			if uint64(len(chk.inodes)) >= uint64(chk.sb.InodeCount) {
				break
			}
			chk.inodes = append(chk.inodes, inode.GetInode(blk, off))
		}
	}
	return nil
}

// checkInodeBitmap requires every inode's bitmap bit and type field to
// agree, in both directions.
func (chk *checker) checkInodeBitmap() {
	for i, ip := range chk.inodes {
		inum := common.Inum(i)
		bit := alloc.TestBit(chk.ibm, inum)
		live := ip.Kind != inode.KindFree
		if live && !bit {
			chk.rpt.errorf("inode %d: type %d but inode bitmap bit is clear", inum, ip.Kind)
		}
		if !live && bit {
			chk.rpt.errorf("inode %d: free but inode bitmap bit is set", inum)
		}
	}
}

// checkPointers bounds-checks every live inode's direct pointers
// against the data region and bitmap, and counts references per block.
func (chk *checker) checkPointers() {
	for i, ip := range chk.inodes {
		if ip.Kind == inode.KindFree {
			continue
		}
		inum := common.Inum(i)
		for _, bn := range ip.Direct {
			if bn == common.NULLBNUM {
				continue
			}
			if !chk.sb.InDataRegion(bn) {
				chk.rpt.errorf("inode %d: direct pointer %d outside data region [%d, %d)",
					inum, bn, chk.sb.DataStart, chk.sb.TotalBlocks)
				continue
			}
			if !alloc.TestBit(chk.dbm, bn-uint64(chk.sb.DataStart)) {
				chk.rpt.errorf("inode %d: block %d in use but data bitmap bit is clear", inum, bn)
			}
			chk.refs[bn]++
		}
	}
}

func (chk *checker) checkAliasing() {
	var aliased []common.Bnum
	for bn, n := range chk.refs {
		if n > 1 {
			aliased = append(aliased, bn)
		}
	}
	sort.Slice(aliased, func(i, j int) bool { return aliased[i] < aliased[j] })
	for _, bn := range aliased {
		chk.rpt.errorf("data block %d: referenced by %d inodes", bn, chk.refs[bn])
	}
}

// checkDirs scans every directory's entries: the "."/".." pair, the
// declared size against the last occupied slot, and reference counts
// for checkLinks.
func (chk *checker) checkDirs() error {
	for i, ip := range chk.inodes {
		if ip.Kind != inode.KindDir {
			continue
		}
		inum := common.Inum(i)
		bn := ip.Direct[0]
		if bn == common.NULLBNUM {
			chk.rpt.errorf("directory %d: no data block", inum)
			continue
		}
		if !chk.sb.InDataRegion(bn) {
			// already reported by checkPointers
			continue
		}
		blk, err := chk.d.Read(bn)
		if err != nil {
			return err
		}

		if _, e, ok := dir.FindName(blk, "."); !ok {
			chk.rpt.errorf("directory %d: missing \".\" entry", inum)
		} else if e.Inum != inum {
			chk.rpt.errorf("directory %d: \".\" references inode %d", inum, e.Inum)
		}
		if _, _, ok := dir.FindName(blk, ".."); !ok {
			chk.rpt.errorf("directory %d: missing \"..\" entry", inum)
		}

		end := dir.EndOffset(blk)
		if uint64(ip.Size) != end {
			chk.rpt.errorf("directory %d: size %d but entries end at offset %d", inum, ip.Size, end)
		}

		for slot := uint64(0); slot < dir.NumEnts; slot++ {
			e := dir.GetEnt(blk, slot)
			if e.Inum == common.ROOTINUM && e.Name == "" {
				continue
			}
			if e.Inum >= uint64(chk.sb.InodeCount) {
				chk.rpt.errorf("directory %d slot %d: entry %q references invalid inode %d",
					inum, slot, e.Name, e.Inum)
				continue
			}
			if chk.inodes[e.Inum].Kind == inode.KindFree {
				chk.rpt.errorf("directory %d slot %d: entry %q references free inode %d",
					inum, slot, e.Name, e.Inum)
			}
			chk.linkRefs[e.Inum]++
		}
	}
	return nil
}

// checkLinks requires every live inode's link count to equal the
// number of directory entries referencing it ("." and ".." included,
// which makes a file's expected count 1 and the root's 2).
func (chk *checker) checkLinks() {
	for i, ip := range chk.inodes {
		if ip.Kind == inode.KindFree {
			continue
		}
		inum := common.Inum(i)
		if uint64(ip.Nlink) != chk.linkRefs[inum] {
			chk.rpt.errorf("inode %d: link count %d but %d directory entries reference it",
				inum, ip.Nlink, chk.linkRefs[inum])
		}
	}
}
