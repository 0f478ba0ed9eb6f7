package fs_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/marshal"

	"github.com/vsfs-lab/vsfs/alloc"
	"github.com/vsfs-lab/vsfs/common"
	"github.com/vsfs-lab/vsfs/dir"
	"github.com/vsfs-lab/vsfs/disk"
	"github.com/vsfs-lab/vsfs/fs"
	"github.com/vsfs-lab/vsfs/fsck"
	"github.com/vsfs-lab/vsfs/inode"
	"github.com/vsfs-lab/vsfs/jrnl"
	"github.com/vsfs-lab/vsfs/mkfs"
)

func mkImage(t *testing.T) (disk.Disk, *fs.FileSys) {
	t.Helper()
	d := disk.NewMemDisk(common.TOTALBLOCKS)
	require.NoError(t, mkfs.Mkfs(d))
	fsys, err := fs.Load(d)
	require.NoError(t, err)
	return d, fsys
}

func journalCursor(t *testing.T, d disk.Disk) uint64 {
	t.Helper()
	hdr, err := d.Read(common.JRNLSTART)
	require.NoError(t, err)
	dec := marshal.NewDec(hdr[4:8])
	return uint64(dec.GetInt32())
}

func readInode(t *testing.T, d disk.Disk, inum common.Inum) *inode.Inode {
	t.Helper()
	blk, err := d.Read(common.INODESTART + inum/common.INODEBLK)
	require.NoError(t, err)
	return inode.GetInode(blk, (inum%common.INODEBLK)*common.INODESZ)
}

func requireConsistent(t *testing.T, d disk.Disk) {
	t.Helper()
	rpt, err := fsck.Check(d)
	require.NoError(t, err)
	require.Empty(t, rpt.Findings)
}

func TestLoadUnformatted(t *testing.T) {
	d := disk.NewMemDisk(common.TOTALBLOCKS)
	_, err := fs.Load(d)
	assert.Error(t, err)
}

func TestCreateInstallRoundTrip(t *testing.T) {
	assert := assert.New(t)
	d, fsys := mkImage(t)

	require.NoError(t, fsys.CreateFile("a.txt"))

	// staging touches only the journal
	ibm, err := d.Read(common.INODEBITMAP)
	assert.NoError(err)
	assert.False(alloc.TestBit(ibm, 1), "inode 1 not allocated before install")
	assert.Equal(uint32(2*dir.EntSz), readInode(t, d, common.ROOTINUM).Size)

	rpt, err := fsys.Install()
	require.NoError(t, err)
	assert.Equal(uint64(1), rpt.Txns)
	assert.Empty(rpt.Fault)

	ibm, err = d.Read(common.INODEBITMAP)
	assert.NoError(err)
	assert.True(alloc.TestBit(ibm, 1))

	ip := readInode(t, d, 1)
	assert.Equal(inode.KindFile, ip.Kind)
	assert.Equal(uint32(1), ip.Nlink)
	assert.Equal(uint32(0), ip.Size)
	for _, bn := range ip.Direct {
		assert.Equal(common.NULLBNUM, bn)
	}

	dirBlk, err := d.Read(common.DATASTART)
	assert.NoError(err)
	slot, e, ok := dir.FindName(dirBlk, "a.txt")
	assert.True(ok)
	assert.Equal(uint64(2), slot, "slots 0 and 1 hold \".\" and \"..\"")
	assert.Equal(uint64(1), e.Inum)

	assert.Equal(uint32(96), readInode(t, d, common.ROOTINUM).Size,
		"root covers three 32-byte entries")

	assert.Equal(jrnl.HdrSz, journalCursor(t, d))
	requireConsistent(t, d)
}

func TestInstallIdempotent(t *testing.T) {
	assert := assert.New(t)
	d, fsys := mkImage(t)

	require.NoError(t, fsys.CreateFile("a.txt"))
	rpt, err := fsys.Install()
	require.NoError(t, err)
	require.Equal(t, uint64(1), rpt.Txns)

	ibmBefore, err := d.Read(common.INODEBITMAP)
	require.NoError(t, err)
	dirBefore, err := d.Read(common.DATASTART)
	require.NoError(t, err)

	rpt, err = fsys.Install()
	assert.NoError(err)
	assert.Equal(uint64(0), rpt.Txns)
	assert.Equal(jrnl.HdrSz, journalCursor(t, d))

	ibmAfter, _ := d.Read(common.INODEBITMAP)
	dirAfter, _ := d.Read(common.DATASTART)
	assert.Equal(ibmBefore, ibmAfter)
	assert.Equal(dirBefore, dirAfter)
}

func TestCreateSequence(t *testing.T) {
	assert := assert.New(t)
	d, fsys := mkImage(t)

	// inode 0 is the root, leaving 63 allocatable inodes
	for i := 0; i < 63; i++ {
		name := fmt.Sprintf("f%02d", i)
		require.NoError(t, fsys.CreateFile(name), "create %s", name)
		rpt, err := fsys.Install()
		require.NoError(t, err)
		require.Equal(t, uint64(1), rpt.Txns)
		requireConsistent(t, d)
	}

	ip := readInode(t, d, 63)
	assert.Equal(inode.KindFile, ip.Kind)
	assert.Equal(uint32((2+63)*dir.EntSz), readInode(t, d, common.ROOTINUM).Size)

	cursor := journalCursor(t, d)
	err := fsys.CreateFile("one-too-many")
	assert.ErrorIs(err, fs.ErrNoFreeInodes)
	assert.Equal(cursor, journalCursor(t, d), "failed create must not touch the journal")
}

func TestStagedCreatesReadPermanentState(t *testing.T) {
	assert := assert.New(t)
	d, fsys := mkImage(t)

	// without an install between them, both creations see the same
	// free inode and directory slot; the journal is not authoritative
	// and the later transaction wins
	require.NoError(t, fsys.CreateFile("a.txt"))
	require.NoError(t, fsys.CreateFile("b.txt"))

	rpt, err := fsys.Install()
	require.NoError(t, err)
	assert.Equal(uint64(2), rpt.Txns)

	dirBlk, err := d.Read(common.DATASTART)
	assert.NoError(err)
	_, _, ok := dir.FindName(dirBlk, "a.txt")
	assert.False(ok)
	slot, e, ok := dir.FindName(dirBlk, "b.txt")
	assert.True(ok)
	assert.Equal(uint64(2), slot)
	assert.Equal(uint64(1), e.Inum)
	requireConsistent(t, d)
}

func TestDirectoryFull(t *testing.T) {
	assert := assert.New(t)
	d, fsys := mkImage(t)

	// occupy every remaining slot; a name with inode 0 still counts as
	// occupied because the name field is non-empty
	dirBlk, err := d.Read(common.DATASTART)
	require.NoError(t, err)
	for slot := uint64(2); slot < dir.NumEnts; slot++ {
		dir.PutEnt(dirBlk, slot, dir.Ent{Inum: 0, Name: "taken"})
	}
	require.NoError(t, d.Write(common.DATASTART, dirBlk))

	err = fsys.CreateFile("a.txt")
	assert.ErrorIs(err, fs.ErrDirFull)
	assert.Equal(jrnl.HdrSz, journalCursor(t, d))
}

func TestNameTruncated(t *testing.T) {
	assert := assert.New(t)
	d, fsys := mkImage(t)

	long := strings.Repeat("n", 40)
	require.NoError(t, fsys.CreateFile(long))
	_, err := fsys.Install()
	require.NoError(t, err)

	dirBlk, err := d.Read(common.DATASTART)
	assert.NoError(err)
	_, e, ok := dir.FindName(dirBlk, long[:dir.NameLen-1])
	assert.True(ok)
	assert.Equal(uint64(1), e.Inum)
}

func TestEmptyName(t *testing.T) {
	_, fsys := mkImage(t)
	assert.ErrorIs(t, fsys.CreateFile(""), fs.ErrEmptyName)
}
