package super

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsfs-lab/vsfs/common"
	"github.com/vsfs-lab/vsfs/disk"
)

func TestGeometry(t *testing.T) {
	assert := assert.New(t)
	sb := MkFsSuper()

	assert.Equal(uint64(16), sb.JrnlRegionBlocks())
	assert.Equal(uint64(2), sb.InodeTableBlocks())
	assert.Equal(uint64(64), sb.DataBlocks())

	assert.False(sb.InDataRegion(0))
	assert.False(sb.InDataRegion(common.DATASTART-1))
	assert.True(sb.InDataRegion(common.DATASTART))
	assert.True(sb.InDataRegion(common.TOTALBLOCKS-1))
	assert.False(sb.InDataRegion(common.TOTALBLOCKS))
}

func TestBlockForInum(t *testing.T) {
	assert := assert.New(t)
	sb := MkFsSuper()

	bn, off := sb.BlockForInum(0)
	assert.Equal(common.INODESTART, bn)
	assert.Equal(uint64(0), off)

	bn, off = sb.BlockForInum(31)
	assert.Equal(common.INODESTART, bn, "last inode of the first table block")
	assert.Equal(31*common.INODESZ, off)

	bn, off = sb.BlockForInum(32)
	assert.Equal(common.INODESTART+1, bn, "first inode of the second table block")
	assert.Equal(uint64(0), off)
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(common.TOTALBLOCKS)

	_, err := Load(d)
	assert.ErrorIs(err, ErrBadMagic, "zeroed disk has no superblock")

	require.NoError(t, d.Write(0, MkFsSuper().Encode()))
	sb, err := Load(d)
	require.NoError(t, err)
	assert.Equal(common.FSMagic, sb.Magic)
	assert.Equal(uint32(common.DATASTART), sb.DataStart)
	assert.Equal(uint32(common.NINODE), sb.InodeCount)
}
