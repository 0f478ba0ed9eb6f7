// Package inode defines the on-disk inode record.
package inode

import (
	"github.com/tchajed/marshal"

	"github.com/vsfs-lab/vsfs/common"
)

const (
	KindFree uint32 = 0
	KindFile uint32 = 1
	KindDir  uint32 = 2
)

// Inode is one 128-byte slot of the inode table. Direct pointers are
// absolute block numbers; 0 means the slot is unused (block 0 holds the
// superblock and is never file data).
type Inode struct {
	Kind   uint32
	Nlink  uint32
	Size   uint32
	Direct []common.Bnum // NDIRECT entries
	Ctime  uint32
	Mtime  uint32
}

func MkInode(kind uint32, now uint32) *Inode {
	return &Inode{
		Kind:   kind,
		Nlink:  1,
		Size:   0,
		Direct: make([]common.Bnum, common.NDIRECT),
		Ctime:  now,
		Mtime:  now,
	}
}

// Encode packs the inode into its 128-byte on-disk form.
func (ip *Inode) Encode() []byte {
	if uint64(len(ip.Direct)) != common.NDIRECT {
		panic("inode: wrong number of direct pointers")
	}
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt32(ip.Kind)
	enc.PutInt32(ip.Nlink)
	enc.PutInt32(ip.Size)
	for _, bn := range ip.Direct {
		enc.PutInt32(uint32(bn))
	}
	enc.PutInt32(ip.Ctime)
	enc.PutInt32(ip.Mtime)
	return enc.Finish()
}

// Decode unpacks an inode from a 128-byte slot.
func Decode(b []byte) *Inode {
	dec := marshal.NewDec(b)
	ip := &Inode{}
	ip.Kind = dec.GetInt32()
	ip.Nlink = dec.GetInt32()
	ip.Size = dec.GetInt32()
	ip.Direct = make([]common.Bnum, common.NDIRECT)
	for i := range ip.Direct {
		ip.Direct[i] = common.Bnum(dec.GetInt32())
	}
	ip.Ctime = dec.GetInt32()
	ip.Mtime = dec.GetInt32()
	return ip
}

// GetInode decodes the inode at byte offset off in an inode-table block
// image.
func GetInode(blk []byte, off uint64) *Inode {
	return Decode(blk[off : off+common.INODESZ])
}

// PutInode overwrites the inode at byte offset off in an inode-table
// block image.
func PutInode(blk []byte, off uint64, ip *Inode) {
	copy(blk[off:off+common.INODESZ], ip.Encode())
}
