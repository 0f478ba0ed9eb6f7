// Package jrnl is the write-ahead journal for metadata updates.
//
// The journal occupies a fixed run of blocks whose first 8 bytes are a
// header: a magic number and a cursor marking the end of valid log
// content. Records follow the header back to back. A data record
// carries the full replacement image of one target block; a commit
// record closes a transaction, making every data record since the
// previous commit atomic as a unit.
//
// Staging is done entirely against an in-memory copy of the region and
// made durable by a single whole-region Flush, so a crash before Flush
// leaves the old journal intact. Install replays committed
// transactions into their target blocks and resets the cursor.
package jrnl

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/vsfs-lab/vsfs/common"
	"github.com/vsfs-lab/vsfs/disk"
	"github.com/vsfs-lab/vsfs/util"
)

const (
	// HdrSz is the size of the journal header (magic + cursor).
	HdrSz uint64 = 8

	recHdrSz uint64 = 8 // record type + record size

	// DataRecSz is the full size of a data record: header, target
	// block number, and one block of content.
	DataRecSz uint64 = recHdrSz + 4 + disk.BlockSize
	// CommitRecSz is the full size of a commit record (header only).
	CommitRecSz uint64 = recHdrSz
)

const (
	recData   uint32 = 1
	recCommit uint32 = 2
)

var (
	ErrBadMagic = errors.New("jrnl: journal is not initialized")
	ErrFull     = errors.New("jrnl: journal full")
)

// Jrnl holds an in-memory image of the whole journal region.
type Jrnl struct {
	d       disk.Disk
	start   common.Bnum
	nblocks uint64
	buf     []byte
}

// Load reads the journal region from disk.
func Load(d disk.Disk, start common.Bnum, nblocks uint64) (*Jrnl, error) {
	buf := make([]byte, nblocks*disk.BlockSize)
	for i := uint64(0); i < nblocks; i++ {
		if err := d.ReadTo(start+i, buf[i*disk.BlockSize:(i+1)*disk.BlockSize]); err != nil {
			return nil, fmt.Errorf("jrnl: %w", err)
		}
	}
	return &Jrnl{d: d, start: start, nblocks: nblocks, buf: buf}, nil
}

func (j *Jrnl) capacity() uint64 {
	return j.nblocks * disk.BlockSize
}

func (j *Jrnl) magic() uint32 {
	dec := marshal.NewDec(j.buf[0:4])
	return dec.GetInt32()
}

func (j *Jrnl) bytesUsed() uint64 {
	dec := marshal.NewDec(j.buf[4:8])
	return uint64(dec.GetInt32())
}

func (j *Jrnl) putHeader(used uint64) {
	enc := marshal.NewEnc(HdrSz)
	enc.PutInt32(common.JrnlMagic)
	enc.PutInt32(uint32(used))
	copy(j.buf[0:HdrSz], enc.Finish())
}

// EmptyHeaderBlock returns a journal block image holding a fresh,
// empty header. mkfs uses it to lay out the journal region.
func EmptyHeaderBlock() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt32(common.JrnlMagic)
	enc.PutInt32(uint32(HdrSz))
	return enc.Finish()
}

// Init writes a fresh header if the journal's magic is invalid.
// Idempotent; safe to call before every staging operation.
func (j *Jrnl) Init() error {
	if j.magic() == common.JrnlMagic {
		return nil
	}
	util.DPrintf(1, "jrnl: initializing fresh journal header\n")
	j.putHeader(HdrSz)
	return j.flushHeader()
}

// AppendData stages the full replacement content for block bn at the
// cursor. It fails with ErrFull, leaving the journal untouched, if the
// record would not fit in the region.
func (j *Jrnl) AppendData(bn common.Bnum, data disk.Block) error {
	if uint64(len(data)) != disk.BlockSize {
		panic(fmt.Errorf("jrnl: data record content is not block sized (%d bytes)", len(data)))
	}
	used := j.bytesUsed()
	if used+DataRecSz > j.capacity() {
		return ErrFull
	}
	enc := marshal.NewEnc(recHdrSz + 4)
	enc.PutInt32(recData)
	enc.PutInt32(uint32(DataRecSz))
	enc.PutInt32(uint32(bn))
	copy(j.buf[used:], enc.Finish())
	copy(j.buf[used+recHdrSz+4:], data)
	j.putHeader(used + DataRecSz)
	util.DPrintf(3, "jrnl: staged data record for block %d at offset %d\n", bn, used)
	return nil
}

// AppendCommit stages a commit record, closing the transaction formed
// by the data records appended since the previous commit.
func (j *Jrnl) AppendCommit() error {
	used := j.bytesUsed()
	if used+CommitRecSz > j.capacity() {
		return ErrFull
	}
	enc := marshal.NewEnc(recHdrSz)
	enc.PutInt32(recCommit)
	enc.PutInt32(uint32(CommitRecSz))
	copy(j.buf[used:], enc.Finish())
	j.putHeader(used + CommitRecSz)
	util.DPrintf(3, "jrnl: staged commit record at offset %d\n", used)
	return nil
}

// Flush writes the whole journal region back to disk and issues a
// barrier. A crash before Flush completes can tear the region across
// blocks; that window is a known limitation of this design.
func (j *Jrnl) Flush() error {
	for i := uint64(0); i < j.nblocks; i++ {
		if err := j.d.Write(j.start+i, j.buf[i*disk.BlockSize:(i+1)*disk.BlockSize]); err != nil {
			return fmt.Errorf("jrnl: %w", err)
		}
	}
	return j.d.Barrier()
}

func (j *Jrnl) flushHeader() error {
	if err := j.d.Write(j.start, j.buf[0:disk.BlockSize]); err != nil {
		return fmt.Errorf("jrnl: %w", err)
	}
	return j.d.Barrier()
}

// update is one buffered write of a closed transaction.
type update struct {
	bn   common.Bnum
	data []byte
}

// Report describes the outcome of an Install.
type Report struct {
	// Txns is the number of fully committed transactions applied.
	Txns uint64
	// Fault describes malformed framing that halted the replay walk,
	// if any. Transactions applied before the fault stay applied.
	Fault string
}

// Install replays the journal into the permanent region.
//
// Data records are buffered and only written out when the commit
// record closing their transaction is reached, in the order they were
// staged; a trailing run of data records with no commit is discarded.
// Malformed framing halts the walk at the fault. On completion the
// cursor is reset to the empty-header size and the header persisted.
//
// An uninitialized journal is an error and nothing is mutated.
func (j *Jrnl) Install() (Report, error) {
	if j.magic() != common.JrnlMagic {
		return Report{}, ErrBadMagic
	}
	used := j.bytesUsed()
	if used == HdrSz {
		util.DPrintf(1, "jrnl: nothing to install\n")
		return Report{}, nil
	}

	var rpt Report
	if used > j.capacity() {
		rpt.Fault = fmt.Sprintf("cursor %d exceeds journal capacity %d", used, j.capacity())
		used = HdrSz
	}

	var pending []update
	off := HdrSz
	for off < used {
		if off+recHdrSz > used {
			rpt.Fault = fmt.Sprintf("incomplete record header at offset %d", off)
			break
		}
		dec := marshal.NewDec(j.buf[off : off+recHdrSz])
		recType := dec.GetInt32()
		recSize := uint64(dec.GetInt32())
		if recType == recData {
			if recSize != DataRecSz {
				rpt.Fault = fmt.Sprintf("data record with size %d at offset %d", recSize, off)
				break
			}
			if off+DataRecSz > used {
				rpt.Fault = fmt.Sprintf("incomplete data record at offset %d", off)
				break
			}
			bnDec := marshal.NewDec(j.buf[off+recHdrSz : off+recHdrSz+4])
			bn := common.Bnum(bnDec.GetInt32())
			data := j.buf[off+recHdrSz+4 : off+DataRecSz]
			pending = append(pending, update{bn: bn, data: data})
			off += recSize
		} else if recType == recCommit {
			if recSize != CommitRecSz {
				rpt.Fault = fmt.Sprintf("commit record with size %d at offset %d", recSize, off)
				break
			}
			for _, u := range pending {
				util.DPrintf(2, "jrnl: installing block %d\n", u.bn)
				if err := j.d.Write(u.bn, u.data); err != nil {
					return rpt, fmt.Errorf("jrnl: %w", err)
				}
			}
			pending = nil
			rpt.Txns++
			off += recSize
		} else {
			rpt.Fault = fmt.Sprintf("unknown record type %d at offset %d", recType, off)
			break
		}
	}

	if rpt.Txns > 0 {
		if err := j.d.Barrier(); err != nil {
			return rpt, fmt.Errorf("jrnl: %w", err)
		}
	}
	j.putHeader(HdrSz)
	if err := j.flushHeader(); err != nil {
		return rpt, err
	}
	util.DPrintf(1, "jrnl: installed %d transaction(s)\n", rpt.Txns)
	return rpt, nil
}
