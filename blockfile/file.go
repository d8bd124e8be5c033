package blockfile

import (
	"io"

	"github.com/infinivision/blockkv/constant"
	"github.com/infinivision/blockkv/errmsg"
)

func (f *file) Close() error {
	if f == nil || f.bf == nil {
		return errmsg.NotExist
	}
	f.bf = nil
	return nil
}

func (f *file) Eof() bool {
	return f.offset == f.bf.sb.entries[f.pos].fsize
}

func (f *file) Size() uint64 {
	return f.bf.sb.entries[f.pos].fsize
}

// Seek moves the read cursor, clamped into [0, fsize]. Only
// io.SeekStart and io.SeekCurrent are supported.
func (f *file) Seek(offset int64, whence int) (int64, error) {
	e := &f.bf.sb.entries[f.pos]
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += int64(f.offset)
	default:
		return 0, errmsg.UnknownError
	}
	if offset < 0 {
		offset = 0
	}
	if offset > int64(e.fsize) {
		offset = int64(e.fsize)
	}
	f.offset = uint64(offset)
	return offset, nil
}

// Write appends data at the end of the file. A partial final block is
// read-modified-written through the scratch buffer; the superblock is
// persisted before returning. Writes that would cross the next slot's
// region are rejected without touching the disk.
func (f *file) Write(data []byte) (int, error) {
	b := f.bf
	e := &b.sb.entries[f.pos]
	end := e.start + int64((e.fsize+uint64(len(data))+constant.BlockSize-1)/constant.BlockSize)
	if end > b.slotLimit(f.pos) {
		return 0, errmsg.OutOfSpace
	}
	for p := 0; p < len(data); {
		from := int(e.fsize % constant.BlockSize)
		bn := e.start + int64(e.fsize/constant.BlockSize)
		if from != 0 {
			if err := b.readBlocks(bn, b.dbuf[:constant.BlockSize]); err != nil {
				return p, err
			}
		}
		n := len(b.dbuf) - from
		if r := len(data) - p; r < n {
			n = r
		}
		copy(b.dbuf[from:], data[p:p+n])
		cnt := (from + n + constant.BlockSize - 1) / constant.BlockSize
		if err := b.writeBlocks(bn, b.dbuf[:cnt*constant.BlockSize]); err != nil {
			return p, err
		}
		p += n
		e.fsize += uint64(n)
	}
	if err := b.writeSuperblock(); err != nil {
		return len(data), err
	}
	return len(data), nil
}

// Read copies up to min(len(buf), fsize-cursor) bytes starting at the
// cursor, advancing it. Returns 0 at end of file.
func (f *file) Read(buf []byte) (int, error) {
	b := f.bf
	e := &b.sb.entries[f.pos]
	p := 0
	for p < len(buf) && f.offset < e.fsize {
		from := int(f.offset % constant.BlockSize)
		bn := e.start + int64(f.offset/constant.BlockSize)
		n := len(b.dbuf) - from
		if r := len(buf) - p; r < n {
			n = r
		}
		if r := int(e.fsize - f.offset); r < n {
			n = r
		}
		cnt := (from + n + constant.BlockSize - 1) / constant.BlockSize
		if err := b.readBlocks(bn, b.dbuf[:cnt*constant.BlockSize]); err != nil {
			return p, err
		}
		copy(buf[p:p+n], b.dbuf[from:from+n])
		p += n
		f.offset += uint64(n)
	}
	return p, nil
}
