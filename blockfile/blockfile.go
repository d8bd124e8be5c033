package blockfile

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/infinivision/blockkv/constant"
	"github.com/infinivision/blockkv/errmsg"
	"golang.org/x/sys/unix"
)

// New opens the disk image at path, creating it at exactly
// constant.DiskSize bytes when absent. A magic mismatch or format
// rewrites a fresh superblock with both slots unused.
func New(path string, format bool) (*blockFile, error) {
	fd, err := openDevice(path)
	if err != nil {
		return nil, err
	}
	b := &blockFile{
		fd:   fd,
		sbuf: alignedBlocks(1),
		dbuf: alignedBlocks(constant.BufferBlocks),
	}
	if err := b.readBlocks(0, b.sbuf); err != nil {
		unix.Close(fd)
		return nil, err
	}
	b.sb.decode(b.sbuf)
	if b.sb.magic != constant.MagicNumber || format {
		b.sb = superblock{magic: constant.MagicNumber, blocks: constant.BlockCount}
		if err := b.writeSuperblock(); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return b, nil
}

func (b *blockFile) Close() error {
	return unix.Close(b.fd)
}

// Create returns a handle to the named file, claiming the first
// unused slot when the name is new. An existing name is not an error.
func (b *blockFile) Create(name string) (File, error) {
	if len(name) >= constant.MaxNameSize {
		return nil, errmsg.NameTooLong
	}
	if pos := b.lookUp(name); pos != -1 {
		return &file{pos: pos, bf: b}, nil
	}
	pos := -1
	for i := range b.sb.entries {
		if !b.sb.entries[i].used {
			pos = i
			break
		}
	}
	if pos == -1 {
		return nil, errmsg.OutOfSpace
	}
	e := &b.sb.entries[pos]
	e.name = name
	e.used = true
	e.fsize = 0
	if pos == 0 {
		e.start = 1
	} else {
		e.start = int64(b.sb.blocks / 2)
	}
	if err := b.writeSuperblock(); err != nil {
		*e = entry{}
		return nil, err
	}
	return &file{pos: pos, bf: b}, nil
}

func (b *blockFile) Open(name string) (File, error) {
	pos := b.lookUp(name)
	if pos == -1 {
		return nil, errmsg.NotExist
	}
	return &file{pos: pos, bf: b}, nil
}

func (b *blockFile) Remove(name string) error {
	pos := b.lookUp(name)
	if pos == -1 {
		return errmsg.NotExist
	}
	prev := b.sb.entries[pos]
	b.sb.entries[pos] = entry{}
	if err := b.writeSuperblock(); err != nil {
		b.sb.entries[pos] = prev
		return err
	}
	return nil
}

// Rename rewrites the slot's name in place; data blocks are untouched.
func (b *blockFile) Rename(oldName, newName string) error {
	if len(newName) >= constant.MaxNameSize {
		return errmsg.NameTooLong
	}
	pos := b.lookUp(oldName)
	if pos == -1 {
		return errmsg.NotExist
	}
	if b.lookUp(newName) != -1 {
		return errmsg.AlreadyExist
	}
	prev := b.sb.entries[pos].name
	b.sb.entries[pos].name = newName
	if err := b.writeSuperblock(); err != nil {
		b.sb.entries[pos].name = prev
		return err
	}
	return nil
}

func (b *blockFile) lookUp(name string) int {
	for i := range b.sb.entries {
		if e := &b.sb.entries[i]; e.used && e.name == name {
			return i
		}
	}
	return -1
}

// slotLimit returns the first block past the slot's allotted region.
func (b *blockFile) slotLimit(pos int) int64 {
	if pos == 0 {
		return int64(b.sb.blocks / 2)
	}
	return int64(b.sb.blocks)
}

func (b *blockFile) readBlocks(bn int64, buf []byte) error {
	n, err := unix.Pread(b.fd, buf, bn*constant.BlockSize)
	switch {
	case err != nil:
		return err
	case n != len(buf):
		return errmsg.ReadFailed
	}
	return nil
}

func (b *blockFile) writeBlocks(bn int64, buf []byte) error {
	n, err := unix.Pwrite(b.fd, buf, bn*constant.BlockSize)
	switch {
	case err != nil:
		return err
	case n != len(buf):
		return errmsg.WriteFailed
	}
	return nil
}

func (b *blockFile) writeSuperblock() error {
	b.sb.encode(b.sbuf)
	return b.writeBlocks(0, b.sbuf)
}

func (sb *superblock) encode(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint64(buf, sb.magic)
	binary.LittleEndian.PutUint64(buf[8:], sb.blocks)
	for i := range sb.entries {
		o := 16 + i*constant.EntrySize
		e := &sb.entries[i]
		copy(buf[o:o+constant.MaxNameSize-1], e.name)
		if e.used {
			binary.LittleEndian.PutUint32(buf[o+constant.MaxNameSize:], 1)
		}
		binary.LittleEndian.PutUint64(buf[o+constant.MaxNameSize+4:], uint64(e.start))
		binary.LittleEndian.PutUint64(buf[o+constant.MaxNameSize+12:], e.fsize)
	}
}

func (sb *superblock) decode(buf []byte) {
	sb.magic = binary.LittleEndian.Uint64(buf)
	sb.blocks = binary.LittleEndian.Uint64(buf[8:])
	for i := range sb.entries {
		o := 16 + i*constant.EntrySize
		e := &sb.entries[i]
		name := buf[o : o+constant.MaxNameSize]
		if j := bytes.IndexByte(name, 0); j != -1 {
			name = name[:j]
		}
		e.name = string(name)
		e.used = binary.LittleEndian.Uint32(buf[o+constant.MaxNameSize:]) != 0
		e.start = int64(binary.LittleEndian.Uint64(buf[o+constant.MaxNameSize+4:]))
		e.fsize = binary.LittleEndian.Uint64(buf[o+constant.MaxNameSize+12:])
	}
}

func openDevice(path string) (int, error) {
	fd, err := openFile(path)
	if err == unix.ENOENT {
		if err := createFile(path); err != nil {
			return -1, err
		}
		fd, err = openFile(path)
	}
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// openFile opens for direct I/O, falling back to buffered access on
// filesystems that refuse O_DIRECT or O_NOATIME.
func openFile(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_DIRECT|unix.O_NOATIME, 0664)
	switch err {
	case unix.EINVAL, unix.EPERM:
		return unix.Open(path, unix.O_RDWR, 0664)
	}
	return fd, err
}

func createFile(path string) error {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0664)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return unix.Ftruncate(fd, constant.DiskSize)
}

func alignedBlocks(n int) []byte {
	buf := make([]byte, (n+1)*constant.BlockSize)
	off := 0
	if r := int(uintptr(unsafe.Pointer(&buf[0])) % constant.BlockSize); r != 0 {
		off = constant.BlockSize - r
	}
	return buf[off : off+n*constant.BlockSize]
}
