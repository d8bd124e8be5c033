package kv

import (
	"encoding/binary"
	"os"

	"github.com/infinivision/blockkv/blockfile"
	"github.com/infinivision/blockkv/constant"
	"github.com/infinivision/blockkv/errmsg"
	"github.com/nnsgmsone/damrey/logger"
)

func DefaultConfig() Config {
	return Config{
		Path:      "blockkv.img",
		LogWriter: os.Stderr,
	}
}

func Open(cfg Config) (*store, error) {
	bf, err := blockfile.New(cfg.Path, cfg.Format)
	if err != nil {
		return nil, err
	}
	s := &store{
		bf:  bf,
		mp:  make(map[string][]byte),
		log: logger.New(cfg.LogWriter, "blockkv"),
	}
	if err := s.recover(); err != nil {
		bf.Close()
		return nil, err
	}
	return s, nil
}

// Close compacts the log and releases the disk image. The compaction
// ordering is close, create staging, snapshot, remove, rename; the
// first failure aborts the swap and is returned, the device is closed
// regardless.
func (s *store) Close() error {
	err := s.compact(false)
	if cerr := s.bf.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *store) Put(k, v []byte) error {
	switch {
	case len(k) == 0:
		return errmsg.KeyIsEmpty
	case len(k) > constant.MaxKeySize:
		return errmsg.KeyTooLong
	case len(v) > constant.MaxValueSize:
		return errmsg.ValTooLong
	}
	if err := appendRecord(s.fp, k, v); err != nil {
		return err
	}
	s.offset += uint64(headerSize + len(k) + len(v))
	s.mp[string(k)] = append([]byte{}, v...)
	return nil
}

// Remove appends a tombstone for a live key. Removing an absent key
// does not touch the disk.
func (s *store) Remove(k []byte) error {
	if len(k) == 0 {
		return errmsg.KeyIsEmpty
	}
	if _, ok := s.mp[string(k)]; !ok {
		return errmsg.NotExist
	}
	if err := appendRecord(s.fp, k, nil); err != nil {
		return err
	}
	s.offset += uint64(headerSize + len(k))
	delete(s.mp, string(k))
	return nil
}

func (s *store) Get(k []byte) ([]byte, error) {
	v, ok := s.mp[string(k)]
	if !ok {
		return nil, errmsg.NotExist
	}
	return append([]byte{}, v...), nil
}

func (s *store) List() [][]byte {
	ks := make([][]byte, 0, len(s.mp))
	for k := range s.mp {
		ks = append(ks, []byte(k))
	}
	return ks
}

func (s *store) Size() int {
	return len(s.mp)
}

// recover binds the active log file and replays it. Exactly one of
// {current, new} survives any prior shutdown or crash: current wins
// when both exist, a lone new is the result of a crash after the old
// log was removed and is renamed back.
func (s *store) recover() error {
	fp, err := s.bf.Open(currentFile)
	switch err {
	case nil:
		if err := s.bf.Remove(stagingFile); err != nil && err != errmsg.NotExist {
			return err
		}
	case errmsg.NotExist:
		nf, nerr := s.bf.Open(stagingFile)
		switch nerr {
		case nil:
			if err := s.bf.Rename(stagingFile, currentFile); err != nil {
				return err
			}
			fp = nf
		case errmsg.NotExist:
			var cerr error
			if fp, cerr = s.bf.Create(currentFile); cerr != nil {
				return cerr
			}
		default:
			return nerr
		}
	default:
		return err
	}
	s.fp = fp
	broken, err := s.replay()
	if err != nil {
		return err
	}
	if broken {
		s.log.Errorf("log replay stopped short at offset %v: compacting\n", s.offset)
		return s.compact(true)
	}
	return nil
}

// replay folds the log into the in-memory map. A short read on header
// or payload, or a header no writer could have produced, marks the
// log broken; everything replayed up to that point is kept.
func (s *store) replay() (bool, error) {
	hdr := make([]byte, headerSize)
	for !s.fp.Eof() {
		n, err := s.fp.Read(hdr)
		if err != nil {
			return false, err
		}
		if n != headerSize {
			return true, nil
		}
		klen := int32(binary.LittleEndian.Uint32(hdr))
		vlen := int32(binary.LittleEndian.Uint32(hdr[4:]))
		if klen <= 0 || klen > constant.MaxKeySize || vlen < 0 || vlen > constant.MaxValueSize {
			return true, nil
		}
		key := make([]byte, klen)
		if n, err := s.fp.Read(key); err != nil {
			return false, err
		} else if n != int(klen) {
			return true, nil
		}
		if vlen > 0 {
			val := make([]byte, vlen)
			if n, err := s.fp.Read(val); err != nil {
				return false, err
			} else if n != int(vlen) {
				return true, nil
			}
			s.mp[string(key)] = val
		} else {
			delete(s.mp, string(key))
		}
		s.offset += uint64(headerSize) + uint64(klen) + uint64(vlen)
	}
	return false, nil
}

// compact snapshots the live map into the staging file and swaps it
// in as the current log. With adopt the staging handle stays bound as
// the active log; otherwise it is closed.
func (s *store) compact(adopt bool) error {
	if err := s.fp.Close(); err != nil {
		return err
	}
	nf, err := s.bf.Create(stagingFile)
	if err != nil {
		return err
	}
	if err := s.saveKV(nf); err != nil {
		return err
	}
	if err := s.bf.Remove(currentFile); err != nil {
		return err
	}
	if err := s.bf.Rename(stagingFile, currentFile); err != nil {
		return err
	}
	if adopt {
		s.fp = nf
		s.offset = nf.Size()
		return nil
	}
	return nf.Close()
}

func (s *store) saveKV(fp blockfile.File) error {
	for k, v := range s.mp {
		if err := appendRecord(fp, []byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

func appendRecord(fp blockfile.File, k, v []byte) error {
	rec := make([]byte, headerSize+len(k)+len(v))
	binary.LittleEndian.PutUint32(rec, uint32(len(k)))
	binary.LittleEndian.PutUint32(rec[4:], uint32(len(v)))
	copy(rec[headerSize:], k)
	copy(rec[headerSize+len(k):], v)
	_, err := fp.Write(rec)
	return err
}
