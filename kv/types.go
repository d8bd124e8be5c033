package kv

import (
	"io"

	"github.com/infinivision/blockkv/blockfile"
	"github.com/nnsgmsone/damrey/logger"
)

const (
	currentFile = "current"
	stagingFile = "new"
)

const (
	headerSize = 8
)

/*
Store is an embedded key-value store persisted on a single disk
image. Mutations append to a redo log replayed at Open; Close
compacts the log into a snapshot of the live map. Store is not
thread-safe; callers must serialize access.
*/
type Store interface {
	Close() error

	Put(k, v []byte) error
	Remove(k []byte) error
	Get(k []byte) ([]byte, error)

	List() [][]byte
	Size() int
}

type Config struct {
	Path      string
	Format    bool
	LogWriter io.Writer
}

type store struct {
	offset uint64 // bytes appended to the active log
	fp     blockfile.File
	bf     blockfile.BlockFile
	mp     map[string][]byte
	log    logger.Log
}
