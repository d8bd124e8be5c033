package errmsg

import "errors"

var (
	NotExist     = errors.New("not exist")
	AlreadyExist = errors.New("already exist")
	ReadFailed   = errors.New("read failed")
	WriteFailed  = errors.New("write failed")
	NameTooLong  = errors.New("name too long")
	KeyIsEmpty   = errors.New("key is empty")
	KeyTooLong   = errors.New("key too long")
	ValTooLong   = errors.New("value too long")
	OutOfSpace   = errors.New("out of space")
	UnknownError = errors.New("unknown error")
)
