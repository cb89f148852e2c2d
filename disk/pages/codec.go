package pages

import (
	"errors"
	"fmt"
	"minidb/disk/structures"
	"sync"
)

const (
	HeapPageTag uint32 = 1

	HeapPageIDTag uint32 = 1

	// CompressedFlag is set on a page tag in the log when the image bytes are compressed. Registered tags can not
	// use this bit.
	CompressedFlag uint32 = 1 << 31
)

var ErrUnknownPageTag = errors.New("unknown page tag")

// Decoder rebuilds a page from its logged identity and bytes.
type Decoder func(pid structures.PageID, data []byte) (Page, error)

var (
	codecsMu sync.RWMutex
	codecs   = map[uint32]Decoder{}
)

func init() {
	RegisterCodec(HeapPageTag, func(pid structures.PageID, data []byte) (Page, error) {
		return NewSnapshot(pid, HeapPageTag, data), nil
	})
}

// RegisterCodec associates a page tag with its decoder. It panics if the tag is taken, as registering is done at
// package init.
func RegisterCodec(tag uint32, dec Decoder) {
	codecsMu.Lock()
	defer codecsMu.Unlock()

	if tag&CompressedFlag != 0 {
		panic(fmt.Sprintf("page tag %x uses the compression bit", tag))
	}
	if _, ok := codecs[tag]; ok {
		panic(fmt.Sprintf("page tag %d is already registered", tag))
	}
	codecs[tag] = dec
}

func Decode(tag uint32, pid structures.PageID, data []byte) (Page, error) {
	codecsMu.RLock()
	dec, ok := codecs[tag]
	codecsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPageTag, tag)
	}
	return dec(pid, data)
}

// DecodePageID builds a page id out of the fields written by PageID.Serialize.
func DecodePageID(tag uint32, fields []int32) (structures.PageID, error) {
	if tag != HeapPageIDTag || len(fields) != 2 {
		return structures.PageID{}, fmt.Errorf("%w: page id tag %d with %d fields", ErrUnknownPageTag, tag, len(fields))
	}
	return structures.NewPageID(fields[0], fields[1]), nil
}
