package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/golang/snappy"
	"io"
	"minidb/common"
	"minidb/disk/pages"
	"minidb/transaction"
)

var (
	// ErrShortRead is returned when the log ends in the middle of a record, which happens when the process dies
	// while appending.
	ErrShortRead = errors.New("short read")

	// ErrMalformedLog is returned when the log can not be interpreted, a record has an unknown tag or does not
	// point back to its own start.
	ErrMalformedLog = errors.New("malformed log")
)

const (
	// maxImageLen and maxPageIDFields bound lengths read from the log so that garbage does not cause huge allocations.
	maxImageLen     = 1 << 28
	maxPageIDFields = 16
	maxActives      = 1 << 24
)

/*
	Every record is:
	--------------------------------------------------------------
	| type (4) | txn id (8) | ... payload ... | start offset (8) |
	--------------------------------------------------------------

	Update payload is the before image followed by the after image. An image is:
	---------------------------------------------------------------------------------------------------
	| page tag (4) | page id tag (4) | field count (4) | fields (4 each) | length (4) | ... bytes ... |
	---------------------------------------------------------------------------------------------------

	Checkpoint records have all ones as txn id and their payload is:
	---------------------------------------------------------------------------
	| count (4) | txn id (8) | first offset (8) | txn id (8) | first offset (8) | ...
	---------------------------------------------------------------------------
*/

type LogRecordSerializer struct {
	area []byte

	// compress makes serialized images snappy compressed. Deserialize handles both forms regardless.
	compress bool
}

func NewLogRecordSerializer(compress bool) *LogRecordSerializer {
	return &LogRecordSerializer{
		area:     make([]byte, 0, 100),
		compress: compress,
	}
}

// Serialize returns the bytes of r. Returned slice is only valid until the next call.
func (d *LogRecordSerializer) Serialize(r *LogRecord) []byte {
	common.Assert(r.T != TypeInvalid, "tried to serialize invalid log record type")

	d.area = d.area[:0]
	d.area = binary.BigEndian.AppendUint32(d.area, uint32(r.T))
	d.area = binary.BigEndian.AppendUint64(d.area, uint64(r.TxnID))

	switch r.T {
	case TypeUpdate:
		d.area = d.appendImage(d.area, r.Before)
		d.area = d.appendImage(d.area, r.After)
	case TypeCheckpoint:
		d.area = binary.BigEndian.AppendUint32(d.area, uint32(len(r.Actives)))
		for _, active := range r.Actives {
			d.area = binary.BigEndian.AppendUint64(d.area, uint64(active.TxnID))
			d.area = binary.BigEndian.AppendUint64(d.area, uint64(active.FirstOffset))
		}
	}

	d.area = binary.BigEndian.AppendUint64(d.area, uint64(r.Offset))
	return d.area
}

func (d *LogRecordSerializer) appendImage(dest []byte, p pages.Page) []byte {
	tag, data := p.Tag(), p.Data()
	if d.compress {
		tag |= pages.CompressedFlag
		data = snappy.Encode(nil, data)
	}

	fields := p.ID().Serialize()
	dest = binary.BigEndian.AppendUint32(dest, tag)
	dest = binary.BigEndian.AppendUint32(dest, pages.HeapPageIDTag)
	dest = binary.BigEndian.AppendUint32(dest, uint32(len(fields)))
	for _, f := range fields {
		dest = binary.BigEndian.AppendUint32(dest, uint32(f))
	}
	dest = binary.BigEndian.AppendUint32(dest, uint32(len(data)))
	return append(dest, data...)
}

// Deserialize reads a record from src and returns it with the number of bytes read. It returns io.EOF if src is
// at its end before the record starts and ErrShortRead if it ends in the middle of a record.
func (d *LogRecordSerializer) Deserialize(r io.Reader) (*LogRecord, int, error) {
	src := &countingReader{r: r}

	var t uint32
	if err := read(src, &t); err != nil {
		if errors.Is(err, ErrShortRead) && src.total == 0 {
			return nil, 0, io.EOF
		}
		return nil, src.total, err
	}

	var tid uint64
	if err := read(src, &tid); err != nil {
		return nil, src.total, err
	}

	res := &LogRecord{T: LogRecordType(t), TxnID: transaction.TxnID(tid)}
	switch res.T {
	case TypeBegin, TypeCommit, TypeAbort:
	case TypeUpdate:
		before, err := readImage(src)
		if err != nil {
			return nil, src.total, err
		}
		after, err := readImage(src)
		if err != nil {
			return nil, src.total, err
		}
		res.Before, res.After = before, after
	case TypeCheckpoint:
		var count uint32
		if err := read(src, &count); err != nil {
			return nil, src.total, err
		}
		if count > maxActives {
			return nil, src.total, fmt.Errorf("%w: checkpoint with %d actives", ErrMalformedLog, count)
		}

		res.Actives = make([]ActiveTxn, count)
		for i := range res.Actives {
			var id uint64
			var off int64
			if err := read(src, &id); err != nil {
				return nil, src.total, err
			}
			if err := read(src, &off); err != nil {
				return nil, src.total, err
			}
			res.Actives[i] = ActiveTxn{TxnID: transaction.TxnID(id), FirstOffset: off}
		}
	default:
		return nil, src.total, fmt.Errorf("%w: unknown record type %d", ErrMalformedLog, t)
	}

	if err := read(src, &res.Offset); err != nil {
		return nil, src.total, err
	}

	return res, src.total, nil
}

func readImage(src io.Reader) (pages.Page, error) {
	var tag, pidTag, fieldCount uint32
	if err := read(src, &tag); err != nil {
		return nil, err
	}
	if err := read(src, &pidTag); err != nil {
		return nil, err
	}
	if err := read(src, &fieldCount); err != nil {
		return nil, err
	}
	if fieldCount > maxPageIDFields {
		return nil, fmt.Errorf("%w: page id with %d fields", ErrMalformedLog, fieldCount)
	}

	fields := make([]int32, fieldCount)
	if err := read(src, fields); err != nil {
		return nil, err
	}

	var l uint32
	if err := read(src, &l); err != nil {
		return nil, err
	}
	if l > maxImageLen {
		return nil, fmt.Errorf("%w: page image of %d bytes", ErrMalformedLog, l)
	}

	data := make([]byte, l)
	if err := read(src, data); err != nil {
		return nil, err
	}

	if tag&pages.CompressedFlag != 0 {
		tag &^= pages.CompressedFlag
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLog, err)
		}
		data = decoded
	}

	pid, err := pages.DecodePageID(pidTag, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedLog, err)
	}

	p, err := pages.Decode(tag, pid, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedLog, err)
	}
	return p, nil
}

func read(r io.Reader, val any) error {
	if err := binary.Read(r, binary.BigEndian, val); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return ErrShortRead
		}

		return err
	}

	return nil
}

type countingReader struct {
	r     io.Reader
	total int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.total += n
	return n, err
}
