package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var ErrIteratorAtLast = errors.New("iterator is at the last record")

// logIter reads records forward starting from an offset of the log file. It checks that every record points back
// to where it starts.
type logIter struct {
	reader     *bufio.Reader
	serializer *LogRecordSerializer
	offset     int64
}

func newLogIter(f *os.File, start int64, serializer *LogRecordSerializer) *logIter {
	return &logIter{
		reader:     bufio.NewReader(io.NewSectionReader(f, start, math.MaxInt64-start)),
		serializer: serializer,
		offset:     start,
	}
}

// Next returns the next record. At a clean end of log it returns ErrIteratorAtLast and when the last record is
// incomplete it returns ErrShortRead. Offset is left at the start of that record in both cases.
func (l *logIter) Next() (*LogRecord, error) {
	rec, n, err := l.serializer.Deserialize(l.reader)
	if err != nil {
		if err == io.EOF {
			return nil, ErrIteratorAtLast
		}

		return nil, err
	}

	if rec.Offset != l.offset {
		return nil, fmt.Errorf("%w: record at %d points to %d", ErrMalformedLog, l.offset, rec.Offset)
	}

	l.offset += int64(n)
	return rec, nil
}

// Offset is where the next record starts.
func (l *logIter) Offset() int64 {
	return l.offset
}
