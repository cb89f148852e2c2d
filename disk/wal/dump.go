package wal

import (
	"errors"
	"fmt"
	"io"
)

// Dump writes a line for every record in the log to w, starting with the checkpoint pointer. A torn record at the
// end is reported but not removed.
func (l *LogManager) Dump(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.force(); err != nil {
		return err
	}

	cpLoc, err := l.readCheckpointPointer()
	if err != nil {
		if errors.Is(err, io.EOF) {
			_, err = fmt.Fprintln(w, "empty log")
		}
		return err
	}
	fmt.Fprintf(w, "checkpoint pointer: %d\n", cpLoc)

	it := newLogIter(l.file, headerSize, l.serializer)
	for {
		rec, err := it.Next()
		if errors.Is(err, ErrIteratorAtLast) {
			break
		}
		if errors.Is(err, ErrShortRead) {
			fmt.Fprintf(w, "%d torn record\n", it.Offset())
			break
		}
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintln(w, rec.String()); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(w, "end of log at %d\n", it.Offset())
	return err
}
