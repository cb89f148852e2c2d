package wal

import (
	"bufio"
	"errors"
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Truncate drops the part of the log that is no longer needed. After a checkpoint only records of transactions that
// were running at the checkpoint and records after it are needed. Remaining records are copied into a new file with
// their offsets rebased, and the new file replaces the log.
func (l *LogManager) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.preAppend(); err != nil {
		return err
	}
	if err := l.force(); err != nil {
		return err
	}

	cpLoc, err := l.readCheckpointPointer()
	if err != nil {
		return err
	}
	if cpLoc == NoCheckpoint {
		return nil
	}

	cp, err := newLogIter(l.file, cpLoc, l.serializer).Next()
	if err != nil {
		return fmt.Errorf("reading checkpoint at %d: %w", cpLoc, err)
	}
	if cp.T != TypeCheckpoint {
		return fmt.Errorf("%w: checkpoint pointer %d points to a %v record", ErrMalformedLog, cpLoc, cp.T)
	}

	minLoc := cpLoc
	for _, active := range cp.Actives {
		if active.FirstOffset < minLoc {
			minLoc = active.FirstOffset
		}
	}
	if minLoc <= headerSize {
		return nil
	}

	tmpPath := filepath.Join(filepath.Dir(l.path), uuid.New().String()+".log.tmp")
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	newEnd, rebased, err := l.copyFrom(minLoc, tmp)
	if err == nil {
		err = tmp.Sync()
	}
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	old := l.file
	l.file = tmp
	l.w.Reset(tmp)
	if err := old.Close(); err != nil {
		log.Printf("closing truncated log file failed: %v\n", err)
	}

	for tid, first := range l.firsts {
		if newFirst, ok := rebased[first]; ok {
			l.firsts[tid] = newFirst
		} else {
			l.firsts[tid] = first - minLoc + headerSize
		}
	}

	log.Printf("log is truncated from %s to %s\n", humanize.Bytes(uint64(l.currentOffset)), humanize.Bytes(uint64(newEnd)))
	l.currentOffset = newEnd
	return nil
}

// copyFrom writes a log into dest that has every record starting from minLoc. It returns the size of the new log and
// the new offset of each copied record by its old offset.
func (l *LogManager) copyFrom(minLoc int64, dest *os.File) (int64, map[int64]int64, error) {
	w := bufio.NewWriter(dest)
	rebased := map[int64]int64{}

	var header [headerSize]byte
	putOffset(header[:], NoCheckpoint)
	if _, err := w.Write(header[:]); err != nil {
		return 0, nil, err
	}

	newCp := NoCheckpoint
	curr := headerSize
	it := newLogIter(l.file, minLoc, l.serializer)
	for {
		rec, err := it.Next()
		if errors.Is(err, ErrIteratorAtLast) {
			break
		}
		if err != nil {
			return 0, nil, err
		}

		rebased[rec.Offset] = curr
		if rec.T == TypeCheckpoint {
			for i, active := range rec.Actives {
				if newFirst, ok := rebased[active.FirstOffset]; ok {
					rec.Actives[i].FirstOffset = newFirst
				} else {
					rec.Actives[i].FirstOffset = active.FirstOffset - minLoc + headerSize
				}
			}
			newCp = curr
		}

		rec.Offset = curr
		n, err := w.Write(l.serializer.Serialize(rec))
		if err != nil {
			return 0, nil, err
		}
		curr += int64(n)
	}

	if err := w.Flush(); err != nil {
		return 0, nil, err
	}

	putOffset(header[:], newCp)
	if _, err := dest.WriteAt(header[:], 0); err != nil {
		return 0, nil, err
	}

	if _, err := dest.Seek(curr, io.SeekStart); err != nil {
		return 0, nil, err
	}
	return curr, rebased, nil
}
