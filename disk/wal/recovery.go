package wal

import (
	"errors"
	"fmt"
	"io"
	"log"
	"minidb/disk/pages"
	"minidb/disk/structures"
	"minidb/transaction"
)

// Rollback writes the before images tid logged back to their files and discards those pages from the buffer pool.
// Only the first image of a page is used since later ones already contain changes of tid.
func (l *LogManager) Rollback(tid transaction.TxnID) error {
	l.pool.Lock()
	defer l.pool.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.rollback(tid)
}

func (l *LogManager) rollback(tid transaction.TxnID) error {
	if err := l.preAppend(); err != nil {
		return err
	}

	first, ok := l.firsts[tid]
	if !ok {
		// nothing is logged for tid
		return nil
	}

	if err := l.force(); err != nil {
		return err
	}

	restored := map[structures.PageID]bool{}
	it := newLogIter(l.file, first, l.serializer)
	for {
		rec, err := it.Next()
		if err != nil {
			if errors.Is(err, ErrIteratorAtLast) {
				return nil
			}
			return fmt.Errorf("rollback of %v: %w", tid, err)
		}

		if rec.T != TypeUpdate || rec.TxnID != tid {
			continue
		}

		pid := rec.Before.ID()
		if restored[pid] {
			continue
		}

		if err := l.stores.WritePage(rec.Before); err != nil {
			return err
		}
		l.pool.DiscardLocked(pid)
		restored[pid] = true
	}
}

// Recover brings table files to a consistent state after a crash. The whole log is scanned: pages touched by
// transactions that did not commit get their first before image back, then pages written by committed transactions
// get their latest after image in log order. An incomplete record at the end is cut off.
func (l *LogManager) Recover() error {
	l.pool.Lock()
	defer l.pool.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recoveryUndecided = false
	if err := l.force(); err != nil {
		return err
	}

	stats, err := l.file.Stat()
	if err != nil {
		return err
	}
	if stats.Size() < headerSize {
		// nothing was ever logged, start a new log
		l.recoveryUndecided = true
		return l.preAppend()
	}

	committed := map[transaction.TxnID]bool{}
	updates := make([]*LogRecord, 0)

	it := newLogIter(l.file, headerSize, l.serializer)
	for {
		rec, err := it.Next()
		if err != nil {
			if errors.Is(err, ErrIteratorAtLast) {
				break
			}
			if errors.Is(err, ErrShortRead) {
				log.Printf("log has a torn record at %d, truncating\n", it.Offset())
				if err := l.cutTail(it.Offset()); err != nil {
					return err
				}
				break
			}
			return fmt.Errorf("recovery: %w", err)
		}

		if rec.TxnID != transaction.CheckpointTxnID && rec.TxnID > l.maxTxnID {
			l.maxTxnID = rec.TxnID
		}

		switch rec.T {
		case TypeCommit:
			committed[rec.TxnID] = true
		case TypeUpdate:
			updates = append(updates, rec)
		}
	}
	l.currentOffset = it.Offset()
	if _, err := l.file.Seek(l.currentOffset, io.SeekStart); err != nil {
		return err
	}
	l.w.Reset(l.file)

	undone := map[structures.PageID]bool{}
	for _, rec := range updates {
		pid := rec.Before.ID()
		if committed[rec.TxnID] || undone[pid] {
			continue
		}

		if err := l.writeRecovered(rec.Before); err != nil {
			return err
		}
		undone[pid] = true
	}

	redone := map[structures.PageID]pages.Page{}
	order := make([]structures.PageID, 0)
	for _, rec := range updates {
		if !committed[rec.TxnID] {
			continue
		}

		pid := rec.After.ID()
		if _, ok := redone[pid]; !ok {
			order = append(order, pid)
		}
		redone[pid] = rec.After
	}
	for _, pid := range order {
		if err := l.writeRecovered(redone[pid]); err != nil {
			return err
		}
	}

	// every transaction in the log is either committed or undone now
	l.firsts = map[transaction.TxnID]int64{}

	log.Printf("recovery is done, %d updates, %d committed transactions, %d pages undone, %d pages redone\n",
		len(updates), len(committed), len(undone), len(redone))
	return nil
}

func (l *LogManager) writeRecovered(p pages.Page) error {
	if err := l.stores.WritePage(p); err != nil {
		return err
	}
	l.pool.DiscardLocked(p.ID())
	return nil
}

// cutTail drops everything starting from off, it is used to get rid of a record that was not completely written.
func (l *LogManager) cutTail(off int64) error {
	if err := l.file.Truncate(off); err != nil {
		return err
	}
	return l.file.Sync()
}
