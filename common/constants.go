package common

import "time"

const (
	// DefaultPageSize is the size of a page on disk and in the buffer pool unless a database is opened with a
	// different one. Tests use smaller pages to get files with few slots.
	DefaultPageSize = 4096

	// DefaultPoolSize is the number of pages a buffer pool caches when no capacity is given.
	DefaultPoolSize = 50

	// LockMinWait and LockMaxWait bound the randomized time a transaction waits for a page lock before it is
	// aborted. Each fetch draws its own bound from [LockMinWait, LockMaxWait).
	LockMinWait = time.Millisecond * 200
	LockMaxWait = time.Millisecond * 1200

	// CheckpointInterval is the default period of the checkpoint routine.
	CheckpointInterval = time.Second * 10
)
