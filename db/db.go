package db

import (
	"errors"
	"fmt"
	"io"
	"log"
	"minidb/buffer"
	"minidb/catalog"
	"minidb/catalog/db_types"
	"minidb/common"
	"minidb/concurrency"
	"minidb/disk"
	"minidb/disk/structures"
	"minidb/disk/wal"
	"minidb/locker"
	"minidb/transaction"
	"os"
	"path/filepath"
	"time"
)

const (
	// LogFileName is the name of the log in a database directory.
	LogFileName  = "minidb.wal"
	tableFileExt = ".dat"
	loggerPrefix = ">> "
)

// Options configures a database. Zero values fall back to defaults in common.
type Options struct {
	PageSize int
	PoolSize int

	LockMinWait time.Duration
	LockMaxWait time.Duration

	// CheckpointInterval is the period of background checkpoints, a negative value disables them.
	CheckpointInterval time.Duration

	// CompressLogImages makes update records carry snappy compressed page images.
	CompressLogImages bool

	// UseClockReplacer picks second chance eviction instead of LRU.
	UseClockReplacer bool

	// Logger receives database level messages, nothing is logged when it is nil.
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = common.DefaultPageSize
	}
	if o.PoolSize <= 0 {
		o.PoolSize = common.DefaultPoolSize
	}
	if o.LockMinWait <= 0 {
		o.LockMinWait = common.LockMinWait
	}
	if o.LockMaxWait <= o.LockMinWait {
		o.LockMaxWait = o.LockMinWait + (common.LockMaxWait - common.LockMinWait)
	}
	if o.CheckpointInterval == 0 {
		o.CheckpointInterval = common.CheckpointInterval
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, loggerPrefix, 0)
	}
	return o
}

// DB ties tables, buffer pool, lock manager and log of one directory together. Tables have to be opened with
// CreateTable before Recover is called so that the log can find the files its records belong to.
type DB struct {
	dir  string
	opts Options

	Ctl   *catalog.Catalog
	pool  *buffer.BufferPool
	locks *locker.LockManager
	lm    *wal.LogManager
	Tm    *concurrency.TxnManager
	cm    *concurrency.CheckpointManager
	ids   *transaction.Generator

	l *log.Logger
}

// Open opens or creates a database in dir. The log is not recovered until Recover is called, and if a transaction
// begins before that the old log is discarded.
func Open(dir string, opts Options) (*DB, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", disk.ErrStorageIO, err)
	}

	ctl := catalog.NewCatalog()

	var walOpts []wal.Option
	if opts.CompressLogImages {
		walOpts = append(walOpts, wal.WithCompressedImages())
	}
	lm, err := wal.Open(filepath.Join(dir, LogFileName), ctl, walOpts...)
	if err != nil {
		return nil, err
	}

	var poolOpts []buffer.Option
	if opts.UseClockReplacer {
		poolOpts = append(poolOpts, buffer.WithReplacer(buffer.NewClockReplacer(opts.PoolSize)))
	}

	locks := locker.NewLockManager(locker.WithWaitBounds(opts.LockMinWait, opts.LockMaxWait))
	pool := buffer.NewBufferPool(opts.PoolSize, ctl, locks, lm, poolOpts...)
	ids := &transaction.Generator{}

	d := &DB{
		dir:   dir,
		opts:  opts,
		Ctl:   ctl,
		pool:  pool,
		locks: locks,
		lm:    lm,
		Tm:    concurrency.NewTxnManager(pool, lm, ids),
		ids:   ids,
		l:     opts.Logger,
	}

	if opts.CheckpointInterval > 0 {
		d.cm = concurrency.NewCheckpointManager(lm, opts.CheckpointInterval)
	}

	d.l.Printf("opened %s with %d pages of %d bytes\n", dir, opts.PoolSize, opts.PageSize)
	return d, nil
}

// CreateTable opens the heap file of the table in the database directory, creating it if it does not exist.
func (d *DB) CreateTable(name string, desc *structures.TupleDesc) (*disk.HeapFile, error) {
	hf, err := disk.OpenHeapFile(filepath.Join(d.dir, name+tableFileExt), desc, d.opts.PageSize)
	if err != nil {
		return nil, err
	}

	d.Ctl.AddTable(hf, name, "")
	return hf, nil
}

// Recover brings tables to the state of committed transactions found in the log.
func (d *DB) Recover() error {
	if err := d.lm.Recover(); err != nil {
		return fmt.Errorf("failed to recover db: %w", err)
	}

	d.ids.Observe(d.lm.MaxTxnID())
	d.l.Printf("recovered, last transaction id in log is %v\n", d.lm.MaxTxnID())
	d.startCheckpoints()
	return nil
}

// startCheckpoints starts background checkpoints once the old log is either recovered or given up by the first
// transaction, since a checkpoint before that would start the log over.
func (d *DB) startCheckpoints() {
	if d.cm != nil {
		d.cm.Start()
	}
}

func (d *DB) Begin() (transaction.TxnID, error) {
	tid, err := d.Tm.Begin()
	if err != nil {
		return tid, err
	}

	d.startCheckpoints()
	return tid, nil
}

func (d *DB) Commit(tid transaction.TxnID) error {
	return d.Tm.Commit(tid)
}

func (d *DB) Abort(tid transaction.TxnID) error {
	return d.Tm.Abort(tid)
}

// Insert adds a row built from values to the table.
func (d *DB) Insert(tid transaction.TxnID, table string, values ...*db_types.Value) (*structures.Tuple, error) {
	id, err := d.Ctl.GetTableID(table)
	if err != nil {
		return nil, err
	}

	desc, err := d.Ctl.GetTupleDesc(id)
	if err != nil {
		return nil, err
	}

	t, err := structures.NewTuple(desc, values...)
	if err != nil {
		return nil, err
	}

	if _, err := d.pool.InsertTuple(tid, id, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a tuple that was read from its table.
func (d *DB) Delete(tid transaction.TxnID, t *structures.Tuple) error {
	_, err := d.pool.DeleteTuple(tid, t)
	return err
}

// Scan returns every row of the table under shared locks of tid.
func (d *DB) Scan(tid transaction.TxnID, table string) ([]*structures.Tuple, error) {
	id, err := d.Ctl.GetTableID(table)
	if err != nil {
		return nil, err
	}

	file, err := d.Ctl.GetDbFile(id)
	if err != nil {
		return nil, err
	}

	hf, ok := file.(*disk.HeapFile)
	if !ok {
		return nil, fmt.Errorf("%w: table %s", disk.ErrNotHeapPage, table)
	}
	return hf.Scan(tid, d.pool)
}

// Checkpoint takes a checkpoint and truncates the log.
func (d *DB) Checkpoint() error {
	if d.cm != nil {
		return d.cm.TakeCheckpoint()
	}

	if err := d.lm.Checkpoint(); err != nil {
		return err
	}
	return d.lm.Truncate()
}

func (d *DB) Pool() *buffer.BufferPool {
	return d.pool
}

func (d *DB) Log() *wal.LogManager {
	return d.lm
}

// Close stops background checkpoints and closes files without flushing the buffer pool. Changes of transactions
// that are still running are lost, committed ones are already on disk.
func (d *DB) Close() error {
	if d.cm != nil {
		d.cm.Stop()
	}

	err := errors.Join(d.lm.Close(), d.Ctl.Close())
	d.l.Printf("closed %s\n", d.dir)
	return err
}

// Shutdown blocks new transactions, takes a last checkpoint and closes the database.
func (d *DB) Shutdown() error {
	d.Tm.BlockNewTransactions()
	defer d.Tm.ResumeNewTransactions()

	if d.cm != nil {
		d.cm.Stop()
	}

	if actives := d.Tm.ActiveTransactions(); len(actives) > 0 {
		d.l.Printf("shutting down with %d running transactions\n", len(actives))
	}

	err := errors.Join(d.lm.Shutdown(), d.Ctl.Close())
	d.l.Printf("shut down %s\n", d.dir)
	return err
}
