// Command minidb inspects and repairs minidb database directories.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"minidb/catalog"
	"minidb/common"
	"minidb/db"
	"minidb/disk/wal"
)

// CLI defines the command-line interface for minidb.
var CLI struct {
	Verbose bool `short:"v" help:"Log what the storage layer does to stderr"`

	Log   LogGroup   `cmd:"" help:"Write ahead log operations"`
	Table TableGroup `cmd:"" help:"Table operations"`
}

// LogGroup contains log maintenance operations.
type LogGroup struct {
	Dump    LogDumpCmd    `cmd:"" help:"Print every record of a log"`
	Recover LogRecoverCmd `cmd:"" help:"Recover tables of a database from its log"`
}

// TableGroup contains table operations.
type TableGroup struct {
	Scan TableScanCmd `cmd:"" help:"Recover a database and print the rows of a table"`
}

// TableFlags describe the tables of a database since their schemas are not stored on disk.
type TableFlags struct {
	Dir      string   `arg:"" help:"Database directory" type:"existingdir"`
	Tables   []string `name:"table" short:"t" sep:"none" help:"Table as name=schema, e.g. users=id:int,name:char(20)"`
	PageSize int      `name:"page-size" default:"4096" help:"Page size the database was created with"`
}

func (f *TableFlags) open(verbose bool) (*db.DB, error) {
	opts := db.Options{
		PageSize:           f.PageSize,
		CheckpointInterval: -1,
	}
	if verbose {
		opts.Logger = log.New(os.Stderr, ">> ", 0)
	}

	d, err := db.Open(f.Dir, opts)
	if err != nil {
		return nil, err
	}

	for _, table := range f.Tables {
		name, schema, ok := strings.Cut(table, "=")
		if !ok {
			d.Close()
			return nil, fmt.Errorf("table %q should be name=schema", table)
		}

		desc, err := catalog.ParseSchema(schema)
		if err != nil {
			d.Close()
			return nil, err
		}
		if _, err := d.CreateTable(name, desc); err != nil {
			d.Close()
			return nil, err
		}
	}

	if err := d.Recover(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// LogDumpCmd prints a log.
type LogDumpCmd struct {
	Path string `arg:"" help:"Log file or database directory" type:"path"`
}

func (c *LogDumpCmd) Run() error {
	path := c.Path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, db.LogFileName)
	}

	lm, err := wal.Open(path, nil)
	if err != nil {
		return err
	}
	defer lm.Close()

	return lm.Dump(os.Stdout)
}

// LogRecoverCmd recovers a database and leaves a checkpoint behind.
type LogRecoverCmd struct {
	TableFlags `embed:""`
}

func (c *LogRecoverCmd) Run() error {
	d, err := c.open(CLI.Verbose)
	if err != nil {
		return err
	}

	fmt.Printf("recovered %s, log is %s\n", c.Dir, humanize.Bytes(uint64(d.Log().CurrentOffset())))
	return d.Shutdown()
}

// TableScanCmd prints the rows of a table.
type TableScanCmd struct {
	TableFlags `embed:""`
	Name string `name:"name" required:"" help:"Table to print"`
}

func (c *TableScanCmd) Run() error {
	d, err := c.open(CLI.Verbose)
	if err != nil {
		return err
	}
	defer d.Close()

	tid, err := d.Begin()
	if err != nil {
		return err
	}

	tuples, err := d.Scan(tid, c.Name)
	if err != nil {
		common.PanicIfErr(d.Abort(tid))
		return err
	}
	if err := d.Commit(tid); err != nil {
		return err
	}

	for _, t := range tuples {
		fmt.Println(t.String())
	}
	fmt.Printf("%d rows\n", len(tuples))
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("minidb"),
		kong.Description("Inspect and recover minidb databases"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	if !CLI.Verbose {
		log.SetOutput(io.Discard)
	}
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
