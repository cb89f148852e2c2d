package catalog

import (
	"errors"
	"fmt"
	"log"
	"minidb/disk"
	"minidb/disk/pages"
	"minidb/disk/structures"
	"sort"
	"sync"
)

var ErrTableNotFound = errors.New("table not found")

type TableInfo struct {
	Name       string
	PrimaryKey string
	File       disk.DbFile
}

// Catalog keeps the tables of a database. It is owned by the database that created it and handed to the buffer pool
// and the log so that they can find the file a page belongs to.
type Catalog struct {
	tables     map[int32]*TableInfo
	tableNames map[string]int32
	mu         sync.RWMutex
}

func NewCatalog() *Catalog {
	return &Catalog{
		tables:     map[int32]*TableInfo{},
		tableNames: map[string]int32{},
	}
}

// AddTable registers file under name. An existing table with the same name or the same id is replaced.
func (c *Catalog) AddTable(file disk.DbFile, name string, primaryKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if oldID, ok := c.tableNames[name]; ok {
		delete(c.tables, oldID)
	}
	if old, ok := c.tables[file.ID()]; ok {
		delete(c.tableNames, old.Name)
		log.Printf("table %s is replaced by %s\n", old.Name, name)
	}

	c.tables[file.ID()] = &TableInfo{
		Name:       name,
		PrimaryKey: primaryKey,
		File:       file,
	}
	c.tableNames[name] = file.ID()
}

func (c *Catalog) GetTableID(name string) (int32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.tableNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return id, nil
}

func (c *Catalog) GetTable(id int32) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTableNotFound, id)
	}
	return info, nil
}

func (c *Catalog) GetDbFile(id int32) (disk.DbFile, error) {
	info, err := c.GetTable(id)
	if err != nil {
		return nil, err
	}
	return info.File, nil
}

func (c *Catalog) GetTupleDesc(id int32) (*structures.TupleDesc, error) {
	info, err := c.GetTable(id)
	if err != nil {
		return nil, err
	}
	return info.File.Desc(), nil
}

// TableIDs returns ids of all tables in ascending order.
func (c *Catalog) TableIDs() []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]int32, 0, len(c.tables))
	for id := range c.tables {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// WritePage writes p to the file of its table.
func (c *Catalog) WritePage(p pages.Page) error {
	f, err := c.GetDbFile(p.ID().TableID)
	if err != nil {
		return err
	}
	return f.WritePage(p)
}

// Close closes every file and empties the catalog.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, info := range c.tables {
		if err := info.File.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.tables = map[int32]*TableInfo{}
	c.tableNames = map[string]int32{}
	return errors.Join(errs...)
}
