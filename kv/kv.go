// KV provides a set of key value operations that implement a b-tree to
// efficiently access the page cache. It understands two kinds of trees: table
// trees, keyed by row id and holding a packed record in the value, and index
// trees, keyed by an indexed column's value and holding the referenced row id
// in the value. Both share the same on-disk page layout; only the page type
// recorded in the header tells them apart.
package kv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chirst/dbm/catalog"
	"github.com/chirst/dbm/pager"
	"github.com/sirupsen/logrus"
)

var errorReservedPage = errors.New("specified a reserved page number")

type KV struct {
	pager   *pager.Pager
	catalog *catalog.Catalog
}

func New(useMemory bool, filename string) (*KV, error) {
	return NewWithCacheSize(useMemory, filename, 0)
}

// NewWithCacheSize is like New but forwards a configured page cache size
// (0 means let pager pick its default) down to the pager layer.
func NewWithCacheSize(useMemory bool, filename string, cacheSize int) (*KV, error) {
	p, err := pager.NewWithCacheSize(useMemory, filename, cacheSize)
	if err != nil {
		return nil, err
	}
	ret := &KV{
		pager:   p,
		catalog: catalog.NewCatalog(),
	}
	if err := ret.ParseSchema(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (kv *KV) GetCatalog() *catalog.Catalog {
	return kv.catalog
}

// Get returns a byte array corresponding to the key and a bool indicating if
// the key was found. The pageNumber has to do with the root page of the
// corresponding table or index. The system catalog uses the page number 1.
func (kv *KV) Get(pageNumber uint16, key []byte) ([]byte, bool, error) {
	if pageNumber == pager.EMPTY_PARENT_PAGE_NUMBER {
		return nil, false, errorReservedPage
	}
	for {
		page := kv.pager.GetPage(pageNumber)
		if page.IsLeaf() {
			b1, b2 := page.GetValue(key)
			return b1, b2, nil
		}
		v, found := page.GetValue(key)
		if !found {
			return nil, false, nil
		}
		pageNumber = binary.LittleEndian.Uint16(v)
	}
}

// Set inserts or updates the value for the given key. isIndex selects which
// of the two leaf/internal type pairs a freshly split node gets stamped with.
func (kv *KV) Set(pageNumber uint16, key, value []byte, isIndex bool) error {
	if pageNumber == pager.EMPTY_PARENT_PAGE_NUMBER {
		return errorReservedPage
	}
	leafPage := kv.getLeafPage(pageNumber, key)
	if leafPage.CanInsertTuple(key, value) {
		leafPage.SetValue(key, value)
		return nil
	}
	leftPage, rightPage := kv.splitPage(leafPage, isIndex)
	insertIntoOne(key, value, leftPage, rightPage)
	hasParent, parentPageNumber := leafPage.GetParentPageNumber()
	if hasParent {
		parentPage := kv.pager.GetPage(parentPageNumber)
		kv.parentInsert(parentPage, leftPage, rightPage, isIndex)
		return nil
	}
	leafPage.SetType(internalType(isIndex))
	leafPage.SetEntries([]pager.PageTuple{
		{
			Key:   leftPage.GetEntries()[0].Key,
			Value: leftPage.GetNumberAsBytes(),
		},
		{
			Key:   rightPage.GetEntries()[0].Key,
			Value: rightPage.GetNumberAsBytes(),
		},
	})
	leftPage.SetParentPageNumber(leafPage.GetNumber())
	rightPage.SetParentPageNumber(leafPage.GetNumber())
	return nil
}

func internalType(isIndex bool) uint16 {
	if isIndex {
		return pager.PAGE_TYPE_INDEX_INTERNAL
	}
	return pager.PAGE_TYPE_TABLE_INTERNAL
}

func leafType(isIndex bool) uint16 {
	if isIndex {
		return pager.PAGE_TYPE_INDEX_LEAF
	}
	return pager.PAGE_TYPE_TABLE_LEAF
}

func insertIntoOne(key, value []byte, lp, rp *pager.Page) {
	rpk := rp.GetEntries()[0].Key
	comp := bytes.Compare(key, rpk)
	if comp == -1 { // key < rpk
		lp.SetEntries(append(lp.GetEntries(), pager.PageTuple{Key: key, Value: value}))
		return
	}
	rp.SetEntries(append(rp.GetEntries(), pager.PageTuple{Key: key, Value: value}))
}

func (kv *KV) getLeafPage(nextPageNumber uint16, key []byte) *pager.Page {
	p := kv.pager.GetPage(nextPageNumber)
	for !p.IsLeaf() {
		nextPage, found := p.GetValue(key)
		if !found {
			return nil
		}
		nextPageNumber = binary.LittleEndian.Uint16(nextPage)
		p = kv.pager.GetPage(nextPageNumber)
	}
	return p
}

func (kv *KV) splitPage(page *pager.Page, isIndex bool) (left, right *pager.Page) {
	entries := page.GetEntries()
	leftPage := kv.pager.NewPage()
	leftPage.SetType(leafType(isIndex))
	leftPage.SetEntries(entries[:len(entries)/2])
	rightPage := kv.pager.NewPage()
	rightPage.SetType(leafType(isIndex))
	rightPage.SetEntries(entries[len(entries)/2:])
	return leftPage, rightPage
}

func (kv *KV) parentInsert(p, l, r *pager.Page, isIndex bool) {
	k1 := l.GetEntries()[0].Key
	v1 := l.GetNumberAsBytes()
	k2 := r.GetEntries()[0].Key
	v2 := r.GetNumberAsBytes()
	tuples := []pager.PageTuple{{Key: k1, Value: v1}, {Key: k2, Value: v2}}
	if p.CanInsertTuples(tuples) {
		p.SetValue(k1, v1)
		p.SetValue(k2, v2)
		l.SetParentPageNumber(p.GetNumber())
		r.SetParentPageNumber(p.GetNumber())
		return
	}
	leftPage, rightPage := kv.splitPage(p, isIndex)
	hasParent, parentPageNumber := p.GetParentPageNumber()
	if hasParent {
		leftPage.SetParentPageNumber(parentPageNumber)
		rightPage.SetParentPageNumber(parentPageNumber)
		parentParent := kv.pager.GetPage(parentPageNumber)
		kv.parentInsert(parentParent, leftPage, rightPage, isIndex)
		return
	}
	// The root node keeps the same page number so the catalog doesn't need
	// updating every time a root node splits.
	p.SetType(internalType(isIndex))
	p.SetEntries([]pager.PageTuple{
		{
			Key:   leftPage.GetEntries()[0].Key,
			Value: leftPage.GetNumberAsBytes(),
		},
		{
			Key:   rightPage.GetEntries()[0].Key,
			Value: rightPage.GetNumberAsBytes(),
		},
	})
	leftPage.SetParentPageNumber(p.GetNumber())
	rightPage.SetParentPageNumber(p.GetNumber())
}

// NewTableBTree creates an empty table tree and returns its root page number.
func (kv *KV) NewTableBTree() int {
	np := kv.pager.NewPage()
	np.SetType(pager.PAGE_TYPE_TABLE_LEAF)
	return int(np.GetNumber())
}

// NewIndexBTree creates an empty index tree and returns its root page number.
func (kv *KV) NewIndexBTree() int {
	np := kv.pager.NewPage()
	np.SetType(pager.PAGE_TYPE_INDEX_LEAF)
	return int(np.GetNumber())
}

func (kv *KV) BeginReadTransaction() {
	kv.pager.BeginRead()
}

func (kv *KV) EndReadTransaction() {
	kv.pager.EndRead()
}

func (kv *KV) BeginWriteTransaction() {
	kv.pager.BeginWrite()
}

func (kv *KV) EndWriteTransaction() error {
	return kv.pager.EndWrite()
}

// NewRowID returns the highest unused key in a table for rootPageNumber. For
// an integer key it is the largest integer key plus one.
func (kv *KV) NewRowID(rootPageNumber int) (int32, error) {
	candidate := kv.pager.GetPage(uint16(rootPageNumber))
	if len(candidate.GetEntries()) == 0 {
		return 1, nil
	}
	for !candidate.IsLeaf() {
		pagePointers := candidate.GetEntries()
		descendingPageNum := pagePointers[len(pagePointers)-1].Value
		candidate = kv.pager.GetPage(binary.LittleEndian.Uint16(descendingPageNum))
	}
	k := candidate.GetEntries()[len(candidate.GetEntries())-1].Key
	return DecodeKey(k) + 1, nil
}

// Cell is one leaf entry of a table or index tree, flattened out of the
// underlying page structure for the vm's cell index.
type Cell struct {
	// Key is the row id for a table cell or the index key for an index cell.
	Key int32
	// Payload is the packed record bytes of a table cell. Empty for index
	// cells.
	Payload []byte
	// PK is the referenced row id of an index cell. Meaningless for table
	// cells.
	PK int32
	// IsIndex distinguishes an index cell (Key/PK) from a table cell
	// (Key/Payload).
	IsIndex bool
}

// AllCells returns every leaf cell reachable from rootPageNumber in ascending
// key order, the flattened view the vm's cell index is built from. Internal
// pages are descended but never surfaced: the cell index only ever holds
// table-leaf and index-leaf cells.
func (kv *KV) AllCells(rootPageNumber int, isIndex bool) ([]Cell, error) {
	return kv.collectCells(uint16(rootPageNumber), isIndex)
}

func (kv *KV) collectCells(pageNumber uint16, isIndex bool) ([]Cell, error) {
	page := kv.pager.GetPage(pageNumber)
	entries := page.GetEntries()
	if page.IsLeaf() {
		cells := make([]Cell, len(entries))
		for i, e := range entries {
			if isIndex {
				cells[i] = Cell{Key: DecodeKey(e.Key), PK: DecodeKey(e.Value), IsIndex: true}
			} else {
				cells[i] = Cell{Key: DecodeKey(e.Key), Payload: e.Value}
			}
		}
		return cells, nil
	}
	cells := []Cell{}
	for _, e := range entries {
		childPageNumber := binary.LittleEndian.Uint16(e.Value)
		childCells, err := kv.collectCells(childPageNumber, isIndex)
		if err != nil {
			return nil, err
		}
		cells = append(cells, childCells...)
	}
	return cells, nil
}

// ParseSchema reloads the catalog from the schema table on page 1.
func (kv *KV) ParseSchema() error {
	c := kv.NewCursor(1)
	exists := c.GotoFirstRecord()
	objs := []catalog.Object{}
	for exists {
		v := c.GetValue()
		o, err := decodeSchemaRow(v, DecodeKey(c.GetKey()))
		if err != nil {
			return fmt.Errorf("error parsing schema row: %w", err)
		}
		objs = append(objs, o)
		exists = c.GotoNext()
	}
	kv.catalog.SetSchema(objs)
	logrus.WithField("objects", len(objs)).Debug("schema reloaded")
	return nil
}

// Cursor is a simple single-leaf-page scanning cursor, used to read the
// schema table. The vm package does not use this type: it builds
// its own cell-index-based cursor model from AllCells, which is able to
// represent a position anywhere in a table rather than just one physical
// page.
type Cursor struct {
	rootPageNumber     int
	currentPageEntries []pager.PageTuple
	currentTupleIndex  int
	pager              *pager.Pager
}

func (kv *KV) NewCursor(rootPageNumber int) *Cursor {
	return &Cursor{
		rootPageNumber: rootPageNumber,
		pager:          kv.pager,
	}
}

// GotoFirstRecord moves the cursor to the first tuple in ascending order. It
// returns true if the table has values, false if the table is empty.
func (c *Cursor) GotoFirstRecord() bool {
	candidatePage := c.pager.GetPage(uint16(c.rootPageNumber))
	if len(candidatePage.GetEntries()) == 0 {
		return false
	}
	for !candidatePage.IsLeaf() {
		pagePointers := candidatePage.GetEntries()
		ascendingPageNum := pagePointers[0].Value
		candidatePage = c.pager.GetPage(binary.LittleEndian.Uint16(ascendingPageNum))
	}
	c.currentPageEntries = candidatePage.GetEntries()
	c.currentTupleIndex = 0
	return true
}

func (c *Cursor) GetKey() []byte {
	return c.currentPageEntries[c.currentTupleIndex].Key
}

func (c *Cursor) GetValue() []byte {
	return c.currentPageEntries[c.currentTupleIndex].Value
}

func (c *Cursor) GotoNext() bool {
	if c.currentTupleIndex+1 <= len(c.currentPageEntries)-1 {
		c.currentTupleIndex += 1
		return true
	}
	return false
}
