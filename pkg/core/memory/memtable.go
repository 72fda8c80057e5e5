package memory

import (
	"sync"

	"github.com/google/btree"

	"tupledb/pkg/common"
	"tupledb/pkg/key"
)

var cmp key.Comparator

type Item struct {
	Key       key.Key
	Val       common.ValueType
	Tombstone bool
}

func (i Item) Less(than btree.Item) bool {
	return cmp.Less(i.Key, than.(Item).Key)
}

type MemTable struct {
	tree *btree.BTree
	lock sync.RWMutex
	size int
}

func NewMemTable(degree int) *MemTable {
	return &MemTable{
		tree: btree.New(degree),
	}
}

func (mt *MemTable) Put(k key.Key, val common.ValueType) {
	mt.lock.Lock()
	defer mt.lock.Unlock()

	item := Item{Key: k.Clone(), Val: val}
	mt.tree.ReplaceOrInsert(item)

	mt.size += k.Size() + len(val)
}

// Delete records a tombstone so the deletion shadows any older value in
// SSTables or the backend.
func (mt *MemTable) Delete(k key.Key) {
	mt.lock.Lock()
	defer mt.lock.Unlock()

	mt.tree.ReplaceOrInsert(Item{Key: k.Clone(), Tombstone: true})
	mt.size += k.Size()
}

// Get returns the live value for k; tombstoned entries read as absent.
// GetItem is the tombstone-aware path.
func (mt *MemTable) Get(k key.Key) (common.ValueType, bool) {
	mt.lock.RLock()
	defer mt.lock.RUnlock()

	res := mt.tree.Get(Item{Key: k})
	if res == nil {
		return nil, false
	}
	item := res.(Item)
	if item.Tombstone {
		return nil, false
	}
	return item.Val, true
}

// GetItem exposes the stored item including its tombstone flag.
func (mt *MemTable) GetItem(k key.Key) (Item, bool) {
	mt.lock.RLock()
	defer mt.lock.RUnlock()

	res := mt.tree.Get(Item{Key: k})
	if res == nil {
		return Item{}, false
	}
	return res.(Item), true
}

func (mt *MemTable) Size() int {
	mt.lock.RLock()
	defer mt.lock.RUnlock()
	return mt.size
}

func (mt *MemTable) Iterator(fn func(item Item) bool) {
	mt.lock.RLock()
	defer mt.lock.RUnlock()

	mt.tree.Ascend(func(i btree.Item) bool {
		return fn(i.(Item))
	})
}

// Scan returns items with start <= key <= end in ascending order,
// tombstones included so callers can shadow older layers.
func (mt *MemTable) Scan(start, end key.Key) []Item {
	mt.lock.RLock()
	defer mt.lock.RUnlock()

	var items []Item
	mt.tree.AscendGreaterOrEqual(Item{Key: start}, func(i btree.Item) bool {
		item := i.(Item)
		if item.Key.Greater(end) {
			return false
		}
		items = append(items, item)
		return true
	})
	return items
}

func (mt *MemTable) Count() int {
	mt.lock.RLock()
	defer mt.lock.RUnlock()
	return mt.tree.Len()
}
