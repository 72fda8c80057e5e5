package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sort"

	"tupledb/pkg/common"
	"tupledb/pkg/key"
)

type SSTable struct {
	Filename     string
	file         *os.File
	keySize      int
	dataEnd      int64
	indexKeys    [][]byte
	indexOffsets []int64
}

// Entry is one record read back from a run.
type Entry struct {
	Key       key.Key
	Value     common.ValueType
	Tombstone bool
}

func Open(filename string) (*SSTable, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := stat.Size()

	if size < FooterSize {
		f.Close()
		return nil, errors.New("sstable: file too small")
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, size-FooterSize); err != nil {
		f.Close()
		return nil, err
	}

	keySize := int(int32(binary.LittleEndian.Uint32(footer[0:4])))
	indexOffset := int64(binary.LittleEndian.Uint64(footer[4:12]))
	magic := int64(binary.LittleEndian.Uint64(footer[12:20]))

	if magic != MagicNumber {
		f.Close()
		return nil, errors.New("sstable: invalid magic number")
	}
	if keySize <= 0 || keySize%key.SlotSize != 0 {
		f.Close()
		return nil, errors.New("sstable: invalid key size")
	}

	if _, err := f.Seek(indexOffset, 0); err != nil {
		f.Close()
		return nil, err
	}

	var count int32
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		f.Close()
		return nil, err
	}

	keys := make([][]byte, count)
	offsets := make([]int64, count)

	for i := 0; i < int(count); i++ {
		kb := make([]byte, keySize)
		if _, err := io.ReadFull(f, kb); err != nil {
			f.Close()
			return nil, err
		}
		var off int64
		if err := binary.Read(f, binary.LittleEndian, &off); err != nil {
			f.Close()
			return nil, err
		}
		keys[i] = kb
		offsets[i] = off
	}

	return &SSTable{
		Filename:     filename,
		file:         f,
		keySize:      keySize,
		dataEnd:      indexOffset,
		indexKeys:    keys,
		indexOffsets: offsets,
	}, nil
}

// KeySize returns the encoded key width this run was built with.
func (t *SSTable) KeySize() int { return t.keySize }

// Get looks k up in the run. found reports whether the run mentions the
// key at all; deleted reports a tombstone.
func (t *SSTable) Get(k key.Key) (val common.ValueType, deleted bool, found bool) {
	target := k.Raw()

	idx := sort.Search(len(t.indexKeys), func(i int) bool {
		return bytes.Compare(t.indexKeys[i], target) > 0
	})

	startIdx := idx - 1
	if startIdx < 0 {
		startIdx = 0
	}
	if len(t.indexOffsets) == 0 {
		return nil, false, false
	}

	offset := t.indexOffsets[startIdx]

	// SectionReader reads at absolute offsets, so concurrent lookups can
	// share the file handle.
	reader := bufio.NewReader(io.NewSectionReader(t.file, offset, t.dataEnd-offset))

	kb := make([]byte, t.keySize)
	for {
		if _, err := io.ReadFull(reader, kb); err != nil {
			return nil, false, false
		}

		var valLen int32
		if err := binary.Read(reader, binary.LittleEndian, &valLen); err != nil {
			return nil, false, false
		}

		cmp := bytes.Compare(kb, target)
		if cmp > 0 {
			// Past the target: keys are sorted, so it is not here.
			return nil, false, false
		}

		if valLen == TombstoneSize {
			if cmp == 0 {
				return nil, true, true
			}
			continue
		}

		if cmp == 0 {
			v := make([]byte, valLen)
			if _, err := io.ReadFull(reader, v); err != nil {
				return nil, false, false
			}
			return v, false, true
		}

		if _, err := reader.Discard(int(valLen)); err != nil {
			return nil, false, false
		}
	}
}

// Scan returns live entries with start <= key <= end.
func (t *SSTable) Scan(start, end key.Key) []Entry {
	var results []Entry
	it := t.NewIterator()
	defer it.Close()
	for it.Next() {
		if it.Key().Less(start) {
			continue
		}
		if it.Key().Greater(end) {
			break
		}
		if !it.Tombstone() {
			results = append(results, Entry{Key: it.Key(), Value: it.Value()})
		}
	}
	return results
}

func (t *SSTable) Close() error {
	return t.file.Close()
}

// Iterator walks all entries of a run in key order, tombstones included.
// It opens its own file handle so concurrent readers do not disturb each
// other's seek position.
type Iterator struct {
	table  *SSTable
	file   *os.File
	reader *bufio.Reader
	entry  Entry
	err    error
}

func (t *SSTable) NewIterator() *Iterator {
	f, err := os.Open(t.Filename)
	if err != nil {
		return &Iterator{table: t, err: err}
	}
	return &Iterator{
		table:  t,
		file:   f,
		reader: bufio.NewReader(io.LimitReader(f, t.dataEnd)),
	}
}

func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}

	kb := make([]byte, it.table.keySize)
	if _, err := io.ReadFull(it.reader, kb); err != nil {
		it.err = err
		return false
	}

	var valLen int32
	if err := binary.Read(it.reader, binary.LittleEndian, &valLen); err != nil {
		it.err = err
		return false
	}

	k, err := key.FromBytes(kb)
	if err != nil {
		it.err = err
		return false
	}

	if valLen == TombstoneSize {
		it.entry = Entry{Key: k, Tombstone: true}
		return true
	}

	v := make([]byte, valLen)
	if _, err := io.ReadFull(it.reader, v); err != nil {
		it.err = err
		return false
	}
	it.entry = Entry{Key: k, Value: v}
	return true
}

func (it *Iterator) Key() key.Key            { return it.entry.Key }
func (it *Iterator) Value() common.ValueType { return it.entry.Value }
func (it *Iterator) Tombstone() bool         { return it.entry.Tombstone }

func (it *Iterator) Close() {
	if it.file != nil {
		it.file.Close()
	}
}
