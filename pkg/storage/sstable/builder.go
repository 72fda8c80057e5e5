// Package sstable implements immutable sorted runs of composite-key
// records. Every key in a file has the same encoded width, and records
// are laid out in ascending key-byte order, so lookups and merges work
// on raw byte comparison alone.
//
// File layout:
//
//	[key NB] [valLen 4B] [value ...]   repeated, sorted by key
//	index: [count 4B] ([key NB] [offset 8B]) * count
//	footer: [keySize 4B] [indexStart 8B] [magic 8B]
//
// valLen == -1 marks a tombstone and carries no value bytes.
package sstable

import (
	"bufio"
	"encoding/binary"
	"os"

	"tupledb/pkg/common"
	"tupledb/pkg/key"
)

const (
	MagicNumber   = 0x5455504C45444201
	IndexRate     = 100
	TombstoneSize = -1
	FooterSize    = 4 + 8 + 8
)

type Builder struct {
	file         *os.File
	writer       *bufio.Writer
	keySize      int
	offset       int64
	count        int
	indexKeys    [][]byte
	indexOffsets []int64
}

// NewBuilder creates a run for keys of keySize encoded bytes. Add must
// be called in ascending key order.
func NewBuilder(filename string, keySize int) (*Builder, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &Builder{
		file:    f,
		writer:  bufio.NewWriter(f),
		keySize: keySize,
		offset:  0,
	}, nil
}

func (b *Builder) Add(k key.Key, val common.ValueType) error {
	return b.add(k, val, false)
}

// AddTombstone records a deletion marker for k.
func (b *Builder) AddTombstone(k key.Key) error {
	return b.add(k, nil, true)
}

func (b *Builder) add(k key.Key, val common.ValueType, tombstone bool) error {
	if b.count%IndexRate == 0 {
		b.indexKeys = append(b.indexKeys, append([]byte(nil), k.Raw()...))
		b.indexOffsets = append(b.indexOffsets, b.offset)
	}

	if _, err := b.writer.Write(k.Raw()); err != nil {
		return err
	}
	valLen := int32(len(val))
	if tombstone {
		valLen = TombstoneSize
	}
	if err := binary.Write(b.writer, binary.LittleEndian, valLen); err != nil {
		return err
	}
	if !tombstone {
		if _, err := b.writer.Write(val); err != nil {
			return err
		}
	}

	b.offset += int64(b.keySize) + 4 + int64(len(val))
	b.count++
	return nil
}

func (b *Builder) Close() error {
	indexStart := b.offset

	idxCount := int32(len(b.indexKeys))
	if err := binary.Write(b.writer, binary.LittleEndian, idxCount); err != nil {
		return err
	}

	for i := 0; i < len(b.indexKeys); i++ {
		if _, err := b.writer.Write(b.indexKeys[i]); err != nil {
			return err
		}
		if err := binary.Write(b.writer, binary.LittleEndian, b.indexOffsets[i]); err != nil {
			return err
		}
	}

	if err := binary.Write(b.writer, binary.LittleEndian, int32(b.keySize)); err != nil {
		return err
	}
	if err := binary.Write(b.writer, binary.LittleEndian, indexStart); err != nil {
		return err
	}
	magic := int64(MagicNumber)
	if err := binary.Write(b.writer, binary.LittleEndian, magic); err != nil {
		return err
	}

	if err := b.writer.Flush(); err != nil {
		return err
	}
	return b.file.Close()
}
