package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"tupledb/pkg/common"
	"tupledb/pkg/key"
)

// [CRC32 4B] [Timestamp 8B] [Flags 1B] [KeySize 2B] [ValSize 4B] [Key NB] [Value NB]

const (
	HeaderSize = 4 + 8 + 1 + 2 + 4 // 19 Bytes

	flagTombstone = 0x01
)

// WALRecord is one replayed log entry.
type WALRecord struct {
	Record    common.Record
	Tombstone bool
}

type WAL struct {
	file *os.File
	mu   sync.Mutex
	buf  *bufio.Writer
}

func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &WAL{
		file: f,
		buf:  bufio.NewWriter(f),
	}, nil
}

func (w *WAL) Append(k key.Key, value common.ValueType) error {
	return w.append(k, value, 0)
}

// AppendTombstone logs a deletion.
func (w *WAL) AppendTombstone(k key.Key) error {
	return w.append(k, nil, flagTombstone)
}

func (w *WAL) append(k key.Key, value common.ValueType, flags byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	header := make([]byte, HeaderSize)
	ts := uint64(time.Now().UnixNano())

	binary.LittleEndian.PutUint64(header[4:12], ts)
	header[12] = flags
	binary.LittleEndian.PutUint16(header[13:15], uint16(k.Size()))
	binary.LittleEndian.PutUint32(header[15:19], uint32(len(value)))

	checksum := crc32.NewIEEE()
	checksum.Write(header[12:])
	checksum.Write(k.Raw())
	checksum.Write(value)
	binary.LittleEndian.PutUint32(header[0:4], checksum.Sum32())

	if _, err := w.buf.Write(header); err != nil {
		return err
	}
	if _, err := w.buf.Write(k.Raw()); err != nil {
		return err
	}
	if _, err := w.buf.Write(value); err != nil {
		return err
	}

	return w.buf.Flush()
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Flush()
	return w.file.Sync()
}

func (w *WAL) Close() error {
	w.buf.Flush()
	return w.file.Close()
}

func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	path := w.file.Name()
	if err := w.file.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	return w.file.Sync()
}

func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return 0, err
	}
	st, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

type WALIterator struct {
	reader *bufio.Reader
	file   *os.File
}

func (w *WAL) NewIterator() (*WALIterator, error) {
	f, err := os.Open(w.file.Name())
	if err != nil {
		return nil, err
	}
	return &WALIterator{
		file:   f,
		reader: bufio.NewReader(f),
	}, nil
}

func (it *WALIterator) Next() (WALRecord, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(it.reader, header); err != nil {
		return WALRecord{}, err
	}

	storedCRC := binary.LittleEndian.Uint32(header[0:4])
	flags := header[12]
	keySize := binary.LittleEndian.Uint16(header[13:15])
	valSize := binary.LittleEndian.Uint32(header[15:19])

	keyBytes := make([]byte, keySize)
	if _, err := io.ReadFull(it.reader, keyBytes); err != nil {
		return WALRecord{}, errors.New("wal: corrupted key")
	}

	value := make([]byte, valSize)
	if _, err := io.ReadFull(it.reader, value); err != nil {
		return WALRecord{}, errors.New("wal: corrupted value")
	}

	checksum := crc32.NewIEEE()
	checksum.Write(header[12:])
	checksum.Write(keyBytes)
	checksum.Write(value)
	if checksum.Sum32() != storedCRC {
		return WALRecord{}, errors.New("wal: crc mismatch")
	}

	k, err := key.FromBytes(keyBytes)
	if err != nil {
		return WALRecord{}, err
	}

	return WALRecord{
		Record:    common.Record{Key: k, Value: value},
		Tombstone: flags&flagTombstone != 0,
	}, nil
}

func (it *WALIterator) Close() {
	it.file.Close()
}
