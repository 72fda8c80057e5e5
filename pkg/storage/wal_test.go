package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"tupledb/pkg/key"
)

func walKey(t *testing.T, tuple string) key.Key {
	t.Helper()
	k, err := key.Parse(tuple, 2)
	if err != nil {
		t.Fatalf("parse key %q: %v", tuple, err)
	}
	return k
}

func TestWALAppendIterateAndTruncate(t *testing.T) {
	walPath := filepath.Join(t.TempDir(), "tuple.wal")
	w, err := OpenWAL(walPath)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer w.Close()

	k1 := walKey(t, "1,1")
	k2 := walKey(t, "2,2")

	if err := w.Append(k1, []byte("one")); err != nil {
		t.Fatalf("append key=1,1: %v", err)
	}
	if err := w.Append(k2, []byte("two")); err != nil {
		t.Fatalf("append key=2,2: %v", err)
	}
	if err := w.AppendTombstone(k1); err != nil {
		t.Fatalf("append tombstone: %v", err)
	}

	sizeBefore, err := w.Size()
	if err != nil {
		t.Fatalf("size before truncate: %v", err)
	}
	if sizeBefore <= 0 {
		t.Fatalf("expected wal size > 0 before truncate, got %d", sizeBefore)
	}

	it, err := w.NewIterator()
	if err != nil {
		t.Fatalf("new iterator: %v", err)
	}
	defer it.Close()

	rec1, err := it.Next()
	if err != nil {
		t.Fatalf("read first record: %v", err)
	}
	if !rec1.Record.Key.Equal(k1) || string(rec1.Record.Value) != "one" || rec1.Tombstone {
		t.Fatalf("first record mismatch: %s tombstone=%v", rec1.Record.String(), rec1.Tombstone)
	}
	rec2, err := it.Next()
	if err != nil {
		t.Fatalf("read second record: %v", err)
	}
	if !rec2.Record.Key.Equal(k2) || string(rec2.Record.Value) != "two" {
		t.Fatalf("second record mismatch: %s", rec2.Record.String())
	}
	rec3, err := it.Next()
	if err != nil {
		t.Fatalf("read third record: %v", err)
	}
	if !rec3.Record.Key.Equal(k1) || !rec3.Tombstone {
		t.Fatalf("expected tombstone for key=1,1, got %s tombstone=%v", rec3.Record.String(), rec3.Tombstone)
	}
	if _, err := it.Next(); err != io.EOF {
		t.Fatalf("expected EOF after last record, got %v", err)
	}

	if err := w.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	sizeAfter, err := w.Size()
	if err != nil {
		t.Fatalf("size after truncate: %v", err)
	}
	if sizeAfter != 0 {
		t.Fatalf("expected empty wal after truncate, got %d bytes", sizeAfter)
	}
}

func TestWALDetectsCorruption(t *testing.T) {
	walPath := filepath.Join(t.TempDir(), "tuple.wal")
	w, err := OpenWAL(walPath)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer w.Close()

	if err := w.Append(walKey(t, "3,3"), []byte("payload")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Flip the last value byte on disk; the iterator must refuse the record.
	f, err := os.OpenFile(walPath, os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("reopen wal file: %v", err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, info.Size()-1); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}
	f.Close()

	it, err := w.NewIterator()
	if err != nil {
		t.Fatalf("new iterator: %v", err)
	}
	defer it.Close()
	if _, err := it.Next(); err == nil {
		t.Fatal("expected crc mismatch on corrupted record")
	}
}
