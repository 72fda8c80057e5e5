package storage

import (
	"database/sql"
	"log"
	"sync"

	_ "modernc.org/sqlite"

	"tupledb/pkg/common"
	"tupledb/pkg/key"
)

type Backend interface {
	Write(k key.Key, val common.ValueType) error
	BatchWrite(records []common.Record) error // 批量接口
	Delete(k key.Key) error
	Read(k key.Key) (common.ValueType, bool)
	Scan(start, end key.Key) ([]common.Record, error)
	LoadAll() ([]common.Record, error)
	Close()
	Truncate() error
}

// SQLiteBackend stores records under their raw encoded key bytes. SQLite
// compares BLOBs with memcmp, and the key encoding is order-preserving,
// so range queries over the BLOB primary key return records in true key
// order.
type SQLiteBackend struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteBackend(path string) *SQLiteBackend {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS data (
		key BLOB PRIMARY KEY,
		value BLOB
	);`
	if _, err := db.Exec(query); err != nil {
		log.Fatalf("Failed to init table: %v", err)
	}

	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
	`)
	if err != nil {
		log.Printf("Warning: Failed to set PRAGMA: %v", err)
	}

	return &SQLiteBackend{db: db}
}

func (s *SQLiteBackend) Write(k key.Key, val common.ValueType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO data (key, value) VALUES (?, ?)", k.Raw(), []byte(val))
	return err
}

func (s *SQLiteBackend) BatchWrite(records []common.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO data (key, value) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.Key.Raw(), []byte(rec.Value)); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteBackend) Delete(k key.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM data WHERE key = ?", k.Raw())
	return err
}

func (s *SQLiteBackend) Read(k key.Key) (common.ValueType, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var val []byte
	err := s.db.QueryRow("SELECT value FROM data WHERE key = ?", k.Raw()).Scan(&val)
	if err != nil {
		return nil, false
	}
	return val, true
}

// Scan returns records with start <= key <= end in key order. The ORDER
// BY works on raw bytes, which matches tuple order by construction.
func (s *SQLiteBackend) Scan(start, end key.Key) ([]common.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		"SELECT key, value FROM data WHERE key >= ? AND key <= ? ORDER BY key",
		start.Raw(), end.Raw())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (s *SQLiteBackend) LoadAll() ([]common.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT key, value FROM data ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]common.Record, error) {
	var records []common.Record
	for rows.Next() {
		var kb, val []byte
		if err := rows.Scan(&kb, &val); err != nil {
			return nil, err
		}
		k, err := key.FromBytes(kb)
		if err != nil {
			return nil, err
		}
		records = append(records, common.Record{Key: k, Value: val})
	}
	return records, rows.Err()
}

func (s *SQLiteBackend) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM data")
	return err
}

func (s *SQLiteBackend) Close() {
	s.db.Close()
}
