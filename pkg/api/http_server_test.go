package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tupledb/pkg/config"
	"tupledb/pkg/core"
	"tupledb/pkg/key"
)

func newTestServer(t *testing.T) (*Server, *core.Store) {
	t.Helper()
	cfg := &config.Config{
		Index: config.IndexConfig{
			KeySlots: 2,
		},
		Storage: config.StorageConfig{
			Path:                   t.TempDir(),
			WalBufferSize:          8,
			MemTableFlushThreshold: 1000,
			CompactionThreshold:    4,
			WalBatchSize:           4,
		},
		System: config.SystemConfig{
			ShardCount:     1,
			BloomSize:      512,
			BloomFalseProb: 0.01,
		},
	}
	store := core.NewStore(cfg)
	t.Cleanup(store.Close)
	return NewServer(store), store
}

func TestPutAndGetRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	putReq := httptest.NewRequest(http.MethodPost, "/api/put",
		strings.NewReader(`{"key":"1,2","value":"hello"}`))
	putRec := httptest.NewRecorder()
	s.handlePut(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("put expected 200, got %d: %s", putRec.Code, putRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/get?key=1,2", nil)
	getRec := httptest.NewRecorder()
	s.handleGet(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}

	var resp struct {
		Value string `json:"value"`
		Found bool   `json:"found"`
	}
	if err := json.Unmarshal(getRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if !resp.Found || resp.Value != "hello" {
		t.Fatalf("expected found=true value=hello, got %+v", resp)
	}
}

func TestGetMissingKey(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/get?key=9,9", nil)
	rec := httptest.NewRecorder()
	s.handleGet(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetMalformedKey(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/get?key=1,banana", nil)
	rec := httptest.NewRecorder()
	s.handleGet(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed key, got %d", rec.Code)
	}
}

func TestDeleteShadowsValue(t *testing.T) {
	s, store := newTestServer(t)

	k, err := key.Parse("7,7", store.KeySlots())
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if err := store.Put(k, []byte("doomed")); err != nil {
		t.Fatalf("put: %v", err)
	}

	delReq := httptest.NewRequest(http.MethodPost, "/api/delete?key=7,7", nil)
	delRec := httptest.NewRecorder()
	s.handleDelete(delRec, delReq)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete expected 200, got %d", delRec.Code)
	}

	if _, ok := store.Get(k); ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestScanReturnsOrderedRows(t *testing.T) {
	s, store := newTestServer(t)

	for _, tuple := range []string{"1,5", "1,1", "2,0", "0,9"} {
		k, err := key.Parse(tuple, store.KeySlots())
		if err != nil {
			t.Fatalf("parse %q: %v", tuple, err)
		}
		if err := store.Put(k, []byte(tuple)); err != nil {
			t.Fatalf("put %q: %v", tuple, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/scan?start=1,0&end=1,9", nil)
	rec := httptest.NewRecorder()
	s.handleScan(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
		Rows  []struct {
			Value string `json:"value"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode scan response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 rows in [1,0 .. 1,9], got %d", resp.Count)
	}
	if resp.Rows[0].Value != "1,1" || resp.Rows[1].Value != "1,5" {
		t.Fatalf("rows out of key order: %+v", resp.Rows)
	}
}

func TestStatsReportsKeyWidth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.handleStats(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats expected 200, got %d", rec.Code)
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["key_slots"] != float64(2) {
		t.Fatalf("expected key_slots=2, got %v", stats["key_slots"])
	}
	if stats["key_size_bytes"] != float64(16) {
		t.Fatalf("expected key_size_bytes=16, got %v", stats["key_size_bytes"])
	}
}
