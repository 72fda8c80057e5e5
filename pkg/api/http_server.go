package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"tupledb/pkg/core"
	"tupledb/pkg/key"
)

// Server exposes the store over HTTP for debugging and dashboards. Keys
// are written in tuple text form: comma-separated unsigned slot values,
// e.g. "1,2,3" for a 3-slot key.
type Server struct {
	store *core.Store
}

func NewServer(store *core.Store) *Server {
	return &Server{store: store}
}

func (s *Server) Start(port string) {
	http.HandleFunc("/api/get", s.handleGet)
	http.HandleFunc("/api/put", s.handlePut)
	http.HandleFunc("/api/delete", s.handleDelete)
	http.HandleFunc("/api/scan", s.handleScan)
	http.HandleFunc("/api/stats", s.handleStats)
	http.HandleFunc("/api/reset", s.handleReset)

	log.Printf("[API] Server listening on %s ...", port)
	log.Fatal(http.ListenAndServe(port, nil))
}

// parseKey decodes tuple text into a key of the store's width.
func (s *Server) parseKey(text string) (key.Key, error) {
	if text == "" {
		return key.Key{}, fmt.Errorf("missing key")
	}
	return key.Parse(text, s.store.KeySlots())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	keyStr := r.URL.Query().Get("key")
	k, err := s.parseKey(keyStr)
	if err != nil {
		http.Error(w, "Invalid key: "+err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	val, found := s.store.Get(k)
	duration := time.Since(start)

	if !found {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}

	resp := map[string]interface{}{
		"key":        keyStr,
		"key_hex":    k.String(),
		"value":      string(val),
		"found":      true,
		"latency_ns": duration.Nanoseconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	k, err := s.parseKey(req.Key)
	if err != nil {
		http.Error(w, "Invalid key: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.Put(k, []byte(req.Value)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	k, err := s.parseKey(r.URL.Query().Get("key"))
	if err != nil {
		http.Error(w, "Invalid key: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.Delete(k); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	start, err := s.parseKey(r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "Invalid start key: "+err.Error(), http.StatusBadRequest)
		return
	}
	end, err := s.parseKey(r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, "Invalid end key: "+err.Error(), http.StatusBadRequest)
		return
	}

	records := s.store.Scan(start, end)

	type row struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	rows := make([]row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, row{Key: rec.Key.String(), Value: string(rec.Value)})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count": len(rows),
		"rows":  rows,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")

	stats := s.store.Stats()
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := s.store.Reset(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Database Reset Successful"))
}
