package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tupledb/pkg/common"
	"tupledb/pkg/config"
	"tupledb/pkg/core/memory"
	"tupledb/pkg/core/structure"
	"tupledb/pkg/key"
	"tupledb/pkg/monitor"
	"tupledb/pkg/storage"
	"tupledb/pkg/storage/sstable"
)

type Shard struct {
	id             int
	mutex          sync.RWMutex
	mutableMem     *memory.MemTable
	sstables       []*sstable.SSTable
	bloom          *structure.BloomFilter
	compactionLock sync.Mutex
}

func NewShard(id int, bloomSize uint, bloomP float64) *Shard {
	return &Shard{
		id:         id,
		mutableMem: memory.NewMemTable(32),
		sstables:   make([]*sstable.SSTable, 0),
		bloom:      structure.NewBloomFilter(bloomSize, bloomP),
	}
}

type writeOp struct {
	rec common.Record
	del bool
}

// Store is the index engine: composite keys route to shards by content
// hash, each shard layering a btree memtable over immutable SSTable runs,
// with a SQLite backend absorbing batched write-behind.
type Store struct {
	shards  []*Shard
	backend storage.Backend
	wal     *storage.WAL
	stats   *monitor.WorkloadStats
	hasher  key.Hasher
	writeCh chan writeOp
	closeCh chan struct{}
	wg      sync.WaitGroup
	conf    *config.Config

	// walAppends counts log appends; the persister compares it against
	// its own count of applied ops before truncating the log.
	walAppends uint64
}

func NewStore(cfg *config.Config) *Store {
	if err := os.MkdirAll(cfg.Storage.Path, 0755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	dbPath := filepath.Join(cfg.Storage.Path, "tuple.db")
	walPath := filepath.Join(cfg.Storage.Path, "tuple.wal")

	wal, err := storage.OpenWAL(walPath)
	if err != nil {
		log.Fatalf("Failed to open WAL: %v", err)
	}

	s := &Store{
		backend: storage.NewSQLiteBackend(dbPath),
		wal:     wal,
		stats:   monitor.NewWorkloadStats(),
		writeCh: make(chan writeOp, cfg.Storage.WalBufferSize),
		closeCh: make(chan struct{}),
		shards:  make([]*Shard, cfg.System.ShardCount),
		conf:    cfg,
	}

	for i := 0; i < cfg.System.ShardCount; i++ {
		s.shards[i] = NewShard(i, cfg.System.BloomSize, cfg.System.BloomFalseProb)
	}

	s.restoreSSTables()
	s.recoverFromWAL()
	s.warmBloomFilters()

	s.wg.Add(1)
	go s.backgroundPersist()

	return s
}

// KeySlots returns the composite key width this store was opened with.
func (s *Store) KeySlots() int {
	return s.conf.Index.KeySlots
}

// NewKey returns a zeroed key of the store's configured width, ready for
// the caller to pack columns into.
func (s *Store) NewKey() key.Key {
	return key.New(s.conf.Index.KeySlots)
}

func (s *Store) keySize() int {
	return s.conf.Index.KeySlots * key.SlotSize
}

func (s *Store) checkKey(k key.Key) error {
	if k.Size() != s.keySize() {
		return fmt.Errorf("store: key is %d bytes, store is configured for %d", k.Size(), s.keySize())
	}
	return nil
}

func (s *Store) getShard(k key.Key) *Shard {
	return s.shards[int(s.hasher.Hash(k)%uint64(s.conf.System.ShardCount))]
}

func (s *Store) Put(k key.Key, val common.ValueType) error {
	if err := s.checkKey(k); err != nil {
		return err
	}
	s.stats.RecordWrite()
	atomic.AddUint64(&s.walAppends, 1)
	if err := s.wal.Append(k, val); err != nil {
		atomic.AddUint64(&s.walAppends, ^uint64(0))
		return err
	}
	s.writeCh <- writeOp{rec: common.Record{Key: k.Clone(), Value: val}}

	shard := s.getShard(k)
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	shard.bloom.Add(k)
	shard.mutableMem.Put(k, val)

	if shard.mutableMem.Count() >= s.conf.Storage.MemTableFlushThreshold {
		s.flushShard(shard)
	}
	return nil
}

func (s *Store) Get(k key.Key) (common.ValueType, bool) {
	if s.checkKey(k) != nil {
		return nil, false
	}
	s.stats.RecordRead()
	shard := s.getShard(k)
	shard.mutex.RLock()

	if !shard.bloom.Contains(k) {
		shard.mutex.RUnlock()
		return nil, false
	}
	if item, ok := shard.mutableMem.GetItem(k); ok {
		shard.mutex.RUnlock()
		if item.Tombstone {
			return nil, false
		}
		s.stats.RecordHit()
		return item.Val, true
	}
	for i := len(shard.sstables) - 1; i >= 0; i-- {
		if val, deleted, found := shard.sstables[i].Get(k); found {
			shard.mutex.RUnlock()
			if deleted {
				return nil, false
			}
			return val, true
		}
	}
	shard.mutex.RUnlock()

	if val, found := s.backend.Read(k); found {
		return val, true
	}
	return nil, false
}

func (s *Store) Delete(k key.Key) error {
	if err := s.checkKey(k); err != nil {
		return err
	}
	s.stats.RecordDelete()
	atomic.AddUint64(&s.walAppends, 1)
	if err := s.wal.AppendTombstone(k); err != nil {
		atomic.AddUint64(&s.walAppends, ^uint64(0))
		return err
	}
	s.writeCh <- writeOp{rec: common.Record{Key: k.Clone()}, del: true}

	shard := s.getShard(k)
	shard.mutex.Lock()
	defer shard.mutex.Unlock()

	// The tombstone key must pass the bloom filter on later reads.
	shard.bloom.Add(k)
	shard.mutableMem.Delete(k)
	return nil
}

func (s *Store) flushShard(shard *Shard) {
	count := shard.mutableMem.Count()
	if count < 100 {
		return
	}

	var items []memory.Item
	shard.mutableMem.Iterator(func(item memory.Item) bool {
		items = append(items, item)
		return true
	})

	fileName := fmt.Sprintf("shard-%d-%d.sst", shard.id, time.Now().UnixNano())
	fullPath := filepath.Join(s.conf.Storage.Path, fileName)

	builder, err := sstable.NewBuilder(fullPath, s.keySize())
	if err != nil {
		log.Printf("[Error] Failed to create SSTable: %v", err)
		return
	}
	for _, item := range items {
		if item.Tombstone {
			builder.AddTombstone(item.Key)
		} else {
			builder.Add(item.Key, item.Val)
		}
	}
	builder.Close()

	sst, err := sstable.Open(fullPath)
	if err != nil {
		log.Printf("[Error] Failed to reopen SSTable: %v", err)
		return
	}
	shard.sstables = append(shard.sstables, sst)

	if len(shard.sstables) >= s.conf.Storage.CompactionThreshold {
		go s.compactShard(shard)
	}

	shard.mutableMem = memory.NewMemTable(32)
}

// compactShard merges a shard's runs into one. Iterators are ordered
// oldest to newest; ties on equal keys resolve to the newest run, and
// every run positioned at the emitted key advances together so the
// merged file holds each key exactly once.
func (s *Store) compactShard(shard *Shard) {
	if !shard.compactionLock.TryLock() {
		return
	}
	defer shard.compactionLock.Unlock()

	shard.mutex.RLock()
	inputTables := make([]*sstable.SSTable, len(shard.sstables))
	copy(inputTables, shard.sstables)
	shard.mutex.RUnlock()

	if len(inputTables) < s.conf.Storage.CompactionThreshold {
		return
	}

	var iters []*sstable.Iterator
	for _, t := range inputTables {
		iter := t.NewIterator()
		if iter.Next() {
			iters = append(iters, iter)
		} else {
			iter.Close() // 空文件
		}
	}

	outFileName := fmt.Sprintf("shard-%d-%d-compacted.sst", shard.id, time.Now().UnixNano())
	outPath := filepath.Join(s.conf.Storage.Path, outFileName)
	builder, err := sstable.NewBuilder(outPath, s.keySize())
	if err != nil {
		log.Printf("[Compaction] Failed to create output: %v", err)
		return
	}

	for len(iters) > 0 {
		bestIterIdx := 0
		minKey := iters[0].Key()

		for i, it := range iters[1:] {
			k := it.Key()
			if k.Less(minKey) {
				minKey = k
				bestIterIdx = i + 1
			} else if k.Equal(minKey) {
				bestIterIdx = i + 1
			}
		}

		winner := iters[bestIterIdx]
		if winner.Tombstone() {
			builder.AddTombstone(winner.Key())
		} else {
			builder.Add(winner.Key(), winner.Value())
		}

		// Losing runs holding the same key must advance too, or they
		// would re-emit it behind the winner.
		remaining := iters[:0]
		for _, it := range iters {
			if it.Key().Equal(minKey) {
				if !it.Next() {
					it.Close()
					continue
				}
			}
			remaining = append(remaining, it)
		}
		iters = remaining
	}

	builder.Close()

	newSST, err := sstable.Open(outPath)
	if err != nil {
		return
	}

	shard.mutex.Lock()

	newlyFlushed := shard.sstables[len(inputTables):]

	finalList := []*sstable.SSTable{newSST}
	finalList = append(finalList, newlyFlushed...)

	shard.sstables = finalList
	shard.mutex.Unlock()

	log.Printf("[Compaction] Shard %d: Merged %d -> 1 files. Disk cleaned.", shard.id, len(inputTables))
	for _, old := range inputTables {
		old.Close()             // 关闭文件句柄
		os.Remove(old.Filename) // 删除磁盘文件
	}
}

func (s *Store) backgroundPersist() {
	defer s.wg.Done()
	buffer := make([]writeOp, 0, 500)
	persisted := uint64(0)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		ok := true
		// Puts batch into one transaction; deletes flush the batch first
		// so per-key ordering is preserved.
		batch := make([]common.Record, 0, len(buffer))
		for _, op := range buffer {
			if op.del {
				if len(batch) > 0 {
					if err := s.backend.BatchWrite(batch); err != nil {
						log.Printf("Batch write error: %v", err)
						ok = false
					}
					batch = batch[:0]
				}
				if err := s.backend.Delete(op.rec.Key); err != nil {
					log.Printf("Backend delete error: %v", err)
					ok = false
				}
				continue
			}
			batch = append(batch, op.rec)
		}
		if len(batch) > 0 {
			if err := s.backend.BatchWrite(batch); err != nil {
				log.Printf("Batch write error: %v", err)
				ok = false
			}
		}

		// Truncate only once every appended log record is in the
		// backend. A writer that has appended but not yet enqueued keeps
		// the counts unequal, so its record survives a crash. Backend
		// errors leave the log intact for replay.
		if ok {
			persisted += uint64(len(buffer))
			if persisted == atomic.LoadUint64(&s.walAppends) {
				if err := s.wal.Truncate(); err != nil {
					log.Printf("[WAL] Truncate failed: %v", err)
				}
			}
		}
		buffer = buffer[:0]
	}

	for {
		select {
		case op := <-s.writeCh:
			buffer = append(buffer, op)
			if len(buffer) >= s.conf.Storage.WalBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.closeCh:
			for {
				select {
				case op := <-s.writeCh:
					buffer = append(buffer, op)
					continue
				default:
				}
				break
			}
			flush()
			return
		}
	}
}

func (s *Store) restoreSSTables() {
	log.Println("[TupleDB] Scanning for SSTables...")
	pattern := filepath.Join(s.conf.Storage.Path, "*.sst")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	count := 0
	for _, file := range files {
		baseName := filepath.Base(file)
		parts := strings.Split(baseName, "-")
		if len(parts) < 3 {
			continue
		}
		shardID, _ := strconv.Atoi(parts[1])
		if shardID < 0 || shardID >= len(s.shards) {
			continue
		}

		sst, err := sstable.Open(file)
		if err != nil {
			continue
		}
		if sst.KeySize() != s.keySize() {
			log.Printf("[TupleDB] Skipping %s: key width %d does not match configured %d", baseName, sst.KeySize(), s.keySize())
			sst.Close()
			continue
		}
		s.shards[shardID].sstables = append(s.shards[shardID].sstables, sst)
		count++
	}
	log.Printf("[TupleDB] Restored %d SSTables from disk.", count)
}

// recoverFromWAL replays entries the async persister never reached
// before the last shutdown. Replay stops at the first corrupt record
// since everything after it is suspect.
func (s *Store) recoverFromWAL() {
	it, err := s.wal.NewIterator()
	if err != nil {
		log.Printf("[WAL] Cannot open for replay: %v", err)
		return
	}
	defer it.Close()

	batch := make([]common.Record, 0, 500)
	replayed := 0
	for {
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[WAL] Replay stopped: %v", err)
			break
		}
		if rec.Record.Key.Size() != s.keySize() {
			continue
		}
		if rec.Tombstone {
			if len(batch) > 0 {
				s.backend.BatchWrite(batch)
				batch = batch[:0]
			}
			s.backend.Delete(rec.Record.Key)
		} else {
			batch = append(batch, rec.Record)
		}
		replayed++
	}
	if len(batch) > 0 {
		s.backend.BatchWrite(batch)
	}

	if replayed > 0 {
		log.Printf("[WAL] Replayed %d records into the backend.", replayed)
	}
	if err := s.wal.Truncate(); err != nil {
		log.Printf("[WAL] Truncate after replay failed: %v", err)
	}
}

// warmBloomFilters replays the durable backend so bloom filters cover
// keys persisted in earlier runs.
func (s *Store) warmBloomFilters() {
	records, err := s.backend.LoadAll()
	if err != nil {
		return
	}
	for _, r := range records {
		if r.Key.Size() != s.keySize() {
			continue
		}
		s.getShard(r.Key).bloom.Add(r.Key)
	}
	log.Printf("[TupleDB] Warmed bloom filters with %d persisted keys.", len(records))
}

// Scan merges the memtables, SSTable runs and the backend, newest layer
// winning per key, and returns live records with start <= key <= end in
// ascending key order.
func (s *Store) Scan(start, end key.Key) []common.Record {
	if s.checkKey(start) != nil || s.checkKey(end) != nil {
		return nil
	}

	type layered struct {
		val       common.ValueType
		tombstone bool
	}
	merged := make(map[string]layered)

	// Lowest precedence first: later writes overwrite earlier ones.
	if records, err := s.backend.Scan(start, end); err == nil {
		for _, r := range records {
			merged[string(r.Key.Raw())] = layered{val: r.Value}
		}
	}

	for _, shard := range s.shards {
		shard.mutex.RLock()
		for _, sst := range shard.sstables { // oldest to newest
			it := sst.NewIterator()
			for it.Next() {
				if it.Key().Less(start) {
					continue
				}
				if it.Key().Greater(end) {
					break
				}
				merged[string(it.Key().Raw())] = layered{val: it.Value(), tombstone: it.Tombstone()}
			}
			it.Close()
		}
		for _, item := range shard.mutableMem.Scan(start, end) {
			merged[string(item.Key.Raw())] = layered{val: item.Val, tombstone: item.Tombstone}
		}
		shard.mutex.RUnlock()
	}

	results := make([]common.Record, 0, len(merged))
	for kb, l := range merged {
		if l.tombstone {
			continue
		}
		k, err := key.FromBytes([]byte(kb))
		if err != nil {
			continue
		}
		results = append(results, common.Record{Key: k, Value: l.val})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Key.Less(results[j].Key)
	})
	return results
}

func (s *Store) Close() {
	close(s.closeCh)
	s.wg.Wait()
	s.wal.Close()
	s.backend.Close()
	for _, shard := range s.shards {
		shard.mutex.Lock()
		for _, sst := range shard.sstables {
			sst.Close()
		}
		shard.mutex.Unlock()
	}
}

func (s *Store) Stats() map[string]interface{} {
	totalMem := 0
	totalSST := 0
	for _, sh := range s.shards {
		sh.mutex.RLock()
		totalMem += sh.mutableMem.Count()
		totalSST += len(sh.sstables)
		sh.mutex.RUnlock()
	}
	walSize, _ := s.wal.Size()
	return map[string]interface{}{
		"memtable_record_count": totalMem,
		"sstable_count":         totalSST,
		"shards_active":         s.conf.System.ShardCount,
		"key_slots":             s.conf.Index.KeySlots,
		"key_size_bytes":        s.keySize(),
		"pending_writes":        len(s.writeCh),
		"wal_size_bytes":        walSize,
		"reads_total":           s.stats.Reads(),
		"writes_total":          s.stats.Writes(),
		"deletes_total":         s.stats.Deletes(),
		"rw_ratio":              s.stats.GetReadWriteRatio(),
		"mode":                  "LSM (Composite Keys)",
	}
}

func (s *Store) Reset() error {
	if err := s.backend.Truncate(); err != nil {
		return err
	}
	if err := s.wal.Truncate(); err != nil {
		return err
	}
	files, _ := filepath.Glob(filepath.Join(s.conf.Storage.Path, "*.sst"))
	for _, f := range files {
		os.Remove(f)
	}
	for i := range s.shards {
		s.shards[i].mutex.Lock()
		for _, sst := range s.shards[i].sstables {
			sst.Close()
		}
		s.shards[i].sstables = nil
		s.shards[i].mutableMem = memory.NewMemTable(32)
		s.shards[i].bloom = structure.NewBloomFilter(s.conf.System.BloomSize, s.conf.System.BloomFalseProb)
		s.shards[i].mutex.Unlock()
	}
	return nil
}
