// Package store implements the Relation Store: tuple
// storage keyed by relation identity, with secondary indices built lazily
// on first probe and extended incrementally on insert.
//
// Storage is Badger-backed but relations are of arbitrary arity, and any
// subset of columns can serve as an index's key columns rather than a
// fixed triple ordering. The dictionary of interned constants is the
// transient internal/dict.Dictionary rather than an on-disk table, since
// no state persists across runs. Each relation also keeps a
// hashicorp/golang-lru cache of recent Probe results in front of its
// Badger indices, sized by Config.LRUCacheSize and purged on Insert.
package store

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/duynguyendang/gca-datalog/internal/dict"
	"github.com/duynguyendang/gca-datalog/internal/store/keys"
	"github.com/duynguyendang/gca-datalog/internal/term"
)

// Store owns all tuple storage for the lifetime of one evaluation run. It
// is backed by a single in-memory Badger instance shared by every
// relation handle allocated from it.
type Store struct {
	db   *badger.DB
	dict *dict.Dictionary
	cfg  Config

	nextRelationID atomic.Uint64
}

// Open creates a Store with a fresh in-memory Badger instance.
func Open(cfg Config) (*Store, error) {
	db, err := badger.Open(buildBadgerOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("store: failed to open badger: %w", err)
	}
	return &Store{db: db, dict: dict.NewSized(cfg.LRUCacheSize), cfg: cfg}, nil
}

// Close releases the Store's Badger instance. All Handles allocated from
// this Store become invalid.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dict returns the shared constant dictionary, so that the compiler and
// driver can intern rule constants using the same ID space the store uses.
func (s *Store) Dict() *dict.Dictionary { return s.dict }

// NewRelation allocates a fresh, empty relation for the given schema. Each
// call returns a distinct relation identity even if called twice with the
// same schema name — this is how the driver gets brand-new Delta and
// accumulator-snapshot relations every iteration without ever deleting a
// key from the Store.
func (s *Store) NewRelation(schema term.Schema) *Handle {
	id := s.nextRelationID.Add(1)
	cacheSize := s.cfg.LRUCacheSize
	if cacheSize <= 0 {
		cacheSize = dict.DefaultCacheSize
	}
	probeCache, _ := lru.New[string, []term.Tuple](cacheSize)
	return &Handle{
		store:      s,
		id:         id,
		schema:     schema,
		indices:    make(map[string]*indexInfo),
		probeCache: probeCache,
	}
}

// indexInfo describes one secondary index: colOrder is a permutation of
// column positions with the bound (probed) columns first, in ascending
// column-index order, followed by the remaining columns in ascending
// order. id distinguishes this index's key range from the canonical index
// and any other secondary index on the same relation.
type indexInfo struct {
	id       uint32
	colOrder []int
	boundLen int
}

// Handle is one relation instance: a name-free, versioned slice of tuple
// storage plus the indices built against it. Multiple Handles may share
// the same logical relation name at the engine layer (accumulator,
// previous-accumulator, delta) while remaining physically independent
// here, matching the driver's three simultaneously-readable views.
type Handle struct {
	store  *Store
	id     uint64
	schema term.Schema

	mu          sync.RWMutex
	indices     map[string]*indexInfo
	nextIndexID uint32
	size        int

	// probeCache holds the materialized result of a recent indexed Probe,
	// keyed by index ID and bound column values. A join evaluated across
	// several rule variants in the same iteration often re-probes the same
	// relation with the same bound prefix; this cache turns those repeats
	// into a map lookup instead of a fresh Badger range scan. Insert
	// purges it, since a new tuple can join an already-cached result set.
	probeCache *lru.Cache[string, []term.Tuple]
}

// Schema returns the relation's schema.
func (h *Handle) Schema() term.Schema { return h.schema }

func (h *Handle) encode(t term.Tuple) []uint64 {
	ids := make([]uint64, len(t))
	for i, c := range t {
		ids[i] = h.store.dict.GetOrCreateID(c)
	}
	return ids
}

func (h *Handle) decode(ids []uint64) (term.Tuple, error) {
	t := make(term.Tuple, len(ids))
	for i, id := range ids {
		c, err := h.store.dict.GetConstant(id)
		if err != nil {
			return nil, err
		}
		t[i] = c
	}
	return t, nil
}

// Insert adds tuple t to the relation, returning whether it was new.
// Inserting the same tuple twice is a no-op the second time.
func (h *Handle) Insert(t term.Tuple) (bool, error) {
	if err := h.schema.Validate(t); err != nil {
		return false, err
	}
	ids := h.encode(t)
	canonicalKey := keys.EncodeKey(h.id, keys.CanonicalIndex, ids)

	h.mu.Lock()
	defer h.mu.Unlock()

	isNew := false
	err := h.store.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(canonicalKey)
		if err == nil {
			return nil // already present
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		isNew = true
		if err := txn.Set(canonicalKey, nil); err != nil {
			return err
		}
		for _, idx := range h.indices {
			if err := txn.Set(h.indexKey(idx, ids), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if isNew {
		h.size++
		h.probeCache.Purge()
	}
	return isNew, nil
}

// Contains reports whether t is present in the relation.
func (h *Handle) Contains(t term.Tuple) (bool, error) {
	if err := h.schema.Validate(t); err != nil {
		return false, err
	}
	ids := h.encode(t)
	key := keys.EncodeKey(h.id, keys.CanonicalIndex, ids)

	found := false
	err := h.store.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Size returns the number of tuples currently in the relation.
func (h *Handle) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

func (h *Handle) indexKey(idx *indexInfo, ids []uint64) []byte {
	reordered := make([]uint64, len(ids))
	for i, col := range idx.colOrder {
		reordered[i] = ids[col]
	}
	return keys.EncodeKey(h.id, idx.id, reordered)
}

// Scan returns a finite, order-unspecified iterator over every tuple in
// the relation.
func (h *Handle) Scan() iter.Seq2[term.Tuple, error] {
	return h.ScanContext(context.Background())
}

// ScanContext is Scan with cancellation support.
func (h *Handle) ScanContext(ctx context.Context) iter.Seq2[term.Tuple, error] {
	return func(yield func(term.Tuple, error) bool) {
		prefix := keys.RelationPrefix(h.id, keys.CanonicalIndex)
		txn := h.store.db.NewTransaction(false)
		defer txn.Discard()

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			default:
			}
			ids := keys.DecodeColumns(it.Item().KeyCopy(nil), h.schema.Arity())
			t, err := h.decode(ids)
			if !yield(t, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// signature canonicalizes a set of column positions into a stable map key
// and returns the sorted positions alongside it, so a probe for {2,0} and
// a probe for {0,2} share one physical index.
func signature(cols []int) (string, []int) {
	sorted := append([]int(nil), cols...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ","), sorted
}

// ensureIndex returns the indexInfo for the given column set, building and
// backfilling it from the canonical index on first use.
func (h *Handle) ensureIndex(sortedCols []int, sig string) (*indexInfo, error) {
	h.mu.RLock()
	if idx, ok := h.indices[sig]; ok {
		h.mu.RUnlock()
		return idx, nil
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if idx, ok := h.indices[sig]; ok {
		return idx, nil
	}

	arity := h.schema.Arity()
	bound := map[int]bool{}
	colOrder := append([]int(nil), sortedCols...)
	for _, c := range sortedCols {
		bound[c] = true
	}
	for c := 0; c < arity; c++ {
		if !bound[c] {
			colOrder = append(colOrder, c)
		}
	}

	h.nextIndexID++
	idx := &indexInfo{id: h.nextIndexID, colOrder: colOrder, boundLen: len(sortedCols)}

	// Backfill from the canonical index.
	prefix := keys.RelationPrefix(h.id, keys.CanonicalIndex)
	err := h.store.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids := keys.DecodeColumns(it.Item().KeyCopy(nil), arity)
			if err := txn.Set(h.indexKey(idx, ids), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.indices[sig] = idx
	return idx, nil
}

// Probe returns a finite iterator over tuples whose values at keyCols
// equal keyValues, answered in time proportional to the matching tuple
// count plus a constant per lookup.
func (h *Handle) Probe(keyCols []int, keyValues term.Tuple) iter.Seq2[term.Tuple, error] {
	return h.ProbeContext(context.Background(), keyCols, keyValues)
}

// ProbeContext is Probe with cancellation support.
func (h *Handle) ProbeContext(ctx context.Context, keyCols []int, keyValues term.Tuple) iter.Seq2[term.Tuple, error] {
	return func(yield func(term.Tuple, error) bool) {
		if len(keyCols) != len(keyValues) {
			yield(nil, fmt.Errorf("store: probe key columns/values length mismatch"))
			return
		}
		if len(keyCols) == 0 {
			for t, err := range h.ScanContext(ctx) {
				if !yield(t, err) || err != nil {
					return
				}
			}
			return
		}

		sig, sorted := signature(keyCols)
		idx, err := h.ensureIndex(sorted, sig)
		if err != nil {
			yield(nil, err)
			return
		}

		// Reorder keyValues to match the sorted column order used by the index.
		valueByCol := make(map[int]term.Constant, len(keyCols))
		for i, c := range keyCols {
			valueByCol[c] = keyValues[i]
		}
		sortedValues := make(term.Tuple, len(sorted))
		for i, c := range sorted {
			sortedValues[i] = valueByCol[c]
		}
		boundIDs := h.encode(sortedValues)
		cacheKey := probeCacheKey(idx.id, boundIDs)

		if cached, ok := h.probeCache.Get(cacheKey); ok {
			for _, t := range cached {
				select {
				case <-ctx.Done():
					yield(nil, ctx.Err())
					return
				default:
				}
				if !yield(t, nil) {
					return
				}
			}
			return
		}

		matches, err := h.scanIndex(ctx, idx, keys.EncodePrefix(h.id, idx.id, boundIDs))
		if err != nil {
			yield(nil, err)
			return
		}
		h.probeCache.Add(cacheKey, matches)
		for _, t := range matches {
			if !yield(t, nil) {
				return
			}
		}
	}
}

// scanIndex materializes every tuple stored under idx matching prefix, so
// the result can be cached and replayed for a later Probe with the same
// bound values without touching Badger again.
func (h *Handle) scanIndex(ctx context.Context, idx *indexInfo, prefix []byte) ([]term.Tuple, error) {
	txn := h.store.db.NewTransaction(false)
	defer txn.Discard()
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	arity := h.schema.Arity()
	var matches []term.Tuple
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		permuted := keys.DecodeColumns(it.Item().KeyCopy(nil), arity)
		ids := make([]uint64, arity)
		for i, col := range idx.colOrder {
			ids[col] = permuted[i]
		}
		t, err := h.decode(ids)
		if err != nil {
			return nil, err
		}
		matches = append(matches, t)
	}
	return matches, nil
}

// probeCacheKey builds a cache key from an index ID and its bound column
// IDs, so probes with the same index and the same bound values (but
// possibly reordered original keyCols/keyValues) always hit.
func probeCacheKey(indexID uint32, boundIDs []uint64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", indexID)
	for _, id := range boundIDs {
		b.WriteByte('|')
		fmt.Fprintf(&b, "%d", id)
	}
	return b.String()
}

// BulkMerge inserts every tuple of src into h, reporting the net number of
// tuples that were actually new.
func (h *Handle) BulkMerge(src *Handle) (int, error) {
	added := 0
	for t, err := range src.Scan() {
		if err != nil {
			return added, err
		}
		isNew, err := h.Insert(t)
		if err != nil {
			return added, err
		}
		if isNew {
			added++
		}
	}
	return added, nil
}

// Empty reports whether the relation currently holds no tuples.
func (h *Handle) Empty() bool { return h.Size() == 0 }
