// Package dict interns Datalog constants into dense uint64 IDs for one
// evaluation run with a forward/reverse LRU cache in front of the
// authoritative maps: a run's Herbrand universe is bounded and fully
// described by the Program plus the supplied EDB, so there is nothing to
// persist across runs.
package dict

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

// DefaultCacheSize bounds the forward/reverse LRU caches sitting in front
// of the authoritative maps below. Because the dictionary never evicts its
// authoritative entries, the cache is a pure hot-path optimization.
const DefaultCacheSize = 4096

// key is the map key for a Constant: (Kind, value) so that a Symbol and an
// Integer never collide even if their string forms coincide.
type key struct {
	kind term.Kind
	sym  string
	i    int64
}

func keyOf(c term.Constant) key {
	if c.Kind == term.Integer {
		return key{kind: term.Integer, i: c.Int}
	}
	return key{kind: term.Symbol, sym: c.Sym}
}

// Dictionary interns Constants to uint64 IDs, growing monotonically for
// the lifetime of one run. It is safe for concurrent use.
type Dictionary struct {
	mu       sync.RWMutex
	forward  map[key]uint64
	reverse  []term.Constant // ID i is stored at index i-1; ID 0 is reserved
	fwdCache *lru.Cache[key, uint64]
	revCache *lru.Cache[uint64, term.Constant]
}

// New creates an empty Dictionary with the default cache size.
func New() *Dictionary {
	return NewSized(DefaultCacheSize)
}

// NewSized creates an empty Dictionary whose forward/reverse caches hold
// at most cacheSize entries each, so a caller with its own memory budget
// (internal/store sizes this from Config.LRUCacheSize) doesn't inherit an
// unrelated default.
func NewSized(cacheSize int) *Dictionary {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	fwd, _ := lru.New[key, uint64](cacheSize)
	rev, _ := lru.New[uint64, term.Constant](cacheSize)
	return &Dictionary{
		forward:  make(map[key]uint64),
		reverse:  make([]term.Constant, 0, 1024),
		fwdCache: fwd,
		revCache: rev,
	}
}

// GetOrCreateID returns the stable ID for c, allocating a new one if c has
// not been seen before.
func (d *Dictionary) GetOrCreateID(c term.Constant) uint64 {
	k := keyOf(c)

	if id, ok := d.fwdCache.Get(k); ok {
		return id
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.forward[k]; ok {
		d.fwdCache.Add(k, id)
		return id
	}

	d.reverse = append(d.reverse, c)
	id := uint64(len(d.reverse)) // 1-indexed; 0 is reserved for "unbound"
	d.forward[k] = id
	d.fwdCache.Add(k, id)
	d.revCache.Add(id, c)
	return id
}

// GetIDs interns a batch of constants, returning their IDs in input order.
// Each constant goes through GetOrCreateID, so a cache miss takes the lock
// once per constant.
func (d *Dictionary) GetIDs(cs []term.Constant) []uint64 {
	ids := make([]uint64, len(cs))
	for i, c := range cs {
		ids[i] = d.GetOrCreateID(c)
	}
	return ids
}

// GetID returns the ID for c without creating one; ok is false if c is
// unknown to the dictionary.
func (d *Dictionary) GetID(c term.Constant) (uint64, bool) {
	k := keyOf(c)
	if id, ok := d.fwdCache.Get(k); ok {
		return id, true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.forward[k]
	return id, ok
}

// GetConstant resolves an ID back to its Constant.
func (d *Dictionary) GetConstant(id uint64) (term.Constant, error) {
	if id == 0 {
		return term.Constant{}, fmt.Errorf("dictionary: ID 0 is reserved")
	}
	if c, ok := d.revCache.Get(id); ok {
		return c, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) > len(d.reverse) {
		return term.Constant{}, fmt.Errorf("dictionary: unknown ID %d", id)
	}
	c := d.reverse[id-1]
	d.revCache.Add(id, c)
	return c, nil
}

// Len reports the number of distinct constants interned so far.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.reverse)
}
