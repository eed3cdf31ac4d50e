package store

import "github.com/dgraph-io/badger/v4"

// Config configures the Relation Store's embedded Badger instance. This
// repository always runs Badger in-memory, so only the tuning knobs that
// still matter for a single run are kept.
type Config struct {
	// LRUCacheSize bounds the dictionary's forward/reverse constant caches
	// (internal/dict.NewSized) and each relation's hot-probe result cache
	// (see Handle.probeCache in store.go).
	LRUCacheSize int

	// NumCompactors controls Badger's background compaction parallelism.
	// A semi-naive fixpoint can write many small batches per iteration;
	// a couple of compactors keeps write amplification down without
	// competing with evaluation for CPU.
	NumCompactors int
}

// DefaultConfig returns tuning defaults sized for one evaluation run
// rather than a long-lived, multi-gigabyte server profile.
func DefaultConfig() Config {
	return Config{
		LRUCacheSize:  8192,
		NumCompactors: 2,
	}
}

// buildBadgerOptions converts Config into badger.Options for an in-memory
// database — there is no DataDir, Profile or ReadOnly axis left to vary
// once persistence is off the table.
func buildBadgerOptions(cfg Config) badger.Options {
	opts := badger.DefaultOptions("")
	opts.InMemory = true
	opts.Logger = nil // Badger's own logger is noisy for a short-lived run.
	opts.NumCompactors = cfg.NumCompactors
	return opts
}
