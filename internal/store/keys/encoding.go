// Package keys encodes relation tuples into BadgerDB keys, supporting
// relations of any arity and secondary indices over any subset of
// columns rather than a fixed triple ordering.
package keys

import "encoding/binary"

// Layout of an index key:
//
//	[relationID(8) | indexID(4) | col_0(8) | col_1(8) | ... | col_{n-1}(8)]
//
// relationID identifies the relation (allocated per Handle by the Store's
// relation counter, not by the constant Dictionary); indexID
// identifies which column permutation this key belongs to (0 is always
// the canonical, schema-order index used by scan/size/bulk_merge).
// Columns are encoded BigEndian so that a prefix scan over the first k
// columns of a permutation is a contiguous Badger range.
const (
	relationIDSize = 8
	indexIDSize    = 4
	columnSize     = 8

	// CanonicalIndex is the always-present index over columns in schema
	// order; every tuple is written under it exactly once.
	CanonicalIndex uint32 = 0
)

// KeySize returns the byte length of a fully-bound key for an arity-n
// tuple.
func KeySize(arity int) int {
	return relationIDSize + indexIDSize + arity*columnSize
}

// EncodeKey encodes relationID/indexID and the full, ordered column value
// vector into one Badger key.
func EncodeKey(relationID uint64, indexID uint32, values []uint64) []byte {
	key := make([]byte, KeySize(len(values)))
	binary.BigEndian.PutUint64(key[0:8], relationID)
	binary.BigEndian.PutUint32(key[8:12], indexID)
	off := 12
	for _, v := range values {
		binary.BigEndian.PutUint64(key[off:off+columnSize], v)
		off += columnSize
	}
	return key
}

// EncodePrefix encodes a prefix over the first len(boundValues) columns of
// an index, for a range scan matching all tuples agreeing on those bound
// values.
func EncodePrefix(relationID uint64, indexID uint32, boundValues []uint64) []byte {
	prefix := make([]byte, relationIDSize+indexIDSize+len(boundValues)*columnSize)
	binary.BigEndian.PutUint64(prefix[0:8], relationID)
	binary.BigEndian.PutUint32(prefix[8:12], indexID)
	off := 12
	for _, v := range boundValues {
		binary.BigEndian.PutUint64(prefix[off:off+columnSize], v)
		off += columnSize
	}
	return prefix
}

// RelationPrefix encodes a prefix matching every key of a relation's given
// index, regardless of column values — used for full scans and
// bulk_merge's source-relation traversal.
func RelationPrefix(relationID uint64, indexID uint32) []byte {
	prefix := make([]byte, relationIDSize+indexIDSize)
	binary.BigEndian.PutUint64(prefix[0:8], relationID)
	binary.BigEndian.PutUint32(prefix[8:12], indexID)
	return prefix
}

// DecodeColumns extracts the column values (in the index's own order) from
// a fully-bound key of the given arity.
func DecodeColumns(key []byte, arity int) []uint64 {
	values := make([]uint64, arity)
	off := 12
	for i := 0; i < arity; i++ {
		values[i] = binary.BigEndian.Uint64(key[off : off+columnSize])
		off += columnSize
	}
	return values
}
