package membership

import (
	"bytes"
	"fmt"

	"github.com/gossipnetworks/gossamer/src/common"
	"github.com/gossipnetworks/gossamer/src/crypto"
)

const (
	// MerkleBuckets is the fixed number of leaves of the membership merkle
	// tree. Members are assigned to buckets by hashing their address, so two
	// nodes always build trees of identical shape regardless of how many
	// members each knows about.
	MerkleBuckets = 256

	// MerkleDepth is the leaf level of the binary tree: 2^MerkleDepth =
	// MerkleBuckets. Level 0 is the root.
	MerkleDepth = 8
)

// BucketOf returns the merkle bucket a member address belongs to.
func BucketOf(addr string) int {
	return int(common.Hash32([]byte(addr)) % MerkleBuckets)
}

// MerkleTree is a fixed-shape binary hash tree over a membership snapshot.
// Leaf i covers the members whose address hashes into bucket i; its hash is
// computed over the per-entry digests in address order. The tree is rebuilt
// on demand and never persisted.
type MerkleTree struct {
	levels  [][][]byte // levels[0] is the root, levels[MerkleDepth] the leaves
	buckets [][]Update // entries per leaf, sorted by address
}

// BuildMerkleTree constructs the tree from a deterministic snapshot (sorted
// by address, as returned by Table.Snapshot).
func BuildMerkleTree(snapshot []Member) *MerkleTree {
	buckets := make([][]Update, MerkleBuckets)
	for _, m := range snapshot {
		b := BucketOf(m.Addr)
		buckets[b] = append(buckets[b], m.Update())
	}

	levels := make([][][]byte, MerkleDepth+1)

	leaves := make([][]byte, MerkleBuckets)
	for i, entries := range buckets {
		var concat []byte
		for _, u := range entries {
			concat = append(concat, u.Digest()...)
		}
		leaves[i] = crypto.SHA256(concat)
	}
	levels[MerkleDepth] = leaves

	for level := MerkleDepth - 1; level >= 0; level-- {
		width := 1 << uint(level)
		hashes := make([][]byte, width)
		below := levels[level+1]
		for i := 0; i < width; i++ {
			hashes[i] = crypto.SimpleHashFromTwoHashes(below[2*i], below[2*i+1])
		}
		levels[level] = hashes
	}

	return &MerkleTree{
		levels:  levels,
		buckets: buckets,
	}
}

// Root returns the root hash.
func (t *MerkleTree) Root() []byte {
	return t.levels[0][0]
}

// Hashes returns the hashes stored at the given indices of a level. It
// errors on out-of-range coordinates, which callers count as a protocol
// violation.
func (t *MerkleTree) Hashes(level int, indices []int) ([][]byte, error) {
	if level < 0 || level > MerkleDepth {
		return nil, fmt.Errorf("merkle level %d out of range", level)
	}

	width := 1 << uint(level)
	hashes := make([][]byte, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= width {
			return nil, fmt.Errorf("merkle index %d out of range at level %d", idx, level)
		}
		hashes[i] = t.levels[level][idx]
	}

	return hashes, nil
}

// DiffLevel compares remote hashes at (level, indices) with the local tree
// and returns the child coordinates to descend into. At the leaf level it
// returns the divergent bucket indices themselves.
func (t *MerkleTree) DiffLevel(level int, indices []int, remote [][]byte) (childIndices []int, err error) {
	local, err := t.Hashes(level, indices)
	if err != nil {
		return nil, err
	}
	if len(remote) != len(indices) {
		return nil, fmt.Errorf("merkle hash count mismatch: got %d, want %d", len(remote), len(indices))
	}

	for i, idx := range indices {
		if bytes.Equal(local[i], remote[i]) {
			continue
		}
		if level == MerkleDepth {
			childIndices = append(childIndices, idx)
		} else {
			childIndices = append(childIndices, 2*idx, 2*idx+1)
		}
	}

	return childIndices, nil
}

// Bucket returns the entries of leaf i, sorted by address.
func (t *MerkleTree) Bucket(i int) []Update {
	if i < 0 || i >= MerkleBuckets {
		return nil
	}
	return t.buckets[i]
}

// Digests returns addr->digest for every entry living in the given buckets.
// Exchanging digests lets the reconciler transfer exactly the entries that
// differ, independent of total table size.
func (t *MerkleTree) Digests(buckets []int) map[string][]byte {
	digests := make(map[string][]byte)
	for _, b := range buckets {
		for _, u := range t.Bucket(b) {
			digests[u.Addr] = u.Digest()
		}
	}
	return digests
}
