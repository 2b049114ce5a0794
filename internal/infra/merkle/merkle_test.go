package merkle

import (
	"bytes"
	"fmt"
	"testing"
)

func testLeaves(t *testing.T, n int) [][]byte {
	t.Helper()
	leaves := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		leaves = append(leaves, LeafHash([]byte(fmt.Sprintf("entry-%d", i))))
	}
	return leaves
}

func TestLeafAndNodeHashDomainSeparation(t *testing.T) {
	data := []byte("payload")
	leaf := LeafHash(data)
	if len(leaf) != HashSize {
		t.Fatalf("leaf hash length = %d, want %d", len(leaf), HashSize)
	}
	// A leaf over (L || R) must differ from the node over L, R.
	left := LeafHash([]byte("left"))
	right := LeafHash([]byte("right"))
	node := NodeHash(left, right)
	concat := append(append([]byte{}, left...), right...)
	if bytes.Equal(node, LeafHash(concat)) {
		t.Fatal("node hash collides with leaf hash over concatenated children")
	}
}

func TestRootSingleLeaf(t *testing.T) {
	leaves := testLeaves(t, 1)
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !bytes.Equal(root, leaves[0]) {
		t.Fatal("root of a single-leaf tree must equal the leaf hash")
	}
}

func TestRootMatchesManualTwoLevelTree(t *testing.T) {
	leaves := testLeaves(t, 4)
	want := NodeHash(NodeHash(leaves[0], leaves[1]), NodeHash(leaves[2], leaves[3]))
	got, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("root mismatch for 4-leaf tree")
	}
}

func TestRootUnbalancedSplit(t *testing.T) {
	// 5 leaves split 4|1 per RFC 6962.
	leaves := testLeaves(t, 5)
	left := NodeHash(NodeHash(leaves[0], leaves[1]), NodeHash(leaves[2], leaves[3]))
	want := NodeHash(left, leaves[4])
	got, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("root mismatch for 5-leaf tree")
	}
}

func TestRootEmptyTree(t *testing.T) {
	if _, err := Root(nil); err != ErrEmptyTree {
		t.Fatalf("err = %v, want ErrEmptyTree", err)
	}
}

func TestRootRejectsBadLeafLength(t *testing.T) {
	if _, err := Root([][]byte{[]byte("short")}); err == nil {
		t.Fatal("expected error for malformed leaf hash")
	}
}

func TestRootStableOverPrefixes(t *testing.T) {
	leaves := testLeaves(t, 16)
	// rootAt(n) must not change as further leaves are appended.
	for n := 1; n <= len(leaves); n++ {
		before, err := RootAt(leaves[:n], n)
		if err != nil {
			t.Fatalf("rootAt(%d): %v", n, err)
		}
		after, err := RootAt(leaves, n)
		if err != nil {
			t.Fatalf("rootAt(%d) over full slice: %v", n, err)
		}
		if !bytes.Equal(before, after) {
			t.Fatalf("rootAt(%d) changed after later appends", n)
		}
	}
}

func TestInclusionProofRoundTripAllIndices(t *testing.T) {
	for size := 1; size <= 17; size++ {
		leaves := testLeaves(t, size)
		root, err := Root(leaves)
		if err != nil {
			t.Fatalf("size %d: root: %v", size, err)
		}
		for index := 0; index < size; index++ {
			path, err := InclusionProof(leaves, index)
			if err != nil {
				t.Fatalf("size %d index %d: proof: %v", size, index, err)
			}
			ok, err := VerifyInclusionProof(leaves[index], index, size, path, root)
			if err != nil {
				t.Fatalf("size %d index %d: verify: %v", size, index, err)
			}
			if !ok {
				t.Fatalf("size %d index %d: valid proof rejected", size, index)
			}
		}
	}
}

func TestInclusionProofLeafIndex2TreeSize5(t *testing.T) {
	leaves := testLeaves(t, 5)
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	path, err := InclusionProof(leaves, 2)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	ok, err := VerifyInclusionProof(leaves[2], 2, 5, path, root)
	if err != nil || !ok {
		t.Fatalf("valid proof rejected: ok=%v err=%v", ok, err)
	}

	// Corrupting any single byte of any sibling hash must fail verification.
	for i := range path {
		for _, bit := range []byte{0x01, 0x80} {
			corrupted := make([][]byte, len(path))
			for j := range path {
				corrupted[j] = append([]byte{}, path[j]...)
			}
			corrupted[i][0] ^= bit
			ok, err := VerifyInclusionProof(leaves[2], 2, 5, corrupted, root)
			if err != nil {
				t.Fatalf("corrupted path %d: unexpected error: %v", i, err)
			}
			if ok {
				t.Fatalf("corrupted path %d accepted", i)
			}
		}
	}
}

func TestInclusionProofWrongLeafFails(t *testing.T) {
	leaves := testLeaves(t, 8)
	root, _ := Root(leaves)
	path, err := InclusionProof(leaves, 3)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	ok, err := VerifyInclusionProof(leaves[4], 3, 8, path, root)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("proof for index 3 accepted with leaf 4's hash")
	}
}

func TestInclusionProofIndexOutOfRange(t *testing.T) {
	leaves := testLeaves(t, 3)
	if _, err := InclusionProof(leaves, 3); err != ErrInvalidIndex {
		t.Fatalf("err = %v, want ErrInvalidIndex", err)
	}
	if _, err := InclusionProof(leaves, -1); err != ErrInvalidIndex {
		t.Fatalf("err = %v, want ErrInvalidIndex", err)
	}
	if _, err := VerifyInclusionProof(leaves[0], 5, 3, nil, leaves[0]); err != ErrInvalidIndex {
		t.Fatalf("verify err = %v, want ErrInvalidIndex", err)
	}
}

func TestInclusionProofTruncatedPath(t *testing.T) {
	leaves := testLeaves(t, 8)
	root, _ := Root(leaves)
	path, err := InclusionProof(leaves, 5)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if _, err := VerifyInclusionProof(leaves[5], 5, 8, path[:len(path)-1], root); err == nil {
		t.Fatal("expected error for truncated audit path")
	}
	extended := append(append([][]byte{}, path...), path[0])
	if ok, err := VerifyInclusionProof(leaves[5], 5, 8, extended, root); err == nil && ok {
		t.Fatal("over-long audit path accepted")
	}
}

func TestConsistencyProofRoundTripAllPairs(t *testing.T) {
	leaves := testLeaves(t, 12)
	for from := 1; from <= len(leaves); from++ {
		oldRoot, err := RootAt(leaves, from)
		if err != nil {
			t.Fatalf("rootAt(%d): %v", from, err)
		}
		for to := from; to <= len(leaves); to++ {
			newRoot, err := RootAt(leaves, to)
			if err != nil {
				t.Fatalf("rootAt(%d): %v", to, err)
			}
			path, err := ConsistencyProof(leaves, from, to)
			if err != nil {
				t.Fatalf("consistency %d->%d: %v", from, to, err)
			}
			ok, err := VerifyConsistencyProof(oldRoot, newRoot, from, to, path)
			if err != nil {
				t.Fatalf("verify %d->%d: %v", from, to, err)
			}
			if !ok {
				t.Fatalf("valid consistency proof %d->%d rejected", from, to)
			}
		}
	}
}

func TestConsistencyProofFrom5To9(t *testing.T) {
	leaves := testLeaves(t, 9)
	oldRoot, _ := RootAt(leaves, 5)
	newRoot, _ := RootAt(leaves, 9)
	path, err := ConsistencyProof(leaves, 5, 9)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	ok, err := VerifyConsistencyProof(oldRoot, newRoot, 5, 9, path)
	if err != nil || !ok {
		t.Fatalf("valid proof rejected: ok=%v err=%v", ok, err)
	}

	// Swapping the two roots must fail.
	ok, err = VerifyConsistencyProof(newRoot, oldRoot, 5, 9, path)
	if err != nil {
		t.Fatalf("swapped roots: unexpected error: %v", err)
	}
	if ok {
		t.Fatal("swapped roots accepted")
	}

	// Corrupting any hash in the path must fail.
	for i := range path {
		corrupted := make([][]byte, len(path))
		for j := range path {
			corrupted[j] = append([]byte{}, path[j]...)
		}
		corrupted[i][HashSize-1] ^= 0xff
		ok, err := VerifyConsistencyProof(oldRoot, newRoot, 5, 9, corrupted)
		if err != nil {
			t.Fatalf("corrupted path %d: unexpected error: %v", i, err)
		}
		if ok {
			t.Fatalf("corrupted consistency path %d accepted", i)
		}
	}
}

func TestConsistencyProofSizeOrderingViolation(t *testing.T) {
	leaves := testLeaves(t, 9)
	if _, err := ConsistencyProof(leaves, 9, 5); err != ErrInvalidSize {
		t.Fatalf("err = %v, want ErrInvalidSize", err)
	}
	oldRoot, _ := RootAt(leaves, 5)
	newRoot, _ := RootAt(leaves, 9)
	if _, err := VerifyConsistencyProof(oldRoot, newRoot, 9, 5, nil); err != ErrInvalidSize {
		t.Fatalf("verify err = %v, want ErrInvalidSize", err)
	}
}

func TestConsistencyProofEqualSizes(t *testing.T) {
	leaves := testLeaves(t, 6)
	root, _ := Root(leaves)
	path, err := ConsistencyProof(leaves, 6, 6)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if len(path) != 0 {
		t.Fatalf("equal-size proof has %d hashes, want 0", len(path))
	}
	ok, err := VerifyConsistencyProof(root, root, 6, 6, path)
	if err != nil || !ok {
		t.Fatalf("equal-size proof rejected: ok=%v err=%v", ok, err)
	}
	other, _ := RootAt(leaves, 5)
	ok, _ = VerifyConsistencyProof(other, root, 6, 6, path)
	if ok {
		t.Fatal("equal-size proof accepted with differing roots")
	}
}

func TestServiceAdapters(t *testing.T) {
	leaves := testLeaves(t, 5)
	root, _ := Root(leaves)
	path, _ := InclusionProof(leaves, 2)
	svc := &Service{}
	ok, err := svc.VerifyInclusionProof(leaves[2], 2, 5, path, root)
	if err != nil || !ok {
		t.Fatalf("service inclusion verify: ok=%v err=%v", ok, err)
	}
	oldRoot, _ := RootAt(leaves, 3)
	cons, _ := ConsistencyProof(leaves, 3, 5)
	ok, err = svc.VerifyConsistencyProof(oldRoot, root, 3, 5, cons)
	if err != nil || !ok {
		t.Fatalf("service consistency verify: ok=%v err=%v", ok, err)
	}
}
