// Package merkle implements the RFC 6962 Merkle Tree Hash over the log's
// leaf hashes: leaves are hashed with a 0x00 prefix and interior nodes with
// a 0x01 prefix, so a leaf can never be confused with an interior node
// (second-preimage defense).
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

const HashSize = sha256.Size

var (
	ErrEmptyTree      = errors.New("empty merkle tree")
	ErrInvalidHashLen = errors.New("invalid hash length")
	ErrInvalidIndex   = errors.New("invalid leaf index")
	ErrInvalidSize    = errors.New("invalid tree size")
)

// LeafHash computes SHA256(0x00 || data) for one serialized log entry.
func LeafHash(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{0x00})
	hasher.Write(data)
	return hasher.Sum(nil)
}

// NodeHash computes SHA256(0x01 || left || right) for an interior node.
func NodeHash(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte{0x01})
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// Root computes the Merkle Tree Hash over the given leaf hashes. The tree
// over n leaves splits at the largest power of two strictly less than n.
func Root(leaves [][]byte) ([]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	return merkleTreeHash(level)
}

// RootAt computes the root of the prefix tree of the given size.
func RootAt(leaves [][]byte, size int) ([]byte, error) {
	if size <= 0 || size > len(leaves) {
		return nil, ErrInvalidSize
	}
	return Root(leaves[:size])
}

// InclusionProof builds the audit path of sibling hashes from leafIndex to
// the root of the tree over all given leaves, ordered leaf to root.
func InclusionProof(leaves [][]byte, leafIndex int) ([][]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	if leafIndex < 0 || leafIndex >= len(level) {
		return nil, ErrInvalidIndex
	}

	path := make([][]byte, 0)
	if err := inclusionPath(level, leafIndex, &path); err != nil {
		return nil, err
	}
	return path, nil
}

// VerifyInclusionProof recomputes the root from leafHash and the audit path
// and compares it to expectedRoot. Malformed input yields an error; a path
// that does not reconstruct the claimed root yields (false, nil).
func VerifyInclusionProof(leafHash []byte, leafIndex int, treeSize int, path [][]byte, expectedRoot []byte) (bool, error) {
	if treeSize <= 0 {
		return false, ErrInvalidSize
	}
	if leafIndex < 0 || leafIndex >= treeSize {
		return false, ErrInvalidIndex
	}
	if err := validateHash(leafHash); err != nil {
		return false, err
	}
	if err := validateHash(expectedRoot); err != nil {
		return false, err
	}
	for _, p := range path {
		if err := validateHash(p); err != nil {
			return false, err
		}
	}

	root, used, err := inclusionRootFromPath(leafHash, leafIndex, treeSize, path)
	if err != nil {
		return false, err
	}
	if used != len(path) {
		return false, ErrInvalidSize
	}
	return bytes.Equal(root, expectedRoot), nil
}

// ConsistencyProof builds the minimal hash set proving that the tree of
// fromSize is a prefix of the tree of toSize.
func ConsistencyProof(leaves [][]byte, fromSize int, toSize int) ([][]byte, error) {
	if fromSize <= 0 || toSize <= 0 || fromSize > toSize {
		return nil, ErrInvalidSize
	}
	if toSize > len(leaves) {
		return nil, ErrInvalidSize
	}
	level, err := cloneAndValidateLeaves(leaves[:toSize])
	if err != nil {
		return nil, err
	}
	if fromSize == toSize {
		return [][]byte{}, nil
	}
	return consistencyPath(level, fromSize, toSize, true)
}

// VerifyConsistencyProof recomputes both roots from the consistency path and
// compares them against oldRoot and newRoot.
func VerifyConsistencyProof(oldRoot []byte, newRoot []byte, fromSize int, toSize int, path [][]byte) (bool, error) {
	if fromSize <= 0 || toSize <= 0 || fromSize > toSize {
		return false, ErrInvalidSize
	}
	if fromSize == toSize {
		if len(path) != 0 {
			return false, nil
		}
		return bytes.Equal(oldRoot, newRoot), nil
	}
	if err := validateHash(oldRoot); err != nil {
		return false, err
	}
	if err := validateHash(newRoot); err != nil {
		return false, err
	}
	for _, p := range path {
		if err := validateHash(p); err != nil {
			return false, err
		}
	}
	if len(path) == 0 {
		return false, ErrInvalidSize
	}

	oldCandidate, newCandidate, used, err := consistencyRoots(fromSize, toSize, path, true, oldRoot)
	if err != nil {
		return false, err
	}
	if used != len(path) {
		return false, ErrInvalidSize
	}
	return bytes.Equal(oldCandidate, oldRoot) && bytes.Equal(newCandidate, newRoot), nil
}

func merkleTreeHash(leaves [][]byte) ([]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	if len(leaves) == 1 {
		return cloneHash(leaves[0]), nil
	}
	k := largestPowerOfTwoLessThan(len(leaves))
	left, err := merkleTreeHash(leaves[:k])
	if err != nil {
		return nil, err
	}
	right, err := merkleTreeHash(leaves[k:])
	if err != nil {
		return nil, err
	}
	return NodeHash(left, right), nil
}

func inclusionPath(leaves [][]byte, leafIndex int, path *[][]byte) error {
	if len(leaves) == 1 {
		return nil
	}
	k := largestPowerOfTwoLessThan(len(leaves))
	if leafIndex < k {
		if err := inclusionPath(leaves[:k], leafIndex, path); err != nil {
			return err
		}
		rightRoot, err := merkleTreeHash(leaves[k:])
		if err != nil {
			return err
		}
		*path = append(*path, rightRoot)
		return nil
	}
	if err := inclusionPath(leaves[k:], leafIndex-k, path); err != nil {
		return err
	}
	leftRoot, err := merkleTreeHash(leaves[:k])
	if err != nil {
		return err
	}
	*path = append(*path, leftRoot)
	return nil
}

func inclusionRootFromPath(leafHash []byte, leafIndex int, treeSize int, path [][]byte) ([]byte, int, error) {
	if treeSize <= 0 {
		return nil, 0, ErrInvalidSize
	}
	if treeSize == 1 {
		if leafIndex != 0 {
			return nil, 0, ErrInvalidIndex
		}
		return cloneHash(leafHash), 0, nil
	}
	k := largestPowerOfTwoLessThan(treeSize)
	if leafIndex < k {
		leftRoot, used, err := inclusionRootFromPath(leafHash, leafIndex, k, path)
		if err != nil {
			return nil, 0, err
		}
		if used >= len(path) {
			return nil, 0, ErrInvalidSize
		}
		return NodeHash(leftRoot, path[used]), used + 1, nil
	}
	rightRoot, used, err := inclusionRootFromPath(leafHash, leafIndex-k, treeSize-k, path)
	if err != nil {
		return nil, 0, err
	}
	if used >= len(path) {
		return nil, 0, ErrInvalidSize
	}
	return NodeHash(path[used], rightRoot), used + 1, nil
}

func consistencyPath(leaves [][]byte, fromSize int, toSize int, isFirst bool) ([][]byte, error) {
	if fromSize == toSize {
		if isFirst {
			return [][]byte{}, nil
		}
		root, err := merkleTreeHash(leaves[:fromSize])
		if err != nil {
			return nil, err
		}
		return [][]byte{root}, nil
	}
	if toSize <= 1 {
		return nil, ErrInvalidSize
	}
	k := largestPowerOfTwoLessThan(toSize)
	if fromSize <= k {
		proof, err := consistencyPath(leaves[:k], fromSize, k, isFirst)
		if err != nil {
			return nil, err
		}
		rightRoot, err := merkleTreeHash(leaves[k:toSize])
		if err != nil {
			return nil, err
		}
		return append(proof, rightRoot), nil
	}
	proof, err := consistencyPath(leaves[k:toSize], fromSize-k, toSize-k, false)
	if err != nil {
		return nil, err
	}
	leftRoot, err := merkleTreeHash(leaves[:k])
	if err != nil {
		return nil, err
	}
	return append(proof, leftRoot), nil
}

func consistencyRoots(fromSize int, toSize int, path [][]byte, isFirst bool, oldRoot []byte) ([]byte, []byte, int, error) {
	if fromSize == toSize {
		if isFirst {
			return cloneHash(oldRoot), cloneHash(oldRoot), 0, nil
		}
		if len(path) == 0 {
			return nil, nil, 0, ErrInvalidSize
		}
		return cloneHash(path[0]), cloneHash(path[0]), 1, nil
	}
	if toSize <= 1 {
		return nil, nil, 0, ErrInvalidSize
	}

	k := largestPowerOfTwoLessThan(toSize)
	if fromSize <= k {
		leftOld, leftNew, used, err := consistencyRoots(fromSize, k, path, isFirst, oldRoot)
		if err != nil {
			return nil, nil, 0, err
		}
		if used >= len(path) {
			return nil, nil, 0, ErrInvalidSize
		}
		rightRoot := path[used]
		used++
		return leftOld, NodeHash(leftNew, rightRoot), used, nil
	}

	rightOld, rightNew, used, err := consistencyRoots(fromSize-k, toSize-k, path, false, oldRoot)
	if err != nil {
		return nil, nil, 0, err
	}
	if used >= len(path) {
		return nil, nil, 0, ErrInvalidSize
	}
	leftRoot := path[used]
	used++
	return NodeHash(leftRoot, rightOld), NodeHash(leftRoot, rightNew), used, nil
}

func cloneAndValidateLeaves(leaves [][]byte) ([][]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if err := validateHash(leaf); err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		out[i] = cloneHash(leaf)
	}
	return out, nil
}

func validateHash(hash []byte) error {
	if len(hash) != HashSize {
		return ErrInvalidHashLen
	}
	return nil
}

func cloneHash(hash []byte) []byte {
	if hash == nil {
		return nil
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}

func largestPowerOfTwoLessThan(value int) int {
	power := 1
	for power<<1 < value {
		power <<= 1
	}
	return power
}
