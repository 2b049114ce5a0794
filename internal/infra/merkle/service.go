package merkle

// Service adapts the package-level proof verification to the int64 sizes
// used by the rest of the codebase.
type Service struct{}

func (s *Service) VerifyInclusionProof(leafHash []byte, leafIndex int64, treeSize int64, path [][]byte, expectedRoot []byte) (bool, error) {
	return VerifyInclusionProof(leafHash, int(leafIndex), int(treeSize), path, expectedRoot)
}

func (s *Service) VerifyConsistencyProof(oldRoot []byte, newRoot []byte, fromSize int64, toSize int64, path [][]byte) (bool, error) {
	return VerifyConsistencyProof(oldRoot, newRoot, int(fromSize), int(toSize), path)
}
