package domain

import (
	"encoding/hex"
	"strings"
)

const DigestAlgSHA256 = "sha256"

// Digest is an algorithm-tagged hash rendered on the wire as
// "sha256:<hex>". No endpoint accepts or returns untagged digests.
type Digest struct {
	Alg   string
	Value []byte
}

func NewSHA256Digest(sum []byte) Digest {
	return Digest{Alg: DigestAlgSHA256, Value: sum}
}

func (d Digest) String() string {
	return d.Alg + ":" + hex.EncodeToString(d.Value)
}

func ParseDigest(s string) (Digest, error) {
	alg, rest, ok := strings.Cut(s, ":")
	if !ok || alg != DigestAlgSHA256 {
		return Digest{}, ErrInvalidHash
	}
	value, err := hex.DecodeString(rest)
	if err != nil || len(value) != 32 {
		return Digest{}, ErrInvalidHash
	}
	return Digest{Alg: alg, Value: value}, nil
}
