// Package hashutil provides the hashing primitives behind the audit chain
// and strategy-rules provenance: SHA-256 over canonical JSON, rendered as
// lowercase hex.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashHex returns the SHA-256 digest of data as 64 lowercase hex characters.
func HashHex(data []byte) string {
	h := Hash(data)
	return hex.EncodeToString(h[:])
}

// CanonicalJSON re-encodes v through a generic value so that object keys are
// emitted in sorted order. Two structurally equal payloads always canonicalize
// to identical bytes, which is what makes payload hashes comparable across
// processes.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal value")
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, errors.Wrap(err, "could not decode value for canonicalization")
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, errors.Wrap(err, "could not re-encode canonical value")
	}
	return out, nil
}

// CanonicalHashHex hashes the canonical JSON form of v.
func CanonicalHashHex(v interface{}) (string, error) {
	b, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return HashHex(b), nil
}
