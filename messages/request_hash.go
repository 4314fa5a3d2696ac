package messages

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"

	"github.com/alovak/webpay-playground/internal/jsonsig"
)

// RequestHash binds a later message to the canonical bytes of an earlier
// signed request. The algorithm id travels with the digest so it can evolve;
// ids outside the known set fail closed.
type RequestHash struct {
	Algorithm string `json:"algorithm"`
	Value     []byte `json:"value"`
}

// HashRequest computes the S256 digest over the canonical form of a signed
// request.
func HashRequest(raw json.RawMessage) (RequestHash, error) {
	canon, err := jsonsig.Canonicalize(raw)
	if err != nil {
		return RequestHash{}, Errf(MalformedMessage, "canonicalize request: %v", err)
	}
	digest := sha256.Sum256(canon)
	return RequestHash{Algorithm: AlgS256, Value: digest[:]}, nil
}

// Verify recomputes the hash of raw and compares. The digest received from
// the wire is never trusted without this check.
func (h RequestHash) Verify(raw json.RawMessage) error {
	if h.Algorithm != AlgS256 {
		return Errf(UnsupportedAlgorithm, "unknown hash algorithm %q", h.Algorithm)
	}
	computed, err := HashRequest(raw)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(h.Value, computed.Value) != 1 {
		return Errf(RequestHashMismatch, "request hash does not match the original request")
	}
	return nil
}
