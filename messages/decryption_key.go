package messages

import "crypto"

// DecryptionKeyHolder is one bank-held keypair tagged with the single key
// encryption algorithm it serves. The configured holder set is built once at
// process start and never mutated; at most one holder per algorithm id is a
// configuration invariant, not something resolved per request.
type DecryptionKeyHolder struct {
	PublicKey  crypto.PublicKey
	PrivateKey crypto.PrivateKey
	Algorithm  string
}

// SelectDecryptionKey picks the holder matching an incoming envelope's
// declared key-encryption algorithm. Linear scan, first match wins.
func SelectDecryptionKey(holders []DecryptionKeyHolder, algorithm string) (*DecryptionKeyHolder, error) {
	for i := range holders {
		if holders[i].Algorithm == algorithm {
			return &holders[i], nil
		}
	}
	return nil, Errf(NoMatchingDecryptionKey, "no decryption key for algorithm %q", algorithm)
}
