// Package jsonsig implements cleartext JSON signatures over canonicalized
// objects: a signature object is embedded in the message it covers, and the
// signed byte form is the RFC 8785 canonicalization of the message with the
// signature value removed. The signing capability itself is an interface so
// a software keypair and a secure key store are interchangeable.
package jsonsig

import (
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonicalize returns the RFC 8785 canonical form of a JSON object: keys
// sorted, no insignificant whitespace. Two semantically identical objects
// serialized differently canonicalize to identical bytes, which is what the
// request-hash binding relies on.
func Canonicalize(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}
