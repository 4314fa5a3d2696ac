package jsonsig

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v3"
)

// MarshalPublicKey encodes an EC or RSA public key as a JWK object.
func MarshalPublicKey(pub crypto.PublicKey) (json.RawMessage, error) {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("unsupported curve %s", k.Curve.Params().Name)
		}
	case *rsa.PublicKey:
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
	jwk := jose.JSONWebKey{Key: pub}
	raw, err := jwk.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal jwk: %w", err)
	}
	return raw, nil
}

// UnmarshalPublicKey decodes a JWK object into an EC or RSA public key.
func UnmarshalPublicKey(raw json.RawMessage) (crypto.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	switch k := jwk.Key.(type) {
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("unsupported curve %s", k.Curve.Params().Name)
		}
		return k, nil
	case *rsa.PublicKey:
		return k, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", jwk.Key)
	}
}
