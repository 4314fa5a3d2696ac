package messages

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/json"

	"github.com/alovak/webpay-playground/internal/jsonsig"
)

func marshalECDHPublic(pub *ecdsa.PublicKey) (json.RawMessage, error) {
	raw, err := jsonsig.MarshalPublicKey(pub)
	if err != nil {
		return nil, Errf(MalformedMessage, "encode public key: %v", err)
	}
	return raw, nil
}

func marshalECDHKey(pub *ecdh.PublicKey) (json.RawMessage, error) {
	x, y := elliptic.Unmarshal(elliptic.P256(), pub.Bytes())
	if x == nil {
		return nil, Errf(MalformedMessage, "invalid ephemeral key point")
	}
	return marshalECDHPublic(&ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y})
}

func unmarshalECDHPublic(raw json.RawMessage) (*ecdh.PublicKey, error) {
	pub, err := jsonsig.UnmarshalPublicKey(raw)
	if err != nil {
		return nil, Errf(MalformedMessage, "decode public key: %v", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, Errf(UnsupportedAlgorithm, "ECDH-ES requires an EC key, have %T", pub)
	}
	ecdhPub, err := ecPub.ECDH()
	if err != nil {
		return nil, Errf(MalformedMessage, "invalid EC point: %v", err)
	}
	return ecdhPub, nil
}
