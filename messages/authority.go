package messages

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"time"

	"github.com/alovak/webpay-playground/internal/jsonsig"
)

// Authority is a bank's or acquirer's published trust-anchor object: where
// to reach it and which key to encrypt toward it with. It is fetched fresh,
// verified, and its expiry is re-checked at every point of use, never only
// at fetch time.
type Authority struct {
	AuthorityURL           string
	TransactionURL         string
	PublicKey              crypto.PublicKey
	KeyEncryptionAlgorithm string
	Expires                time.Time

	raw json.RawMessage
}

type authorityJSON struct {
	MessageType    string          `json:"messageType"`
	AuthorityURL   string          `json:"authorityUrl"`
	TransactionURL string          `json:"transactionUrl"`
	PublicKey      json.RawMessage `json:"publicKey"`
	Algorithm      string          `json:"algorithm"`
	Expires        time.Time       `json:"expires"`
	Signature      json.RawMessage `json:"signature,omitempty"`
}

// EncodeAuthority builds and signs an authority object. The key encryption
// algorithm is derived from the published key's type.
func EncodeAuthority(authorityURL, transactionURL string, encryptionKey crypto.PublicKey,
	expires time.Time, signer jsonsig.Signer) (json.RawMessage, error) {

	var keyAlgorithm string
	switch encryptionKey.(type) {
	case *rsa.PublicKey:
		keyAlgorithm = AlgRSAOAEP256
	case *ecdsa.PublicKey:
		keyAlgorithm = AlgECDHES
	default:
		return nil, Errf(UnsupportedAlgorithm, "unsupported encryption key type %T", encryptionKey)
	}
	jwk, err := jsonsig.MarshalPublicKey(encryptionKey)
	if err != nil {
		return nil, Errf(MalformedMessage, "encode encryption key: %v", err)
	}
	raw, err := jsonsig.Sign(authorityJSON{
		MessageType:    MsgAuthority,
		AuthorityURL:   authorityURL,
		TransactionURL: transactionURL,
		PublicKey:      jwk,
		Algorithm:      keyAlgorithm,
		Expires:        expires.UTC().Truncate(time.Second),
	}, signer)
	if err != nil {
		return nil, Errf(MalformedMessage, "sign authority: %v", err)
	}
	return raw, nil
}

// ParseAuthority decodes and verifies an authority object. expectedURL is
// the URL the object was fetched from; an authority claiming a different
// identity than where it was served is rejected, which stops a substituted
// object from another endpoint.
func ParseAuthority(raw json.RawMessage, expectedURL string, roots *x509.CertPool) (*Authority, error) {
	var wire authorityJSON
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.MessageType != MsgAuthority {
		return nil, Errf(MalformedMessage, "unexpected message type %q", wire.MessageType)
	}
	if _, err := jsonsig.Verify(raw, roots); err != nil {
		return nil, wrapSignatureError(err, "authority")
	}
	if wire.AuthorityURL != expectedURL {
		return nil, Errf(MalformedMessage, "authority claims %q but was fetched from %q",
			wire.AuthorityURL, expectedURL)
	}
	if wire.Algorithm != AlgRSAOAEP256 && wire.Algorithm != AlgECDHES {
		return nil, Errf(UnsupportedAlgorithm, "unknown key encryption algorithm %q", wire.Algorithm)
	}
	pub, err := jsonsig.UnmarshalPublicKey(wire.PublicKey)
	if err != nil {
		return nil, Errf(MalformedMessage, "decode encryption key: %v", err)
	}
	authority := &Authority{
		AuthorityURL:           wire.AuthorityURL,
		TransactionURL:         wire.TransactionURL,
		PublicKey:              pub,
		KeyEncryptionAlgorithm: wire.Algorithm,
		Expires:                wire.Expires,
		raw:                    raw,
	}
	if err := authority.CheckValidAt(time.Now()); err != nil {
		return nil, err
	}
	return authority, nil
}

// CheckValidAt rejects an authority past its stated validity. Callers must
// re-check at the time of use; holding a parsed Authority does not keep it
// valid.
func (a *Authority) CheckValidAt(at time.Time) error {
	if at.After(a.Expires) {
		return Errf(AuthorityExpired, "authority %s expired %s", a.AuthorityURL, a.Expires)
	}
	return nil
}

// Raw returns the exact signed authority bytes as published.
func (a *Authority) Raw() json.RawMessage { return a.raw }
