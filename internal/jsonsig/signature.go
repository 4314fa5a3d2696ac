package jsonsig

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// Sentinel failures distinguished by the message layer.
var (
	ErrSignatureInvalid     = errors.New("signature invalid")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
)

// Signature is the embedded signature object. The signed byte form is the
// canonicalization of the enclosing message with Value removed.
type Signature struct {
	Algorithm       string   `json:"algorithm"`
	CertificatePath [][]byte `json:"certificatePath"` // DER, leaf first
	Value           []byte   `json:"value"`
}

// Sign embeds a signature object into obj and returns the signed message.
// obj must marshal to a JSON object without a "signature" member. The
// message bytes outside the signature member are exactly json.Marshal(obj),
// so embedded raw messages survive byte for byte.
func Sign(obj any, signer Signer) (json.RawMessage, error) {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil, fmt.Errorf("message is not a JSON object: %w", err)
	}
	if _, ok := m["signature"]; ok {
		return nil, fmt.Errorf("message is already signed")
	}

	certs := signer.CertificatePath()
	if len(certs) == 0 {
		return nil, fmt.Errorf("signer has no certificate path")
	}
	algorithm, err := algorithmForKey(certs[0].PublicKey)
	if err != nil {
		return nil, err
	}
	path := make([][]byte, len(certs))
	for i, c := range certs {
		path[i] = c.Raw
	}

	sig := Signature{Algorithm: algorithm, CertificatePath: path}
	unsigned, err := spliceSignature(encoded, sig)
	if err != nil {
		return nil, err
	}
	canon, err := Canonicalize(unsigned)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(canon)
	sig.Value, err = signer.SignDigest(algorithm, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	return spliceSignature(encoded, sig)
}

// spliceSignature appends a "signature" member to an encoded JSON object
// without disturbing the existing bytes.
func spliceSignature(encoded []byte, sig Signature) ([]byte, error) {
	sigRaw, err := json.Marshal(sigJSON(sig))
	if err != nil {
		return nil, fmt.Errorf("marshal signature: %w", err)
	}
	if len(encoded) < 2 || encoded[len(encoded)-1] != '}' {
		return nil, fmt.Errorf("message is not a JSON object")
	}
	out := make([]byte, 0, len(encoded)+len(sigRaw)+16)
	out = append(out, encoded[:len(encoded)-1]...)
	if len(encoded) > 2 {
		out = append(out, ',')
	}
	out = append(out, `"signature":`...)
	out = append(out, sigRaw...)
	out = append(out, '}')
	return out, nil
}

// sigJSON omits a missing value so the unsigned and signed forms share the
// same member set minus value, per the cleartext signature scheme.
type sigJSON struct {
	Algorithm       string   `json:"algorithm"`
	CertificatePath [][]byte `json:"certificatePath"`
	Value           []byte   `json:"value,omitempty"`
}

// Verify checks the embedded signature of a raw message against a trust
// root: the algorithm must be in the accepted set, the certificate path must
// chain to the root pool, and the signature value must cover the canonical
// form of the message minus the value itself. It returns the verified leaf
// certificate so callers can inspect the signer identity.
func Verify(raw json.RawMessage, roots *x509.CertPool) (*x509.Certificate, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	sigAny, ok := m["signature"]
	if !ok {
		return nil, fmt.Errorf("missing signature: %w", ErrSignatureInvalid)
	}
	sigRaw, err := json.Marshal(sigAny)
	if err != nil {
		return nil, fmt.Errorf("reencode signature: %w", err)
	}
	var sig Signature
	if err := json.Unmarshal(sigRaw, &sig); err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	if sig.Algorithm != AlgES256 && sig.Algorithm != AlgRS256 {
		return nil, fmt.Errorf("algorithm %q: %w", sig.Algorithm, ErrUnsupportedAlgorithm)
	}
	if len(sig.CertificatePath) == 0 {
		return nil, fmt.Errorf("empty certificate path: %w", ErrSignatureInvalid)
	}

	certs := make([]*x509.Certificate, len(sig.CertificatePath))
	for i, der := range sig.CertificatePath {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse certificate %d: %w", i, ErrSignatureInvalid)
		}
		certs[i] = cert
	}
	leaf := certs[0]
	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("certificate path untrusted: %w", ErrSignatureInvalid)
	}

	// Rebuild the signed byte form: the message with signature.value removed.
	sigObj, ok := sigAny.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("signature is not an object: %w", ErrSignatureInvalid)
	}
	delete(sigObj, "value")
	unsigned, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal unsigned form: %w", err)
	}
	canon, err := Canonicalize(unsigned)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(canon)

	if err := verifyDigest(sig.Algorithm, leaf.PublicKey, digest[:], sig.Value); err != nil {
		return nil, err
	}
	return leaf, nil
}

func algorithmForKey(pub crypto.PublicKey) (string, error) {
	switch pub.(type) {
	case *ecdsa.PublicKey:
		return AlgES256, nil
	case *rsa.PublicKey:
		return AlgRS256, nil
	default:
		return "", fmt.Errorf("unsupported public key type %T", pub)
	}
}

func verifyDigest(algorithm string, pub crypto.PublicKey, digest, value []byte) error {
	switch algorithm {
	case AlgES256:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("%s with %T key: %w", algorithm, pub, ErrSignatureInvalid)
		}
		if len(value) != 64 {
			return fmt.Errorf("bad ES256 signature length %d: %w", len(value), ErrSignatureInvalid)
		}
		r := new(big.Int).SetBytes(value[:32])
		s := new(big.Int).SetBytes(value[32:])
		if !ecdsa.Verify(key, digest, r, s) {
			return ErrSignatureInvalid
		}
		return nil
	case AlgRS256:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%s with %T key: %w", algorithm, pub, ErrSignatureInvalid)
		}
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest, value); err != nil {
			return fmt.Errorf("%v: %w", err, ErrSignatureInvalid)
		}
		return nil
	default:
		return fmt.Errorf("algorithm %q: %w", algorithm, ErrUnsupportedAlgorithm)
	}
}
