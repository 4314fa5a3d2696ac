package jsonsig

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// Signature algorithm identifiers (JOSE).
const (
	AlgES256 = "ES256"
	AlgRS256 = "RS256"
)

// Signer is the signing capability consumed by the message layer. It is
// implemented by a plain software keypair and, behind the softhsm build tag,
// by a PKCS#11 key store; which one a process uses is configuration.
type Signer interface {
	// CertificatePath returns the signer's certificate chain, leaf first.
	CertificatePath() []*x509.Certificate

	// SignDigest signs a SHA-256 digest with the named algorithm. ES256
	// signatures use the raw 64-byte R||S form, RS256 uses PKCS#1 v1.5.
	SignDigest(algorithm string, digest []byte) ([]byte, error)
}

// SoftKeySigner holds a private key in process memory.
type SoftKeySigner struct {
	key   crypto.Signer
	certs []*x509.Certificate
}

// NewSoftKeySigner wraps a private key and its certificate chain, leaf first.
func NewSoftKeySigner(key crypto.Signer, certs []*x509.Certificate) (*SoftKeySigner, error) {
	if len(certs) == 0 {
		return nil, fmt.Errorf("certificate path is empty")
	}
	switch key.(type) {
	case *ecdsa.PrivateKey, *rsa.PrivateKey:
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return &SoftKeySigner{key: key, certs: certs}, nil
}

func (s *SoftKeySigner) CertificatePath() []*x509.Certificate {
	return s.certs
}

// Algorithm returns the signature algorithm matching the held key type.
func (s *SoftKeySigner) Algorithm() string {
	if _, ok := s.key.(*rsa.PrivateKey); ok {
		return AlgRS256
	}
	return AlgES256
}

func (s *SoftKeySigner) SignDigest(algorithm string, digest []byte) ([]byte, error) {
	switch algorithm {
	case AlgES256:
		key, ok := s.key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s requires an EC key, have %T", algorithm, s.key)
		}
		r, sv, err := ecdsa.Sign(rand.Reader, key, digest)
		if err != nil {
			return nil, fmt.Errorf("ecdsa sign: %w", err)
		}
		sig := make([]byte, 64)
		r.FillBytes(sig[:32])
		sv.FillBytes(sig[32:])
		return sig, nil
	case AlgRS256:
		key, ok := s.key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s requires an RSA key, have %T", algorithm, s.key)
		}
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest)
		if err != nil {
			return nil, fmt.Errorf("rsa sign: %w", err)
		}
		return sig, nil
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", algorithm)
	}
}
