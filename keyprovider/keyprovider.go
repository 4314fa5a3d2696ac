// Package keyprovider builds the key material a demo payment network runs
// on: one root per party, end-entity signing credentials chained to them,
// and the banks' decryption key holders. Everything is generated in memory
// at process start and treated as immutable afterwards.
package keyprovider

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/alovak/webpay-playground/internal/jsonsig"
	"github.com/alovak/webpay-playground/messages"
)

// Credential is one party's signing identity: the end-entity signer with its
// certificate path, plus the root pool the other parties use to verify it.
type Credential struct {
	Signer   *jsonsig.SoftKeySigner
	Root     *x509.CertPool
	RootCert *x509.Certificate
}

// Set holds every key the network needs. The decryption holder slices are
// keyed by algorithm; at most one holder per algorithm id.
type Set struct {
	Payer    Credential
	Merchant Credential
	Bank     Credential
	Acquirer Credential

	BankDecryptionKeys     []messages.DecryptionKeyHolder
	AcquirerDecryptionKeys []messages.DecryptionKeyHolder
}

// New generates a complete key set. The bank signs with RSA, everyone else
// with P-256. The bank holds both an RSA-OAEP-256 and an ECDH-ES decryption
// key; the acquirer holds an ECDH-ES one.
func New() (*Set, error) {
	payer, err := newCredential("WebPay Payer Root", "WebPay Payer", false)
	if err != nil {
		return nil, fmt.Errorf("payer credential: %w", err)
	}
	merchant, err := newCredential("WebPay Merchant Root", "Space Shop", false)
	if err != nil {
		return nil, fmt.Errorf("merchant credential: %w", err)
	}
	bank, err := newCredential("WebPay Bank Root", "My Bank", true)
	if err != nil {
		return nil, fmt.Errorf("bank credential: %w", err)
	}
	acquirer, err := newCredential("WebPay Acquirer Root", "Card Acquirer", false)
	if err != nil {
		return nil, fmt.Errorf("acquirer credential: %w", err)
	}

	bankRSA, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("bank rsa decryption key: %w", err)
	}
	bankEC, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("bank ec decryption key: %w", err)
	}
	acquirerEC, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("acquirer ec decryption key: %w", err)
	}

	return &Set{
		Payer:    payer,
		Merchant: merchant,
		Bank:     bank,
		Acquirer: acquirer,
		BankDecryptionKeys: []messages.DecryptionKeyHolder{
			{PublicKey: &bankRSA.PublicKey, PrivateKey: bankRSA, Algorithm: messages.AlgRSAOAEP256},
			{PublicKey: &bankEC.PublicKey, PrivateKey: bankEC, Algorithm: messages.AlgECDHES},
		},
		AcquirerDecryptionKeys: []messages.DecryptionKeyHolder{
			{PublicKey: &acquirerEC.PublicKey, PrivateKey: acquirerEC, Algorithm: messages.AlgECDHES},
		},
	}, nil
}

// newCredential builds a fresh root and one end-entity credential under it.
func newCredential(rootName, leafName string, rsaLeaf bool) (Credential, error) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Credential{}, fmt.Errorf("root key: %w", err)
	}
	rootTmpl := rootTemplate(rootName)
	rootCert, err := signCertificate(rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		return Credential{}, fmt.Errorf("root certificate: %w", err)
	}

	var leafKey crypto.Signer
	if rsaLeaf {
		leafKey, err = rsa.GenerateKey(rand.Reader, 2048)
	} else {
		leafKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("leaf key: %w", err)
	}
	leafCert, err := signCertificate(leafTemplate(leafName), rootCert,
		leafKey.Public(), rootKey)
	if err != nil {
		return Credential{}, fmt.Errorf("leaf certificate: %w", err)
	}

	signer, err := jsonsig.NewSoftKeySigner(leafKey, []*x509.Certificate{leafCert})
	if err != nil {
		return Credential{}, err
	}
	pool := x509.NewCertPool()
	pool.AddCert(rootCert)
	return Credential{Signer: signer, Root: pool, RootCert: rootCert}, nil
}

func rootTemplate(name string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          newSerial(),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
}

func leafTemplate(name string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber: newSerial(),
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(2, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
}

func signCertificate(template, parent *x509.Certificate, pub crypto.PublicKey,
	parentKey crypto.Signer) (*x509.Certificate, error) {

	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, parentKey)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

func newSerial() *big.Int {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		// crypto/rand only fails when the platform RNG is broken.
		panic(err)
	}
	return serial
}
