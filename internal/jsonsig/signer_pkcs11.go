//go:build softhsm

package jsonsig

import (
	"crypto/x509"
	"fmt"

	"github.com/miekg/pkcs11"
)

// PKCS11Signer signs through a PKCS#11 token, keeping the private key inside
// the key store. Enabled with the softhsm build tag so default builds do not
// depend on a PKCS#11 library.
type PKCS11Signer struct {
	libPath  string
	slotID   uint
	pin      string
	keyLabel string
	certs    []*x509.Certificate

	p11  *pkcs11.Ctx
	sess pkcs11.SessionHandle
	key  pkcs11.ObjectHandle
}

func NewPKCS11Signer(libPath string, slotID uint, pin, keyLabel string, certs []*x509.Certificate) *PKCS11Signer {
	return &PKCS11Signer{libPath: libPath, slotID: slotID, pin: pin, keyLabel: keyLabel, certs: certs}
}

func (p *PKCS11Signer) Open() error {
	p.p11 = pkcs11.New(p.libPath)
	if p.p11 == nil {
		return fmt.Errorf("load pkcs11 lib failed")
	}
	if err := p.p11.Initialize(); err != nil {
		return err
	}
	sess, err := p.p11.OpenSession(pkcs11.SlotID(p.slotID), pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		_ = p.p11.Finalize()
		return err
	}
	p.sess = sess
	if err := p.p11.Login(p.sess, pkcs11.CKU_USER, p.pin); err != nil {
		_ = p.p11.CloseSession(p.sess)
		_ = p.p11.Finalize()
		return err
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, p.keyLabel),
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
	}
	if err := p.p11.FindObjectsInit(p.sess, template); err != nil {
		return err
	}
	objs, _, err := p.p11.FindObjects(p.sess, 1)
	_ = p.p11.FindObjectsFinal(p.sess)
	if err != nil {
		return err
	}
	if len(objs) == 0 {
		return fmt.Errorf("signing key not found by label=%s", p.keyLabel)
	}
	p.key = objs[0]
	return nil
}

func (p *PKCS11Signer) Close() {
	if p.p11 != nil {
		if p.sess != 0 {
			_ = p.p11.Logout(p.sess)
			_ = p.p11.CloseSession(p.sess)
		}
		_ = p.p11.Finalize()
		p.p11.Destroy()
		p.p11 = nil
	}
}

func (p *PKCS11Signer) CertificatePath() []*x509.Certificate {
	return p.certs
}

// ASN.1 DigestInfo header for SHA-256, required by CKM_RSA_PKCS which signs
// pre-hashed input.
var sha256DigestInfo = []byte{
	0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
	0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
}

func (p *PKCS11Signer) SignDigest(algorithm string, digest []byte) ([]byte, error) {
	var mech *pkcs11.Mechanism
	switch algorithm {
	case AlgES256:
		// CKM_ECDSA over a pre-computed digest yields the raw R||S form.
		mech = pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)
	case AlgRS256:
		mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)
		digest = append(append([]byte{}, sha256DigestInfo...), digest...)
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", algorithm)
	}
	if err := p.p11.SignInit(p.sess, []*pkcs11.Mechanism{mech}, p.key); err != nil {
		return nil, err
	}
	sig, err := p.p11.Sign(p.sess, digest)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

var _ Signer = (*PKCS11Signer)(nil)
