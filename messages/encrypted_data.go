package messages

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/json"
)

const (
	contentKeyLen = 64 // A256CBC-HS512: 32-byte HMAC key || 32-byte AES key
	ivLen         = 16
	tagLen        = 32
)

// EncryptedKey carries the key-encryption leg of a hybrid envelope: either a
// directly wrapped content key (RSA-OAEP-256) or the key-agreement public
// keys (ECDH-ES), never both.
type EncryptedKey struct {
	Algorithm          string          `json:"algorithm"`
	CipherText         []byte          `json:"cipherText,omitempty"`
	PaymentProviderKey json.RawMessage `json:"paymentProviderKey,omitempty"`
	EphemeralClientKey json.RawMessage `json:"ephemeralClientKey,omitempty"`
}

// EncryptedData is the authenticated hybrid envelope protecting account data
// end to end, from the payer's device to the acquirer, past the merchant and
// the transport bank.
type EncryptedData struct {
	Algorithm    string        `json:"algorithm"`
	IV           []byte        `json:"iv"`
	Tag          []byte        `json:"tag"`
	EncryptedKey *EncryptedKey `json:"encryptedKey"`
	CipherText   []byte        `json:"cipherText"`
}

// Encrypt builds a hybrid envelope toward a recipient public key. The key
// encryption algorithm must match the key type: RSA-OAEP-256 for RSA keys,
// ECDH-ES for EC keys. Content encryption is always A256CBC-HS512.
func Encrypt(plaintext []byte, recipient crypto.PublicKey, keyAlgorithm string) (*EncryptedData, error) {
	contentKey := make([]byte, contentKeyLen)
	encryptedKey := &EncryptedKey{Algorithm: keyAlgorithm}

	switch keyAlgorithm {
	case AlgRSAOAEP256:
		pub, ok := recipient.(*rsa.PublicKey)
		if !ok {
			return nil, Errf(UnsupportedAlgorithm, "%s requires an RSA key, have %T", keyAlgorithm, recipient)
		}
		if _, err := rand.Read(contentKey); err != nil {
			return nil, Errf(MalformedMessage, "generate content key: %v", err)
		}
		wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, contentKey, nil)
		if err != nil {
			return nil, Errf(MalformedMessage, "wrap content key: %v", err)
		}
		encryptedKey.CipherText = wrapped

	case AlgECDHES:
		pub, ok := recipient.(*ecdsa.PublicKey)
		if !ok {
			return nil, Errf(UnsupportedAlgorithm, "%s requires an EC key, have %T", keyAlgorithm, recipient)
		}
		staticKey, err := pub.ECDH()
		if err != nil {
			return nil, Errf(MalformedMessage, "recipient key: %v", err)
		}
		ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			return nil, Errf(MalformedMessage, "generate ephemeral key: %v", err)
		}
		z, err := ephemeral.ECDH(staticKey)
		if err != nil {
			return nil, Errf(MalformedMessage, "key agreement: %v", err)
		}
		contentKey = concatKDF(z, AlgA256CBCHS512, contentKeyLen)

		providerJWK, err := marshalECDHPublic(pub)
		if err != nil {
			return nil, err
		}
		ephemeralJWK, err := marshalECDHKey(ephemeral.PublicKey())
		if err != nil {
			return nil, err
		}
		encryptedKey.PaymentProviderKey = providerJWK
		encryptedKey.EphemeralClientKey = ephemeralJWK

	default:
		return nil, Errf(UnsupportedAlgorithm, "unknown key encryption algorithm %q", keyAlgorithm)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, Errf(MalformedMessage, "generate iv: %v", err)
	}
	cipherText, tag, err := contentEncrypt(contentKey, iv, plaintext)
	if err != nil {
		return nil, err
	}
	return &EncryptedData{
		Algorithm:    AlgA256CBCHS512,
		IV:           iv,
		Tag:          tag,
		EncryptedKey: encryptedKey,
		CipherText:   cipherText,
	}, nil
}

// Decrypt opens a hybrid envelope with the holder selected for its declared
// key-encryption algorithm. Any mismatch between declared algorithms and
// what the holder supports fails closed; there is no fallback.
func (e *EncryptedData) Decrypt(holder *DecryptionKeyHolder) ([]byte, error) {
	if e.Algorithm != AlgA256CBCHS512 {
		return nil, Errf(UnsupportedAlgorithm, "unknown content encryption algorithm %q", e.Algorithm)
	}
	if e.EncryptedKey == nil {
		return nil, Errf(MalformedMessage, "missing encryptedKey")
	}
	if e.EncryptedKey.Algorithm != holder.Algorithm {
		return nil, Errf(NoMatchingDecryptionKey, "envelope declares %q, holder supports %q",
			e.EncryptedKey.Algorithm, holder.Algorithm)
	}

	var contentKey []byte
	switch holder.Algorithm {
	case AlgRSAOAEP256:
		key, ok := holder.PrivateKey.(*rsa.PrivateKey)
		if !ok {
			return nil, Errf(UnsupportedAlgorithm, "holder for %s has %T key", holder.Algorithm, holder.PrivateKey)
		}
		if len(e.EncryptedKey.CipherText) == 0 {
			return nil, Errf(MalformedMessage, "missing wrapped content key")
		}
		unwrapped, err := rsa.DecryptOAEP(sha256.New(), nil, key, e.EncryptedKey.CipherText, nil)
		if err != nil {
			return nil, Errf(MalformedMessage, "unwrap content key: %v", err)
		}
		if len(unwrapped) != contentKeyLen {
			return nil, Errf(MalformedMessage, "content key has %d bytes, want %d", len(unwrapped), contentKeyLen)
		}
		contentKey = unwrapped

	case AlgECDHES:
		key, ok := holder.PrivateKey.(*ecdsa.PrivateKey)
		if !ok {
			return nil, Errf(UnsupportedAlgorithm, "holder for %s has %T key", holder.Algorithm, holder.PrivateKey)
		}
		if len(e.EncryptedKey.EphemeralClientKey) == 0 {
			return nil, Errf(MalformedMessage, "missing ephemeral client key")
		}
		staticKey, err := key.ECDH()
		if err != nil {
			return nil, Errf(MalformedMessage, "holder key: %v", err)
		}
		ephemeral, err := unmarshalECDHPublic(e.EncryptedKey.EphemeralClientKey)
		if err != nil {
			return nil, err
		}
		z, err := staticKey.ECDH(ephemeral)
		if err != nil {
			return nil, Errf(MalformedMessage, "key agreement: %v", err)
		}
		contentKey = concatKDF(z, AlgA256CBCHS512, contentKeyLen)

	default:
		return nil, Errf(UnsupportedAlgorithm, "unknown key encryption algorithm %q", holder.Algorithm)
	}

	return contentDecrypt(contentKey, e.IV, e.CipherText, e.Tag)
}

// contentEncrypt performs A256CBC-HS512: AES-256-CBC with PKCS#7 padding,
// authenticated by HMAC-SHA-512 truncated to 32 bytes over IV || ciphertext
// with a trailing 64-bit AAD bit length (zero, no AAD in this protocol).
func contentEncrypt(contentKey, iv, plaintext []byte) (cipherText, tag []byte, err error) {
	macKey, encKey := contentKey[:32], contentKey[32:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, nil, Errf(MalformedMessage, "aes: %v", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	cipherText = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(cipherText, padded)

	return cipherText, computeTag(macKey, iv, cipherText), nil
}

func contentDecrypt(contentKey, iv, cipherText, tag []byte) ([]byte, error) {
	macKey, encKey := contentKey[:32], contentKey[32:]

	if len(iv) != ivLen {
		return nil, Errf(MalformedMessage, "iv has %d bytes, want %d", len(iv), ivLen)
	}
	if len(cipherText) == 0 || len(cipherText)%aes.BlockSize != 0 {
		return nil, Errf(MalformedMessage, "ciphertext length %d is not a block multiple", len(cipherText))
	}
	if !hmac.Equal(tag, computeTag(macKey, iv, cipherText)) {
		return nil, Errf(MalformedMessage, "content authentication failed")
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, Errf(MalformedMessage, "aes: %v", err)
	}
	padded := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, cipherText)
	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

func computeTag(macKey, iv, cipherText []byte) []byte {
	mac := hmac.New(sha512.New, macKey)
	mac.Write(iv)
	mac.Write(cipherText)
	var al [8]byte // AAD bit length, always zero here
	mac.Write(al[:])
	return mac.Sum(nil)[:tagLen]
}

// concatKDF derives keyLen bytes from the agreement secret z per the
// NIST SP 800-56A single-step KDF with SHA-256, binding the content
// encryption algorithm id and the derived key length.
func concatKDF(z []byte, algorithmID string, keyLen int) []byte {
	var otherInfo []byte
	otherInfo = appendLenPrefixed(otherInfo, []byte(algorithmID))
	otherInfo = appendLenPrefixed(otherInfo, nil) // PartyUInfo
	otherInfo = appendLenPrefixed(otherInfo, nil) // PartyVInfo
	otherInfo = binary.BigEndian.AppendUint32(otherInfo, uint32(keyLen)*8)

	out := make([]byte, 0, keyLen)
	var counter uint32 = 1
	for len(out) < keyLen {
		h := sha256.New()
		var round [4]byte
		binary.BigEndian.PutUint32(round[:], counter)
		h.Write(round[:])
		h.Write(z)
		h.Write(otherInfo)
		out = append(out, h.Sum(nil)...)
		counter++
	}
	return out[:keyLen]
}

func appendLenPrefixed(dst, data []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, Errf(MalformedMessage, "bad padded length %d", len(data))
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize {
		return nil, Errf(MalformedMessage, "bad padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, Errf(MalformedMessage, "bad padding")
		}
	}
	return data[:len(data)-pad], nil
}
