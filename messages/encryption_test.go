package messages_test

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alovak/webpay-playground/keyprovider"
	"github.com/alovak/webpay-playground/messages"
)

func TestHybridEncryptionRoundTrip(t *testing.T) {
	keys := testKeys(t)

	sizes := []int{0, 1, 4096}
	for _, holder := range keys.BankDecryptionKeys {
		holder := holder
		t.Run(holder.Algorithm, func(t *testing.T) {
			for _, size := range sizes {
				plaintext := make([]byte, size)
				_, err := rand.Read(plaintext)
				require.NoError(t, err)

				envelope, err := messages.Encrypt(plaintext, holder.PublicKey, holder.Algorithm)
				require.NoError(t, err)

				got, err := envelope.Decrypt(&holder)
				require.NoError(t, err)
				require.True(t, bytes.Equal(plaintext, got), "size %d", size)
			}
		})
	}
}

func TestHybridEncryptionTamperFails(t *testing.T) {
	keys := testKeys(t)
	holder := keys.BankDecryptionKeys[0]

	envelope, err := messages.Encrypt([]byte("6875056745552109"), holder.PublicKey, holder.Algorithm)
	require.NoError(t, err)

	envelope.CipherText[0] ^= 0x01
	_, err = envelope.Decrypt(&holder)
	require.Error(t, err)
	require.Equal(t, messages.MalformedMessage, messages.CodeOf(err))
}

func TestHybridEncryptionAlgorithmMismatch(t *testing.T) {
	keys := testKeys(t)
	rsaHolder, err := messages.SelectDecryptionKey(keys.BankDecryptionKeys, messages.AlgRSAOAEP256)
	require.NoError(t, err)
	ecHolder, err := messages.SelectDecryptionKey(keys.BankDecryptionKeys, messages.AlgECDHES)
	require.NoError(t, err)

	envelope, err := messages.Encrypt([]byte("secret"), rsaHolder.PublicKey, rsaHolder.Algorithm)
	require.NoError(t, err)

	_, err = envelope.Decrypt(ecHolder)
	require.Error(t, err)
	require.Equal(t, messages.NoMatchingDecryptionKey, messages.CodeOf(err))
}

func TestDecryptionKeySelection(t *testing.T) {
	keys := testKeys(t)

	rsaHolder, err := messages.SelectDecryptionKey(keys.BankDecryptionKeys, messages.AlgRSAOAEP256)
	require.NoError(t, err)
	require.Equal(t, messages.AlgRSAOAEP256, rsaHolder.Algorithm)

	ecHolder, err := messages.SelectDecryptionKey(keys.BankDecryptionKeys, messages.AlgECDHES)
	require.NoError(t, err)
	require.Equal(t, messages.AlgECDHES, ecHolder.Algorithm)

	_, err = messages.SelectDecryptionKey(keys.BankDecryptionKeys, "X25519")
	require.Error(t, err)
	require.Equal(t, messages.NoMatchingDecryptionKey, messages.CodeOf(err))
}

func encodeTestAuthority(t *testing.T, keys *keyprovider.Set, url string, expires time.Time) []byte {
	t.Helper()
	holder := keys.AcquirerDecryptionKeys[0]
	raw, err := messages.EncodeAuthority(url, url+"/transact", holder.PublicKey,
		expires, keys.Acquirer.Signer)
	require.NoError(t, err)
	return raw
}

func TestAuthorityRoundTrip(t *testing.T) {
	keys := testKeys(t)
	const url = "https://acquirer.example.com/authority"
	raw := encodeTestAuthority(t, keys, url, time.Now().Add(time.Hour))

	authority, err := messages.ParseAuthority(raw, url, keys.Acquirer.Root)
	require.NoError(t, err)
	require.Equal(t, url, authority.AuthorityURL)
	require.Equal(t, messages.AlgECDHES, authority.KeyEncryptionAlgorithm)

	// The published key really works for encryption.
	envelope, err := messages.Encrypt([]byte("6875056745552109"),
		authority.PublicKey, authority.KeyEncryptionAlgorithm)
	require.NoError(t, err)
	holder := keys.AcquirerDecryptionKeys[0]
	got, err := envelope.Decrypt(&holder)
	require.NoError(t, err)
	require.Equal(t, "6875056745552109", string(got))
}

func TestAuthorityURLSubstitution(t *testing.T) {
	keys := testKeys(t)
	raw := encodeTestAuthority(t, keys, "https://acquirer.example.com/authority",
		time.Now().Add(time.Hour))

	// A valid authority served from somewhere else is not accepted.
	_, err := messages.ParseAuthority(raw, "https://evil.example.com/authority", keys.Acquirer.Root)
	require.Error(t, err)
	require.Equal(t, messages.MalformedMessage, messages.CodeOf(err))
}

func TestAuthorityExpiry(t *testing.T) {
	keys := testKeys(t)
	const url = "https://acquirer.example.com/authority"

	raw := encodeTestAuthority(t, keys, url, time.Now().Add(time.Minute))
	authority, err := messages.ParseAuthority(raw, url, keys.Acquirer.Root)
	require.NoError(t, err)

	// Valid now, but not past its stated validity; the check runs at the
	// time of use, not only at fetch time.
	require.NoError(t, authority.CheckValidAt(time.Now()))
	err = authority.CheckValidAt(time.Now().Add(2 * time.Minute))
	require.Error(t, err)
	require.Equal(t, messages.AuthorityExpired, messages.CodeOf(err))

	expired := encodeTestAuthority(t, keys, url, time.Now().Add(-time.Minute))
	_, err = messages.ParseAuthority(expired, url, keys.Acquirer.Root)
	require.Error(t, err)
	require.Equal(t, messages.AuthorityExpired, messages.CodeOf(err))
}

func TestAuthorityUntrustedSigner(t *testing.T) {
	keys := testKeys(t)
	const url = "https://acquirer.example.com/authority"
	raw := encodeTestAuthority(t, keys, url, time.Now().Add(time.Hour))

	_, err := messages.ParseAuthority(raw, url, keys.Merchant.Root)
	require.Error(t, err)
	require.Equal(t, messages.SignatureInvalid, messages.CodeOf(err))
}
