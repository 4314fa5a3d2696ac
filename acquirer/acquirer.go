// Package acquirer implements the card-network side: it publishes a signed
// Authority advertising its encryption key and unprotects the account data
// that banks encrypt toward it.
package acquirer

import (
	"encoding/json"
	"time"

	"github.com/alovak/webpay-playground/internal/jsonsig"
	"github.com/alovak/webpay-playground/messages"
)

// Config is the acquirer's immutable configuration.
type Config struct {
	HTTPAddr          string
	AuthorityURL      string
	TransactionURL    string
	AuthorityValidity time.Duration

	Signer         jsonsig.Signer
	DecryptionKeys []messages.DecryptionKeyHolder
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:          "localhost:8086",
		AuthorityURL:      "http://localhost:8086/authority",
		TransactionURL:    "http://localhost:8086/protected",
		AuthorityValidity: time.Hour,
	}
}

type Service struct {
	config *Config
}

func NewService(config *Config) *Service {
	return &Service{config: config}
}

// Authority returns the acquirer's signed trust-anchor object, advertising
// the first configured decryption key.
func (s *Service) Authority() (json.RawMessage, error) {
	if len(s.config.DecryptionKeys) == 0 {
		return nil, messages.Errf(messages.NoMatchingDecryptionKey, "no decryption keys configured")
	}
	holder := s.config.DecryptionKeys[0]
	return messages.EncodeAuthority(s.config.AuthorityURL, s.config.TransactionURL,
		holder.PublicKey, time.Now().Add(s.config.AuthorityValidity), s.config.Signer)
}

// Unprotect opens a protected-account-data envelope and returns the account
// identifier inside.
func (s *Service) Unprotect(raw json.RawMessage) (string, error) {
	var envelope messages.EncryptedData
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", messages.Errf(messages.MalformedMessage, "decode envelope: %v", err)
	}
	if envelope.EncryptedKey == nil {
		return "", messages.Errf(messages.MalformedMessage, "missing encrypted key")
	}
	holder, err := messages.SelectDecryptionKey(s.config.DecryptionKeys, envelope.EncryptedKey.Algorithm)
	if err != nil {
		return "", err
	}
	accountID, err := envelope.Decrypt(holder)
	if err != nil {
		return "", err
	}
	return string(accountID), nil
}
