package bank

import (
	"crypto/x509"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alovak/webpay-playground/internal/jsonsig"
	"github.com/alovak/webpay-playground/messages"
)

// Config is the bank's configuration. It is assembled once at startup and
// never mutated afterwards; the service reads it concurrently without
// locking. The cryptographic fields have no defaults and must be provided by
// the caller, typically from keyprovider.
type Config struct {
	HTTPAddr string

	// AuthorityURL and TransactionURL are the identity the bank's published
	// Authority object claims; AuthorityValidity bounds how long a fetched
	// copy may be used.
	AuthorityURL      string
	TransactionURL    string
	AuthorityValidity time.Duration

	// AcquirerAuthorityURLs maps acquirer-based account types to the
	// authority endpoint of the acquirer that owns them.
	AcquirerAuthorityURLs map[string]string
	AuthorityTimeout      time.Duration

	// AmountCeiling is the hard cap per transaction; amounts at the ceiling
	// are still accepted, only amounts above it are rejected.
	AmountCeiling decimal.Decimal

	Signer         jsonsig.Signer
	PayerRoot      *x509.CertPool
	MerchantRoot   *x509.CertPool
	AcquirerRoot   *x509.CertPool
	DecryptionKeys []messages.DecryptionKeyHolder
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:          "localhost:8084",
		AuthorityURL:      "http://localhost:8084/authority",
		TransactionURL:    "http://localhost:8084/transact",
		AuthorityValidity: time.Hour,
		AuthorityTimeout:  5 * time.Second,
		AmountCeiling:     decimal.RequireFromString("1000000.00"),
	}
}
