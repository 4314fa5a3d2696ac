package merchant

import (
	"crypto/x509"
	"time"

	"github.com/alovak/webpay-playground/internal/jsonsig"
	"github.com/alovak/webpay-playground/messages"
)

// Config is the merchant's immutable configuration. Cryptographic fields
// have no defaults and come from keyprovider.
type Config struct {
	HTTPAddr string

	// PayeeName is the name stamped on issued payment requests.
	PayeeName string

	// BankURL is the base URL of the transport bank.
	BankURL     string
	BankTimeout time.Duration

	// RequestValidity is how long an issued payment request stays valid.
	RequestValidity time.Duration

	AcceptedAccountTypes []string
	PullPayment          bool

	// Reserve selects reserve-then-finalize; false debits directly.
	Reserve bool

	Signer   jsonsig.Signer
	BankRoot *x509.CertPool
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        "localhost:8082",
		PayeeName:       "Space Shop",
		BankURL:         "http://localhost:8084",
		BankTimeout:     10 * time.Second,
		RequestValidity: 30 * time.Minute,
		AcceptedAccountTypes: []string{
			messages.AccountTypeBankAccount,
			messages.AccountTypeSuperCard,
			messages.AccountTypeCoolCard,
		},
		Reserve: true,
	}
}
