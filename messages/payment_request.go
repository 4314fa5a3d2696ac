package messages

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alovak/webpay-playground/internal/jsonsig"
)

// PaymentRequest is the merchant-signed priced request. It is created once
// by the merchant and from then on only embedded verbatim by the payer and
// the bank; nobody re-creates it.
type PaymentRequest struct {
	Payee       string
	Amount      decimal.Decimal
	Currency    Currency
	ReferenceID string
	TimeStamp   time.Time
	Expires     time.Time

	raw json.RawMessage
}

type paymentRequestJSON struct {
	Payee           string          `json:"payee"`
	Amount          string          `json:"amount"`
	Currency        string          `json:"currency"`
	ReferenceID     string          `json:"referenceId"`
	TimeStamp       time.Time       `json:"timeStamp"`
	Expires         time.Time       `json:"expires"`
	SoftwareID      string          `json:"softwareId"`
	SoftwareVersion string          `json:"softwareVersion"`
	Signature       json.RawMessage `json:"signature,omitempty"`
}

// EncodePaymentRequest builds and signs a payment request. The amount scale
// must match the currency's declared decimals.
func EncodePaymentRequest(payee string, amount decimal.Decimal, currency Currency,
	referenceID string, expires time.Time, signer jsonsig.Signer) (json.RawMessage, error) {

	if err := currency.ValidateAmount(amount); err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Second)
	if !expires.After(now) {
		return nil, Errf(MalformedMessage, "expires %s is not after creation time", expires)
	}
	raw, err := jsonsig.Sign(paymentRequestJSON{
		Payee:           payee,
		Amount:          amount.StringFixed(currency.Decimals),
		Currency:        currency.Code,
		ReferenceID:     referenceID,
		TimeStamp:       now,
		Expires:         expires.UTC().Truncate(time.Second),
		SoftwareID:      MerchantSoftwareID,
		SoftwareVersion: SoftwareVersion,
	}, signer)
	if err != nil {
		return nil, Errf(MalformedMessage, "sign payment request: %v", err)
	}
	return raw, nil
}

// ParsePaymentRequest decodes a payment request strictly and checks its
// structural invariants. Signature trust is checked separately with Verify
// because the expected root depends on which layer is doing the parsing.
func ParsePaymentRequest(raw json.RawMessage) (*PaymentRequest, error) {
	var wire paymentRequestJSON
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.Signature == nil {
		return nil, Errf(MalformedMessage, "payment request is unsigned")
	}
	currency, err := CurrencyFromCode(wire.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(wire.Amount)
	if err != nil {
		return nil, Errf(MalformedMessage, "amount %q: %v", wire.Amount, err)
	}
	if err := currency.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if !wire.Expires.After(wire.TimeStamp) {
		return nil, Errf(MalformedMessage, "expires %s is not after timeStamp %s",
			wire.Expires, wire.TimeStamp)
	}
	return &PaymentRequest{
		Payee:       wire.Payee,
		Amount:      amount,
		Currency:    currency,
		ReferenceID: wire.ReferenceID,
		TimeStamp:   wire.TimeStamp,
		Expires:     wire.Expires,
		raw:         raw,
	}, nil
}

// Verify checks the merchant signature against the merchant trust root.
func (p *PaymentRequest) Verify(merchantRoot *x509.CertPool) error {
	if _, err := jsonsig.Verify(p.raw, merchantRoot); err != nil {
		return wrapSignatureError(err, "payment request")
	}
	return nil
}

// Raw returns the exact signed bytes, suitable for verbatim embedding and
// request hashing.
func (p *PaymentRequest) Raw() json.RawMessage { return p.raw }

// RequestHash computes the S256 digest over the canonical signed request.
func (p *PaymentRequest) RequestHash() (RequestHash, error) {
	return HashRequest(p.raw)
}

func wrapSignatureError(err error, what string) error {
	if errors.Is(err, jsonsig.ErrUnsupportedAlgorithm) {
		return Wrap(UnsupportedAlgorithm, err, "%s", what)
	}
	return Wrap(SignatureInvalid, err, "%s", what)
}
