package messages

import (
	"crypto/x509"
	"encoding/json"
	"time"

	"github.com/alovak/webpay-playground/internal/jsonsig"
)

// AuthorizationData is the payer's consent: a signed wrapper embedding the
// merchant's payment request byte for byte. The embedded bytes are exactly
// what the payer's wallet displayed and approved.
type AuthorizationData struct {
	PaymentRequest *PaymentRequest
	DomainName     string
	AccountType    string
	AccountID      string
	TimeStamp      time.Time

	raw         json.RawMessage
	embeddedRaw json.RawMessage
}

type authorizationDataJSON struct {
	MessageType     string          `json:"messageType"`
	PaymentRequest  json.RawMessage `json:"paymentRequest"`
	DomainName      string          `json:"domainName"`
	AccountType     string          `json:"accountType"`
	AccountID       string          `json:"accountId"`
	TimeStamp       time.Time       `json:"timeStamp"`
	SoftwareID      string          `json:"softwareId"`
	SoftwareVersion string          `json:"softwareVersion"`
	Signature       json.RawMessage `json:"signature,omitempty"`
}

// EncodeAuthorizationData signs the payer's consent over an embedded payment
// request.
func EncodeAuthorizationData(paymentRequest json.RawMessage, domainName,
	accountType, accountID string, signer jsonsig.Signer) (json.RawMessage, error) {

	if _, err := IsAcquirerBased(accountType); err != nil {
		return nil, err
	}
	raw, err := jsonsig.Sign(authorizationDataJSON{
		MessageType:     MsgPayerGenericAuthReq,
		PaymentRequest:  paymentRequest,
		DomainName:      domainName,
		AccountType:     accountType,
		AccountID:       accountID,
		TimeStamp:       time.Now().UTC().Truncate(time.Second),
		SoftwareID:      WalletSoftwareID,
		SoftwareVersion: SoftwareVersion,
	}, signer)
	if err != nil {
		return nil, Errf(MalformedMessage, "sign authorization data: %v", err)
	}
	return raw, nil
}

// ParseAuthorizationData decodes the payer consent strictly, including an
// independent structural re-parse of the embedded payment request. The
// embedded object is never trusted merely because the outer object decodes.
func ParseAuthorizationData(raw json.RawMessage) (*AuthorizationData, error) {
	var wire authorizationDataJSON
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.MessageType != MsgPayerGenericAuthReq {
		return nil, Errf(MalformedMessage, "unexpected message type %q", wire.MessageType)
	}
	if wire.Signature == nil {
		return nil, Errf(MalformedMessage, "authorization data is unsigned")
	}
	if _, err := IsAcquirerBased(wire.AccountType); err != nil {
		return nil, err
	}
	paymentRequest, err := ParsePaymentRequest(wire.PaymentRequest)
	if err != nil {
		return nil, err
	}
	return &AuthorizationData{
		PaymentRequest: paymentRequest,
		DomainName:     wire.DomainName,
		AccountType:    wire.AccountType,
		AccountID:      wire.AccountID,
		TimeStamp:      wire.TimeStamp,
		raw:            raw,
		embeddedRaw:    wire.PaymentRequest,
	}, nil
}

// Verify performs the two-step nested verification, in order: the outer
// payer signature against the payer trust root first, then the embedded
// payment request's own signature against the merchant trust root.
func (a *AuthorizationData) Verify(payerRoot, merchantRoot *x509.CertPool) error {
	if _, err := jsonsig.Verify(a.raw, payerRoot); err != nil {
		return wrapSignatureError(err, "payer authorization")
	}
	if err := a.PaymentRequest.Verify(merchantRoot); err != nil {
		return err
	}
	return nil
}

// Raw returns the exact signed consent bytes.
func (a *AuthorizationData) Raw() json.RawMessage { return a.raw }

// EmbeddedPaymentRequest returns the payment request exactly as embedded.
func (a *AuthorizationData) EmbeddedPaymentRequest() json.RawMessage { return a.embeddedRaw }
