package messages

import (
	"crypto/x509"
	"encoding/json"
	"time"

	"github.com/alovak/webpay-playground/internal/jsonsig"
)

// FinalizeRequest settles a previous reservation. The merchant signs it and
// binds it to the original payment request both by embedding the signed
// request verbatim and by hashing it, and names the reservation through the
// bank's reference id.
type FinalizeRequest struct {
	PaymentRequest json.RawMessage
	RequestHash    RequestHash
	ReferenceID    string
	TimeStamp      time.Time

	raw json.RawMessage
}

type finalizeRequestJSON struct {
	MessageType     string          `json:"messageType"`
	PaymentRequest  json.RawMessage `json:"paymentRequest"`
	RequestHash     RequestHash     `json:"requestHash"`
	ReferenceID     string          `json:"referenceId"`
	TimeStamp       time.Time       `json:"timeStamp"`
	SoftwareID      string          `json:"softwareId"`
	SoftwareVersion string          `json:"softwareVersion"`
	Signature       json.RawMessage `json:"signature,omitempty"`
}

// EncodeFinalizeRequest signs a settlement request for a reservation held
// under referenceID.
func EncodeFinalizeRequest(paymentRequest json.RawMessage, referenceID string,
	signer jsonsig.Signer) (json.RawMessage, error) {

	hash, err := HashRequest(paymentRequest)
	if err != nil {
		return nil, err
	}
	raw, err := jsonsig.Sign(finalizeRequestJSON{
		MessageType:     MsgFinalizeRequest,
		PaymentRequest:  paymentRequest,
		RequestHash:     hash,
		ReferenceID:     referenceID,
		TimeStamp:       time.Now().UTC().Truncate(time.Second),
		SoftwareID:      MerchantSoftwareID,
		SoftwareVersion: SoftwareVersion,
	}, signer)
	if err != nil {
		return nil, Errf(MalformedMessage, "sign finalize request: %v", err)
	}
	return raw, nil
}

// ParseFinalizeRequest decodes a settlement request strictly and checks that
// the carried hash really covers the embedded payment request.
func ParseFinalizeRequest(raw json.RawMessage) (*FinalizeRequest, error) {
	var wire finalizeRequestJSON
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.MessageType != MsgFinalizeRequest {
		return nil, Errf(MalformedMessage, "unexpected message type %q", wire.MessageType)
	}
	if wire.Signature == nil {
		return nil, Errf(MalformedMessage, "finalize request is unsigned")
	}
	if len(wire.PaymentRequest) == 0 {
		return nil, Errf(MalformedMessage, "missing embedded payment request")
	}
	if err := wire.RequestHash.Verify(wire.PaymentRequest); err != nil {
		return nil, err
	}
	return &FinalizeRequest{
		PaymentRequest: wire.PaymentRequest,
		RequestHash:    wire.RequestHash,
		ReferenceID:    wire.ReferenceID,
		TimeStamp:      wire.TimeStamp,
		raw:            raw,
	}, nil
}

// Verify checks the merchant signature on the settlement request.
func (f *FinalizeRequest) Verify(merchantRoot *x509.CertPool) error {
	if _, err := jsonsig.Verify(f.raw, merchantRoot); err != nil {
		return wrapSignatureError(err, "finalize request")
	}
	return nil
}

// Raw returns the exact signed request bytes.
func (f *FinalizeRequest) Raw() json.RawMessage { return f.raw }

// FinalizeResponse is the bank's signed settlement receipt. A response
// carries either a hash binding it to the finalize request it answers, or an
// ErrorReturn explaining why the reservation could not be settled. The two
// forms are mutually exclusive.
type FinalizeResponse struct {
	RequestHash *RequestHash
	ErrorReturn *ErrorReturn
	ReferenceID string
	TimeStamp   time.Time

	raw json.RawMessage
}

type finalizeResponseJSON struct {
	MessageType     string          `json:"messageType"`
	RequestHash     *RequestHash    `json:"requestHash,omitempty"`
	ErrorCode       *ReturnCode     `json:"errorCode,omitempty"`
	Description     string          `json:"description,omitempty"`
	ReferenceID     string          `json:"referenceId,omitempty"`
	TimeStamp       time.Time       `json:"timeStamp"`
	SoftwareID      string          `json:"softwareId"`
	SoftwareVersion string          `json:"softwareVersion"`
	Signature       json.RawMessage `json:"signature,omitempty"`
}

// EncodeFinalizeResponse signs a successful settlement receipt, bound to the
// finalize request bytes it answers and carrying a fresh reference id for
// the settled transaction.
func EncodeFinalizeResponse(finalizeRequest json.RawMessage, referenceID string,
	signer jsonsig.Signer) (json.RawMessage, error) {

	hash, err := HashRequest(finalizeRequest)
	if err != nil {
		return nil, err
	}
	raw, err := jsonsig.Sign(finalizeResponseJSON{
		MessageType:     MsgFinalizeResponse,
		RequestHash:     &hash,
		ReferenceID:     referenceID,
		TimeStamp:       time.Now().UTC().Truncate(time.Second),
		SoftwareID:      BankSoftwareID,
		SoftwareVersion: SoftwareVersion,
	}, signer)
	if err != nil {
		return nil, Errf(MalformedMessage, "sign finalize response: %v", err)
	}
	return raw, nil
}

// EncodeFinalizeErrorResponse signs a settlement refusal.
func EncodeFinalizeErrorResponse(errorReturn *ErrorReturn, signer jsonsig.Signer) (json.RawMessage, error) {
	if err := errorReturn.Validate(); err != nil {
		return nil, err
	}
	raw, err := jsonsig.Sign(finalizeResponseJSON{
		MessageType:     MsgFinalizeResponse,
		ErrorCode:       &errorReturn.Code,
		Description:     errorReturn.Description,
		TimeStamp:       time.Now().UTC().Truncate(time.Second),
		SoftwareID:      BankSoftwareID,
		SoftwareVersion: SoftwareVersion,
	}, signer)
	if err != nil {
		return nil, Errf(MalformedMessage, "sign finalize error response: %v", err)
	}
	return raw, nil
}

// ParseFinalizeResponse decodes a settlement receipt strictly and enforces
// that it is exactly one of the two forms.
func ParseFinalizeResponse(raw json.RawMessage) (*FinalizeResponse, error) {
	var wire finalizeResponseJSON
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.MessageType != MsgFinalizeResponse {
		return nil, Errf(MalformedMessage, "unexpected message type %q", wire.MessageType)
	}
	if wire.Signature == nil {
		return nil, Errf(MalformedMessage, "finalize response is unsigned")
	}
	resp := &FinalizeResponse{
		ReferenceID: wire.ReferenceID,
		TimeStamp:   wire.TimeStamp,
		raw:         raw,
	}
	switch {
	case wire.RequestHash != nil && wire.ErrorCode == nil:
		resp.RequestHash = wire.RequestHash
	case wire.RequestHash == nil && wire.ErrorCode != nil:
		errorReturn := &ErrorReturn{Code: *wire.ErrorCode, Description: wire.Description}
		if err := errorReturn.Validate(); err != nil {
			return nil, err
		}
		resp.ErrorReturn = errorReturn
	default:
		return nil, Errf(MalformedMessage, "finalize response must carry exactly one of requestHash and errorCode")
	}
	return resp, nil
}

// Verify checks the bank signature and, for a success receipt, that the
// receipt answers the finalize request the caller actually sent.
func (f *FinalizeResponse) Verify(bankRoot *x509.CertPool, sentRequest json.RawMessage) error {
	if _, err := jsonsig.Verify(f.raw, bankRoot); err != nil {
		return wrapSignatureError(err, "finalize response")
	}
	if f.RequestHash != nil {
		return f.RequestHash.Verify(sentRequest)
	}
	return nil
}

// Raw returns the exact signed receipt bytes.
func (f *FinalizeResponse) Raw() json.RawMessage { return f.raw }
