package messages

import (
	"crypto/x509"
	"encoding/json"
	"time"

	"github.com/alovak/webpay-playground/internal/jsonsig"
)

// knownCodes is the closed set a peer may put on the wire. Anything else
// fails parsing rather than flowing through as an unvetted string.
var knownCodes = map[Code]struct{}{
	MalformedMessage:        {},
	SignatureInvalid:        {},
	UnsupportedAlgorithm:    {},
	NoMatchingDecryptionKey: {},
	AmountExceedsLimit:      {},
	RequestHashMismatch:     {},
	AuthorityFetchFailed:    {},
	AuthorityExpired:        {},
	UnknownErrorCode:        {},
	NetworkTimeout:          {},
}

// ErrorResponse is the protocol's own error channel: a bank-signed refusal
// carried in an HTTP 200 body in place of the expected response message.
type ErrorResponse struct {
	Code        Code
	Description string
	TimeStamp   time.Time

	raw json.RawMessage
}

type errorResponseJSON struct {
	MessageType     string          `json:"messageType"`
	ErrorCode       Code            `json:"errorCode"`
	Description     string          `json:"description"`
	TimeStamp       time.Time       `json:"timeStamp"`
	SoftwareID      string          `json:"softwareId"`
	SoftwareVersion string          `json:"softwareVersion"`
	Signature       json.RawMessage `json:"signature,omitempty"`
}

// EncodeErrorResponse signs a refusal. The description must not leak
// internals; callers pass the taxonomy message, not wrapped cause chains.
func EncodeErrorResponse(code Code, description string, signer jsonsig.Signer) (json.RawMessage, error) {
	if _, ok := knownCodes[code]; !ok {
		return nil, Errf(UnknownErrorCode, "error code %q", code)
	}
	raw, err := jsonsig.Sign(errorResponseJSON{
		MessageType:     MsgErrorResponse,
		ErrorCode:       code,
		Description:     description,
		TimeStamp:       time.Now().UTC().Truncate(time.Second),
		SoftwareID:      BankSoftwareID,
		SoftwareVersion: SoftwareVersion,
	}, signer)
	if err != nil {
		return nil, Errf(MalformedMessage, "sign error response: %v", err)
	}
	return raw, nil
}

// ParseErrorResponse decodes a refusal strictly, rejecting codes outside the
// closed set.
func ParseErrorResponse(raw json.RawMessage) (*ErrorResponse, error) {
	var wire errorResponseJSON
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.MessageType != MsgErrorResponse {
		return nil, Errf(MalformedMessage, "unexpected message type %q", wire.MessageType)
	}
	if wire.Signature == nil {
		return nil, Errf(MalformedMessage, "error response is unsigned")
	}
	if _, ok := knownCodes[wire.ErrorCode]; !ok {
		return nil, Errf(UnknownErrorCode, "error code %q", wire.ErrorCode)
	}
	return &ErrorResponse{
		Code:        wire.ErrorCode,
		Description: wire.Description,
		TimeStamp:   wire.TimeStamp,
		raw:         raw,
	}, nil
}

// Verify checks the bank signature on the refusal.
func (e *ErrorResponse) Verify(bankRoot *x509.CertPool) error {
	if _, err := jsonsig.Verify(e.raw, bankRoot); err != nil {
		return wrapSignatureError(err, "error response")
	}
	return nil
}

// Err converts the refusal into a local taxonomy error.
func (e *ErrorResponse) Err() error {
	return Errf(e.Code, "peer refused: %s", e.Description)
}

// Raw returns the exact signed refusal bytes.
func (e *ErrorResponse) Raw() json.RawMessage { return e.raw }
