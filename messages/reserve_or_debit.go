package messages

import (
	"crypto/x509"
	"encoding/json"
	"time"

	"github.com/alovak/webpay-playground/internal/jsonsig"
)

// ReserveOrDebitRequest is the merchant's call to the bank. It is an
// unsigned transport wrapper: the trust lives in the payer authorization it
// carries, either in the clear (direct mode) or encrypted toward the bank
// (pull mode, in which case AuthURL names the acquirer authority to consult).
type ReserveOrDebitRequest struct {
	Reserve         bool
	AuthData        json.RawMessage
	AuthURL         string
	ClientIPAddress string
	TimeStamp       time.Time

	raw json.RawMessage
}

type reserveOrDebitRequestJSON struct {
	MessageType     string          `json:"messageType"`
	Reserve         bool            `json:"reserve"`
	AuthData        json.RawMessage `json:"authData"`
	AuthURL         string          `json:"authUrl,omitempty"`
	ClientIPAddress string          `json:"clientIpAddress"`
	TimeStamp       time.Time       `json:"timeStamp"`
}

// EncodeReserveOrDebitRequest wraps payer authorization data for the bank.
// authURL carries the authority endpoint the wallet credential named, when
// it named one; for pull payloads that is the only routable hint the bank
// gets, since the payload itself is opaque to the merchant.
func EncodeReserveOrDebitRequest(authData json.RawMessage, authURL string,
	reserve bool, clientIPAddress string) (json.RawMessage, error) {

	if len(authData) == 0 {
		return nil, Errf(MalformedMessage, "missing authorization data")
	}
	raw, err := json.Marshal(reserveOrDebitRequestJSON{
		MessageType:     MsgReserveOrDebitReq,
		Reserve:         reserve,
		AuthData:        authData,
		AuthURL:         authURL,
		ClientIPAddress: clientIPAddress,
		TimeStamp:       time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		return nil, Errf(MalformedMessage, "encode reserve-or-debit request: %v", err)
	}
	return raw, nil
}

// ParseReserveOrDebitRequest decodes the wrapper strictly. The authorization
// payload inside is resolved later by Authorization.
func ParseReserveOrDebitRequest(raw json.RawMessage) (*ReserveOrDebitRequest, error) {
	var wire reserveOrDebitRequestJSON
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.MessageType != MsgReserveOrDebitReq {
		return nil, Errf(MalformedMessage, "unexpected message type %q", wire.MessageType)
	}
	if len(wire.AuthData) == 0 {
		return nil, Errf(MalformedMessage, "missing authorization data")
	}
	return &ReserveOrDebitRequest{
		Reserve:         wire.Reserve,
		AuthData:        wire.AuthData,
		AuthURL:         wire.AuthURL,
		ClientIPAddress: wire.ClientIPAddress,
		TimeStamp:       wire.TimeStamp,
		raw:             raw,
	}, nil
}

// Encrypted reports whether the authorization payload is the pull-mode
// hybrid envelope rather than cleartext signed authorization data.
func (r *ReserveOrDebitRequest) Encrypted() bool {
	var probe struct {
		EncryptedData json.RawMessage `json:"encryptedData"`
	}
	if err := json.Unmarshal(r.AuthData, &probe); err != nil {
		return false
	}
	return len(probe.EncryptedData) > 0
}

// Authorization recovers the signed payer authorization, decrypting the
// pull envelope with one of the bank's key holders when needed.
func (r *ReserveOrDebitRequest) Authorization(holders []DecryptionKeyHolder) (*AuthorizationData, error) {
	if !r.Encrypted() {
		return ParseAuthorizationData(r.AuthData)
	}
	var payload pullAuthPayload
	if err := strictUnmarshal(r.AuthData, &payload); err != nil {
		return nil, err
	}
	if payload.EncryptedData == nil || payload.EncryptedData.EncryptedKey == nil {
		return nil, Errf(MalformedMessage, "missing encrypted authorization data")
	}
	holder, err := SelectDecryptionKey(holders, payload.EncryptedData.EncryptedKey.Algorithm)
	if err != nil {
		return nil, err
	}
	plaintext, err := payload.EncryptedData.Decrypt(holder)
	if err != nil {
		return nil, err
	}
	return ParseAuthorizationData(plaintext)
}

// Raw returns the exact request bytes as received, the input to the
// response's request hash.
func (r *ReserveOrDebitRequest) Raw() json.RawMessage { return r.raw }

// ReserveOrDebitResponse is the bank's signed answer. It embeds the original
// payment request so the merchant can check that the bank authorized exactly
// what was asked, and binds to the request through a hash over its canonical
// form.
type ReserveOrDebitResponse struct {
	Reserve              bool
	PaymentRequest       json.RawMessage
	AccountType          string
	AccountID            string
	ProtectedAccountData *EncryptedData
	RequestHash          RequestHash
	ReferenceID          string
	TimeStamp            time.Time

	raw json.RawMessage
}

type reserveOrDebitResponseJSON struct {
	MessageType          string          `json:"messageType"`
	Reserve              bool            `json:"reserve"`
	PaymentRequest       json.RawMessage `json:"paymentRequest"`
	AccountType          string          `json:"accountType"`
	AccountID            string          `json:"accountId"`
	ProtectedAccountData *EncryptedData  `json:"protectedAccountData,omitempty"`
	RequestHash          RequestHash     `json:"requestHash"`
	ReferenceID          string          `json:"referenceId"`
	TimeStamp            time.Time       `json:"timeStamp"`
	SoftwareID           string          `json:"softwareId"`
	SoftwareVersion      string          `json:"softwareVersion"`
	Signature            json.RawMessage `json:"signature,omitempty"`
}

// EncodeReserveOrDebitResponse signs the bank's answer to a request. In pull
// mode protectedAccountData carries the account id encrypted toward the
// acquirer and accountID is the masked form; in direct mode it is nil.
func EncodeReserveOrDebitResponse(request *ReserveOrDebitRequest, paymentRequest json.RawMessage,
	accountType, accountID string, protected *EncryptedData, referenceID string,
	signer jsonsig.Signer) (json.RawMessage, error) {

	hash, err := HashRequest(request.Raw())
	if err != nil {
		return nil, err
	}
	raw, err := jsonsig.Sign(reserveOrDebitResponseJSON{
		MessageType:          MsgReserveOrDebitResp,
		Reserve:              request.Reserve,
		PaymentRequest:       paymentRequest,
		AccountType:          accountType,
		AccountID:            accountID,
		ProtectedAccountData: protected,
		RequestHash:          hash,
		ReferenceID:          referenceID,
		TimeStamp:            time.Now().UTC().Truncate(time.Second),
		SoftwareID:           BankSoftwareID,
		SoftwareVersion:      SoftwareVersion,
	}, signer)
	if err != nil {
		return nil, Errf(MalformedMessage, "sign reserve-or-debit response: %v", err)
	}
	return raw, nil
}

// ParseReserveOrDebitResponse decodes the bank answer strictly.
func ParseReserveOrDebitResponse(raw json.RawMessage) (*ReserveOrDebitResponse, error) {
	var wire reserveOrDebitResponseJSON
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.MessageType != MsgReserveOrDebitResp {
		return nil, Errf(MalformedMessage, "unexpected message type %q", wire.MessageType)
	}
	if wire.Signature == nil {
		return nil, Errf(MalformedMessage, "reserve-or-debit response is unsigned")
	}
	if len(wire.PaymentRequest) == 0 {
		return nil, Errf(MalformedMessage, "missing embedded payment request")
	}
	if _, err := IsAcquirerBased(wire.AccountType); err != nil {
		return nil, err
	}
	return &ReserveOrDebitResponse{
		Reserve:              wire.Reserve,
		PaymentRequest:       wire.PaymentRequest,
		AccountType:          wire.AccountType,
		AccountID:            wire.AccountID,
		ProtectedAccountData: wire.ProtectedAccountData,
		RequestHash:          wire.RequestHash,
		ReferenceID:          wire.ReferenceID,
		TimeStamp:            wire.TimeStamp,
		raw:                  raw,
	}, nil
}

// Verify checks the bank signature and that the response is bound to the
// request the caller actually sent.
func (r *ReserveOrDebitResponse) Verify(bankRoot *x509.CertPool, sentRequest json.RawMessage) error {
	if _, err := jsonsig.Verify(r.raw, bankRoot); err != nil {
		return wrapSignatureError(err, "reserve-or-debit response")
	}
	return r.RequestHash.Verify(sentRequest)
}

// Raw returns the exact signed response bytes.
func (r *ReserveOrDebitResponse) Raw() json.RawMessage { return r.raw }
