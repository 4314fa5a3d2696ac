package messages

import (
	"encoding/json"
)

// InvokeWallet is the merchant's unsigned kick-off message to the payer's
// wallet: which account types the merchant accepts, whether the payment is
// pull mode, and the signed payment request to authorize.
type InvokeWallet struct {
	AcceptedAccountTypes []string
	PullPayment          bool
	PaymentRequest       json.RawMessage
}

type invokeWalletJSON struct {
	MessageType          string          `json:"messageType"`
	AcceptedAccountTypes []string        `json:"acceptedCardTypes"`
	PullPayment          bool            `json:"pullPayment"`
	PaymentRequest       json.RawMessage `json:"paymentRequest"`
}

// EncodeInvokeWallet builds the invocation message around a signed payment
// request.
func EncodeInvokeWallet(paymentRequest json.RawMessage, acceptedAccountTypes []string,
	pullPayment bool) (json.RawMessage, error) {

	if len(paymentRequest) == 0 {
		return nil, Errf(MalformedMessage, "missing payment request")
	}
	if len(acceptedAccountTypes) == 0 {
		return nil, Errf(MalformedMessage, "no accepted account types")
	}
	for _, t := range acceptedAccountTypes {
		if _, err := IsAcquirerBased(t); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(invokeWalletJSON{
		MessageType:          MsgInvocation,
		AcceptedAccountTypes: acceptedAccountTypes,
		PullPayment:          pullPayment,
		PaymentRequest:       paymentRequest,
	})
	if err != nil {
		return nil, Errf(MalformedMessage, "encode invocation: %v", err)
	}
	return raw, nil
}

// ParseInvokeWallet decodes an invocation message strictly. The embedded
// payment request is structurally re-parsed by the wallet before display.
func ParseInvokeWallet(raw json.RawMessage) (*InvokeWallet, error) {
	var wire invokeWalletJSON
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.MessageType != MsgInvocation {
		return nil, Errf(MalformedMessage, "unexpected message type %q", wire.MessageType)
	}
	if len(wire.PaymentRequest) == 0 {
		return nil, Errf(MalformedMessage, "missing payment request")
	}
	if len(wire.AcceptedAccountTypes) == 0 {
		return nil, Errf(MalformedMessage, "no accepted account types")
	}
	return &InvokeWallet{
		AcceptedAccountTypes: wire.AcceptedAccountTypes,
		PullPayment:          wire.PullPayment,
		PaymentRequest:       wire.PaymentRequest,
	}, nil
}
