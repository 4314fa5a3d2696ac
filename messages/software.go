package messages

import (
	"bytes"
	"encoding/json"
)

// Software identifiers stamped on signed messages, one per party.
const (
	SoftwareVersion    = "1.00"
	WalletSoftwareID   = "WebPay - Wallet"
	MerchantSoftwareID = "WebPay - Merchant"
	BankSoftwareID     = "WebPay - Bank"
	AcquirerSoftwareID = "WebPay - Acquirer"
)

// strictUnmarshal decodes exactly one JSON object into v and fails on any
// field v does not declare. Unknown fields are a hard parse failure to keep
// signed messages free of smuggled content.
func strictUnmarshal(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Errf(MalformedMessage, "decode message: %v", err)
	}
	// Trailing content after the object is as bad as an unknown field.
	if dec.More() {
		return Errf(MalformedMessage, "trailing data after JSON object")
	}
	return nil
}
