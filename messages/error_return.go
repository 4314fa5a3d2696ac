package messages

// ErrorReturn carries the closed set of business errors related to the
// payer's account. It travels inside the protocol's own error channel, not
// as a transport-level status.
type ErrorReturn struct {
	Code        ReturnCode `json:"errorCode"`
	Description string     `json:"description,omitempty"`
}

// ReturnCode is the wire form of a business error.
type ReturnCode int

const (
	ReturnInsufficientFunds ReturnCode = 0
	ReturnExpiredCredential ReturnCode = 1
	ReturnBlockedAccount    ReturnCode = 2
	ReturnOtherError        ReturnCode = 3
)

var returnCodeText = map[ReturnCode]string{
	ReturnInsufficientFunds: "Insufficient Funds",
	ReturnExpiredCredential: "Expired Credential",
	ReturnBlockedAccount:    "Account is blocked",
	ReturnOtherError:        "Other Error",
}

// ClearText returns the fixed human text for the code.
func (c ReturnCode) ClearText() string {
	return returnCodeText[c]
}

// NewErrorReturn validates that the code is a member of the closed set and
// that the catch-all carries a description for diagnosis.
func NewErrorReturn(code ReturnCode, description string) (*ErrorReturn, error) {
	if _, ok := returnCodeText[code]; !ok {
		return nil, Errf(UnknownErrorCode, "error code %d", code)
	}
	if code == ReturnOtherError && description == "" {
		return nil, Errf(MalformedMessage, "error code %d requires a description", code)
	}
	return &ErrorReturn{Code: code, Description: description}, nil
}

// Validate rejects codes outside the closed set after parsing.
func (e *ErrorReturn) Validate() error {
	if _, ok := returnCodeText[e.Code]; !ok {
		return Errf(UnknownErrorCode, "error code %d", e.Code)
	}
	return nil
}
