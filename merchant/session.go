package merchant

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/alovak/webpay-playground/messages"
)

// State is a checkout session's position in the linear payment flow.
type State string

const (
	StateInvoked    State = "invoked"
	StateAuthorized State = "authorized"
	StateSettled    State = "settled"
	StateFinalized  State = "finalized"
	StateError      State = "error"
)

// nextState is the only legal forward step from each state. The flow is
// strictly linear; there is no skipping and no going back.
var nextState = map[State]State{
	StateInvoked:    StateAuthorized,
	StateAuthorized: StateSettled,
	StateSettled:    StateFinalized,
}

// Session tracks one checkout from wallet invocation to settlement. A failed
// session stays failed; the payer starts over with a new checkout.
type Session struct {
	// mu serializes requests touching the same session. The flow is
	// strictly linear, so the second of two concurrent requests is an
	// illegal transition, not something to queue.
	mu sync.Mutex

	ID    string
	State State

	// PaymentRequest holds the signed request exactly as issued; every later
	// message must bind to these bytes.
	PaymentRequest json.RawMessage
	RequestHash    messages.RequestHash
	Invoke         json.RawMessage

	AccountType       string
	AccountID         string
	BankReferenceID   string
	SettleReferenceID string
	FailureCode       messages.Code
}

// advance moves the session one state forward. The error state is absorbing
// and reachable from anywhere.
func (s *Session) advance(to State) error {
	if to == StateError {
		s.State = StateError
		return nil
	}
	if s.State == StateError {
		return fmt.Errorf("session %s has failed and is not resumable", s.ID)
	}
	if nextState[s.State] != to {
		return fmt.Errorf("session %s cannot move from %s to %s", s.ID, s.State, to)
	}
	s.State = to
	return nil
}
