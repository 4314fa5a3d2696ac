package merchant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alovak/webpay-playground/internal/httpjson"
	"github.com/alovak/webpay-playground/internal/refid"
	"github.com/alovak/webpay-playground/messages"
)

// initialReferenceID is where the merchant's per-process counter starts.
const initialReferenceID = 1000000

// Service runs checkout sessions against the transport bank.
type Service struct {
	config   *Config
	sessions *Repository
	bank     *httpjson.Client
	refs     *refid.Counter
}

func NewService(config *Config, sessions *Repository) *Service {
	return &Service{
		config:   config,
		sessions: sessions,
		bank:     httpjson.New(config.BankTimeout),
		refs:     refid.NewCounter(initialReferenceID),
	}
}

// Checkout issues a signed payment request and the wallet invocation message
// around it, and opens a session in the invoked state.
func (s *Service) Checkout(amount decimal.Decimal, currencyCode string) (*Session, error) {
	currency, err := messages.CurrencyFromCode(currencyCode)
	if err != nil {
		return nil, err
	}
	paymentRequest, err := messages.EncodePaymentRequest(s.config.PayeeName, amount, currency,
		s.refs.Next(), time.Now().Add(s.config.RequestValidity), s.config.Signer)
	if err != nil {
		return nil, err
	}
	invoke, err := messages.EncodeInvokeWallet(paymentRequest,
		s.config.AcceptedAccountTypes, s.config.PullPayment)
	if err != nil {
		return nil, err
	}
	hash, err := messages.HashRequest(paymentRequest)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:             uuid.New().String(),
		State:          StateInvoked,
		PaymentRequest: paymentRequest,
		RequestHash:    hash,
		Invoke:         invoke,
	}
	s.sessions.CreateSession(session)
	return session, nil
}

func (s *Service) GetSession(sessionID string) (*Session, error) {
	return s.sessions.GetSession(sessionID)
}

// Authorize accepts the wallet's authorization message, forwards it to the
// bank as a reserve-or-debit request and verifies the signed answer. Any
// failure moves the session to the error state for good.
func (s *Service) Authorize(ctx context.Context, sessionID string, walletMessage json.RawMessage,
	clientIPAddress string) (*Session, error) {

	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	authData, authURL, err := s.unpackWalletMessage(session, walletMessage)
	if err != nil {
		return session, s.fail(session, err)
	}
	if err := session.advance(StateAuthorized); err != nil {
		return session, err
	}

	request, err := messages.EncodeReserveOrDebitRequest(authData, authURL,
		s.config.Reserve, clientIPAddress)
	if err != nil {
		return session, s.fail(session, err)
	}
	rawResponse, err := s.bank.Post(ctx, s.config.BankURL+"/transact", request)
	if err != nil {
		return session, s.fail(session, messages.Wrap(messages.NetworkTimeout, err, "bank transact"))
	}
	if peekMessageType(rawResponse) == messages.MsgErrorResponse {
		return session, s.fail(session, s.peerError(rawResponse))
	}

	response, err := messages.ParseReserveOrDebitResponse(rawResponse)
	if err != nil {
		return session, s.fail(session, err)
	}
	if err := response.Verify(s.config.BankRoot, request); err != nil {
		return session, s.fail(session, err)
	}
	// The bank must have authorized the exact request this session issued.
	if err := session.RequestHash.Verify(response.PaymentRequest); err != nil {
		return session, s.fail(session, err)
	}
	if response.Reserve != s.config.Reserve {
		return session, s.fail(session, messages.Errf(messages.MalformedMessage,
			"bank flipped the reserve flag"))
	}

	if err := session.advance(StateSettled); err != nil {
		return session, err
	}
	session.AccountType = response.AccountType
	session.AccountID = response.AccountID
	session.BankReferenceID = response.ReferenceID
	return session, nil
}

// Finalize settles a reserved session and verifies the bank's receipt.
func (s *Service) Finalize(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.State != StateSettled {
		return session, fmt.Errorf("session %s is %s, not %s", session.ID, session.State, StateSettled)
	}

	request, err := messages.EncodeFinalizeRequest(session.PaymentRequest,
		session.BankReferenceID, s.config.Signer)
	if err != nil {
		return session, s.fail(session, err)
	}
	rawResponse, err := s.bank.Post(ctx, s.config.BankURL+"/finalize", request)
	if err != nil {
		return session, s.fail(session, messages.Wrap(messages.NetworkTimeout, err, "bank finalize"))
	}
	if peekMessageType(rawResponse) == messages.MsgErrorResponse {
		return session, s.fail(session, s.peerError(rawResponse))
	}

	response, err := messages.ParseFinalizeResponse(rawResponse)
	if err != nil {
		return session, s.fail(session, err)
	}
	if err := response.Verify(s.config.BankRoot, request); err != nil {
		return session, s.fail(session, err)
	}
	if response.ErrorReturn != nil {
		return session, s.fail(session, messages.Errf(messages.UnknownErrorCode,
			"bank declined settlement: %s", response.ErrorReturn.Code.ClearText()))
	}

	if err := session.advance(StateFinalized); err != nil {
		return session, err
	}
	session.SettleReferenceID = response.ReferenceID
	return session, nil
}

// unpackWalletMessage accepts either the cleartext signed authorization or
// the pull wrapper. The cleartext form is checked against the session's
// payment request right away; the encrypted form can only be checked by the
// bank, so it is forwarded opaquely together with its authority URL.
func (s *Service) unpackWalletMessage(session *Session, walletMessage json.RawMessage) (json.RawMessage, string, error) {
	switch peekMessageType(walletMessage) {
	case messages.MsgPayerGenericAuthReq:
		auth, err := messages.ParseAuthorizationData(walletMessage)
		if err != nil {
			return nil, "", err
		}
		if err := session.RequestHash.Verify(auth.EmbeddedPaymentRequest()); err != nil {
			return nil, "", err
		}
		return walletMessage, "", nil

	case messages.MsgPayerPullAuthReq:
		pull, err := messages.ParsePullAuthorizationRequest(walletMessage)
		if err != nil {
			return nil, "", err
		}
		payload, err := json.Marshal(pull.AuthData)
		if err != nil {
			return nil, "", messages.Errf(messages.MalformedMessage, "reencode pull payload: %v", err)
		}
		return payload, pull.AuthURL, nil

	default:
		return nil, "", messages.Errf(messages.MalformedMessage,
			"unexpected wallet message type %q", peekMessageType(walletMessage))
	}
}

// peerError turns a signed error-response into a local error, provided the
// signature checks out.
func (s *Service) peerError(raw json.RawMessage) error {
	response, err := messages.ParseErrorResponse(raw)
	if err != nil {
		return err
	}
	if err := response.Verify(s.config.BankRoot); err != nil {
		return err
	}
	return response.Err()
}

func (s *Service) fail(session *Session, err error) error {
	session.advance(StateError)
	session.FailureCode = messages.CodeOf(err)
	return err
}

func peekMessageType(raw json.RawMessage) string {
	var probe struct {
		MessageType string `json:"messageType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.MessageType
}
