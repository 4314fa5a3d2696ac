// Package wallet is the payer's headless agent: it waits for a merchant's
// invocation message, matches one of the payer's accounts against what the
// merchant accepts, checks the payer's PIN, and produces the signed
// authorization. There is no GUI; callers drive it programmatically.
package wallet

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/alovak/webpay-playground/internal/httpjson"
	"github.com/alovak/webpay-playground/internal/jsonsig"
	"github.com/alovak/webpay-playground/messages"
)

var (
	ErrNoMatchingAccount = fmt.Errorf("no account matches the accepted account types")
	ErrBadPIN            = fmt.Errorf("wrong PIN")
	ErrBlocked           = fmt.Errorf("wallet is blocked after too many wrong PINs")
)

// Account is one payment credential held by the wallet. AuthorityURL names
// the payment provider's authority endpoint; accounts without one cannot be
// used for pull payments.
type Account struct {
	Type         string
	ID           string
	AuthorityURL string
}

// Config is the wallet's immutable configuration.
type Config struct {
	// InvocationTimeout bounds the wait for the merchant's invocation
	// message; exceeding it aborts the session.
	InvocationTimeout time.Duration
	FetchTimeout      time.Duration

	// PIN guards signing. PINRetryLimit wrong entries block the wallet.
	PIN           string
	PINRetryLimit int

	Accounts []Account

	Signer       jsonsig.Signer
	MerchantRoot *x509.CertPool
	ProviderRoot *x509.CertPool
}

func DefaultConfig() *Config {
	return &Config{
		InvocationTimeout: 10 * time.Second,
		FetchTimeout:      5 * time.Second,
		PIN:               "1234",
		PINRetryLimit:     3,
	}
}

// Wallet holds the payer's credentials and PIN state. PIN state is the only
// mutable part and is guarded by a mutex.
type Wallet struct {
	config      *Config
	logger      *slog.Logger
	authorities *httpjson.Client

	mu          sync.Mutex
	pinAttempts int
	blocked     bool
}

func New(logger *slog.Logger, config *Config) *Wallet {
	return &Wallet{
		config:      config,
		logger:      logger.With(slog.String("app", "wallet")),
		authorities: httpjson.New(config.FetchTimeout),
	}
}

// AwaitInvocation blocks until an invocation message arrives or the
// configured timeout passes. A timeout is a fatal abort of the session, not
// something to retry.
func (w *Wallet) AwaitInvocation(ctx context.Context, invocations <-chan json.RawMessage) (*messages.InvokeWallet, error) {
	timer := time.NewTimer(w.config.InvocationTimeout)
	defer timer.Stop()

	select {
	case raw := <-invocations:
		return messages.ParseInvokeWallet(raw)
	case <-timer.C:
		return nil, messages.Errf(messages.NetworkTimeout,
			"no invocation within %s, aborting", w.config.InvocationTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MatchAccount picks the first account the merchant accepts. Pull payments
// additionally require the account to name a payment provider authority.
func (w *Wallet) MatchAccount(invoke *messages.InvokeWallet) (*Account, error) {
	accepted := make(map[string]bool, len(invoke.AcceptedAccountTypes))
	for _, t := range invoke.AcceptedAccountTypes {
		accepted[t] = true
	}
	for i := range w.config.Accounts {
		account := &w.config.Accounts[i]
		if !accepted[account.Type] {
			continue
		}
		if invoke.PullPayment && account.AuthorityURL == "" {
			continue
		}
		return account, nil
	}
	return nil, ErrNoMatchingAccount
}

// Authorize verifies and "displays" the payment request, checks the PIN and
// signs the payer's consent. For pull payments the signed consent is
// additionally encrypted toward the payment provider's published key.
func (w *Wallet) Authorize(ctx context.Context, invoke *messages.InvokeWallet,
	account *Account, domainName, pin string) (json.RawMessage, error) {

	if err := w.checkPIN(pin); err != nil {
		return nil, err
	}

	paymentRequest, err := messages.ParsePaymentRequest(invoke.PaymentRequest)
	if err != nil {
		return nil, err
	}
	if err := paymentRequest.Verify(w.config.MerchantRoot); err != nil {
		return nil, err
	}
	if time.Now().After(paymentRequest.Expires) {
		return nil, messages.Errf(messages.MalformedMessage,
			"payment request expired %s", paymentRequest.Expires)
	}

	display, err := paymentRequest.Currency.FormatAmount(paymentRequest.Amount)
	if err != nil {
		return nil, err
	}
	w.logger.Info("payer approved payment",
		slog.String("payee", paymentRequest.Payee),
		slog.String("amount", display),
		slog.String("account", account.ID))

	authData, err := messages.EncodeAuthorizationData(invoke.PaymentRequest,
		domainName, account.Type, account.ID, w.config.Signer)
	if err != nil {
		return nil, err
	}
	if !invoke.PullPayment {
		return authData, nil
	}

	authority, err := w.fetchAuthority(ctx, account.AuthorityURL)
	if err != nil {
		return nil, err
	}
	return messages.EncodePullAuthorizationRequest(authData, account.AuthorityURL,
		authority.PublicKey, authority.KeyEncryptionAlgorithm)
}

// Blocked reports whether the wallet has locked itself after too many wrong
// PIN entries.
func (w *Wallet) Blocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.blocked
}

func (w *Wallet) checkPIN(pin string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.blocked {
		return ErrBlocked
	}
	if pin != w.config.PIN {
		w.pinAttempts++
		if w.pinAttempts >= w.config.PINRetryLimit {
			w.blocked = true
			return ErrBlocked
		}
		return ErrBadPIN
	}
	w.pinAttempts = 0
	return nil
}

func (w *Wallet) fetchAuthority(ctx context.Context, url string) (*messages.Authority, error) {
	ctx, cancel := context.WithTimeout(ctx, w.config.FetchTimeout)
	defer cancel()

	raw, err := w.authorities.Get(ctx, url)
	if err != nil {
		return nil, messages.Wrap(messages.AuthorityFetchFailed, err, "fetch authority %s", url)
	}
	authority, err := messages.ParseAuthority(raw, url, w.config.ProviderRoot)
	if err != nil {
		return nil, err
	}
	if err := authority.CheckValidAt(time.Now()); err != nil {
		return nil, err
	}
	return authority, nil
}
