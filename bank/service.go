package bank

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/alovak/webpay-playground/internal/httpjson"
	"github.com/alovak/webpay-playground/internal/refid"
	"github.com/alovak/webpay-playground/messages"
)

// initialReferenceID is where the per-process counter starts.
const initialReferenceID = 164006

// Service implements the bank side of the protocol. It holds read-only
// verification context and no per-transaction state; everything it needs to
// judge a transaction arrives inside the message chain itself.
type Service struct {
	config      *Config
	authorities *httpjson.Client
	refs        *refid.Counter
}

func NewService(config *Config) *Service {
	return &Service{
		config:      config,
		authorities: httpjson.New(config.AuthorityTimeout),
		refs:        refid.NewCounter(initialReferenceID),
	}
}

// Transact handles a reserve-or-debit request: recover the payer
// authorization (decrypting the pull envelope when present), verify the
// nested signatures, apply the business checks, and answer with a signed
// response. The settlement itself is a stub; a request that passes every
// check is approved.
func (s *Service) Transact(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	request, err := messages.ParseReserveOrDebitRequest(raw)
	if err != nil {
		return nil, err
	}
	auth, err := request.Authorization(s.config.DecryptionKeys)
	if err != nil {
		return nil, err
	}
	if err := auth.Verify(s.config.PayerRoot, s.config.MerchantRoot); err != nil {
		return nil, err
	}

	paymentRequest := auth.PaymentRequest
	now := time.Now()
	if now.After(paymentRequest.Expires) {
		return nil, messages.Errf(messages.MalformedMessage,
			"payment request expired %s", paymentRequest.Expires)
	}
	if paymentRequest.Amount.GreaterThan(s.config.AmountCeiling) {
		return nil, messages.Errf(messages.AmountExceedsLimit,
			"amount %s exceeds the transaction ceiling", paymentRequest.Amount.StringFixed(2))
	}

	accountID := auth.AccountID
	var protected *messages.EncryptedData
	acquirerBased, err := messages.IsAcquirerBased(auth.AccountType)
	if err != nil {
		return nil, err
	}
	if acquirerBased {
		authority, err := s.fetchAcquirerAuthority(ctx, request.AuthURL, auth.AccountType)
		if err != nil {
			return nil, err
		}
		if err := authority.CheckValidAt(now); err != nil {
			return nil, err
		}
		protected, err = messages.Encrypt([]byte(auth.AccountID),
			authority.PublicKey, authority.KeyEncryptionAlgorithm)
		if err != nil {
			return nil, err
		}
		// Past this point only the acquirer can read the account id.
		accountID = maskAccountID(auth.AccountID)
	}

	return messages.EncodeReserveOrDebitResponse(request, auth.EmbeddedPaymentRequest(),
		auth.AccountType, accountID, protected, s.refs.Next(), s.config.Signer)
}

// Finalize settles a previous reservation. With no transaction store the
// checks are the signatures and the hash binding carried by the message.
func (s *Service) Finalize(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	request, err := messages.ParseFinalizeRequest(raw)
	if err != nil {
		return nil, err
	}
	if err := request.Verify(s.config.MerchantRoot); err != nil {
		return nil, err
	}
	paymentRequest, err := messages.ParsePaymentRequest(request.PaymentRequest)
	if err != nil {
		return nil, err
	}
	if err := paymentRequest.Verify(s.config.MerchantRoot); err != nil {
		return nil, err
	}
	return messages.EncodeFinalizeResponse(request.Raw(), s.refs.Next(), s.config.Signer)
}

// Authority returns the bank's signed trust-anchor object. It is encoded
// per call so the expiry window always runs from now.
func (s *Service) Authority() (json.RawMessage, error) {
	holder, err := messages.SelectDecryptionKey(s.config.DecryptionKeys, messages.AlgRSAOAEP256)
	if err != nil {
		holder, err = messages.SelectDecryptionKey(s.config.DecryptionKeys, messages.AlgECDHES)
		if err != nil {
			return nil, err
		}
	}
	return messages.EncodeAuthority(s.config.AuthorityURL, s.config.TransactionURL,
		holder.PublicKey, time.Now().Add(s.config.AuthorityValidity), s.config.Signer)
}

// ErrorResponse converts a transaction failure into the protocol's signed
// error channel. Only the taxonomy code and its message go on the wire.
func (s *Service) ErrorResponse(err error) (json.RawMessage, error) {
	code := messages.CodeOf(err)
	if code == "" {
		return nil, err
	}
	return messages.EncodeErrorResponse(code, err.Error(), s.config.Signer)
}

// fetchAcquirerAuthority resolves the acquirer's authority endpoint: the
// wallet credential carries it in the request's authUrl, configuration is
// the fallback. Trust does not come from the URL; whatever is fetched must
// still verify against the acquirer root and match its own claimed identity.
func (s *Service) fetchAcquirerAuthority(ctx context.Context, authURL, accountType string) (*messages.Authority, error) {
	url := authURL
	if url == "" {
		var ok bool
		url, ok = s.config.AcquirerAuthorityURLs[accountType]
		if !ok {
			return nil, messages.Errf(messages.AuthorityFetchFailed,
				"no acquirer authority known for account type %q", accountType)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.AuthorityTimeout)
	defer cancel()

	raw, err := s.authorities.Get(ctx, url)
	if err != nil {
		if isTimeout(err) {
			return nil, messages.Wrap(messages.NetworkTimeout, err, "fetch authority %s", url)
		}
		return nil, messages.Wrap(messages.AuthorityFetchFailed, err, "fetch authority %s", url)
	}
	return messages.ParseAuthority(raw, url, s.config.AcquirerRoot)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// maskAccountID keeps the last four characters visible, matching what card
// receipts show.
func maskAccountID(accountID string) string {
	if len(accountID) <= 4 {
		return accountID
	}
	return strings.Repeat("*", len(accountID)-4) + accountID[len(accountID)-4:]
}
