package bank_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/alovak/webpay-playground/acquirer"
	"github.com/alovak/webpay-playground/bank"
	"github.com/alovak/webpay-playground/keyprovider"
	"github.com/alovak/webpay-playground/messages"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard))
}

func testKeys(t *testing.T) *keyprovider.Set {
	t.Helper()
	keys, err := keyprovider.New()
	require.NoError(t, err)
	return keys
}

func bankConfig(keys *keyprovider.Set) *bank.Config {
	config := bank.DefaultConfig()
	config.Signer = keys.Bank.Signer
	config.PayerRoot = keys.Payer.Root
	config.MerchantRoot = keys.Merchant.Root
	config.AcquirerRoot = keys.Acquirer.Root
	config.DecryptionKeys = keys.BankDecryptionKeys
	return config
}

// startAcquirer serves a real acquirer over httptest and returns its
// authority URL together with the service for direct decryption checks.
func startAcquirer(t *testing.T, keys *keyprovider.Set, validity time.Duration) (string, *acquirer.Service) {
	t.Helper()

	ts := httptest.NewUnstartedServer(nil)
	base := "http://" + ts.Listener.Addr().String()

	config := acquirer.DefaultConfig()
	config.AuthorityURL = base + "/authority"
	config.TransactionURL = base + "/protected"
	config.AuthorityValidity = validity
	config.Signer = keys.Acquirer.Signer
	config.DecryptionKeys = keys.AcquirerDecryptionKeys

	service := acquirer.NewService(config)
	router := chi.NewRouter()
	acquirer.NewAPI(service, testLogger()).AppendRoutes(router)
	ts.Config.Handler = router
	ts.Start()
	t.Cleanup(ts.Close)

	return config.AuthorityURL, service
}

func paymentRequest(t *testing.T, keys *keyprovider.Set, amount string) json.RawMessage {
	t.Helper()
	usd, err := messages.CurrencyFromCode("USD")
	require.NoError(t, err)
	raw, err := messages.EncodePaymentRequest("Space Shop", decimal.RequireFromString(amount),
		usd, "#1000000", time.Now().Add(30*time.Minute), keys.Merchant.Signer)
	require.NoError(t, err)
	return raw
}

func reserveRequest(t *testing.T, keys *keyprovider.Set, accountType, accountID, amount string) json.RawMessage {
	t.Helper()
	authData, err := messages.EncodeAuthorizationData(paymentRequest(t, keys, amount),
		"spaceshop.com", accountType, accountID, keys.Payer.Signer)
	require.NoError(t, err)
	raw, err := messages.EncodeReserveOrDebitRequest(authData, "", true, "220.13.198.144")
	require.NoError(t, err)
	return raw
}

func TestTransactPush(t *testing.T) {
	keys := testKeys(t)
	service := bank.NewService(bankConfig(keys))

	request := reserveRequest(t, keys, messages.AccountTypeBankAccount, "8645-7800239403", "25.00")
	raw, err := service.Transact(context.Background(), request)
	require.NoError(t, err)

	response, err := messages.ParseReserveOrDebitResponse(raw)
	require.NoError(t, err)
	require.NoError(t, response.Verify(keys.Bank.Root, request))
	require.Equal(t, "#164006", response.ReferenceID)
	require.Equal(t, messages.AccountTypeBankAccount, response.AccountType)
	require.Equal(t, "8645-7800239403", response.AccountID)
	require.Nil(t, response.ProtectedAccountData)

	// Reference ids increase per transaction within a process run.
	second := reserveRequest(t, keys, messages.AccountTypeBankAccount, "8645-7800239403", "10.00")
	raw, err = service.Transact(context.Background(), second)
	require.NoError(t, err)
	response, err = messages.ParseReserveOrDebitResponse(raw)
	require.NoError(t, err)
	require.Equal(t, "#164007", response.ReferenceID)
}

func TestTransactCardPath(t *testing.T) {
	keys := testKeys(t)
	authorityURL, acquirerService := startAcquirer(t, keys, time.Hour)

	config := bankConfig(keys)
	config.AcquirerAuthorityURLs = map[string]string{
		messages.AccountTypeSuperCard: authorityURL,
	}
	service := bank.NewService(config)

	request := reserveRequest(t, keys, messages.AccountTypeSuperCard, "6875056745552109", "25.00")
	raw, err := service.Transact(context.Background(), request)
	require.NoError(t, err)

	response, err := messages.ParseReserveOrDebitResponse(raw)
	require.NoError(t, err)
	require.NoError(t, response.Verify(keys.Bank.Root, request))
	require.Equal(t, "************2109", response.AccountID)
	require.NotNil(t, response.ProtectedAccountData)

	// Only the acquirer can recover the account id from the envelope.
	envelope, err := json.Marshal(response.ProtectedAccountData)
	require.NoError(t, err)
	accountID, err := acquirerService.Unprotect(envelope)
	require.NoError(t, err)
	require.Equal(t, "6875056745552109", accountID)
}

func TestTransactCardPathAuthorityFromRequest(t *testing.T) {
	keys := testKeys(t)
	authorityURL, acquirerService := startAcquirer(t, keys, time.Hour)

	// No configured acquirer endpoints: the wallet credential carries the
	// acquirer authority URL in the request, and the acquirer-root signature
	// check on the fetched authority supplies the trust.
	service := bank.NewService(bankConfig(keys))

	authData, err := messages.EncodeAuthorizationData(paymentRequest(t, keys, "25.00"),
		"spaceshop.com", messages.AccountTypeSuperCard, "6875056745552109", keys.Payer.Signer)
	require.NoError(t, err)
	holder, err := messages.SelectDecryptionKey(keys.BankDecryptionKeys, messages.AlgECDHES)
	require.NoError(t, err)
	pullRaw, err := messages.EncodePullAuthorizationRequest(authData, authorityURL,
		holder.PublicKey, holder.Algorithm)
	require.NoError(t, err)
	pull, err := messages.ParsePullAuthorizationRequest(pullRaw)
	require.NoError(t, err)
	payload, err := json.Marshal(pull.AuthData)
	require.NoError(t, err)
	request, err := messages.EncodeReserveOrDebitRequest(payload, pull.AuthURL, true, "220.13.198.144")
	require.NoError(t, err)

	raw, err := service.Transact(context.Background(), request)
	require.NoError(t, err)
	response, err := messages.ParseReserveOrDebitResponse(raw)
	require.NoError(t, err)
	require.NotNil(t, response.ProtectedAccountData)

	envelope, err := json.Marshal(response.ProtectedAccountData)
	require.NoError(t, err)
	accountID, err := acquirerService.Unprotect(envelope)
	require.NoError(t, err)
	require.Equal(t, "6875056745552109", accountID)
}

func TestTransactPull(t *testing.T) {
	keys := testKeys(t)
	service := bank.NewService(bankConfig(keys))

	authData, err := messages.EncodeAuthorizationData(paymentRequest(t, keys, "25.00"),
		"spaceshop.com", messages.AccountTypeBankAccount, "8645-7800239403", keys.Payer.Signer)
	require.NoError(t, err)

	holder, err := messages.SelectDecryptionKey(keys.BankDecryptionKeys, messages.AlgRSAOAEP256)
	require.NoError(t, err)
	pullRaw, err := messages.EncodePullAuthorizationRequest(authData,
		"https://bank.example.com/authority", holder.PublicKey, holder.Algorithm)
	require.NoError(t, err)
	pull, err := messages.ParsePullAuthorizationRequest(pullRaw)
	require.NoError(t, err)
	payload, err := json.Marshal(pull.AuthData)
	require.NoError(t, err)

	request, err := messages.EncodeReserveOrDebitRequest(payload, pull.AuthURL, true, "220.13.198.144")
	require.NoError(t, err)

	raw, err := service.Transact(context.Background(), request)
	require.NoError(t, err)
	response, err := messages.ParseReserveOrDebitResponse(raw)
	require.NoError(t, err)
	require.NoError(t, response.Verify(keys.Bank.Root, request))
}

func TestTransactAmountCeiling(t *testing.T) {
	keys := testKeys(t)
	service := bank.NewService(bankConfig(keys))

	// The ceiling itself is accepted.
	atCeiling := reserveRequest(t, keys, messages.AccountTypeBankAccount, "8645-7800239403", "1000000.00")
	_, err := service.Transact(context.Background(), atCeiling)
	require.NoError(t, err)

	above := reserveRequest(t, keys, messages.AccountTypeBankAccount, "8645-7800239403", "1000000.01")
	_, err = service.Transact(context.Background(), above)
	require.Error(t, err)
	require.Equal(t, messages.AmountExceedsLimit, messages.CodeOf(err))
}

func TestTransactRejectsUntrustedPayer(t *testing.T) {
	keys := testKeys(t)
	service := bank.NewService(bankConfig(keys))

	// Authorization signed with a key outside the payer trust root.
	authData, err := messages.EncodeAuthorizationData(paymentRequest(t, keys, "25.00"),
		"spaceshop.com", messages.AccountTypeBankAccount, "8645-7800239403", keys.Acquirer.Signer)
	require.NoError(t, err)
	request, err := messages.EncodeReserveOrDebitRequest(authData, "", true, "220.13.198.144")
	require.NoError(t, err)

	_, err = service.Transact(context.Background(), request)
	require.Error(t, err)
	require.Equal(t, messages.SignatureInvalid, messages.CodeOf(err))
}

func TestTransactAuthorityTimeout(t *testing.T) {
	keys := testKeys(t)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(slow.Close)

	config := bankConfig(keys)
	config.AuthorityTimeout = 50 * time.Millisecond
	config.AcquirerAuthorityURLs = map[string]string{
		messages.AccountTypeSuperCard: slow.URL + "/authority",
	}
	service := bank.NewService(config)

	request := reserveRequest(t, keys, messages.AccountTypeSuperCard, "6875056745552109", "25.00")
	_, err := service.Transact(context.Background(), request)
	require.Error(t, err)
	require.Equal(t, messages.NetworkTimeout, messages.CodeOf(err))
}

func TestTransactExpiredAcquirerAuthority(t *testing.T) {
	keys := testKeys(t)
	authorityURL, _ := startAcquirer(t, keys, -time.Minute)

	config := bankConfig(keys)
	config.AcquirerAuthorityURLs = map[string]string{
		messages.AccountTypeSuperCard: authorityURL,
	}
	service := bank.NewService(config)

	request := reserveRequest(t, keys, messages.AccountTypeSuperCard, "6875056745552109", "25.00")
	_, err := service.Transact(context.Background(), request)
	require.Error(t, err)
	require.Equal(t, messages.AuthorityExpired, messages.CodeOf(err))
}

func TestFinalize(t *testing.T) {
	keys := testKeys(t)
	service := bank.NewService(bankConfig(keys))

	finalizeRaw, err := messages.EncodeFinalizeRequest(paymentRequest(t, keys, "25.00"),
		"#164006", keys.Merchant.Signer)
	require.NoError(t, err)

	raw, err := service.Finalize(context.Background(), finalizeRaw)
	require.NoError(t, err)

	response, err := messages.ParseFinalizeResponse(raw)
	require.NoError(t, err)
	require.Nil(t, response.ErrorReturn)
	require.NoError(t, response.Verify(keys.Bank.Root, finalizeRaw))
}

func TestAPIErrorChannel(t *testing.T) {
	keys := testKeys(t)
	config := bankConfig(keys)

	router := chi.NewRouter()
	bank.NewAPI(bank.NewService(config), testLogger()).AppendRoutes(router)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	// A malformed transaction comes back as a signed error-response with a
	// success transport status.
	resp, err := http.Post(ts.URL+"/transact", "application/json",
		bytes.NewReader([]byte(`{"messageType":"reserve-or-debit-request"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	errorResponse, err := messages.ParseErrorResponse(raw)
	require.NoError(t, err)
	require.NoError(t, errorResponse.Verify(keys.Bank.Root))
	require.Equal(t, messages.MalformedMessage, errorResponse.Code)
}

func TestAPIRejectsWrongContentType(t *testing.T) {
	keys := testKeys(t)

	router := chi.NewRouter()
	bank.NewAPI(bank.NewService(bankConfig(keys)), testLogger()).AppendRoutes(router)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	// Rejected before any message parsing happens.
	resp, err := http.Post(ts.URL+"/transact", "text/plain",
		bytes.NewReader([]byte(`{"messageType":"reserve-or-debit-request"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestAPIAuthority(t *testing.T) {
	keys := testKeys(t)
	config := bankConfig(keys)

	router := chi.NewRouter()
	bank.NewAPI(bank.NewService(config), testLogger()).AppendRoutes(router)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/authority")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	authority, err := messages.ParseAuthority(raw, config.AuthorityURL, keys.Bank.Root)
	require.NoError(t, err)
	require.Equal(t, messages.AlgRSAOAEP256, authority.KeyEncryptionAlgorithm)
}
