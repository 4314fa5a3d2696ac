// Command webpay runs the whole playground in one process: acquirer, bank
// and merchant services plus a headless payer wallet, then drives one
// purchase end to end and leaves the services running.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/exp/slog"

	"github.com/alovak/webpay-playground/acquirer"
	"github.com/alovak/webpay-playground/bank"
	"github.com/alovak/webpay-playground/internal/httpjson"
	"github.com/alovak/webpay-playground/keyprovider"
	"github.com/alovak/webpay-playground/merchant"
	"github.com/alovak/webpay-playground/messages"
	"github.com/alovak/webpay-playground/wallet"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout))

	if err := run(logger); err != nil {
		logger.Error("webpay failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	keys, err := keyprovider.New()
	if err != nil {
		return fmt.Errorf("generate keys: %w", err)
	}

	acquirerConfig := acquirer.DefaultConfig()
	acquirerConfig.Signer = keys.Acquirer.Signer
	acquirerConfig.DecryptionKeys = keys.AcquirerDecryptionKeys
	acquirerApp := acquirer.NewApp(logger, acquirerConfig)
	if err := acquirerApp.Start(); err != nil {
		return fmt.Errorf("start acquirer: %w", err)
	}
	defer acquirerApp.Shutdown()

	bankConfig := bank.DefaultConfig()
	bankConfig.Signer = keys.Bank.Signer
	bankConfig.PayerRoot = keys.Payer.Root
	bankConfig.MerchantRoot = keys.Merchant.Root
	bankConfig.AcquirerRoot = keys.Acquirer.Root
	bankConfig.DecryptionKeys = keys.BankDecryptionKeys
	bankConfig.AcquirerAuthorityURLs = map[string]string{
		messages.AccountTypeSuperCard: acquirerConfig.AuthorityURL,
		messages.AccountTypeCoolCard:  acquirerConfig.AuthorityURL,
	}
	bankApp := bank.NewApp(logger, bankConfig)
	if err := bankApp.Start(); err != nil {
		return fmt.Errorf("start bank: %w", err)
	}
	defer bankApp.Shutdown()

	merchantConfig := merchant.DefaultConfig()
	merchantConfig.Signer = keys.Merchant.Signer
	merchantConfig.BankRoot = keys.Bank.Root
	merchantApp := merchant.NewApp(logger, merchantConfig)
	if err := merchantApp.Start(); err != nil {
		return fmt.Errorf("start merchant: %w", err)
	}
	defer merchantApp.Shutdown()

	walletConfig := wallet.DefaultConfig()
	walletConfig.Signer = keys.Payer.Signer
	walletConfig.MerchantRoot = keys.Merchant.Root
	walletConfig.ProviderRoot = keys.Bank.Root
	walletConfig.Accounts = []wallet.Account{
		{Type: messages.AccountTypeBankAccount, ID: "8645-7800239403"},
		{Type: messages.AccountTypeSuperCard, ID: "6875056745552109",
			AuthorityURL: bankConfig.AuthorityURL},
	}
	payer := wallet.New(logger, walletConfig)

	if err := purchase(logger, payer, "http://"+merchantApp.Addr); err != nil {
		return fmt.Errorf("demo purchase: %w", err)
	}

	logger.Info("services running, ctrl-c to stop")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	return nil
}

// purchase drives one checkout through authorization and settlement.
func purchase(logger *slog.Logger, payer *wallet.Wallet, merchantURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shop := httpjson.New(10 * time.Second)

	checkout, err := json.Marshal(merchant.CheckoutRequest{Amount: "25.00", Currency: "USD"})
	if err != nil {
		return err
	}
	raw, err := shop.Post(ctx, merchantURL+"/checkout", checkout)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	var session merchant.SessionStatus
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("decode checkout: %w", err)
	}

	invocations := make(chan json.RawMessage, 1)
	invocations <- session.Invoke
	invoke, err := payer.AwaitInvocation(ctx, invocations)
	if err != nil {
		return fmt.Errorf("await invocation: %w", err)
	}
	account, err := payer.MatchAccount(invoke)
	if err != nil {
		return err
	}
	authorization, err := payer.Authorize(ctx, invoke, account, "spaceshop.com", "1234")
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	raw, err = shop.Post(ctx, merchantURL+"/sessions/"+session.ID+"/authorize", authorization)
	if err != nil {
		return fmt.Errorf("send authorization: %w", err)
	}
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("decode authorization: %w", err)
	}
	if session.State != merchant.StateSettled {
		return fmt.Errorf("session is %s (failure code %q)", session.State, session.FailureCode)
	}

	raw, err = shop.Post(ctx, merchantURL+"/sessions/"+session.ID+"/finalize", nil)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("decode finalize: %w", err)
	}
	if session.State != merchant.StateFinalized {
		return fmt.Errorf("session is %s (failure code %q)", session.State, session.FailureCode)
	}

	logger.Info("purchase complete",
		slog.String("session", session.ID),
		slog.String("reserve ref", session.BankReferenceID),
		slog.String("settle ref", session.SettleReferenceID))
	return nil
}
