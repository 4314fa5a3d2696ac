package merchant

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/alovak/webpay-playground/internal/httpjson"
	"github.com/alovak/webpay-playground/messages"
)

const maxBody = 1 << 20

// API is the merchant's HTTP surface, what a shop frontend and the payer's
// wallet talk to.
type API struct {
	merchant *Service
	logger   *slog.Logger
}

func NewAPI(merchant *Service, logger *slog.Logger) *API {
	return &API{
		merchant: merchant,
		logger:   logger,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Post("/checkout", a.checkout)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", a.getSession)
		r.Post("/authorize", a.authorize)
		r.Post("/finalize", a.finalize)
	})
}

// CheckoutRequest opens a session for one purchase.
type CheckoutRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// SessionStatus is what the API reports about a session.
type SessionStatus struct {
	ID                string          `json:"id"`
	State             State           `json:"state"`
	Invoke            json.RawMessage `json:"invoke,omitempty"`
	AccountType       string          `json:"accountType,omitempty"`
	AccountID         string          `json:"accountId,omitempty"`
	BankReferenceID   string          `json:"bankReferenceId,omitempty"`
	SettleReferenceID string          `json:"settleReferenceId,omitempty"`
	FailureCode       string          `json:"failureCode,omitempty"`
}

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	var checkout CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&checkout); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(checkout.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := a.merchant.Checkout(amount, checkout.Currency)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.logger.Info("checkout opened",
		slog.String("session", session.ID),
		slog.String("amount", checkout.Amount),
		slog.String("currency", checkout.Currency))

	writeStatus(w, http.StatusCreated, session)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := a.merchant.GetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeStatus(w, http.StatusOK, session)
}

func (a *API) authorize(w http.ResponseWriter, r *http.Request) {
	if err := httpjson.CheckContentType(r.Header.Get("Content-Type")); err != nil {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := a.merchant.Authorize(r.Context(), chi.URLParam(r, "sessionID"),
		raw, clientIP(r))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		a.logger.Error("authorization failed", "err", err)
	}
	if session == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, http.StatusOK, session)
}

func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	session, err := a.merchant.Finalize(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		a.logger.Error("finalize failed", "err", err)
	}
	if session == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeStatus(w, http.StatusOK, session)
}

func writeStatus(w http.ResponseWriter, code int, session *Session) {
	status := SessionStatus{
		ID:                session.ID,
		State:             session.State,
		AccountType:       session.AccountType,
		AccountID:         session.AccountID,
		BankReferenceID:   session.BankReferenceID,
		SettleReferenceID: session.SettleReferenceID,
		FailureCode:       string(session.FailureCode),
	}
	if session.State == StateInvoked {
		status.Invoke = session.Invoke
	}
	w.Header().Set("Content-Type", messages.JSONContentType)
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
