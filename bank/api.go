package bank

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"github.com/alovak/webpay-playground/internal/httpjson"
	"github.com/alovak/webpay-playground/messages"
)

// maxBody caps request bodies; protocol messages are small.
const maxBody = 1 << 20

// API is the bank's HTTP surface. Protocol failures travel inside a signed
// error-response body with HTTP 200; transport status codes are reserved for
// transport problems.
type API struct {
	bank   *Service
	logger *slog.Logger
}

func NewAPI(bank *Service, logger *slog.Logger) *API {
	return &API{
		bank:   bank,
		logger: logger,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Post("/transact", a.transact)
	r.Post("/finalize", a.finalize)
	r.Get("/authority", a.authority)
}

func (a *API) transact(w http.ResponseWriter, r *http.Request) {
	raw, ok := a.readBody(w, r)
	if !ok {
		return
	}
	response, err := a.bank.Transact(r.Context(), raw)
	if err != nil {
		a.writeProtocolError(w, err)
		return
	}
	writeJSON(w, response)
}

func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	raw, ok := a.readBody(w, r)
	if !ok {
		return
	}
	response, err := a.bank.Finalize(r.Context(), raw)
	if err != nil {
		a.writeProtocolError(w, err)
		return
	}
	writeJSON(w, response)
}

func (a *API) authority(w http.ResponseWriter, r *http.Request) {
	authority, err := a.bank.Authority()
	if err != nil {
		a.logger.Error("encoding authority", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, authority)
}

func (a *API) readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	if err := httpjson.CheckContentType(r.Header.Get("Content-Type")); err != nil {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return nil, false
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return raw, true
}

// writeProtocolError answers a failed transaction on the protocol's own
// error channel. Failures outside the taxonomy are the bank's problem, not
// the peer's, and surface as HTTP 500.
func (a *API) writeProtocolError(w http.ResponseWriter, err error) {
	a.logger.Error("transaction failed", "err", err, "code", string(messages.CodeOf(err)))

	response, encodeErr := a.bank.ErrorResponse(err)
	if encodeErr != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", messages.JSONContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}
