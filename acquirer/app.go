package acquirer

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"github.com/alovak/webpay-playground/internal/httpjson"
	"github.com/alovak/webpay-playground/internal/middleware"
	"github.com/alovak/webpay-playground/messages"
)

const maxBody = 1 << 20

// App is the acquirer application.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	Addr   string
	logger *slog.Logger
	config *Config
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "acquirer"))

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	router := chi.NewRouter()
	router.Use(middleware.NewStructuredLogger(a.logger))

	api := NewAPI(NewService(a.config), a.logger)
	api.AppendRoutes(router)

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return err
	}
	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler: router,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	a.srv.Shutdown(context.Background())

	a.wg.Wait()

	a.logger.Info("app stopped")
}

// API is the acquirer's HTTP surface.
type API struct {
	acquirer *Service
	logger   *slog.Logger
}

func NewAPI(acquirer *Service, logger *slog.Logger) *API {
	return &API{
		acquirer: acquirer,
		logger:   logger,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Get("/authority", a.authority)
	r.Post("/protected", a.unprotect)
}

func (a *API) authority(w http.ResponseWriter, r *http.Request) {
	authority, err := a.acquirer.Authority()
	if err != nil {
		a.logger.Error("encoding authority", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", messages.JSONContentType)
	w.Write(authority)
}

func (a *API) unprotect(w http.ResponseWriter, r *http.Request) {
	if err := httpjson.CheckContentType(r.Header.Get("Content-Type")); err != nil {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accountID, err := a.acquirer.Unprotect(raw)
	if err != nil {
		a.logger.Error("unprotect failed", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", messages.JSONContentType)
	json.NewEncoder(w).Encode(map[string]string{"accountId": accountID})
}
