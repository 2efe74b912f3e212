// Package handlers exposes identity, session and catalog operations over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/prudhvinik1/storefront/internal/repositories"
	"github.com/prudhvinik1/storefront/internal/services"
	"github.com/prudhvinik1/storefront/internal/utils"
	"go.uber.org/zap"
)

type identityService interface {
	Register(ctx context.Context, email, password string) error
	Authenticate(ctx context.Context, email, password string) (*services.Identity, error)
	Authorize(ctx context.Context, token string) (*services.TokenClaims, error)
	SignOut(ctx context.Context, token string) error
	SignOutAll(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, token, current, next string) error
	DeleteAccount(ctx context.Context, token string) error
}

type sessionRecordReader interface {
	Get(ctx context.Context, userID string) (*models.SessionRecord, error)
}

type catalogService interface {
	Search(ctx context.Context, query, category string, page int) (*services.ProductPage, error)
	Product(ctx context.Context, id int) (*models.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
}

type Handler struct {
	auth    identityService
	records sessionRecordReader
	catalog catalogService
	logger  *zap.Logger
}

func New(auth identityService, records sessionRecordReader, catalog catalogService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		auth:    auth,
		records: records,
		catalog: catalog,
		logger:  logger,
	}
}

// Routes builds the router serving every endpoint.
func (h *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(RequestLogger(h.logger))

	router.Get("/health", h.Health)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(h.Authenticated).Post("/logout", h.Logout)
		r.With(h.Authenticated).Post("/logout-all", h.LogoutAll)
		r.With(h.Authenticated).Post("/password", h.ChangePassword)
		r.With(h.Authenticated).Delete("/account", h.DeleteAccount)
	})

	router.With(h.Authenticated).Get("/sessions/current", h.CurrentSession)

	router.Route("/catalog", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/categories", h.ListCategories)
	})

	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(ContentType, ApplicationJSONType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps service errors onto status codes. Unexpected errors are
// logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, errBadRequest):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrMissingFields), utils.IsWeakPassword(err):
		status, message = http.StatusBadRequest, services.AuthErrorMessage(err)
	case errors.Is(err, services.ErrEmailExists):
		status, message = http.StatusConflict, services.AuthErrorMessage(err)
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidToken):
		status, message = http.StatusUnauthorized, services.AuthErrorMessage(err)
	case errors.Is(err, services.ErrProductNotFound), errors.Is(err, repositories.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "upstream timeout"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: message})
}

// RequestLogger logs one line per request with its status and duration.
func RequestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
