// Package app is the device side of the storefront: it signs the user in,
// keeps the single-session watch running and moves between screens.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/prudhvinik1/storefront/internal/repositories"
	"github.com/prudhvinik1/storefront/internal/securestore"
	"github.com/prudhvinik1/storefront/internal/services"
	"github.com/prudhvinik1/storefront/internal/utils"
	"go.uber.org/zap"
)

var ErrPasswordMismatch = errors.New("passwords do not match")

type identityProvider interface {
	Register(ctx context.Context, email, password string) error
	Authenticate(ctx context.Context, email, password string) (*services.Identity, error)
	SignOut(ctx context.Context, credential string) error
}

type Options struct {
	AckTimeout time.Duration
	DeviceInfo models.DeviceInfo
	Logger     *zap.Logger
}

// App holds one device's screen state. It is the navigator of its session
// manager, so forced logouts land here.
type App struct {
	identity identityProvider
	local    services.LocalStore
	sessions *services.SessionManager
	catalog  *services.CatalogService
	logger   *zap.Logger

	mu     sync.Mutex
	route  services.Route
	routes chan services.Route
}

func New(
	identity identityProvider,
	local services.LocalStore,
	records repositories.SessionRecordRepository,
	notifier services.Notifier,
	catalog *services.CatalogService,
	opts Options,
) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	a := &App{
		identity: identity,
		local:    local,
		catalog:  catalog,
		logger:   opts.Logger,
		route:    services.RouteLogin,
		routes:   make(chan services.Route, 8),
	}
	a.sessions = services.NewSessionManager(local, records, identity, notifier, a, services.SessionManagerOptions{
		AckTimeout: opts.AckTimeout,
		DeviceInfo: opts.DeviceInfo,
		Logger:     opts.Logger,
	})
	return a
}

// Navigate switches the current screen and announces it on Routes.
func (a *App) Navigate(ctx context.Context, route services.Route) error {
	a.mu.Lock()
	a.route = route
	a.mu.Unlock()

	select {
	case a.routes <- route:
	default:
		a.logger.Warn("route change dropped; nobody is listening", zap.String("route", string(route)))
	}
	a.logger.Debug("navigated", zap.String("route", string(route)))
	return nil
}

func (a *App) Route() services.Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}

func (a *App) Routes() <-chan services.Route {
	return a.routes
}

func (a *App) Catalog() *services.CatalogService {
	return a.catalog
}

func (a *App) Sessions() *services.SessionManager {
	return a.sessions
}

// Register validates the form, creates the account and signs straight in.
func (a *App) Register(ctx context.Context, email, password, confirm string) error {
	if email == "" || password == "" || confirm == "" {
		return services.ErrMissingFields
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < utils.MinPasswordLength {
		return utils.ErrWeakPassword
	}

	if err := a.identity.Register(ctx, email, password); err != nil {
		return err
	}
	return a.Login(ctx, email, password)
}

// Login authenticates, stores the credential, makes this device the user's
// active session and starts watching for a takeover by another device. The
// watch ends with ctx.
func (a *App) Login(ctx context.Context, email, password string) error {
	identity, err := a.identity.Authenticate(ctx, email, password)
	if err != nil {
		return err
	}

	if err := a.local.Set(ctx, securestore.AuthTokenKey, identity.Credential); err != nil {
		a.abandonLogin(ctx, identity.Credential)
		return fmt.Errorf("failed to store credential: %w", err)
	}

	if _, err := a.sessions.StartSession(ctx, identity.UserID); err != nil {
		a.abandonLogin(ctx, identity.Credential)
		return err
	}

	w, err := a.sessions.StartWatch(ctx, identity.UserID)
	if err != nil {
		return err
	}
	if w.Err() != nil {
		a.logger.Warn("signed in without single-session enforcement", zap.Error(w.Err()))
	}

	a.logger.Info("signed in", zap.String("user_id", identity.UserID))
	return a.Navigate(ctx, services.RouteCatalog)
}

func (a *App) abandonLogin(ctx context.Context, credential string) {
	ctx = context.WithoutCancel(ctx)
	if err := a.identity.SignOut(ctx, credential); err != nil {
		a.logger.Warn("failed to revoke abandoned credential", zap.Error(err))
	}
	if err := a.local.Delete(ctx, securestore.AuthTokenKey); err != nil {
		a.logger.Warn("failed to clear abandoned credential", zap.Error(err))
	}
}

// ShowProduct opens the product screen.
func (a *App) ShowProduct(ctx context.Context, id int) (*models.Product, error) {
	p, err := a.catalog.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.Navigate(ctx, services.RouteProduct); err != nil {
		return nil, err
	}
	return p, nil
}

func (a *App) Back(ctx context.Context) error {
	return a.Navigate(ctx, services.RouteCatalog)
}

func (a *App) Logout(ctx context.Context) error {
	return a.sessions.Logout(ctx)
}

// Close stops the session watch and waits for a forced logout in progress.
func (a *App) Close() {
	a.sessions.Close()
}
