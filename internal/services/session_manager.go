package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/prudhvinik1/storefront/internal/repositories"
	"github.com/prudhvinik1/storefront/internal/securestore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	SessionEndedTitle  = "Session Expired"
	SessionEndedReason = "You have been logged in from another device"

	// stepTimeout bounds each I/O step of a logout so a hung store cannot
	// keep the user on an authenticated screen.
	stepTimeout = 10 * time.Second
)

var ErrEmptyUserID = errors.New("user id is required")

// LocalStore is the device's secret storage.
type LocalStore interface {
	Set(ctx context.Context, key, value string) error
	// Get returns securestore.ErrNotFound for absent keys.
	Get(ctx context.Context, key string) (string, error)
	// Delete treats absent keys as already deleted.
	Delete(ctx context.Context, key string) error
}

// CredentialRevoker signs a bearer credential out. Revoking an already
// revoked credential must succeed.
type CredentialRevoker interface {
	SignOut(ctx context.Context, credential string) error
}

// Notifier surfaces the "session ended" notification. The returned channel
// is closed when the user acknowledges it; a nil channel means the
// notification needs no acknowledgment.
type Notifier interface {
	Notify(ctx context.Context, ev models.SessionEndedEvent) (<-chan struct{}, error)
}

type Route string

const (
	RouteLogin   Route = "login"
	RouteCatalog Route = "catalog"
	RouteProduct Route = "product"
)

type Navigator interface {
	Navigate(ctx context.Context, route Route) error
}

type SessionManagerOptions struct {
	// AckTimeout is how long a forced logout waits for the notification to
	// be acknowledged before navigating anyway. Zero waits for the
	// acknowledgment (or Close) only.
	AckTimeout time.Duration
	DeviceInfo models.DeviceInfo
	// NewSessionID mints session identifiers. Defaults to random UUIDs.
	NewSessionID func() string
	Logger       *zap.Logger
}

// SessionManager enforces a single active session per user. It owns the one
// watch of this device: starting a watch replaces the previous one, and a
// mismatch between the local and remote session ids logs the device out.
type SessionManager struct {
	local     LocalStore
	records   repositories.SessionRecordRepository
	identity  CredentialRevoker
	notifier  Notifier
	navigator Navigator

	ackTimeout   time.Duration
	deviceInfo   models.DeviceInfo
	newSessionID func() string
	logger       *zap.Logger

	mu     sync.Mutex
	watch  *Watch
	userID string

	baseCtx    context.Context
	cancelBase context.CancelFunc
	flightMu   sync.Mutex
	closed     bool
	inFlight   sync.WaitGroup
}

func NewSessionManager(
	local LocalStore,
	records repositories.SessionRecordRepository,
	identity CredentialRevoker,
	notifier Notifier,
	navigator Navigator,
	opts SessionManagerOptions,
) *SessionManager {
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	return &SessionManager{
		local:        local,
		records:      records,
		identity:     identity,
		notifier:     notifier,
		navigator:    navigator,
		ackTimeout:   opts.AckTimeout,
		deviceInfo:   opts.DeviceInfo,
		newSessionID: opts.NewSessionID,
		logger:       opts.Logger,
		baseCtx:      baseCtx,
		cancelBase:   cancel,
	}
}

// StartSession mints a new session id for userID and makes it current both
// on this device and in the shared record. Any watch of this manager is
// stopped first; call StartWatch afterwards. The local store is written first;
// if the remote write then fails the previous local value is restored, so a
// failed call leaves both stores as they were.
func (m *SessionManager) StartSession(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	// A watch left over from an earlier session would compare its user's
	// record against the id written below.
	m.Cleanup()

	previous, err := m.local.Get(ctx, securestore.SessionIDKey)
	hadPrevious := err == nil
	if err != nil && !errors.Is(err, securestore.ErrNotFound) {
		return "", fmt.Errorf("failed to read local session: %w", err)
	}

	sessionID := m.newSessionID()
	if err := m.local.Set(ctx, securestore.SessionIDKey, sessionID); err != nil {
		return "", fmt.Errorf("failed to store local session: %w", err)
	}

	record := &models.SessionRecord{
		UserID:     userID,
		SessionID:  sessionID,
		DeviceInfo: m.deviceInfo,
	}
	if err := m.records.Put(ctx, record); err != nil {
		m.restoreLocal(context.WithoutCancel(ctx), previous, hadPrevious)
		return "", fmt.Errorf("failed to write session record: %w", err)
	}

	m.mu.Lock()
	m.userID = userID
	m.mu.Unlock()

	m.logger.Info("session started",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("platform", m.deviceInfo.Platform))
	return sessionID, nil
}

func (m *SessionManager) restoreLocal(ctx context.Context, previous string, hadPrevious bool) {
	var err error
	if hadPrevious {
		err = m.local.Set(ctx, securestore.SessionIDKey, previous)
	} else {
		err = m.local.Delete(ctx, securestore.SessionIDKey)
	}
	if err != nil {
		m.logger.Error("failed to roll back local session", zap.Error(err))
	}
}

// StartWatch subscribes to userID's session record, stopping any previous
// watch first. The watch lives until Cleanup, a forced logout, a transport
// error or the end of ctx. Subscription failures do not fail the call; they
// are logged and recorded on the returned handle.
func (m *SessionManager) StartWatch(ctx context.Context, userID string) (*Watch, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watch != nil {
		m.watch.Stop()
		m.watch = nil
	}

	w := newWatch(userID)
	m.watch = w
	m.userID = userID

	cancel := m.records.Subscribe(ctx, userID,
		func(record *models.SessionRecord) { m.onRecord(w, record) },
		func(err error) { m.onWatchError(w, err) },
	)
	w.attach(cancel)

	m.logger.Debug("session watch started", zap.String("user_id", userID))
	return w, nil
}

// Callbacks run on the store's delivery goroutine and must not take m.mu:
// a store may deliver synchronously from inside Subscribe.
func (m *SessionManager) onRecord(w *Watch, record *models.SessionRecord) {
	if record == nil || !w.Active() {
		return
	}

	localID, err := m.local.Get(m.baseCtx, securestore.SessionIDKey)
	if err != nil && !errors.Is(err, securestore.ErrNotFound) {
		m.logger.Warn("failed to read local session", zap.String("user_id", w.UserID()), zap.Error(err))
		return
	}
	if err == nil && localID == record.SessionID {
		return
	}

	// Claiming stops the watch before anything asynchronous happens, so a
	// second mismatching delivery finds it stopped and does nothing.
	if !w.claim() {
		return
	}

	m.flightMu.Lock()
	if m.closed {
		m.flightMu.Unlock()
		return
	}
	m.inFlight.Add(1)
	m.flightMu.Unlock()

	go func() {
		defer m.inFlight.Done()
		m.forceLogout(w, record)
	}()
}

func (m *SessionManager) onWatchError(w *Watch, err error) {
	m.logger.Warn("session watch failed; single-session enforcement inactive until restarted",
		zap.String("user_id", w.UserID()), zap.Error(err))
	w.fail(err)
}

func (m *SessionManager) forceLogout(w *Watch, record *models.SessionRecord) {
	ctx := m.baseCtx
	logger := m.logger.With(zap.String("user_id", w.UserID()))
	logger.Warn("session superseded by another device", zap.String("remote_session_id", record.SessionID))

	m.mu.Lock()
	if m.watch == w {
		m.watch = nil
		m.userID = ""
	}
	m.mu.Unlock()

	// Failures are logged inside; the sequence always ends at the login screen.
	// Close must not cut the cleanup short, only the wait for the acknowledgment.
	_ = m.endSession(context.WithoutCancel(ctx), logger, "", "")

	ack, err := m.notifier.Notify(ctx, models.SessionEndedEvent{
		UserID: w.UserID(),
		Title:  SessionEndedTitle,
		Reason: SessionEndedReason,
		At:     time.Now(),
	})
	if err != nil {
		logger.Error("failed to show session ended notification", zap.Error(err))
	} else {
		m.awaitAck(ctx, logger, ack)
	}

	m.navigateToLogin(ctx, logger)
}

func (m *SessionManager) awaitAck(ctx context.Context, logger *zap.Logger, ack <-chan struct{}) {
	if ack == nil {
		return
	}

	var fallback <-chan time.Time
	if m.ackTimeout > 0 {
		timer := time.NewTimer(m.ackTimeout)
		defer timer.Stop()
		fallback = timer.C
	}

	select {
	case <-ack:
	case <-fallback:
		logger.Info("session ended notification not acknowledged; navigating to login", zap.Duration("after", m.ackTimeout))
	case <-ctx.Done():
	}
}

func (m *SessionManager) navigateToLogin(ctx context.Context, logger *zap.Logger) {
	if err := m.navigator.Navigate(context.WithoutCancel(ctx), RouteLogin); err != nil {
		logger.Error("failed to navigate to login", zap.Error(err))
	}
}

// endSession concurrently revokes the credential and clears the local
// session id. When sessionID is set the remote record is also removed, but
// only while it still names this session. Every step tolerates state that
// another logout already cleared.
func (m *SessionManager) endSession(ctx context.Context, logger *zap.Logger, userID, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := m.revokeCredential(ctx); err != nil {
			logger.Error("failed to revoke credential", zap.Error(err))
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := m.local.Delete(ctx, securestore.SessionIDKey); err != nil {
			logger.Error("failed to clear local session", zap.Error(err))
			return fmt.Errorf("failed to clear local session: %w", err)
		}
		return nil
	})
	if userID != "" && sessionID != "" {
		g.Go(func() error {
			if err := m.records.DeleteIfCurrent(ctx, userID, sessionID); err != nil {
				logger.Error("failed to delete session record", zap.Error(err))
				return fmt.Errorf("failed to delete session record: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// revokeCredential signs the stored credential out and forgets it. The local
// copy is dropped even when the sign-out call fails.
func (m *SessionManager) revokeCredential(ctx context.Context) error {
	token, err := m.local.Get(ctx, securestore.AuthTokenKey)
	if errors.Is(err, securestore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read credential: %w", err)
	}

	signOutErr := m.identity.SignOut(ctx, token)
	if signOutErr != nil {
		signOutErr = fmt.Errorf("failed to sign out: %w", signOutErr)
	}
	var deleteErr error
	if err := m.local.Delete(ctx, securestore.AuthTokenKey); err != nil {
		deleteErr = fmt.Errorf("failed to clear credential: %w", err)
	}
	return errors.Join(signOutErr, deleteErr)
}

// Logout ends the session at the user's request: the watch is stopped, the
// credential revoked, local state cleared and the shared record removed if
// it still belongs to this device. The user lands on the login screen even
// when a step fails; the first failure is returned.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	userID := m.userID
	m.userID = ""
	if m.watch != nil {
		m.watch.Stop()
		m.watch = nil
	}
	m.mu.Unlock()

	logger := m.logger.With(zap.String("user_id", userID))

	sessionID, err := m.local.Get(ctx, securestore.SessionIDKey)
	if err != nil && !errors.Is(err, securestore.ErrNotFound) {
		logger.Warn("failed to read local session", zap.Error(err))
	}

	err = m.endSession(ctx, logger, userID, sessionID)
	m.navigateToLogin(ctx, logger)

	if err == nil {
		logger.Info("logged out")
	}
	return err
}

// Cleanup stops the active watch, if any. It is safe to call at any time.
func (m *SessionManager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watch != nil {
		m.watch.Stop()
		m.watch = nil
	}
}

// ActiveWatch returns the current watch, or nil when none is receiving changes.
func (m *SessionManager) ActiveWatch() *Watch {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watch == nil || !m.watch.Active() {
		return nil
	}
	return m.watch
}

// Wait blocks until in-flight forced logouts have finished.
func (m *SessionManager) Wait() {
	m.inFlight.Wait()
}

// Close stops watching, releases any forced logout still waiting for an
// acknowledgment and waits for it to reach the login screen.
func (m *SessionManager) Close() {
	m.Cleanup()

	m.flightMu.Lock()
	m.closed = true
	m.flightMu.Unlock()

	m.cancelBase()
	m.inFlight.Wait()
}
