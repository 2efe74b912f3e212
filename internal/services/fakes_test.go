package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/prudhvinik1/storefront/internal/repositories"
	"github.com/prudhvinik1/storefront/internal/securestore"
)

var errBoom = errors.New("boom")

// memLocalStore is an in-memory LocalStore with injectable failures.
type memLocalStore struct {
	mu        sync.Mutex
	values    map[string]string
	setErr    error
	getErr    error
	deleteErr error
}

func newMemLocalStore() *memLocalStore {
	return &memLocalStore{values: make(map[string]string)}
}

func (s *memLocalStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

func (s *memLocalStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	v, ok := s.values[key]
	if !ok {
		return "", securestore.ErrNotFound
	}
	return v, nil
}

func (s *memLocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.values, key)
	return nil
}

func (s *memLocalStore) value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

type fakeSub struct {
	userID  string
	onNext  func(*models.SessionRecord)
	onError func(error)
	active  bool
}

// fakeRecordStore mimics the remote store: Put and DeleteIfCurrent notify
// subscribers synchronously on the caller's goroutine.
type fakeRecordStore struct {
	mu           sync.Mutex
	records      map[string]models.SessionRecord
	subs         []*fakeSub
	putErr       error
	subscribeErr error
	puts         int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]models.SessionRecord)}
}

func (s *fakeRecordStore) Put(ctx context.Context, record *models.SessionRecord) error {
	s.mu.Lock()
	if s.putErr != nil {
		s.mu.Unlock()
		return s.putErr
	}
	s.puts++
	s.records[record.UserID] = *record
	s.mu.Unlock()

	s.emit(record.UserID, record)
	return nil
}

func (s *fakeRecordStore) Get(ctx context.Context, userID string) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &rec, nil
}

func (s *fakeRecordStore) DeleteIfCurrent(ctx context.Context, userID, sessionID string) error {
	s.mu.Lock()
	rec, ok := s.records[userID]
	if !ok || rec.SessionID != sessionID {
		s.mu.Unlock()
		return nil
	}
	delete(s.records, userID)
	s.mu.Unlock()

	s.emit(userID, nil)
	return nil
}

func (s *fakeRecordStore) Subscribe(ctx context.Context, userID string, onNext func(*models.SessionRecord), onError func(error)) repositories.CancelFunc {
	sub := &fakeSub{userID: userID, onNext: onNext, onError: onError, active: true}

	s.mu.Lock()
	subscribeErr := s.subscribeErr
	if subscribeErr == nil {
		s.subs = append(s.subs, sub)
	} else {
		sub.active = false
	}
	s.mu.Unlock()

	if subscribeErr != nil {
		onError(subscribeErr)
		return func() {}
	}

	// Like the real store, the end of ctx is reported to the subscriber.
	stopWatchingCtx := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		wasActive := sub.active
		sub.active = false
		s.mu.Unlock()
		if wasActive {
			onError(ctx.Err())
		}
	})

	return func() {
		stopWatchingCtx()
		s.mu.Lock()
		sub.active = false
		s.mu.Unlock()
	}
}

// emit delivers rec to every active subscriber of userID.
func (s *fakeRecordStore) emit(userID string, rec *models.SessionRecord) {
	for _, sub := range s.subscribers(userID, true) {
		sub.onNext(copyRecord(rec))
	}
}

// emitStale delivers rec even to cancelled subscribers, like a message
// already in flight when the subscription was closed.
func (s *fakeRecordStore) emitStale(userID string, rec *models.SessionRecord) {
	for _, sub := range s.subscribers(userID, false) {
		sub.onNext(copyRecord(rec))
	}
}

func (s *fakeRecordStore) failSubscriptions(userID string, err error) {
	for _, sub := range s.subscribers(userID, true) {
		sub.onError(err)
	}
}

func (s *fakeRecordStore) subscribers(userID string, activeOnly bool) []*fakeSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeSub
	for _, sub := range s.subs {
		if sub.userID == userID && (sub.active || !activeOnly) {
			out = append(out, sub)
		}
	}
	return out
}

func (s *fakeRecordStore) activeSubscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []string
	for _, sub := range s.subs {
		if sub.active {
			users = append(users, sub.userID)
		}
	}
	return users
}

func copyRecord(rec *models.SessionRecord) *models.SessionRecord {
	if rec == nil {
		return nil
	}
	c := *rec
	return &c
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked []string
	err     error

	// When hold is set, SignOut signals entered and blocks until hold is closed.
	entered chan struct{}
	hold    chan struct{}
}

func (r *fakeRevoker) SignOut(ctx context.Context, credential string) error {
	if r.hold != nil {
		r.entered <- struct{}{}
		<-r.hold
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, credential)
	return r.err
}

func (r *fakeRevoker) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.revoked...)
}

type ackMode int

const (
	ackImmediately ackMode = iota
	ackManually
	ackNotNeeded
)

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.SessionEndedEvent
	mode   ackMode
	ack    chan struct{}
	err    error
	shown  chan struct{}
}

func newFakeNotifier(mode ackMode) *fakeNotifier {
	return &fakeNotifier{mode: mode, ack: make(chan struct{}), shown: make(chan struct{}, 8)}
}

func (n *fakeNotifier) Notify(ctx context.Context, ev models.SessionEndedEvent) (<-chan struct{}, error) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	n.shown <- struct{}{}

	if n.err != nil {
		return nil, n.err
	}
	switch n.mode {
	case ackImmediately:
		done := make(chan struct{})
		close(done)
		return done, nil
	case ackNotNeeded:
		return nil, nil
	default:
		return n.ack, nil
	}
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakeNavigator struct {
	mu       sync.Mutex
	routes   []Route
	err      error
	arrivals chan Route
	count    atomic.Int32
}

func newFakeNavigator() *fakeNavigator {
	return &fakeNavigator{arrivals: make(chan Route, 8)}
}

func (n *fakeNavigator) Navigate(ctx context.Context, route Route) error {
	n.mu.Lock()
	n.routes = append(n.routes, route)
	n.mu.Unlock()
	n.count.Add(1)
	n.arrivals <- route
	return n.err
}

func (n *fakeNavigator) visited() []Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Route(nil), n.routes...)
}
