package battle

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/arnavm/leetbattle/internal/applog"
)

// SyncErrorKind classifies synchronizer failures surfaced to the UI.
type SyncErrorKind int

const (
	// ErrKindConnectivity: the standing subscription's error channel
	// fired. Recoverable only by a restart.
	ErrKindConnectivity SyncErrorKind = iota
	// ErrKindSnapshot: processing an incoming snapshot failed.
	ErrKindSnapshot
	// ErrKindWrite: a publish failed. The reentrancy flag is released
	// so later writes are not blocked; the mutation is not retried.
	ErrKindWrite
)

type SyncError struct {
	Kind SyncErrorKind
	Err  error
}

func (e SyncError) Error() string { return e.Err.Error() }
func (e SyncError) Unwrap() error { return e.Err }

// Synchronizer keeps a local mirror consistent with the remote store.
// All guard state lives on the instance, so independent synchronizers
// (and tests) cannot interfere with each other.
type Synchronizer struct {
	store    *Store
	session  string
	clock    clockwork.Clock
	debounce time.Duration

	onRecord func(*GameRecord)
	onError  func(SyncError)

	mu         sync.Mutex
	writing    bool
	lastWrite  time.Time
	reconciled bool
	loading    bool
	sub        *Subscription
}

func NewSynchronizer(store *Store, sessionToken string, clock clockwork.Clock, debounce time.Duration) *Synchronizer {
	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}
	return &Synchronizer{
		store:    store,
		session:  sessionToken,
		clock:    clock,
		debounce: debounce,
		loading:  true,
	}
}

// SessionToken exposes the token this synchronizer writes into every
// outgoing record.
func (s *Synchronizer) SessionToken() string { return s.session }

// Loading reports whether the first snapshot (or first failure) is
// still outstanding.
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// OnRecord registers the downstream snapshot consumer. Must be set
// before Subscribe.
func (s *Synchronizer) OnRecord(fn func(*GameRecord)) { s.onRecord = fn }

// OnError registers the error sink. Must be set before Subscribe.
func (s *Synchronizer) OnError(fn func(SyncError)) { s.onError = fn }

// Subscribe starts the standing listener on the root game record.
func (s *Synchronizer) Subscribe(ctx context.Context) error {
	sub, err := s.store.Subscribe(ctx,
		func(rec *GameRecord) { s.handleSnapshot(ctx, rec) },
		func(err error) {
			s.setLoaded()
			s.fail(ErrKindConnectivity, err)
		},
	)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Close tears down the standing subscription.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}

func (s *Synchronizer) handleSnapshot(ctx context.Context, rec *GameRecord) {
	defer s.setLoaded()

	if rec == nil {
		// No record yet: establish the empty root so peers have
		// something to merge into.
		now := s.clock.Now().UnixMilli()
		init := &GameRecord{Room: nil, SessionID: s.session, LastUpdate: now}
		if err := s.store.WriteWhole(ctx, init); err != nil {
			s.fail(ErrKindSnapshot, err)
		}
		return
	}

	if rec.SessionID != s.session {
		// Data left over from a previous session: keep the room
		// payload, claim the record for this session. At most once
		// per synchronizer lifetime; the flag keeps further foreign-
		// session notifications (including live peers stamping their
		// own token) from re-triggering the takeover and ping-ponging
		// the record between sessions.
		s.mu.Lock()
		already := s.reconciled
		s.reconciled = true
		s.mu.Unlock()
		if !already {
			applog.L().Info("session_reconcile", zap.String("stored_session", rec.SessionID))
			tok := s.session
			if err := s.store.WriteMerge(ctx, &RecordPatch{SessionID: &tok}); err != nil {
				s.fail(ErrKindSnapshot, err)
				return
			}
		}
	}

	if s.onRecord != nil {
		s.onRecord(rec)
	}
}

// Publish performs a partial merge write stamped with the session token
// and a send timestamp. A write in flight, or one issued inside the
// debounce window after the previous write, is dropped rather than
// queued; callers re-derive state on the next user action. The window
// is checked against the clock, not released by a timer, so teardown
// leaves nothing pending.
func (s *Synchronizer) Publish(ctx context.Context, patch *RecordPatch) error {
	s.mu.Lock()
	now := s.clock.Now()
	if s.writing || (!s.lastWrite.IsZero() && now.Sub(s.lastWrite) < s.debounce) {
		s.mu.Unlock()
		applog.L().Debug("publish_dropped")
		return ErrPublishThrottled
	}
	s.writing = true
	s.mu.Unlock()

	tok := s.session
	nowMs := now.UnixMilli()
	patch.SessionID = &tok
	patch.LastUpdate = &nowMs

	err := s.store.WriteMerge(ctx, patch)
	s.mu.Lock()
	s.writing = false
	if err == nil {
		s.lastWrite = s.clock.Now()
	}
	s.mu.Unlock()
	if err != nil {
		s.fail(ErrKindWrite, err)
		return err
	}
	return nil
}

// ForcePublish replaces the whole record, bypassing the reentrancy
// guard entirely. Reserved for round reset and full data reset, which
// must never be silently dropped.
func (s *Synchronizer) ForcePublish(ctx context.Context, room *Room) error {
	now := s.clock.Now().UnixMilli()
	rec := &GameRecord{Room: room, SessionID: s.session, LastUpdate: now, LastReset: now}
	if err := s.store.WriteWhole(ctx, rec); err != nil {
		s.fail(ErrKindWrite, err)
		return err
	}
	return nil
}

// ReadOnce is a one-time read used by join-by-code to decide whether a
// code names an existing room.
func (s *Synchronizer) ReadOnce(ctx context.Context) (*GameRecord, error) {
	return s.store.ReadOnce(ctx)
}

func (s *Synchronizer) setLoaded() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Synchronizer) fail(kind SyncErrorKind, err error) {
	applog.L().Warn("sync_error", zap.Int("kind", int(kind)), zap.Error(err))
	if s.onError != nil {
		s.onError(SyncError{Kind: kind, Err: err})
	}
}
