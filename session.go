package ugibdd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Mode is the state of the session guard.
type Mode string

const (
	ModeSignedOut Mode = "signed-out"
	ModeGuest     Mode = "guest"
	ModeEmployee  Mode = "employee"
)

// EndReason tells sign-out hooks why a session ended.
type EndReason string

const (
	EndLogout  EndReason = "logout"
	EndExpired EndReason = "expired"
	EndSwitch  EndReason = "switch"
)

const (
	// DefaultSessionTimeout is the inactivity window.
	DefaultSessionTimeout = 15 * time.Minute
	// DefaultEmailDomain completes nicknames into auth API logins.
	DefaultEmailDomain = "app.local"
	// GuestName is the display name of the guest identity.
	GuestName = "Гость"
	// ExpiredNotice is shown when inactivity ends a session.
	ExpiredNotice = "Сессия завершена из-за длительного бездействия"
)

// Timer is a pending deferred callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the session guard.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// SessionConfig holds the collaborators of a SessionGuard.
type SessionConfig struct {
	Timeout     time.Duration
	EmailDomain string
	Markers     MarkerStore
	Notifier    Notifier
	Auth        Authenticator
	Table       Table
	Clock       Clock
	Logger      *zap.SugaredLogger
}

// SessionGuard owns the current session: who is signed in, in which mode, and
// when they were last active. One inactivity timer exists while a session is open.
type SessionGuard struct {
	timeout     time.Duration
	emailDomain string
	markers     MarkerStore
	notifier    Notifier
	auth        Authenticator
	table       Table
	clock       Clock
	log         *zap.SugaredLogger

	mu           sync.Mutex
	mode         Mode
	user         *Employee
	lastActivity time.Time
	timer        Timer
	generation   uint64
	sessionCtx   context.Context
	cancel       context.CancelFunc
	onEnd        []func(EndReason)
}

// NewSessionGuard builds a signed-out guard.
func NewSessionGuard(cfg SessionConfig) (*SessionGuard, error) {
	if cfg.Markers == nil || cfg.Auth == nil || cfg.Table == nil {
		return nil, fmt.Errorf("%w: marker store, authenticator and table are required", ErrInvalidInput)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.EmailDomain == "" {
		cfg.EmailDomain = DefaultEmailDomain
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NewNoticeBoard(cfg.Clock.Now)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &SessionGuard{
		timeout:     cfg.Timeout,
		emailDomain: cfg.EmailDomain,
		markers:     cfg.Markers,
		notifier:    cfg.Notifier,
		auth:        cfg.Auth,
		table:       cfg.Table,
		clock:       cfg.Clock,
		log:         cfg.Logger,
		mode:        ModeSignedOut,
	}, nil
}

// Timeout returns the inactivity window.
func (g *SessionGuard) Timeout() time.Duration { return g.timeout }

// CurrentMode returns the session mode.
func (g *SessionGuard) CurrentMode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// CurrentUser returns a copy of the session identity, nil when signed out.
func (g *SessionGuard) CurrentUser() *Employee {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return nil
	}
	u := *g.user
	return &u
}

// LastActivity returns the time of the most recent ping.
func (g *SessionGuard) LastActivity() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastActivity
}

// OnEnd registers fn to run after every session end.
func (g *SessionGuard) OnEnd(fn func(EndReason)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onEnd = append(g.onEnd, fn)
}

// Restore rehydrates an employee session from the persisted markers. An
// inactivity gap longer than the timeout clears the markers instead.
func (g *SessionGuard) Restore(ctx context.Context) (Mode, *Employee, error) {
	if g.CurrentMode() != ModeSignedOut {
		return g.CurrentMode(), g.CurrentUser(), nil
	}

	raw, ok, err := g.markers.Get(ctx, MarkerUser)
	if err != nil {
		return ModeSignedOut, nil, fmt.Errorf("failed to read session marker: %w", err)
	}
	if !ok {
		return ModeSignedOut, nil, nil
	}

	if last, ok := g.readLastActivity(ctx); ok && g.clock.Now().Sub(last) > g.timeout {
		g.log.Infow("persisted session expired", "last_activity", last)
		g.clearRemote(ctx)
		return ModeSignedOut, nil, nil
	}

	var user Employee
	if err := json.Unmarshal([]byte(raw), &user); err != nil || !user.Category.Valid() {
		g.log.Warnw("discarding unreadable session marker", "error", err)
		g.clearRemote(ctx)
		return ModeSignedOut, nil, nil
	}

	if rawTok, ok, err := g.markers.Get(ctx, MarkerToken); err == nil && ok {
		var tok oauth2.Token
		if err := json.Unmarshal([]byte(rawTok), &tok); err == nil {
			if err := g.auth.SetSession(ctx, &tok); err != nil {
				g.log.Warnw("failed to restore auth session", "error", err)
				g.clearRemote(ctx)
				return ModeSignedOut, nil, nil
			}
		}
	}

	g.open(ModeEmployee, &user)
	g.touch(ctx)
	return ModeEmployee, g.CurrentUser(), nil
}

// Login verifies credentials with the auth API, then looks up the employee
// row owned by the authenticated subject. Both lookups must succeed.
func (g *SessionGuard) Login(ctx context.Context, nickname, password string) (*Employee, error) {
	nickname = strings.TrimSpace(nickname)
	verr := &ValidationError{}
	if nickname == "" {
		verr.Add("nickname", "введите логин")
	}
	if strings.TrimSpace(password) == "" {
		verr.Add("password", "введите пароль")
	}
	if verr.HasErrors() {
		return nil, verr
	}

	// Login always passes through SignedOut
	if g.CurrentMode() != ModeSignedOut {
		g.end(ctx, EndSwitch)
	}

	email := nickname + "@" + g.emailDomain
	tok, subject, err := g.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		g.log.Warnw("sign-in failed", "nickname", nickname, "error", err)
		if isCredentialRejection(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	var rows []Employee
	q := Query{Filters: []Filter{Eq("auth_user_id", subject.ID)}, Limit: 2}
	if err := g.table.Select(ctx, TableEmployees, q, &rows); err != nil {
		g.signOutRemote(ctx)
		return nil, fmt.Errorf("failed to load employee record: %w", err)
	}
	switch {
	case len(rows) == 0:
		g.signOutRemote(ctx)
		return nil, ErrRecordNotFound
	case len(rows) > 1:
		g.signOutRemote(ctx)
		return nil, fmt.Errorf("%w: subject %s owns %d employee rows", ErrRecordNotFound, subject.ID, len(rows))
	}

	user := rows[0]
	if payload, err := json.Marshal(user); err == nil {
		g.setMarker(ctx, MarkerUser, string(payload))
	}
	if payload, err := json.Marshal(tok); err == nil {
		g.setMarker(ctx, MarkerToken, string(payload))
	}

	g.open(ModeEmployee, &user)
	g.touch(ctx)
	g.log.Infow("employee signed in", "nickname", user.Nickname, "category", user.Category)
	return g.CurrentUser(), nil
}

// StartGuestSession ends any open session and starts a guest one. Guest
// sessions are never persisted.
func (g *SessionGuard) StartGuestSession(ctx context.Context) *Employee {
	if g.CurrentMode() != ModeSignedOut {
		g.end(ctx, EndSwitch)
	} else {
		g.deleteMarkers(ctx)
	}
	guest := GuestIdentity()
	g.open(ModeGuest, &guest)
	g.touch(ctx)
	return g.CurrentUser()
}

// GuestIdentity returns the synthetic guest identity. Its category is empty, so
// the permission matrix grants it nothing.
func GuestIdentity() Employee {
	return Employee{Nickname: GuestName}
}

// Ping records activity and re-arms the inactivity timer. A session already
// past its deadline is expired instead.
func (g *SessionGuard) Ping(ctx context.Context) error {
	g.mu.Lock()
	if g.mode == ModeSignedOut {
		g.mu.Unlock()
		return ErrNotAuthenticated
	}
	if g.dueLocked() {
		g.mu.Unlock()
		g.end(ctx, EndExpired)
		return ErrSessionExpired
	}
	g.mu.Unlock()
	g.touch(ctx)
	return nil
}

// Check expires the session when the inactivity window has elapsed and
// reports whether it did.
func (g *SessionGuard) Check(ctx context.Context) bool {
	g.mu.Lock()
	due := g.mode != ModeSignedOut && g.dueLocked()
	g.mu.Unlock()
	if due {
		g.end(ctx, EndExpired)
	}
	return due
}

// Logout ends the session and clears every persisted marker.
func (g *SessionGuard) Logout(ctx context.Context) {
	if g.CurrentMode() == ModeSignedOut {
		g.deleteMarkers(ctx)
		return
	}
	g.end(ctx, EndLogout)
}

// Operation pings the session and returns a context that is canceled when
// the parent is done or the session ends, whichever comes first.
func (g *SessionGuard) Operation(parent context.Context) (context.Context, context.CancelFunc, error) {
	if err := g.Ping(parent); err != nil {
		return nil, nil, err
	}
	g.mu.Lock()
	sessionCtx := g.sessionCtx
	g.mu.Unlock()
	if sessionCtx == nil {
		return nil, nil, ErrNotAuthenticated
	}

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(sessionCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

// Recover handles a remote call that failed because the bearer token was
// rejected. A successful refresh keeps the session and returns err unchanged
// so the user can re-invoke the action. A failed refresh forces sign-out.
func (g *SessionGuard) Recover(ctx context.Context, err error) error {
	if err == nil || !IsSessionExpired(err) || g.CurrentMode() != ModeEmployee {
		return err
	}
	tok, rerr := g.auth.Refresh(ctx)
	if rerr == nil {
		if payload, merr := json.Marshal(tok); merr == nil {
			g.setMarker(ctx, MarkerToken, string(payload))
		}
		g.log.Infow("auth session refreshed")
		return err
	}
	g.log.Warnw("auth session refresh failed", "error", rerr)
	g.end(ctx, EndExpired)
	return fmt.Errorf("%w: %v", ErrSessionExpired, err)
}

// open switches to mode with user and a fresh session context.
func (g *SessionGuard) open(mode Mode, user *Employee) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = mode
	g.user = user
	g.sessionCtx, g.cancel = context.WithCancel(context.Background())
}

// touch stamps activity and replaces the timer.
func (g *SessionGuard) touch(ctx context.Context) {
	g.mu.Lock()
	if g.mode == ModeSignedOut {
		g.mu.Unlock()
		return
	}
	now := g.clock.Now()
	g.lastActivity = now
	g.generation++
	gen := g.generation
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = g.clock.AfterFunc(g.timeout, func() { g.fire(gen) })
	persist := g.mode == ModeEmployee
	g.mu.Unlock()

	if persist {
		g.setMarker(ctx, MarkerLastActivity, strconv.FormatInt(now.UnixMilli(), 10))
	}
}

// fire is the timer callback. A callback from a replaced timer does nothing.
func (g *SessionGuard) fire(gen uint64) {
	g.mu.Lock()
	stale := gen != g.generation || g.mode == ModeSignedOut
	g.mu.Unlock()
	if stale {
		return
	}
	g.end(context.Background(), EndExpired)
}

func (g *SessionGuard) dueLocked() bool {
	return !g.lastActivity.IsZero() && g.clock.Now().Sub(g.lastActivity) >= g.timeout
}

// end resets to SignedOut and runs side effects outside the lock.
func (g *SessionGuard) end(ctx context.Context, reason EndReason) {
	g.mu.Lock()
	prev := g.mode
	if prev == ModeSignedOut {
		g.mu.Unlock()
		return
	}
	g.generation++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.cancel != nil {
		g.cancel()
	}
	g.cancel = nil
	g.sessionCtx = nil
	name := ""
	if g.user != nil {
		name = g.user.Nickname
	}
	g.mode = ModeSignedOut
	g.user = nil
	g.lastActivity = time.Time{}
	hooks := append([]func(EndReason){}, g.onEnd...)
	g.mu.Unlock()

	// Side effects must not be cut short by the caller's cancellation
	ctx = context.WithoutCancel(ctx)
	if prev == ModeEmployee {
		g.clearRemote(ctx)
	}
	if reason == EndExpired {
		g.notifier.Notify(NoticeWarning, ExpiredNotice)
	}
	g.log.Infow("session ended", "mode", prev, "user", name, "reason", reason)
	for _, fn := range hooks {
		fn(reason)
	}
}

// clearRemote drops the markers and the auth session.
func (g *SessionGuard) clearRemote(ctx context.Context) {
	g.deleteMarkers(ctx)
	g.signOutRemote(ctx)
}

func (g *SessionGuard) signOutRemote(ctx context.Context) {
	if err := g.auth.SignOut(ctx); err != nil {
		g.log.Warnw("auth sign-out failed", "error", err)
	}
}

func (g *SessionGuard) deleteMarkers(ctx context.Context) {
	if err := g.markers.Delete(ctx, MarkerUser, MarkerToken, MarkerLastActivity); err != nil {
		g.log.Errorw("failed to clear session markers", "error", err)
	}
}

func (g *SessionGuard) setMarker(ctx context.Context, key, value string) {
	if err := g.markers.Set(ctx, key, value); err != nil {
		g.log.Errorw("failed to persist session marker", "key", key, "error", err)
	}
}

func (g *SessionGuard) readLastActivity(ctx context.Context) (time.Time, bool) {
	raw, ok, err := g.markers.Get(ctx, MarkerLastActivity)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// isCredentialRejection separates a refused password from transport failures.
func isCredentialRejection(err error) bool {
	if errors.Is(err, ErrInvalidCredentials) {
		return true
	}
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.Status == 400 || re.Status == 401 ||
		strings.Contains(strings.ToLower(re.Message), "invalid login credentials")
}
