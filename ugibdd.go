package ugibdd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config holds the configuration for the records service
type Config struct {
	Table    Table
	Auth     Authenticator
	Admin    AdminFunction
	Markers  MarkerStore
	Notifier Notifier
	Clock    Clock
	Logger   *zap.SugaredLogger

	SessionTimeout    time.Duration
	EmailDomain       string
	ActionLogLimit    int
	KuspListLimit     int
	TsuExpirationDays int
}

// Service is the main service struct: one session and the record stores
// that act on its behalf.
type Service struct {
	Session   *SessionGuard
	Notices   Notifier
	Employees *EmployeeStore
	Kusp      *KuspStore
	Protocols *ProtocolStore
	Tsu       *TsuStore
	Logs      *ActionLogStore

	log *zap.SugaredLogger
}

// New initializes a new records service
func New(cfg Config) (*Service, error) {
	if cfg.Table == nil || cfg.Auth == nil || cfg.Admin == nil {
		return nil, fmt.Errorf("%w: table, authenticator and admin function are required", ErrInvalidInput)
	}
	if cfg.Markers == nil {
		cfg.Markers = NewMemoryStore()
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
	if cfg.ActionLogLimit <= 0 {
		cfg.ActionLogLimit = DefaultActionLogLimit
	}
	if cfg.KuspListLimit <= 0 {
		cfg.KuspListLimit = DefaultKuspListLimit
	}
	if cfg.TsuExpirationDays <= 0 {
		cfg.TsuExpirationDays = DefaultTsuExpirationDays
	}

	session, err := NewSessionGuard(SessionConfig{
		Timeout:     cfg.SessionTimeout,
		EmailDomain: cfg.EmailDomain,
		Markers:     cfg.Markers,
		Notifier:    cfg.Notifier,
		Auth:        cfg.Auth,
		Table:       cfg.Table,
		Clock:       cfg.Clock,
		Logger:      cfg.Logger.Named("session"),
	})
	if err != nil {
		return nil, err
	}

	base := deps{
		table:    cfg.Table,
		session:  session,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		log:      cfg.Logger,
	}
	logs := &ActionLogStore{deps: base, limit: cfg.ActionLogLimit}
	base.audit = logs

	s := &Service{
		Session: session,
		Notices: cfg.Notifier,
		Employees: &EmployeeStore{
			deps:        base,
			subjects:    &subjects{fn: cfg.Admin, auth: cfg.Auth, log: cfg.Logger},
			emailDomain: session.emailDomain,
		},
		Kusp:      &KuspStore{deps: base, limit: cfg.KuspListLimit},
		Protocols: &ProtocolStore{deps: base},
		Tsu:       &TsuStore{deps: base, expiration: time.Duration(cfg.TsuExpirationDays) * 24 * time.Hour},
		Logs:      logs,
		log:       cfg.Logger,
	}

	// Caches belong to the session that loaded them
	session.OnEnd(func(EndReason) { s.reset() })
	return s, nil
}

func (s *Service) reset() {
	s.Employees.reset()
	s.Kusp.reset()
	s.Protocols.reset()
	s.Tsu.reset()
}

// deps is what every record store needs.
type deps struct {
	table    Table
	session  *SessionGuard
	audit    *ActionLogStore
	notifier Notifier
	clock    Clock
	log      *zap.SugaredLogger
}

// begin pings the session and returns the operation context and the actor.
func (d *deps) begin(ctx context.Context) (context.Context, context.CancelFunc, *Employee, error) {
	opCtx, cancel, err := d.session.Operation(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return opCtx, cancel, d.session.CurrentUser(), nil
}

// employee is begin for operations closed to guests.
func (d *deps) employee(ctx context.Context) (context.Context, context.CancelFunc, *Employee, error) {
	opCtx, cancel, actor, err := d.begin(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if d.session.CurrentMode() != ModeEmployee {
		cancel()
		return nil, nil, nil, fmt.Errorf("%w: employee session required", ErrPermissionDenied)
	}
	return opCtx, cancel, actor, nil
}

// remote logs the raw backend error and gives the session a chance to recover.
func (d *deps) remote(ctx context.Context, op string, err error) error {
	d.log.Errorw(op+" failed", "error", err)
	return d.session.Recover(context.WithoutCancel(ctx), fmt.Errorf("%s: %w", op, err))
}

// record writes an action log entry when the log is wired.
func (d *deps) record(ctx context.Context, actionType string, details map[string]any, entityType, entityID string) {
	if d.audit == nil {
		return
	}
	d.audit.Log(ctx, actionType, details, entityType, entityID)
}
