package testfixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bohemiyan/ugibdd"
	"golang.org/x/oauth2"
)

// Auth is an in-memory ugibdd.Authenticator.
type Auth struct {
	mu         sync.Mutex
	now        func() time.Time
	accounts   map[string]account
	current    *oauth2.Token
	issued     int
	signOuts   int
	RefreshErr error
	SignInErr  error
}

type account struct {
	password string
	subject  ugibdd.Subject
}

// NewAuth returns an authenticator with no accounts.
func NewAuth(now func() time.Time) *Auth {
	if now == nil {
		now = time.Now
	}
	return &Auth{now: now, accounts: make(map[string]account)}
}

// AddAccount registers email with password under subjectID.
func (a *Auth) AddAccount(email, password, subjectID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[email] = account{password: password, subject: ugibdd.Subject{ID: subjectID, Email: email}}
}

// HasSubject reports whether an account with subjectID exists.
func (a *Auth) HasSubject(subjectID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acc := range a.accounts {
		if acc.subject.ID == subjectID {
			return true
		}
	}
	return false
}

// SignOuts returns how many times SignOut was called.
func (a *Auth) SignOuts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signOuts
}

func (a *Auth) SignInWithPassword(_ context.Context, email, password string) (*oauth2.Token, ugibdd.Subject, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SignInErr != nil {
		return nil, ugibdd.Subject{}, a.SignInErr
	}
	acc, ok := a.accounts[email]
	if !ok || acc.password != password {
		return nil, ugibdd.Subject{}, &ugibdd.RemoteError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_credentials",
			Message: "Invalid login credentials",
		}
	}
	a.current = a.issue(acc.subject.ID)
	return a.current, acc.subject, nil
}

func (a *Auth) Session(context.Context) *oauth2.Token {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Auth) SetSession(_ context.Context, tok *oauth2.Token) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ugibdd.ErrInvalidInput)
	}
	a.current = tok
	return nil
}

func (a *Auth) Refresh(context.Context) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.RefreshErr != nil {
		return nil, a.RefreshErr
	}
	if a.current == nil {
		return nil, &ugibdd.RemoteError{Status: http.StatusUnauthorized, Message: "Session not found"}
	}
	a.current = a.issue("refreshed")
	return a.current, nil
}

func (a *Auth) SignOut(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = nil
	a.signOuts++
	return nil
}

func (a *Auth) issue(subject string) *oauth2.Token {
	a.issued++
	return &oauth2.Token{
		AccessToken:  fmt.Sprintf("access-%s-%d", subject, a.issued),
		RefreshToken: fmt.Sprintf("refresh-%s-%d", subject, a.issued),
		TokenType:    "bearer",
		Expiry:       a.now().Add(time.Hour),
	}
}

// Admin is an in-memory ugibdd.AdminFunction. While serving a call it swaps
// the authenticator's session, the way the remote function disturbs the
// caller's token in a browser.
type Admin struct {
	mu      sync.Mutex
	auth    *Auth
	next    int
	fail    map[ugibdd.AdminAction]error
	calls   []ugibdd.AdminRequest
	bearers []string
}

// NewAdmin returns an admin function creating accounts in auth.
func NewAdmin(auth *Auth) *Admin {
	return &Admin{auth: auth, fail: make(map[ugibdd.AdminAction]error)}
}

// FailOn makes every call of action return err.
func (f *Admin) FailOn(action ugibdd.AdminAction, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[action] = err
}

// Calls returns the requests received so far.
func (f *Admin) Calls() []ugibdd.AdminRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ugibdd.AdminRequest(nil), f.calls...)
}

// Bearers returns the access tokens presented so far.
func (f *Admin) Bearers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bearers...)
}

func (f *Admin) Call(ctx context.Context, bearer *oauth2.Token, req ugibdd.AdminRequest) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if bearer == nil || bearer.AccessToken == "" {
		return nil, &ugibdd.RemoteError{Status: http.StatusUnauthorized, Message: "Not authorized"}
	}
	f.bearers = append(f.bearers, bearer.AccessToken)

	// The elevated call replaces the caller's session
	_ = f.auth.SetSession(ctx, &oauth2.Token{AccessToken: "elevated"})

	if err := f.fail[req.Action]; err != nil {
		return nil, err
	}

	switch req.Action {
	case ugibdd.AdminCreateUser:
		f.next++
		id := fmt.Sprintf("subject-%d", f.next)
		email, _ := req.Data["email"].(string)
		password, _ := req.Data["password"].(string)
		f.auth.AddAccount(email, password, id)
		return json.Marshal(map[string]any{"user": map[string]any{"id": id, "email": email}})
	case ugibdd.AdminDeleteUser:
		f.auth.removeSubject(req.UserID)
		return json.RawMessage(`{}`), nil
	case ugibdd.AdminUpdateUser:
		return json.Marshal(map[string]any{"user": map[string]any{"id": req.UserID}})
	}
	return nil, &ugibdd.RemoteError{Status: http.StatusBadRequest, Message: "unknown action"}
}

func (a *Auth) removeSubject(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for email, acc := range a.accounts {
		if acc.subject.ID == id {
			delete(a.accounts, email)
		}
	}
}
