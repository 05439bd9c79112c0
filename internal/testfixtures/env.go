package testfixtures

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bohemiyan/ugibdd"
	"github.com/stretchr/testify/require"
)

// Env is a records service wired to in-memory collaborators.
type Env struct {
	Clock   *Clock
	Table   *Table
	Auth    *Auth
	Admin   *Admin
	Notices *ugibdd.NoticeBoard
	Markers *ugibdd.MemoryStore
	Service *ugibdd.Service
}

// NewEnv builds a service over fakes, starting at ReferenceTime.
func NewEnv(t testing.TB) *Env {
	t.Helper()
	clock := NewClock(time.Time{})
	auth := NewAuth(clock.Now)
	e := &Env{
		Clock:   clock,
		Table:   NewTable(clock.Now),
		Auth:    auth,
		Admin:   NewAdmin(auth),
		Notices: ugibdd.NewNoticeBoard(clock.Now),
		Markers: ugibdd.NewMemoryStore(),
	}
	svc, err := ugibdd.New(ugibdd.Config{
		Table:    e.Table,
		Auth:     e.Auth,
		Admin:    e.Admin,
		Markers:  e.Markers,
		Notifier: e.Notices,
		Clock:    e.Clock,
	})
	require.NoError(t, err)
	e.Service = svc
	return e
}

// AddEmployee seeds an employee row and a matching auth account. The
// password is the nickname followed by "-pass".
func (e *Env) AddEmployee(id int64, nickname string, category ugibdd.Category) ugibdd.Employee {
	emp := ugibdd.Employee{
		ID:         id,
		AuthUserID: "auth-" + nickname,
		Nickname:   nickname,
		Rank:       "Сержант",
		Department: "ДПС",
		Category:   category,
	}
	e.Table.Seed(ugibdd.TableEmployees, emp)
	e.Auth.AddAccount(nickname+"@"+ugibdd.DefaultEmailDomain, Password(nickname), emp.AuthUserID)
	return emp
}

// Password returns the password AddEmployee registers for nickname.
func Password(nickname string) string {
	return fmt.Sprintf("%s-pass", nickname)
}

// SignIn seeds an employee and signs them in.
func (e *Env) SignIn(t testing.TB, id int64, nickname string, category ugibdd.Category) *ugibdd.Employee {
	t.Helper()
	e.AddEmployee(id, nickname, category)
	user, err := e.Service.Session.Login(context.Background(), nickname, Password(nickname))
	require.NoError(t, err)
	return user
}
