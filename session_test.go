package ugibdd_test

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/bohemiyan/ugibdd"
	"github.com/bohemiyan/ugibdd/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginOpensEmployeeSession(t *testing.T) {
	env := testfixtures.NewEnv(t)
	env.AddEmployee(1, "petrov", ugibdd.CategoryRS)
	ctx := context.Background()

	user, err := env.Service.Session.Login(ctx, "  petrov ", testfixtures.Password("petrov"))
	require.NoError(t, err)
	assert.Equal(t, "petrov", user.Nickname)
	assert.Equal(t, ugibdd.ModeEmployee, env.Service.Session.CurrentMode())
	assert.Equal(t, env.Clock.Now(), env.Service.Session.LastActivity())

	raw, ok, err := env.Markers.Get(ctx, ugibdd.MarkerUser)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, "petrov")
	_, ok, _ = env.Markers.Get(ctx, ugibdd.MarkerToken)
	assert.True(t, ok)
	last, ok, _ := env.Markers.Get(ctx, ugibdd.MarkerLastActivity)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(env.Clock.Now().UnixMilli(), 10), last)
}

func TestLoginFailures(t *testing.T) {
	t.Run("empty fields", func(t *testing.T) {
		env := testfixtures.NewEnv(t)
		_, err := env.Service.Session.Login(context.Background(), " ", "")
		var ve *ugibdd.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Fields, "nickname")
		assert.Contains(t, ve.Fields, "password")
	})

	t.Run("wrong password", func(t *testing.T) {
		env := testfixtures.NewEnv(t)
		env.AddEmployee(1, "petrov", ugibdd.CategoryRS)
		_, err := env.Service.Session.Login(context.Background(), "petrov", "nope")
		assert.ErrorIs(t, err, ugibdd.ErrInvalidCredentials)
		assert.Equal(t, "Неверный логин или пароль", ugibdd.Localize(err, ""))
		assert.Equal(t, ugibdd.ModeSignedOut, env.Service.Session.CurrentMode())
	})

	t.Run("no employee row", func(t *testing.T) {
		env := testfixtures.NewEnv(t)
		env.Auth.AddAccount("ghost@"+ugibdd.DefaultEmailDomain, "secret1", "auth-ghost")
		_, err := env.Service.Session.Login(context.Background(), "ghost", "secret1")
		assert.ErrorIs(t, err, ugibdd.ErrRecordNotFound)
		assert.Equal(t, ugibdd.ModeSignedOut, env.Service.Session.CurrentMode())
		assert.Equal(t, 1, env.Auth.SignOuts())
	})

	t.Run("transport failure", func(t *testing.T) {
		env := testfixtures.NewEnv(t)
		env.Auth.SignInErr = &ugibdd.RemoteError{Status: http.StatusBadGateway, Message: "Failed to fetch"}
		_, err := env.Service.Session.Login(context.Background(), "petrov", "secret1")
		assert.NotErrorIs(t, err, ugibdd.ErrInvalidCredentials)
		assert.Equal(t, "Ошибка соединения с сервером", ugibdd.Localize(err, ""))
	})
}

func TestInactivityEndsSession(t *testing.T) {
	env := testfixtures.NewEnv(t)
	env.SignIn(t, 1, "petrov", ugibdd.CategoryRS)
	var reasons []ugibdd.EndReason
	env.Service.Session.OnEnd(func(r ugibdd.EndReason) { reasons = append(reasons, r) })

	env.Clock.Advance(14 * time.Minute)
	require.NoError(t, env.Service.Session.Ping(context.Background()))

	// The ping re-armed the timer, so the original deadline passes quietly
	env.Clock.Advance(14 * time.Minute)
	assert.Equal(t, ugibdd.ModeEmployee, env.Service.Session.CurrentMode())

	env.Clock.Advance(time.Minute)
	assert.Equal(t, ugibdd.ModeSignedOut, env.Service.Session.CurrentMode())
	assert.Equal(t, []ugibdd.EndReason{ugibdd.EndExpired}, reasons)
	assert.Zero(t, env.Clock.Pending())

	notices := env.Notices.Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, ugibdd.NoticeWarning, notices[0].Level)
	assert.Equal(t, ugibdd.ExpiredNotice, notices[0].Text)

	_, ok, _ := env.Markers.Get(context.Background(), ugibdd.MarkerUser)
	assert.False(t, ok)
}

func TestGuestSessionExpires(t *testing.T) {
	env := testfixtures.NewEnv(t)
	guest := env.Service.Session.StartGuestSession(context.Background())
	assert.Equal(t, ugibdd.GuestName, guest.Nickname)
	assert.Empty(t, guest.Category)

	_, ok, _ := env.Markers.Get(context.Background(), ugibdd.MarkerLastActivity)
	assert.False(t, ok, "guest sessions are not persisted")

	env.Clock.Advance(16 * time.Minute)
	assert.Equal(t, ugibdd.ModeSignedOut, env.Service.Session.CurrentMode())
	notices := env.Notices.Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, ugibdd.ExpiredNotice, notices[0].Text)
}

func TestSessionEndsExactlyAtTimeout(t *testing.T) {
	env := testfixtures.NewEnv(t)
	env.SignIn(t, 1, "petrov", ugibdd.CategoryRS)

	env.Clock.Advance(15*time.Minute - time.Millisecond)
	assert.False(t, env.Service.Session.Check(context.Background()))

	env.Clock.Advance(time.Millisecond)
	assert.Equal(t, ugibdd.ModeSignedOut, env.Service.Session.CurrentMode())
	assert.ErrorIs(t, env.Service.Session.Ping(context.Background()), ugibdd.ErrNotAuthenticated)
}

func TestLogoutClearsEverything(t *testing.T) {
	env := testfixtures.NewEnv(t)
	env.SignIn(t, 1, "petrov", ugibdd.CategoryRS)
	ctx := context.Background()

	env.Service.Session.Logout(ctx)
	assert.Equal(t, ugibdd.ModeSignedOut, env.Service.Session.CurrentMode())
	assert.Nil(t, env.Service.Session.CurrentUser())
	assert.Zero(t, env.Clock.Pending())
	assert.Equal(t, 1, env.Auth.SignOuts())
	assert.Empty(t, env.Notices.Drain())
	for _, key := range []string{ugibdd.MarkerUser, ugibdd.MarkerToken, ugibdd.MarkerLastActivity} {
		_, ok, _ := env.Markers.Get(ctx, key)
		assert.False(t, ok, key)
	}

	assert.ErrorIs(t, env.Service.Session.Ping(ctx), ugibdd.ErrNotAuthenticated)
}

func TestLoginWhileGuestSwitchesSession(t *testing.T) {
	env := testfixtures.NewEnv(t)
	env.AddEmployee(1, "petrov", ugibdd.CategoryRS)
	var reasons []ugibdd.EndReason
	env.Service.Session.OnEnd(func(r ugibdd.EndReason) { reasons = append(reasons, r) })

	env.Service.Session.StartGuestSession(context.Background())
	_, err := env.Service.Session.Login(context.Background(), "petrov", testfixtures.Password("petrov"))
	require.NoError(t, err)
	assert.Equal(t, []ugibdd.EndReason{ugibdd.EndSwitch}, reasons)
	assert.Equal(t, 1, env.Clock.Pending())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("within window", func(t *testing.T) {
		first := testfixtures.NewEnv(t)
		first.SignIn(t, 1, "petrov", ugibdd.CategoryRS)

		second := restarted(t, first, 10*time.Minute)
		mode, user, err := second.Service.Session.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, ugibdd.ModeEmployee, mode)
		assert.Equal(t, "petrov", user.Nickname)
		assert.NotNil(t, second.Auth.Session(ctx))
	})

	t.Run("past window", func(t *testing.T) {
		first := testfixtures.NewEnv(t)
		first.SignIn(t, 1, "petrov", ugibdd.CategoryRS)

		second := restarted(t, first, 20*time.Minute)
		mode, user, err := second.Service.Session.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, ugibdd.ModeSignedOut, mode)
		assert.Nil(t, user)
		_, ok, _ := second.Markers.Get(ctx, ugibdd.MarkerUser)
		assert.False(t, ok)
	})

	t.Run("nothing persisted", func(t *testing.T) {
		env := testfixtures.NewEnv(t)
		mode, _, err := env.Service.Session.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, ugibdd.ModeSignedOut, mode)
	})
}

// restarted builds a fresh service sharing the markers of env, as after a
// reload, with the clock moved forward by gap.
func restarted(t *testing.T, env *testfixtures.Env, gap time.Duration) *testfixtures.Env {
	t.Helper()
	clock := testfixtures.NewClock(env.Clock.Now().Add(gap))
	auth := testfixtures.NewAuth(clock.Now)
	next := &testfixtures.Env{
		Clock:   clock,
		Table:   env.Table,
		Auth:    auth,
		Admin:   testfixtures.NewAdmin(auth),
		Notices: ugibdd.NewNoticeBoard(clock.Now),
		Markers: env.Markers,
	}
	svc, err := ugibdd.New(ugibdd.Config{
		Table:    env.Table,
		Auth:     next.Auth,
		Admin:    next.Admin,
		Markers:  env.Markers,
		Notifier: next.Notices,
		Clock:    next.Clock,
	})
	require.NoError(t, err)
	next.Service = svc
	return next
}

func TestGuestSessionDropsPersistedEmployee(t *testing.T) {
	ctx := context.Background()
	first := testfixtures.NewEnv(t)
	first.SignIn(t, 1, "petrov", ugibdd.CategoryRS)

	// A restart that never restores, then a guest visit
	second := restarted(t, first, time.Minute)
	second.Service.Session.StartGuestSession(ctx)
	assert.Equal(t, ugibdd.ModeGuest, second.Service.Session.CurrentMode())
	_, ok, err := second.Markers.Get(ctx, ugibdd.MarkerUser)
	require.NoError(t, err)
	assert.False(t, ok)

	third := restarted(t, second, time.Minute)
	mode, user, err := third.Service.Session.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, ugibdd.ModeSignedOut, mode)
	assert.Nil(t, user)
}

func TestOperationCanceledBySessionEnd(t *testing.T) {
	env := testfixtures.NewEnv(t)
	env.SignIn(t, 1, "petrov", ugibdd.CategoryRS)

	ctx, cancel, err := env.Service.Session.Operation(context.Background())
	require.NoError(t, err)
	defer cancel()

	env.Service.Session.Logout(context.Background())
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("operation context outlived the session")
	}
}

func TestRecoverRefreshesToken(t *testing.T) {
	env := testfixtures.NewEnv(t)
	env.SignIn(t, 1, "petrov", ugibdd.CategoryRS)
	expired := &ugibdd.RemoteError{Status: http.StatusUnauthorized, Message: "JWT expired"}

	err := env.Service.Session.Recover(context.Background(), expired)
	assert.Equal(t, expired, err)
	assert.Equal(t, ugibdd.ModeEmployee, env.Service.Session.CurrentMode())

	env.Auth.RefreshErr = errors.New("refresh token revoked")
	err = env.Service.Session.Recover(context.Background(), expired)
	assert.ErrorIs(t, err, ugibdd.ErrSessionExpired)
	assert.Equal(t, ugibdd.ModeSignedOut, env.Service.Session.CurrentMode())
}
