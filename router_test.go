package ugibdd_test

import (
	"context"
	"testing"
	"time"

	"github.com/bohemiyan/ugibdd"
	"github.com/bohemiyan/ugibdd/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	ms := actor(1, ugibdd.CategoryMS)
	vrs := actor(2, ugibdd.CategoryVRS)

	tests := []struct {
		name     string
		mode     ugibdd.Mode
		fragment string
		actor    *ugibdd.Employee
		want     ugibdd.Route
	}{
		{"signed out", ugibdd.ModeSignedOut, "#kusp", nil, ugibdd.Route{View: ugibdd.ViewAuth, Redirected: true}},
		{"signed out bare", ugibdd.ModeSignedOut, "", nil, ugibdd.Route{View: ugibdd.ViewAuth}},
		{"guest view", ugibdd.ModeGuest, "#appeals", nil, ugibdd.Route{View: ugibdd.ViewAppeals, Fragment: "appeals"}},
		{"guest employee view", ugibdd.ModeGuest, "#kusp", nil, ugibdd.Route{View: ugibdd.ViewHome, Fragment: "home", Redirected: true}},
		{"empty fragment", ugibdd.ModeEmployee, "", ms, ugibdd.Route{View: ugibdd.ViewHome, Fragment: "home", Redirected: true}},
		{"unknown", ugibdd.ModeEmployee, "#nowhere", ms, ugibdd.Route{View: ugibdd.ViewHome, Fragment: "home", Redirected: true}},
		{"employee view", ugibdd.ModeEmployee, " #tsu ", ms, ugibdd.Route{View: ugibdd.ViewTsu, Fragment: "tsu"}},
		{"admin denied", ugibdd.ModeEmployee, "#admin", ms, ugibdd.Route{View: ugibdd.ViewHome, Fragment: "home", Redirected: true, Denied: true}},
		{"admin allowed", ugibdd.ModeEmployee, "#admin", vrs, ugibdd.Route{View: ugibdd.ViewAdmin, Fragment: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ugibdd.Resolve(tt.mode, tt.fragment, tt.actor))
		})
	}
}

func TestNavigate(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()

	assert.Equal(t, ugibdd.ViewAuth, env.Service.Navigate(ctx, "#kusp").View)

	env.SignIn(t, 1, "ivanov", ugibdd.CategoryMS)
	env.Notices.Drain()

	r := env.Service.Navigate(ctx, "#admin")
	assert.True(t, r.Denied)
	notices := env.Notices.Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, ugibdd.NoticeError, notices[0].Level)
	assert.Equal(t, ugibdd.AccessDeniedNotice, notices[0].Text)

	// Navigating counts as activity
	env.Clock.Advance(10 * time.Minute)
	assert.Equal(t, ugibdd.ViewKusp, env.Service.Navigate(ctx, "#kusp").View)
	env.Clock.Advance(10 * time.Minute)
	assert.Equal(t, ugibdd.ViewKusp, env.Service.Navigate(ctx, "#kusp").View)

	env.Clock.Advance(ugibdd.DefaultSessionTimeout)
	assert.Equal(t, ugibdd.ViewAuth, env.Service.Navigate(ctx, "#kusp").View)
}
