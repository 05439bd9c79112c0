package ugibdd_test

import (
	"context"
	"testing"

	"github.com/bohemiyan/ugibdd"
	"github.com/bohemiyan/ugibdd/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshAll(t *testing.T) {
	env := testfixtures.NewEnv(t)
	past := env.Clock.Now().AddDate(0, 0, -1)
	env.Table.Seed(ugibdd.TableKusps, ugibdd.KuspRecord{KuspNumber: "20250101-000001", ReporterName: "Сидоров", Status: ugibdd.KuspNew})
	env.Table.Seed(ugibdd.TableProtocols, ugibdd.ProtocolRecord{ProtocolNumber: "77AA000001", Status: ugibdd.ProtocolActive})
	env.Table.Seed(ugibdd.TableTsuOrders, ugibdd.TsuOrder{Type: ugibdd.TsuFine, TargetNick: "Vasya", Status: ugibdd.TsuActive, ExpiresAt: past})
	env.SignIn(t, 1, "ivanov", ugibdd.CategoryMS)

	require.NoError(t, env.Service.RefreshAll(context.Background()))
	assert.Len(t, env.Service.Employees.List(), 1)
	assert.Len(t, env.Service.Kusp.List(), 1)
	assert.Len(t, env.Service.Protocols.List(), 1)
	orders := env.Service.Tsu.List()
	require.Len(t, orders, 1)
	assert.Equal(t, ugibdd.TsuExpired, orders[0].Status)
}

func TestRefreshAllFailure(t *testing.T) {
	env := testfixtures.NewEnv(t)
	env.SignIn(t, 1, "ivanov", ugibdd.CategoryMS)
	env.Table.FailOn("select", ugibdd.TableKusps, &ugibdd.RemoteError{Status: 500, Message: "boom"})

	err := env.Service.RefreshAll(context.Background())
	var remote *ugibdd.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "boom", remote.Message)
	assert.Equal(t, ugibdd.ModeEmployee, env.Service.Session.CurrentMode())
}

func TestRefreshAllNeedsEmployee(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()
	assert.ErrorIs(t, env.Service.RefreshAll(ctx), ugibdd.ErrNotAuthenticated)

	env.Service.Session.StartGuestSession(ctx)
	assert.ErrorIs(t, env.Service.RefreshAll(ctx), ugibdd.ErrPermissionDenied)
}
