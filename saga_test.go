package ugibdd_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bohemiyan/ugibdd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaCompensatesInReverse(t *testing.T) {
	var order []string
	saga := ugibdd.NewSaga("create employee")
	for _, name := range []string{"first", "second", "third"} {
		saga.Add(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	assert.Equal(t, 3, saga.Len())
	require.NoError(t, saga.Compensate(context.Background()))
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestSagaReportsFailedSteps(t *testing.T) {
	gone := errors.New("subject still present")
	ran := 0
	saga := ugibdd.NewSaga("create employee")
	saga.Add("delete auth subject", func(context.Context) error {
		ran++
		return gone
	})
	saga.Add("noop", func(context.Context) error {
		ran++
		return nil
	})

	err := saga.Compensate(context.Background())
	var cerr *ugibdd.CompensationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 2, ran)
	require.Len(t, cerr.Failed, 1)
	assert.Equal(t, "delete auth subject", cerr.Failed[0].Step)
	assert.ErrorIs(t, err, gone)
	assert.Contains(t, err.Error(), "compensation of create employee incomplete")
}

func TestSagaIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	saga := ugibdd.NewSaga("cleanup")
	saga.Add("undo", func(ctx context.Context) error { return ctx.Err() })
	assert.NoError(t, saga.Compensate(ctx))
}
