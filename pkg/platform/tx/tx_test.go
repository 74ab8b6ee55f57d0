package tx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	_, ok := From(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, WithTx(ctx, nil), "a nil transaction leaves the context unchanged")

	sqlTx := &sql.Tx{}
	got, ok := From(WithTx(ctx, sqlTx))
	require.True(t, ok)
	assert.Same(t, sqlTx, got)
}

func TestNoneRunsDirectly(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")
	boom := errors.New("boom")

	var seen context.Context
	err := None{}.RunInTx(ctx, func(inner context.Context) error {
		seen = inner
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ctx, seen)
}
