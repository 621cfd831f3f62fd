package billing_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentforge/chat-api/internal/domain/billing"
	"agentforge/chat-api/internal/infrastructure/memory"
	"agentforge/chat-api/internal/utils/platformerrors"
)

func TestLedger(t *testing.T) {
	ctx := context.Background()
	ledger := billing.NewLedger(memory.NewLedgerRepository(), decimal.RequireFromString("1.5"), zerolog.Nop())

	balance, err := ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1.5")))

	require.NoError(t, ledger.Reserve(ctx, "alice", decimal.RequireFromString("0.01")))

	require.NoError(t, ledger.Charge(ctx, "alice", decimal.RequireFromString("1.2"), "turn-1"))
	require.NoError(t, ledger.Charge(ctx, "alice", decimal.Zero, "turn-2"))

	balance, err = ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("0.3")), balance.String())

	err = ledger.Reserve(ctx, "alice", decimal.RequireFromString("0.5"))
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypePaymentRequired))
	assert.ErrorIs(t, err, billing.ErrInsufficientCredits)

	balance, err = ledger.Grant(ctx, "alice", decimal.NewFromInt(2), "top-up")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("2.3")))

	entries, err := ledger.Entries(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	var sum decimal.Decimal
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	assert.True(t, sum.Equal(balance))
}

func TestLedger_EmptyBalanceAlwaysRejected(t *testing.T) {
	ledger := billing.NewLedger(memory.NewLedgerRepository(), decimal.Zero, zerolog.Nop())
	err := ledger.Reserve(context.Background(), "bob", decimal.Zero)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypePaymentRequired))
}
