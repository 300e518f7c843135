package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(opts ...Option) *Ledger {
	return New(zerolog.Nop(), opts...)
}

func TestBalanceUnknownAccountIsZero(t *testing.T) {
	l := newTestLedger()
	assert.Equal(t, 0.0, l.Balance("nobody"))
}

func TestCreditAndDebit(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 10))
	assert.Equal(t, 10.0, l.Balance("alice"))

	require.NoError(t, l.Debit(ctx, "alice", 4))
	assert.Equal(t, 6.0, l.Balance("alice"))
}

func TestDebitInsufficientLeavesBalanceUnchanged(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 5))
	err := l.Debit(ctx, "alice", 5.01)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 5.0, l.Balance("alice"))
}

func TestInvalidAmounts(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	assert.ErrorIs(t, l.Credit(ctx, "a", 0), ErrInvalidAmount)
	assert.ErrorIs(t, l.Credit(ctx, "a", -1), ErrInvalidAmount)
	assert.ErrorIs(t, l.Debit(ctx, "a", 0), ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer(ctx, "a", "b", -2), ErrInvalidAmount)
}

func TestTransferSameAccount(t *testing.T) {
	l := newTestLedger()
	require.NoError(t, l.Credit(context.Background(), "a", 10))
	assert.ErrorIs(t, l.Transfer(context.Background(), "a", "a", 1), ErrSameAccount)
	assert.Equal(t, 10.0, l.Balance("a"))
}

func TestTransferMovesValue(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 10))
	require.NoError(t, l.Transfer(ctx, "alice", "bob", 3))

	assert.Equal(t, 7.0, l.Balance("alice"))
	assert.Equal(t, 3.0, l.Balance("bob"))
}

func TestTransferInsufficientChangesNothing(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 2))
	err := l.Transfer(ctx, "alice", "bob", 5)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 2.0, l.Balance("alice"))
	assert.Equal(t, 0.0, l.Balance("bob"))
}

// Opposing transfers between the same pair of accounts must neither deadlock
// nor lose updates. Total value stays constant.
func TestOpposingConcurrentTransfers(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	require.NoError(t, l.Credit(ctx, "alice", 1000))
	require.NoError(t, l.Credit(ctx, "bob", 1000))

	const rounds = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			l.Transfer(ctx, "alice", "bob", 1)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			l.Transfer(ctx, "bob", "alice", 1)
		}
	}()
	wg.Wait()

	total := l.Balance("alice") + l.Balance("bob")
	assert.Equal(t, 2000.0, total)
}

// Conservation: concurrent transfers across many accounts never create or
// destroy value, and no balance goes negative.
func TestConcurrentTransfersConserveTotal(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	accounts := []string{"a", "b", "c", "d", "e"}
	for _, id := range accounts {
		require.NoError(t, l.Credit(ctx, id, 100))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				from := accounts[(n+j)%len(accounts)]
				to := accounts[(n+j+1)%len(accounts)]
				l.Transfer(ctx, from, to, 1)
			}
		}(i)
	}
	wg.Wait()

	total := 0.0
	for id, bal := range l.Balances() {
		assert.GreaterOrEqual(t, bal, 0.0, "account %s went negative", id)
		total += bal
	}
	assert.Equal(t, 500.0, total)
}

type recordingJournal struct {
	mu  sync.Mutex
	txs []Transaction
}

func (j *recordingJournal) Append(_ context.Context, tx Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.txs = append(j.txs, tx)
	return nil
}

func TestJournalReceivesSuccessfulMutations(t *testing.T) {
	j := &recordingJournal{}
	l := newTestLedger(WithJournal(j))
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 10))
	require.NoError(t, l.Debit(ctx, "alice", 2))
	require.NoError(t, l.Transfer(ctx, "alice", "bob", 3))

	// A failed mutation must not be journaled.
	assert.Error(t, l.Debit(ctx, "alice", 1000))

	require.Len(t, j.txs, 3)
	assert.Equal(t, "credit", j.txs[0].Type)
	assert.Equal(t, "debit", j.txs[1].Type)
	assert.Equal(t, "transfer", j.txs[2].Type)
	assert.Equal(t, "bob", j.txs[2].Counterparty)
	for _, tx := range j.txs {
		assert.NotEmpty(t, tx.ID)
		assert.False(t, tx.At.IsZero())
	}
}
