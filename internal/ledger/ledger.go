// Package ledger holds credit account balances and moves value between them
// without ever creating or destroying it.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrInsufficientBalance means a debit or transfer would take a
	// balance below zero. The balance is left unchanged.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount means the amount was zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrSameAccount means a transfer named the same account twice.
	ErrSameAccount = errors.New("cannot transfer to the same account")
)

// Transaction is one journaled ledger mutation.
type Transaction struct {
	ID           string
	Account      string
	Counterparty string
	Type         string // "credit", "debit" or "transfer"
	Amount       float64
	Description  string
	At           time.Time
}

// Journal receives a record of every successful mutation. Appends are
// best-effort: the in-memory balance is authoritative and a journal failure
// only logs. Durability is an external-storage concern.
type Journal interface {
	Append(ctx context.Context, tx Transaction) error
}

type account struct {
	mu      sync.Mutex
	balance float64
}

// Ledger is the in-memory credit ledger. Accounts spring into existence at
// zero balance on first touch. Each account has its own lock; transfers
// lock both accounts in lexicographic id order so opposing transfers
// between the same pair cannot deadlock.
type Ledger struct {
	mu       sync.Mutex // guards the accounts map only
	accounts map[string]*account

	journal Journal
	log     zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithJournal attaches a transaction journal.
func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// New creates an empty ledger.
func New(log zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		accounts: make(map[string]*account),
		log:      log.With().Str("component", "ledger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) account(id string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[id]
	if !ok {
		acct = &account{}
		l.accounts[id] = acct
	}
	return acct
}

// Balance returns the current balance, zero for an account never touched.
func (l *Ledger) Balance(accountID string) float64 {
	acct := l.account(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance
}

// Credit increases a balance. It always succeeds for a positive amount.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	acct := l.account(accountID)
	acct.mu.Lock()
	acct.balance += amount
	acct.mu.Unlock()

	l.record(ctx, Transaction{Account: accountID, Type: "credit", Amount: amount})
	return nil
}

// Debit decreases a balance, failing with ErrInsufficientBalance and
// leaving it unchanged if the account cannot cover the amount.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	acct := l.account(accountID)
	acct.mu.Lock()
	if acct.balance < amount {
		acct.mu.Unlock()
		return ErrInsufficientBalance
	}
	acct.balance -= amount
	acct.mu.Unlock()

	l.record(ctx, Transaction{Account: accountID, Type: "debit", Amount: amount})
	return nil
}

// Transfer moves amount from one account to another as an atomic
// debit-then-credit. If the debit fails nothing changes. Both account locks
// are taken in id order before either balance moves.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return ErrSameAccount
	}

	from := l.account(fromID)
	to := l.account(toID)

	first, second := from, to
	if fromID > toID {
		first, second = to, from
	}
	first.mu.Lock()
	second.mu.Lock()
	if from.balance < amount {
		second.mu.Unlock()
		first.mu.Unlock()
		return ErrInsufficientBalance
	}
	from.balance -= amount
	to.balance += amount
	second.mu.Unlock()
	first.mu.Unlock()

	// Journal append happens after both locks are released; the journal
	// may do I/O.
	l.record(ctx, Transaction{Account: fromID, Counterparty: toID, Type: "transfer", Amount: amount})
	return nil
}

// Balances returns a snapshot of every account balance.
func (l *Ledger) Balances() map[string]float64 {
	l.mu.Lock()
	ids := make([]string, 0, len(l.accounts))
	accts := make([]*account, 0, len(l.accounts))
	for id, acct := range l.accounts {
		ids = append(ids, id)
		accts = append(accts, acct)
	}
	l.mu.Unlock()

	out := make(map[string]float64, len(ids))
	for i, acct := range accts {
		acct.mu.Lock()
		out[ids[i]] = acct.balance
		acct.mu.Unlock()
	}
	return out
}

func (l *Ledger) record(ctx context.Context, tx Transaction) {
	if l.journal == nil {
		return
	}
	tx.ID = "txn_" + uuid.New().String()[:8]
	tx.At = time.Now().UTC()
	if err := l.journal.Append(ctx, tx); err != nil {
		l.log.Warn().Err(err).Str("account", tx.Account).Str("tx_type", tx.Type).Msg("journal append failed")
	}
}
