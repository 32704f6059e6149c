package credit

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"tuma-service/internal/domain/credit"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is an in-memory Store with the same idempotency contract as the
// postgres repository: Append rejects a duplicate (kind, reference) pair.
type fakeStore struct {
	mu           sync.Mutex
	accounts     map[int64]*credit.Account
	transactions []credit.Transaction
	nextID       int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[int64]*credit.Account)}
}

func (s *fakeStore) GetAccount(_ context.Context, tenantID int64) (*credit.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[tenantID]
	if !ok {
		a = &credit.Account{TenantID: tenantID}
		s.accounts[tenantID] = a
	}
	copied := *a
	return &copied, nil
}

func (s *fakeStore) FindTransaction(_ context.Context, kind credit.TransactionKind, reference string) (*credit.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].Kind == kind && s.transactions[i].Reference == reference {
			copied := s.transactions[i]
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *fakeStore) Append(_ context.Context, txn *credit.Transaction, account *credit.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].Kind == txn.Kind && s.transactions[i].Reference == txn.Reference {
			return xerrors.ErrDuplicateEntry
		}
	}
	s.nextID++
	txn.ID = s.nextID
	s.transactions = append(s.transactions, *txn)
	copied := *account
	s.accounts[account.TenantID] = &copied
	return nil
}

func (s *fakeStore) ListTransactions(_ context.Context, tenantID int64, filters *credit.TransactionListFilters) ([]credit.Transaction, int64, error) {
	all, _ := s.AllTransactions(context.Background(), tenantID)
	return all, int64(len(all)), nil
}

func (s *fakeStore) AllTransactions(_ context.Context, tenantID int64) ([]credit.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []credit.Transaction
	for i := range s.transactions {
		if s.transactions[i].TenantID == tenantID {
			out = append(out, s.transactions[i])
		}
	}
	return out, nil
}

func newTestLedger() (*Ledger, *fakeStore) {
	store := newFakeStore()
	return NewLedger(store, zap.NewNop()), store
}

func TestApplyGrantAndDebit(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	txn, err := ledger.Apply(ctx, 1, credit.TransactionGrant, 100, "GRANT-1-202608")
	require.NoError(t, err)
	assert.EqualValues(t, 100, txn.Amount)
	assert.EqualValues(t, 100, txn.BalanceAfter)

	txn, err = ledger.Apply(ctx, 1, credit.TransactionDebit, 30, "MSG-abc")
	require.NoError(t, err)
	assert.EqualValues(t, -30, txn.Amount)
	assert.EqualValues(t, 70, txn.BalanceAfter)

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 70, balance)
}

func TestApplyDebitInsufficient(t *testing.T) {
	ctx := context.Background()
	ledger, store := newTestLedger()

	_, err := ledger.Apply(ctx, 1, credit.TransactionGrant, 10, "GRANT-1-202608")
	require.NoError(t, err)

	_, err = ledger.Apply(ctx, 1, credit.TransactionDebit, 11, "MSG-too-big")
	require.ErrorIs(t, err, xerrors.ErrInsufficientCredits)

	// The rejected debit left no trace in the log or the projection.
	all, _ := store.AllTransactions(ctx, 1)
	assert.Len(t, all, 1)
	balance, _ := ledger.Balance(ctx, 1)
	assert.EqualValues(t, 10, balance)
}

func TestApplyIdempotentOnReference(t *testing.T) {
	ctx := context.Background()
	ledger, store := newTestLedger()

	first, err := ledger.Apply(ctx, 1, credit.TransactionPurchase, 500, "PUR-dup")
	require.NoError(t, err)

	// Replaying the same (kind, reference) returns the stored transaction
	// without crediting again.
	second, err := ledger.Apply(ctx, 1, credit.TransactionPurchase, 500, "PUR-dup")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balance, _ := ledger.Balance(ctx, 1)
	assert.EqualValues(t, 500, balance)
	all, _ := store.AllTransactions(ctx, 1)
	assert.Len(t, all, 1)
}

func TestApplyRefundClampsAtTotalUsed(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, err := ledger.Apply(ctx, 1, credit.TransactionGrant, 100, "GRANT-1")
	require.NoError(t, err)
	_, err = ledger.Apply(ctx, 1, credit.TransactionDebit, 20, "MSG-1")
	require.NoError(t, err)

	// A refund larger than lifetime usage is clamped; usage never goes
	// negative and the balance never exceeds what was added.
	_, err = ledger.Apply(ctx, 1, credit.TransactionRefund, 50, "MSG-1")
	require.NoError(t, err)

	summary, err := ledger.Summary(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 100, summary.Balance)
	assert.EqualValues(t, 0, summary.TotalUsed)
}

func TestApplyValidation(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, err := ledger.Apply(ctx, 1, credit.TransactionGrant, 0, "REF")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = ledger.Apply(ctx, 1, credit.TransactionGrant, -5, "REF")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = ledger.Apply(ctx, 1, credit.TransactionGrant, 5, "")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = ledger.Apply(ctx, 1, credit.TransactionKind("bogus"), 5, "REF")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestConcurrentDebitsNeverOverspend(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, err := ledger.Apply(ctx, 1, credit.TransactionGrant, 50, "GRANT-1")
	require.NoError(t, err)

	// 100 concurrent debits of 1 against a balance of 50: exactly 50 must
	// succeed and the balance must land on zero, never below.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.Apply(ctx, 1, credit.TransactionDebit, 1, fmt.Sprintf("MSG-%d", i))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, xerrors.ErrInsufficientCredits)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, succeeded)
	balance, _ := ledger.Balance(ctx, 1)
	assert.EqualValues(t, 0, balance)
	assert.NoError(t, ledger.Reconcile(ctx, 1))
}

func TestReconcileDetectsDrift(t *testing.T) {
	ctx := context.Background()
	ledger, store := newTestLedger()

	_, err := ledger.Apply(ctx, 1, credit.TransactionGrant, 100, "GRANT-1")
	require.NoError(t, err)
	require.NoError(t, ledger.Reconcile(ctx, 1))

	// Corrupt the projection behind the ledger's back.
	store.mu.Lock()
	store.accounts[1].PlanCredits = 999
	store.mu.Unlock()

	assert.Error(t, ledger.Reconcile(ctx, 1))
}
