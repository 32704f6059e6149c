// internal/service/credit/ledger.go
package credit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tuma-service/internal/domain/credit"
	xerrors "tuma-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// Store is the ledger's persistence boundary. Append must be atomic (one
// transaction row plus the projection update) and must reject duplicate
// (kind, reference) pairs with ErrDuplicateEntry.
type Store interface {
	GetAccount(ctx context.Context, tenantID int64) (*credit.Account, error)
	FindTransaction(ctx context.Context, kind credit.TransactionKind, reference string) (*credit.Transaction, error)
	Append(ctx context.Context, txn *credit.Transaction, account *credit.Account) error
	ListTransactions(ctx context.Context, tenantID int64, filters *credit.TransactionListFilters) ([]credit.Transaction, int64, error)
	AllTransactions(ctx context.Context, tenantID int64) ([]credit.Transaction, error)
}

// Ledger owns every balance mutation. Mutations are serialized per tenant:
// a keyed mutex in-process, the account row lock plus the unique
// (kind, reference) index across instances.
type Ledger struct {
	store  Store
	logger *zap.Logger

	mu          sync.Mutex
	tenantLocks map[int64]*sync.Mutex
}

func NewLedger(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:       store,
		logger:      logger,
		tenantLocks: make(map[int64]*sync.Mutex),
	}
}

func (l *Ledger) tenantLock(tenantID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		l.tenantLocks[tenantID] = lock
	}
	return lock
}

// Apply appends one ledger transaction. Amount is always positive; the sign
// of the stored entry follows the kind. (kind, reference) is the idempotency
// key: a replay returns the stored transaction without touching state.
func (l *Ledger) Apply(ctx context.Context, tenantID int64, kind credit.TransactionKind, amount int64, reference string) (*credit.Transaction, error) {
	if reference == "" {
		return nil, fmt.Errorf("transaction reference is required: %w", xerrors.ErrInvalidInput)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("transaction amount must be positive: %w", xerrors.ErrInvalidInput)
	}

	lock := l.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.store.FindTransaction(ctx, kind, reference)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	account, err := l.store.GetAccount(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var signed int64
	switch kind {
	case credit.TransactionGrant:
		account.PlanCredits += amount
		signed = amount
	case credit.TransactionPurchase:
		account.PurchasedCredits += amount
		signed = amount
	case credit.TransactionDebit:
		if account.Balance() < amount {
			return nil, fmt.Errorf("debit of %d exceeds balance of %d: %w",
				amount, account.Balance(), xerrors.ErrInsufficientCredits)
		}
		account.TotalUsed += amount
		signed = -amount
	case credit.TransactionRefund:
		// Refunds unwind consumption, never below zero lifetime usage.
		if amount > account.TotalUsed {
			amount = account.TotalUsed
		}
		account.TotalUsed -= amount
		signed = amount
	default:
		return nil, fmt.Errorf("unknown transaction kind %q: %w", kind, xerrors.ErrInvalidInput)
	}

	txn := &credit.Transaction{
		TenantID:     tenantID,
		Kind:         kind,
		Amount:       signed,
		Reference:    reference,
		BalanceAfter: account.Balance(),
	}

	if err := l.store.Append(ctx, txn, account); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			// Another instance won the race on this reference.
			return l.store.FindTransaction(ctx, kind, reference)
		}
		return nil, err
	}

	l.logger.Info("credit transaction applied",
		zap.Int64("tenant_id", tenantID),
		zap.String("kind", string(kind)),
		zap.Int64("amount", signed),
		zap.String("reference", reference),
		zap.Int64("balance_after", txn.BalanceAfter),
	)

	return txn, nil
}

// Balance returns the tenant's current spendable balance.
func (l *Ledger) Balance(ctx context.Context, tenantID int64) (int64, error) {
	account, err := l.store.GetAccount(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return account.Balance(), nil
}

// Summary returns the /credits read model.
func (l *Ledger) Summary(ctx context.Context, tenantID int64) (*credit.BalanceSummary, error) {
	account, err := l.store.GetAccount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return credit.SummaryFromAccount(account), nil
}

// Transactions lists ledger entries for a tenant.
func (l *Ledger) Transactions(ctx context.Context, tenantID int64, filters *credit.TransactionListFilters) (*credit.TransactionListResponse, error) {
	transactions, total, err := l.store.ListTransactions(ctx, tenantID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return &credit.TransactionListResponse{
		Transactions: transactions,
		Total:        total,
		Page:         filters.Page,
		PageSize:     filters.PageSize,
	}, nil
}

// Reconcile replays the full log and compares it to the materialized
// projection. The log is the source of truth; a mismatch means the
// projection drifted and is an operational alert, not something to patch
// silently.
func (l *Ledger) Reconcile(ctx context.Context, tenantID int64) error {
	lock := l.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	account, err := l.store.GetAccount(ctx, tenantID)
	if err != nil {
		return err
	}

	transactions, err := l.store.AllTransactions(ctx, tenantID)
	if err != nil {
		return err
	}

	var planCredits, purchasedCredits, totalUsed int64
	for _, t := range transactions {
		switch t.Kind {
		case credit.TransactionGrant:
			planCredits += t.Amount
		case credit.TransactionPurchase:
			purchasedCredits += t.Amount
		case credit.TransactionDebit:
			totalUsed += -t.Amount
		case credit.TransactionRefund:
			totalUsed -= t.Amount
		}
	}

	if planCredits != account.PlanCredits ||
		purchasedCredits != account.PurchasedCredits ||
		totalUsed != account.TotalUsed {
		return fmt.Errorf(
			"ledger projection mismatch for tenant %d: log (%d/%d/%d) vs account (%d/%d/%d)",
			tenantID,
			planCredits, purchasedCredits, totalUsed,
			account.PlanCredits, account.PurchasedCredits, account.TotalUsed,
		)
	}

	return nil
}
