package purchase

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"tuma-service/internal/domain/credit"
	"tuma-service/internal/domain/purchase"
	"tuma-service/internal/domain/wallet"
	"tuma-service/internal/gateway"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePurchaseStore struct {
	mu        sync.Mutex
	purchases map[int64]*purchase.Purchase
	nextID    int64
}

func newFakePurchaseStore() *fakePurchaseStore {
	return &fakePurchaseStore{purchases: make(map[int64]*purchase.Purchase)}
}

func (s *fakePurchaseStore) Create(_ context.Context, p *purchase.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	copied := *p
	s.purchases[p.ID] = &copied
	return nil
}

func (s *fakePurchaseStore) FindByID(_ context.Context, id int64) (*purchase.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *fakePurchaseStore) FindByReference(_ context.Context, ref string) (*purchase.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.purchases {
		if p.Reference == ref {
			copied := *p
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

// cas mirrors the repository's single-row compare-and-set updates.
func (s *fakePurchaseStore) cas(id int64, from, to purchase.Status, mutate func(*purchase.Purchase)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	if p.Status != from {
		return xerrors.ErrInvalidStateTransition
	}
	p.Status = to
	if mutate != nil {
		mutate(p)
	}
	return nil
}

func (s *fakePurchaseStore) MarkProcessing(_ context.Context, id int64) error {
	return s.cas(id, purchase.StatusPending, purchase.StatusProcessing, nil)
}

func (s *fakePurchaseStore) ReleasePending(_ context.Context, id int64) error {
	return s.cas(id, purchase.StatusProcessing, purchase.StatusPending, nil)
}

func (s *fakePurchaseStore) MarkCompleted(_ context.Context, id int64) error {
	return s.cas(id, purchase.StatusProcessing, purchase.StatusCompleted, func(p *purchase.Purchase) {
		p.CreditsAdded = true
	})
}

func (s *fakePurchaseStore) MarkFailed(_ context.Context, id int64, reason string) error {
	return s.cas(id, purchase.StatusProcessing, purchase.StatusFailed, func(p *purchase.Purchase) {
		p.FailureReason = sql.NullString{String: reason, Valid: true}
	})
}

func (s *fakePurchaseStore) List(_ context.Context, tenantID int64, _ *purchase.ListFilters) ([]purchase.Purchase, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []purchase.Purchase
	for _, p := range s.purchases {
		if p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

type fakePackageStore struct {
	packages map[int64]*credit.Package
}

func (s *fakePackageStore) FindByID(_ context.Context, id int64) (*credit.Package, error) {
	p, ok := s.packages[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return p, nil
}

func (s *fakePackageStore) List(_ context.Context) ([]credit.Package, error) {
	var out []credit.Package
	for _, p := range s.packages {
		out = append(out, *p)
	}
	return out, nil
}

type fakeWalletStore struct {
	mu       sync.Mutex
	balances map[int64]float64
	debits   int
}

func (s *fakeWalletStore) FindByTenant(_ context.Context, tenantID int64) (*wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[tenantID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return &wallet.Wallet{TenantID: tenantID, Balance: balance, Currency: "KES"}, nil
}

func (s *fakeWalletStore) DebitIfSufficient(_ context.Context, tenantID int64, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[tenantID] < amount {
		return xerrors.ErrPaymentRailFailure
	}
	s.balances[tenantID] -= amount
	s.debits++
	return nil
}

func (s *fakeWalletStore) Credit(_ context.Context, tenantID int64, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[tenantID] += amount
	return nil
}

// fakeLedger mirrors the real ledger's idempotency on (kind, reference).
type fakeLedger struct {
	mu      sync.Mutex
	applied map[string]int64
}

func newFakeLedger() *fakeLedger { return &fakeLedger{applied: make(map[string]int64)} }

func (l *fakeLedger) Apply(_ context.Context, _ int64, kind credit.TransactionKind, amount int64, reference string) (*credit.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := string(kind) + ":" + reference
	if _, ok := l.applied[key]; !ok {
		l.applied[key] = amount
	}
	return &credit.Transaction{Kind: kind, Amount: l.applied[key], Reference: reference}, nil
}

func (l *fakeLedger) totalCredited() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, amount := range l.applied {
		total += amount
	}
	return total
}

type fakeGateway struct {
	sessionErr error
	verify     gateway.VerifyResult
	verifyErr  error
}

func (g *fakeGateway) CreateSession(_ context.Context, ref string, _ float64, _ string) (*gateway.Session, error) {
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	return &gateway.Session{SessionID: "sess-" + ref, CheckoutURL: "https://pay.example/" + ref}, nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, ref string) (*gateway.VerifyResult, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	result := g.verify
	result.Reference = ref
	return &result, nil
}

func newTestOrchestrator() (*Orchestrator, *fakePurchaseStore, *fakeWalletStore, *fakeLedger, *fakeGateway) {
	purchases := newFakePurchaseStore()
	packages := &fakePackageStore{packages: map[int64]*credit.Package{
		1: {ID: 1, Slug: "bundle-500", Credits: 500, Price: 1000, Currency: "KES", Status: credit.PackageStatusActive},
		2: {ID: 2, Slug: "retired", Credits: 100, Price: 200, Currency: "KES", Status: credit.PackageStatusInactive},
	}}
	wallets := &fakeWalletStore{balances: map[int64]float64{1: 5000}}
	ledger := newFakeLedger()
	gw := &fakeGateway{}

	o := NewOrchestrator(purchases, packages, wallets, ledger, gw, zap.NewNop())
	return o, purchases, wallets, ledger, gw
}

func TestWalletPurchaseHappyPath(t *testing.T) {
	ctx := context.Background()
	o, _, wallets, ledger, _ := newTestOrchestrator()

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailWallet})
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusPending, resp.Status)
	assert.Empty(t, resp.CheckoutURL)

	p, err := o.ConfirmWallet(ctx, 1, resp.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusCompleted, p.Status)
	assert.True(t, p.CreditsAdded)
	assert.EqualValues(t, 500, ledger.totalCredited())
	assert.EqualValues(t, 4000, wallets.balances[1])
}

func TestWalletPurchaseInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	o, purchases, wallets, ledger, _ := newTestOrchestrator()
	wallets.balances[1] = 10

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailWallet})
	require.NoError(t, err)

	_, err = o.ConfirmWallet(ctx, 1, resp.PurchaseID)
	require.ErrorIs(t, err, xerrors.ErrPaymentRailFailure)

	p, _ := purchases.FindByID(ctx, resp.PurchaseID)
	assert.Equal(t, purchase.StatusFailed, p.Status)
	assert.EqualValues(t, 0, ledger.totalCredited())
}

func TestWalletConfirmReplayIsNoOp(t *testing.T) {
	ctx := context.Background()
	o, _, wallets, ledger, _ := newTestOrchestrator()

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailWallet})
	require.NoError(t, err)

	_, err = o.ConfirmWallet(ctx, 1, resp.PurchaseID)
	require.NoError(t, err)

	// Retrying a completed purchase neither debits the wallet again nor
	// credits the ledger again.
	p, err := o.ConfirmWallet(ctx, 1, resp.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusCompleted, p.Status)
	assert.EqualValues(t, 500, ledger.totalCredited())
	assert.EqualValues(t, 4000, wallets.balances[1])
}

func TestGatewayPurchaseAndDuplicateWebhook(t *testing.T) {
	ctx := context.Background()
	o, _, _, ledger, _ := newTestOrchestrator()

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailGateway})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.CheckoutURL)

	p, err := o.ConfirmGateway(ctx, resp.Reference, purchase.GatewayOutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusCompleted, p.Status)

	// The gateway retries its webhook; the purchase stays settled and no
	// second credit lands.
	p, err = o.ConfirmGateway(ctx, resp.Reference, purchase.GatewayOutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusCompleted, p.Status)
	assert.EqualValues(t, 500, ledger.totalCredited())
}

func TestGatewayDeclined(t *testing.T) {
	ctx := context.Background()
	o, _, _, ledger, _ := newTestOrchestrator()

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailGateway})
	require.NoError(t, err)

	p, err := o.ConfirmGateway(ctx, resp.Reference, purchase.GatewayOutcomeFailed)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusFailed, p.Status)
	assert.EqualValues(t, 0, ledger.totalCredited())
}

func TestVerifyConvergesWithWebhook(t *testing.T) {
	ctx := context.Background()
	o, _, _, ledger, gw := newTestOrchestrator()

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailGateway})
	require.NoError(t, err)

	// Gateway says unpaid: purchase stays pending.
	gw.verify = gateway.VerifyResult{Paid: false}
	p, err := o.Verify(ctx, 1, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusPending, p.Status)

	// Webhook settles it first, then the client polls: one credit total.
	_, err = o.ConfirmGateway(ctx, resp.Reference, purchase.GatewayOutcomeSuccess)
	require.NoError(t, err)

	gw.verify = gateway.VerifyResult{Paid: true}
	p, err = o.Verify(ctx, 1, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusCompleted, p.Status)
	assert.EqualValues(t, 500, ledger.totalCredited())
}

func TestInitiateRejectsInactivePackageAndBadRail(t *testing.T) {
	ctx := context.Background()
	o, _, _, _, _ := newTestOrchestrator()

	_, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 2, Rail: purchase.RailWallet})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.Rail("cash")})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestInitiateGatewaySessionFailure(t *testing.T) {
	ctx := context.Background()
	o, purchases, _, _, gw := newTestOrchestrator()
	gw.sessionErr = errors.New("gateway unreachable")

	_, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailGateway})
	require.ErrorIs(t, err, xerrors.ErrPaymentRailFailure)

	// The attempt must not linger as pending.
	p, err := purchases.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusFailed, p.Status)
}

func TestConfirmWalletOwnership(t *testing.T) {
	ctx := context.Background()
	o, _, _, _, _ := newTestOrchestrator()

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailWallet})
	require.NoError(t, err)

	_, err = o.ConfirmWallet(ctx, 2, resp.PurchaseID)
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestCancelPendingPurchase(t *testing.T) {
	ctx := context.Background()
	o, _, _, ledger, _ := newTestOrchestrator()

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailGateway})
	require.NoError(t, err)

	p, err := o.Cancel(ctx, 1, resp.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusFailed, p.Status)
	assert.EqualValues(t, 0, ledger.totalCredited())

	// A completed purchase cannot be cancelled.
	resp2, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailGateway})
	require.NoError(t, err)
	_, err = o.ConfirmGateway(ctx, resp2.Reference, purchase.GatewayOutcomeSuccess)
	require.NoError(t, err)
	_, err = o.Cancel(ctx, 1, resp2.PurchaseID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidStateTransition)
}

func TestLateSuccessWebhookAfterCancelDoesNotCredit(t *testing.T) {
	ctx := context.Background()
	o, purchases, _, ledger, _ := newTestOrchestrator()

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailGateway})
	require.NoError(t, err)

	_, err = o.Cancel(ctx, 1, resp.PurchaseID)
	require.NoError(t, err)

	// The gateway's success webhook arrives after the cancellation. The
	// failed purchase must stay failed and the ledger must stay untouched.
	_, err = o.ConfirmGateway(ctx, resp.Reference, purchase.GatewayOutcomeSuccess)
	assert.ErrorIs(t, err, xerrors.ErrInvalidStateTransition)

	p, err := purchases.FindByID(ctx, resp.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusFailed, p.Status)
	assert.False(t, p.CreditsAdded)
	assert.EqualValues(t, 0, ledger.totalCredited())
}

func TestConcurrentWalletConfirmationsDebitOnce(t *testing.T) {
	ctx := context.Background()
	o, purchases, wallets, ledger, _ := newTestOrchestrator()

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailWallet})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.ConfirmWallet(ctx, 1, resp.PurchaseID)
		}()
	}
	wg.Wait()

	// Only the claim winner touches the wallet: one debit, one credit.
	assert.Equal(t, 1, wallets.debits)
	assert.EqualValues(t, 4000, wallets.balances[1])
	assert.EqualValues(t, 500, ledger.totalCredited())

	p, err := purchases.FindByID(ctx, resp.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusCompleted, p.Status)
}

func TestWalletBalance(t *testing.T) {
	ctx := context.Background()
	o, _, _, _, _ := newTestOrchestrator()

	w, err := o.WalletBalance(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, w.Balance)

	_, err = o.WalletBalance(ctx, 7)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestDiscountedAmount(t *testing.T) {
	ctx := context.Background()
	o, _, _, _, _ := newTestOrchestrator()
	o.packages.(*fakePackageStore).packages[1].DiscountPercent = 20

	resp, err := o.Initiate(ctx, 1, &purchase.InitiateRequest{PackageID: 1, Rail: purchase.RailWallet})
	require.NoError(t, err)
	assert.EqualValues(t, 800, resp.Amount)
}
