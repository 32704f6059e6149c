// internal/service/purchase/purchase.go
package purchase

import (
	"context"
	"errors"
	"fmt"

	"tuma-service/internal/domain/credit"
	"tuma-service/internal/domain/purchase"
	"tuma-service/internal/domain/wallet"
	"tuma-service/internal/gateway"
	xerrors "tuma-service/internal/pkg/errors"
	"tuma-service/internal/pkg/reference"

	"go.uber.org/zap"
)

type PurchaseStore interface {
	Create(ctx context.Context, p *purchase.Purchase) error
	FindByID(ctx context.Context, id int64) (*purchase.Purchase, error)
	FindByReference(ctx context.Context, ref string) (*purchase.Purchase, error)
	MarkProcessing(ctx context.Context, id int64) error
	ReleasePending(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	List(ctx context.Context, tenantID int64, filters *purchase.ListFilters) ([]purchase.Purchase, int64, error)
}

type PackageStore interface {
	FindByID(ctx context.Context, id int64) (*credit.Package, error)
	List(ctx context.Context) ([]credit.Package, error)
}

type WalletStore interface {
	FindByTenant(ctx context.Context, tenantID int64) (*wallet.Wallet, error)
	DebitIfSufficient(ctx context.Context, tenantID int64, amount float64) error
	Credit(ctx context.Context, tenantID int64, amount float64) error
}

// Ledger is the single write path for crediting. Both rails converge on one
// Apply call keyed by the purchase reference, which is what makes duplicate
// and racing confirmations safe.
type Ledger interface {
	Apply(ctx context.Context, tenantID int64, kind credit.TransactionKind, amount int64, reference string) (*credit.Transaction, error)
}

// Orchestrator brokers credit purchases across the wallet and gateway rails
// with at-most-once crediting per purchase attempt.
type Orchestrator struct {
	purchases PurchaseStore
	packages  PackageStore
	wallets   WalletStore
	ledger    Ledger
	gateway   gateway.PaymentClient
	logger    *zap.Logger
}

func NewOrchestrator(
	purchases PurchaseStore,
	packages PackageStore,
	wallets WalletStore,
	ledger Ledger,
	gatewayClient gateway.PaymentClient,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		purchases: purchases,
		packages:  packages,
		wallets:   wallets,
		ledger:    ledger,
		gateway:   gatewayClient,
		logger:    logger,
	}
}

// Initiate creates a pending purchase with a fresh payment reference. On the
// gateway rail it also opens the external payment session; a session that
// cannot be opened fails the purchase immediately rather than leaving a
// dangling pending attempt the client could never complete.
func (o *Orchestrator) Initiate(ctx context.Context, tenantID int64, req *purchase.InitiateRequest) (*purchase.InitiateResponse, error) {
	if !req.Rail.Valid() {
		return nil, fmt.Errorf("unknown payment rail %q: %w", req.Rail, xerrors.ErrInvalidInput)
	}

	pkg, err := o.packages.FindByID(ctx, req.PackageID)
	if err != nil {
		return nil, fmt.Errorf("credit package not found: %w", err)
	}
	if pkg.Status != credit.PackageStatusActive {
		return nil, fmt.Errorf("credit package is not active: %w", xerrors.ErrInvalidInput)
	}

	amount := pkg.Price * (100 - pkg.DiscountPercent) / 100

	p := &purchase.Purchase{
		TenantID:  tenantID,
		PackageID: pkg.ID,
		Reference: reference.Purchase(),
		Rail:      req.Rail,
		Amount:    amount,
		Currency:  pkg.Currency,
		Credits:   pkg.Credits,
		Status:    purchase.StatusPending,
	}

	if err := o.purchases.Create(ctx, p); err != nil {
		return nil, err
	}

	resp := &purchase.InitiateResponse{
		PurchaseID: p.ID,
		Reference:  p.Reference,
		Rail:       p.Rail,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Credits:    p.Credits,
		Status:     p.Status,
	}

	if req.Rail == purchase.RailGateway {
		session, err := o.gateway.CreateSession(ctx, p.Reference, p.Amount, p.Currency)
		if err != nil {
			o.logger.Error("failed to open payment session",
				zap.String("reference", p.Reference), zap.Error(err))
			_ = o.purchases.MarkProcessing(ctx, p.ID)
			_ = o.purchases.MarkFailed(ctx, p.ID, "payment session could not be opened")
			return nil, fmt.Errorf("payment session could not be opened: %w", xerrors.ErrPaymentRailFailure)
		}
		resp.CheckoutURL = session.CheckoutURL
	}

	o.logger.Info("purchase initiated",
		zap.Int64("purchase_id", p.ID),
		zap.Int64("tenant_id", tenantID),
		zap.String("reference", p.Reference),
		zap.String("rail", string(p.Rail)),
	)

	return resp, nil
}

// ConfirmWallet settles a wallet-rail purchase synchronously: claim the
// attempt, debit the monetary wallet, credit the ledger, complete. Replaying
// a completed purchase is a no-op; a concurrent confirmation loses the claim
// before any money moves, so the wallet is debited at most once.
func (o *Orchestrator) ConfirmWallet(ctx context.Context, tenantID, purchaseID int64) (*purchase.Purchase, error) {
	p, err := o.purchases.FindByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, xerrors.ErrUnauthorized
	}
	if p.Rail != purchase.RailWallet {
		return nil, fmt.Errorf("purchase is on the %s rail: %w", p.Rail, xerrors.ErrInvalidStateTransition)
	}
	if p.Status == purchase.StatusCompleted {
		return p, nil
	}

	if err := o.purchases.MarkProcessing(ctx, p.ID); err != nil {
		// Lost the claim. If whoever holds it already settled, a replay
		// stays a no-op; anything else is a genuine conflict.
		if cur, ferr := o.purchases.FindByID(ctx, p.ID); ferr == nil && cur.Status == purchase.StatusCompleted {
			return cur, nil
		}
		return nil, fmt.Errorf("purchase is not pending: %w", xerrors.ErrInvalidStateTransition)
	}

	if err := o.wallets.DebitIfSufficient(ctx, tenantID, p.Amount); err != nil {
		if errors.Is(err, xerrors.ErrPaymentRailFailure) {
			_ = o.purchases.MarkFailed(ctx, p.ID, "insufficient wallet funds")
			return nil, fmt.Errorf("insufficient wallet funds: %w", xerrors.ErrPaymentRailFailure)
		}
		_ = o.purchases.MarkFailed(ctx, p.ID, "wallet debit failed")
		return nil, err
	}

	if _, err := o.ledger.Apply(ctx, p.TenantID, credit.TransactionPurchase, p.Credits, p.Reference); err != nil {
		// The wallet was already debited and the ledger kept nothing;
		// hand the money back before surfacing the failure.
		if creditErr := o.wallets.Credit(ctx, tenantID, p.Amount); creditErr != nil {
			o.logger.Error("failed to return wallet debit",
				zap.Int64("tenant_id", tenantID),
				zap.String("reference", p.Reference),
				zap.Error(creditErr),
			)
		}
		_ = o.purchases.MarkFailed(ctx, p.ID, "credit settlement failed")
		return nil, fmt.Errorf("failed to credit ledger: %w", err)
	}

	return o.complete(ctx, p)
}

// WalletBalance returns the tenant's monetary wallet, for display before a
// wallet-rail confirmation.
func (o *Orchestrator) WalletBalance(ctx context.Context, tenantID int64) (*wallet.Wallet, error) {
	return o.wallets.FindByTenant(ctx, tenantID)
}

// ConfirmGateway ingests a gateway confirmation for a reference. Webhook
// retries and races with client polling are expected; the pending ->
// processing claim is the serialization point, so only the first caller
// settles and a confirmation for an already-failed purchase is refused
// outright. Terminal states never move again.
func (o *Orchestrator) ConfirmGateway(ctx context.Context, ref string, outcome purchase.GatewayOutcome) (*purchase.Purchase, error) {
	p, err := o.purchases.FindByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p.Status == purchase.StatusCompleted {
		// Duplicate confirmation of a settled purchase is a no-op.
		return p, nil
	}
	if p.Rail != purchase.RailGateway {
		return nil, fmt.Errorf("purchase is on the %s rail: %w", p.Rail, xerrors.ErrInvalidStateTransition)
	}
	if p.Status == purchase.StatusFailed {
		// Cancelled or declined. A success webhook landing afterwards
		// must not credit anything.
		return nil, fmt.Errorf("purchase already failed: %w", xerrors.ErrInvalidStateTransition)
	}

	if err := o.purchases.MarkProcessing(ctx, p.ID); err != nil {
		cur, ferr := o.purchases.FindByID(ctx, p.ID)
		if ferr != nil {
			return nil, ferr
		}
		if cur.Status == purchase.StatusCompleted {
			return cur, nil
		}
		return nil, fmt.Errorf("purchase is not pending: %w", xerrors.ErrInvalidStateTransition)
	}

	if outcome != purchase.GatewayOutcomeSuccess {
		if err := o.purchases.MarkFailed(ctx, p.ID, "gateway declined payment"); err != nil {
			return nil, err
		}
		return o.purchases.FindByID(ctx, p.ID)
	}

	return o.settle(ctx, p)
}

// Verify is the client-polled fallback for the gateway rail. It asks the
// gateway for the payment state and converges on the same settlement path
// as the webhook.
func (o *Orchestrator) Verify(ctx context.Context, tenantID int64, ref string) (*purchase.Purchase, error) {
	p, err := o.purchases.FindByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, xerrors.ErrUnauthorized
	}
	if p.Status != purchase.StatusPending || p.Rail != purchase.RailGateway {
		return p, nil
	}

	result, err := o.gateway.VerifyPayment(ctx, ref)
	if err != nil {
		o.logger.Warn("payment verification failed", zap.String("reference", ref), zap.Error(err))
		// Leave the purchase pending; the webhook or a later poll settles it.
		return p, nil
	}
	if !result.Paid {
		return p, nil
	}

	return o.ConfirmGateway(ctx, ref, purchase.GatewayOutcomeSuccess)
}

// Cancel fails a pending purchase with no ledger effect. Cancellation
// competes for the same claim as settlement, so a purchase mid-confirmation
// cannot be cancelled out from under its caller.
func (o *Orchestrator) Cancel(ctx context.Context, tenantID, purchaseID int64) (*purchase.Purchase, error) {
	p, err := o.purchases.FindByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, xerrors.ErrUnauthorized
	}

	if err := o.purchases.MarkProcessing(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("only a pending purchase can be cancelled: %w", xerrors.ErrInvalidStateTransition)
	}
	if err := o.purchases.MarkFailed(ctx, p.ID, "cancelled by user"); err != nil {
		return nil, err
	}

	o.logger.Info("purchase cancelled",
		zap.Int64("purchase_id", p.ID), zap.String("reference", p.Reference))

	return o.purchases.FindByID(ctx, p.ID)
}

// List retrieves a tenant's purchases
func (o *Orchestrator) List(ctx context.Context, tenantID int64, filters *purchase.ListFilters) (*purchase.ListResponse, error) {
	purchases, total, err := o.purchases.List(ctx, tenantID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	return &purchase.ListResponse{
		Purchases: purchases,
		Total:     total,
		Page:      filters.Page,
		PageSize:  filters.PageSize,
	}, nil
}

// Packages retrieves the purchasable catalog
func (o *Orchestrator) Packages(ctx context.Context) ([]credit.Package, error) {
	return o.packages.List(ctx)
}

// settle credits the ledger and completes a claimed gateway purchase. If
// crediting fails the claim is released back to pending, because the
// customer has already paid and the webhook retry must be able to try again.
func (o *Orchestrator) settle(ctx context.Context, p *purchase.Purchase) (*purchase.Purchase, error) {
	if _, err := o.ledger.Apply(ctx, p.TenantID, credit.TransactionPurchase, p.Credits, p.Reference); err != nil {
		_ = o.purchases.ReleasePending(ctx, p.ID)
		return nil, fmt.Errorf("failed to credit ledger: %w", err)
	}

	return o.complete(ctx, p)
}

// complete finalizes a claimed purchase whose ledger credit has landed.
func (o *Orchestrator) complete(ctx context.Context, p *purchase.Purchase) (*purchase.Purchase, error) {
	if err := o.purchases.MarkCompleted(ctx, p.ID); err != nil {
		return nil, err
	}

	o.logger.Info("purchase completed",
		zap.Int64("purchase_id", p.ID),
		zap.Int64("tenant_id", p.TenantID),
		zap.String("reference", p.Reference),
		zap.Int64("credits", p.Credits),
	)

	return o.purchases.FindByID(ctx, p.ID)
}
