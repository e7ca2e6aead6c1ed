package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/domain"
	"github.com/buymart/dealflow-api/internal/escrow"
	"github.com/buymart/dealflow-api/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EscrowProvider is the external custody provider
type EscrowProvider interface {
	Open(ctx context.Context, req escrow.OpenRequest) (*escrow.Transaction, error)
	Fund(ctx context.Context, providerID string, req escrow.FundRequest) (*escrow.Transaction, error)
	Release(ctx context.Context, providerID string, req escrow.ReleaseRequest) (*escrow.Transaction, error)
	Cancel(ctx context.Context, providerID string, req escrow.CancelRequest) (*escrow.Transaction, error)
	GetStatus(ctx context.Context, providerID string) (*escrow.Transaction, error)
}

var (
	commissionRate = decimal.RequireFromString("0.05")
	minCommission  = decimal.NewFromInt(500)
	maxCommission  = decimal.NewFromInt(50000)
)

// BrokerCommission is 5% of the escrowed amount, clamped to [500, 50000]
func BrokerCommission(amount decimal.Decimal) decimal.Decimal {
	commission := amount.Mul(commissionRate).Round(2)
	if commission.LessThan(minCommission) {
		return minCommission
	}
	if commission.GreaterThan(maxCommission) {
		return maxCommission
	}
	return commission
}

// escrowTransitions is the custody state graph
var escrowTransitions = map[domain.EscrowStatus][]domain.EscrowStatus{
	domain.EscrowStatusCreated:    {domain.EscrowStatusFunded, domain.EscrowStatusCancelled},
	domain.EscrowStatusFunded:     {domain.EscrowStatusInProgress, domain.EscrowStatusReleased, domain.EscrowStatusCancelled, domain.EscrowStatusDisputed},
	domain.EscrowStatusInProgress: {domain.EscrowStatusReleased, domain.EscrowStatusCancelled, domain.EscrowStatusDisputed},
	domain.EscrowStatusDisputed:   {domain.EscrowStatusReleased, domain.EscrowStatusCancelled},
}

// CanTransitionEscrow reports whether the custody graph allows from -> to
func CanTransitionEscrow(from, to domain.EscrowStatus) bool {
	for _, next := range escrowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethods lists the supported escrow funding methods
var PaymentMethods = []domain.PaymentMethodDTO{
	{ID: domain.PaymentMethodWireTransfer, Name: "Wire Transfer", Description: "Bank wire transfer", Fees: "No additional fees"},
	{ID: domain.PaymentMethodACH, Name: "ACH Transfer", Description: "Automated Clearing House transfer", Fees: "No additional fees"},
	{ID: domain.PaymentMethodCreditCard, Name: "Credit Card", Description: "Visa, Mastercard, American Express", Fees: "3.5% processing fee"},
}

const (
	defaultReleaseReason = "Deal completed successfully"
	inspectionPeriodDays = 14
	escrowCurrency       = "USD"
)

// EscrowService is the escrow custody state machine. Local records mirror
// the provider and are written only after the provider confirms an action.
type EscrowService struct {
	db          *gorm.DB
	accountRepo *repository.EscrowAccountRepository
	txnRepo     *repository.EscrowTransactionRepository
	dealRepo    *repository.DealRepository
	provider    EscrowProvider
	activities  *ActivityService
	locker      *DealLocker
	cfg         *config.EscrowConfig
	logger      *zap.Logger
	now         Clock
}

// NewEscrowService creates a new EscrowService instance
func NewEscrowService(
	db *gorm.DB,
	accountRepo *repository.EscrowAccountRepository,
	txnRepo *repository.EscrowTransactionRepository,
	dealRepo *repository.DealRepository,
	provider EscrowProvider,
	activities *ActivityService,
	locker *DealLocker,
	cfg *config.EscrowConfig,
	logger *zap.Logger,
) *EscrowService {
	return &EscrowService{
		db:          db,
		accountRepo: accountRepo,
		txnRepo:     txnRepo,
		dealRepo:    dealRepo,
		provider:    provider,
		activities:  activities,
		locker:      locker,
		cfg:         cfg,
		logger:      logger,
		now:         systemClock,
	}
}

// WithClock replaces the time source
func (s *EscrowService) WithClock(now Clock) *EscrowService {
	s.now = now
	return s
}

func (s *EscrowService) providerName() string {
	if s.cfg != nil && s.cfg.Provider != "" {
		return s.cfg.Provider
	}
	return "escrow.com"
}

func (s *EscrowService) platform() string {
	if s.cfg != nil && s.cfg.Platform != "" {
		return s.cfg.Platform
	}
	return "dealflow"
}

// Create opens a provider transaction and stores the local mirror. A provider
// failure leaves no local record.
func (s *EscrowService) Create(ctx context.Context, dealID uuid.UUID, req *domain.CreateEscrowRequest) (*domain.EscrowAccount, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError("escrow amount must be positive")
	}
	if req.Buyer.Email == "" || req.Seller.Email == "" {
		return nil, domain.NewValidationError("buyer and seller email are required")
	}

	var account *domain.EscrowAccount
	err := s.locker.WithDeal(dealID, func() error {
		deal, err := s.dealRepo.GetByID(ctx, dealID)
		if err != nil {
			return lookupErr(err, "deal", dealID)
		}
		if deal.Status.IsTerminal() {
			return domain.NewValidationError("cannot open escrow for a %s deal", deal.Status)
		}
		if req.Buyer.UserID != deal.BuyerID || req.Seller.UserID != deal.SellerID {
			return domain.NewValidationError("escrow parties must be the deal's buyer and seller")
		}
		exists, err := s.accountRepo.ExistsForDeal(ctx, deal.ID)
		if err != nil {
			return storeErr("failed to check escrow account", err)
		}
		if exists {
			return domain.NewValidationError("deal %s already has an escrow account", deal.DealNumber)
		}

		commission := BrokerCommission(req.Amount)
		txn, err := s.provider.Open(ctx, s.openRequest(deal, req, commission))
		if err != nil {
			s.logger.Warn("escrow provider rejected open",
				zap.String("deal_id", deal.ID.String()),
				zap.Error(err))
			return providerErr("failed to open escrow transaction", err)
		}

		// The provider transaction exists now; record or compensate it even if the caller went away
		ctx := context.WithoutCancel(ctx)
		account = &domain.EscrowAccount{
			DealID:                deal.ID,
			Provider:              s.providerName(),
			ProviderTransactionID: txn.ID,
			Status:                domain.EscrowStatusCreated,
			Amount:                req.Amount,
			BrokerCommission:      commission,
			Currency:              escrowCurrency,
		}
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.accountRepo.WithTx(tx).Create(ctx, account); err != nil {
				return err
			}
			return s.txnRepo.WithTx(tx).Create(ctx, &domain.EscrowTransaction{
				EscrowAccountID:       account.ID,
				ProviderTransactionID: txn.ID,
				Action:                domain.EscrowActionCreated,
				Description:           "Escrow transaction created",
				Metadata: map[string]any{
					"amount":            req.Amount.String(),
					"broker_commission": commission.String(),
				},
				CreatedAt: s.now(),
			})
		})
		if err != nil {
			s.compensateOpen(ctx, deal, txn.ID)
			return storeErr("failed to save escrow account", err)
		}

		s.activities.Record(ctx, deal.ID, domain.ActivityTypeEscrowCreated,
			"Escrow created",
			fmt.Sprintf("Escrow of %s %s opened with %s", req.Amount.StringFixed(2), escrowCurrency, account.Provider),
			map[string]any{"escrow_account_id": account.ID.String(), "broker_commission": commission.String()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("escrow account created",
		zap.String("deal_id", dealID.String()),
		zap.String("escrow_account_id", account.ID.String()),
		zap.String("provider_transaction_id", account.ProviderTransactionID))
	return account, nil
}

func (s *EscrowService) openRequest(deal *domain.Deal, req *domain.CreateEscrowRequest, commission decimal.Decimal) escrow.OpenRequest {
	party := func(role string, p domain.EscrowParty) escrow.Party {
		return escrow.Party{Role: role, Customer: escrow.Customer{
			ID:        p.UserID.String(),
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Email:     p.Email,
			Phone:     p.Phone,
		}}
	}
	title := deal.ListingTitle
	if title == "" {
		title = deal.DealNumber
	}
	return escrow.OpenRequest{
		Title:       "Business Acquisition - " + title,
		Description: fmt.Sprintf("Escrow for business acquisition deal %s", deal.DealNumber),
		Currency:    escrowCurrency,
		Items: []escrow.Item{{
			Title:            title,
			Description:      "Business acquisition",
			Type:             "general_merchandise",
			InspectionPeriod: inspectionPeriodDays,
			Quantity:         1,
			Price:            req.Amount,
		}},
		Parties:          []escrow.Party{party("buyer", req.Buyer), party("seller", req.Seller)},
		BrokerCommission: commission,
		Metadata: map[string]string{
			"deal_id":     deal.ID.String(),
			"deal_number": deal.DealNumber,
			"platform":    s.platform(),
		},
	}
}

// compensateOpen cancels a provider transaction whose local record could not be saved
func (s *EscrowService) compensateOpen(ctx context.Context, deal *domain.Deal, providerID string) {
	_, err := s.provider.Cancel(ctx, providerID, escrow.CancelRequest{
		Reason:   "Local escrow record could not be saved",
		Metadata: map[string]string{"deal_id": deal.ID.String()},
	})
	if err != nil {
		s.logger.Error("failed to cancel orphaned escrow transaction",
			zap.String("deal_id", deal.ID.String()),
			zap.String("provider_transaction_id", providerID),
			zap.Error(err))
	}
}

// withAccount runs fn under the deal lock of the account with a fresh copy of
// the account and its deal. Accounts on deals hidden from the caller are not found.
func (s *EscrowService) withAccount(ctx context.Context, id uuid.UUID, fn func(*domain.EscrowAccount, *domain.Deal) error) (*domain.EscrowAccount, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "escrow account", id)
	}

	err = s.locker.WithDeal(account.DealID, func() error {
		deal, err := s.dealRepo.GetByID(ctx, account.DealID)
		if err != nil {
			return lookupErr(err, "escrow account", id)
		}
		account, err = s.accountRepo.GetByID(ctx, id)
		if err != nil {
			return lookupErr(err, "escrow account", id)
		}
		return fn(account, deal)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// settle reconciles an account flagged after a timed out call, so a mutating
// call is never retried against a stale status.
func (s *EscrowService) settle(ctx context.Context, account *domain.EscrowAccount, deal *domain.Deal) error {
	if !account.PendingReconcile {
		return nil
	}
	return s.reconcile(ctx, account, deal)
}

// remoteOp is one provider-backed escrow action
type remoteOp struct {
	action       domain.EscrowAction
	activityType domain.ActivityType
	description  string
	metadata     map[string]any
	call         func(ctx context.Context) (*escrow.Transaction, error)
	commit       func(account *domain.EscrowAccount, now time.Time)
}

// attemptRemote calls the provider and, only once it confirmed, applies the
// local status change and appends the log row in one transaction. A timed out
// call leaves the status alone and flags the account for reconciliation.
func (s *EscrowService) attemptRemote(ctx context.Context, account *domain.EscrowAccount, deal *domain.Deal, op remoteOp) error {
	from := account.Status
	txn, err := op.call(ctx)
	// The outcome is mirrored locally whether or not the caller is still waiting
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrProviderTimeout) {
			if markErr := s.accountRepo.SetPendingReconcile(ctx, account.ID, true); markErr != nil {
				s.logger.Error("failed to flag escrow account for reconciliation",
					zap.String("escrow_account_id", account.ID.String()),
					zap.Error(markErr))
			} else {
				account.PendingReconcile = true
			}
		}
		s.logger.Warn("escrow provider call failed",
			zap.String("escrow_account_id", account.ID.String()),
			zap.String("action", string(op.action)),
			zap.Error(err))
		return providerErr(fmt.Sprintf("escrow %s failed", op.action), err)
	}

	now := s.now()
	op.commit(account, now)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.WithTx(tx).Update(ctx, account); err != nil {
			return err
		}
		return s.txnRepo.WithTx(tx).Create(ctx, &domain.EscrowTransaction{
			EscrowAccountID:       account.ID,
			ProviderTransactionID: txn.ID,
			Action:                op.action,
			Description:           op.description,
			Metadata:              op.metadata,
			CreatedAt:             now,
		})
	})
	if err != nil {
		// The provider already moved; let reconciliation catch the local copy up
		if markErr := s.accountRepo.SetPendingReconcile(ctx, account.ID, true); markErr != nil {
			s.logger.Error("failed to flag escrow account for reconciliation",
				zap.String("escrow_account_id", account.ID.String()),
				zap.Error(markErr))
		}
		return storeErr("failed to save escrow account", err)
	}

	s.activities.Record(ctx, deal.ID, op.activityType, "Escrow "+string(op.action), op.description,
		map[string]any{"escrow_account_id": account.ID.String(), "from": string(from), "to": string(account.Status)})

	s.logger.Info("escrow status changed",
		zap.String("escrow_account_id", account.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(account.Status)))
	return nil
}

// Fund records the buyer's deposit
func (s *EscrowService) Fund(ctx context.Context, id uuid.UUID, req *domain.FundEscrowRequest) (*domain.EscrowAccount, error) {
	if !req.PaymentMethod.IsValid() {
		return nil, domain.NewValidationError("unsupported payment method %q", req.PaymentMethod)
	}

	return s.withAccount(ctx, id, func(account *domain.EscrowAccount, deal *domain.Deal) error {
		if err := s.settle(ctx, account, deal); err != nil {
			return err
		}
		if !CanTransitionEscrow(account.Status, domain.EscrowStatusFunded) {
			return domain.NewInvalidTransitionError("escrow", account.Status, domain.EscrowStatusFunded)
		}

		method := req.PaymentMethod
		return s.attemptRemote(ctx, account, deal, remoteOp{
			action:       domain.EscrowActionFunded,
			activityType: domain.ActivityTypeEscrowFunded,
			description:  fmt.Sprintf("Escrow funded via %s", method),
			metadata:     map[string]any{"payment_method": string(method)},
			call: func(ctx context.Context) (*escrow.Transaction, error) {
				return s.provider.Fund(ctx, account.ProviderTransactionID, escrow.FundRequest{
					PaymentMethod:  method,
					PaymentDetails: req.PaymentDetails,
				})
			},
			commit: func(a *domain.EscrowAccount, now time.Time) {
				a.Status = domain.EscrowStatusFunded
				a.PaymentMethod = &method
				a.FundedAt = &now
			},
		})
	})
}

// Release pays the escrowed funds out to the seller
func (s *EscrowService) Release(ctx context.Context, id uuid.UUID, req *domain.ReleaseEscrowRequest) (*domain.EscrowAccount, error) {
	return s.withAccount(ctx, id, func(account *domain.EscrowAccount, deal *domain.Deal) error {
		return s.release(ctx, account, deal, req)
	})
}

// release runs with the deal lock held
func (s *EscrowService) release(ctx context.Context, account *domain.EscrowAccount, deal *domain.Deal, req *domain.ReleaseEscrowRequest) error {
	if err := s.settle(ctx, account, deal); err != nil {
		return err
	}
	if !CanTransitionEscrow(account.Status, domain.EscrowStatusReleased) {
		return domain.NewInvalidTransitionError("escrow", account.Status, domain.EscrowStatusReleased)
	}

	reason := req.Reason
	if reason == "" {
		reason = defaultReleaseReason
	}
	amount := account.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return domain.NewValidationError("release amount must be positive")
	}
	if amount.GreaterThan(account.Amount) {
		return domain.NewValidationError("release amount %s exceeds escrowed amount %s",
			amount.StringFixed(2), account.Amount.StringFixed(2))
	}

	return s.attemptRemote(ctx, account, deal, remoteOp{
		action:       domain.EscrowActionReleased,
		activityType: domain.ActivityTypeEscrowReleased,
		description:  fmt.Sprintf("Released %s %s to seller", amount.StringFixed(2), account.Currency),
		metadata:     map[string]any{"amount": amount.String(), "reason": reason},
		call: func(ctx context.Context) (*escrow.Transaction, error) {
			return s.provider.Release(ctx, account.ProviderTransactionID, escrow.ReleaseRequest{
				Reason:   reason,
				Amount:   amount,
				Metadata: map[string]string{"deal_id": deal.ID.String(), "deal_number": deal.DealNumber},
			})
		},
		commit: func(a *domain.EscrowAccount, now time.Time) {
			a.Status = domain.EscrowStatusReleased
			a.ReleasedAmount = &amount
			a.ReleaseReason = reason
			a.ReleasedAt = &now
		},
	})
}

// Cancel returns the escrowed funds to the buyer
func (s *EscrowService) Cancel(ctx context.Context, id uuid.UUID, req *domain.CancelEscrowRequest) (*domain.EscrowAccount, error) {
	if req.Reason == "" {
		return nil, domain.NewValidationError("cancellation reason is required")
	}
	return s.withAccount(ctx, id, func(account *domain.EscrowAccount, deal *domain.Deal) error {
		return s.cancel(ctx, account, deal, req.Reason)
	})
}

// cancel runs with the deal lock held
func (s *EscrowService) cancel(ctx context.Context, account *domain.EscrowAccount, deal *domain.Deal, reason string) error {
	if err := s.settle(ctx, account, deal); err != nil {
		return err
	}
	if !CanTransitionEscrow(account.Status, domain.EscrowStatusCancelled) {
		return domain.NewInvalidTransitionError("escrow", account.Status, domain.EscrowStatusCancelled)
	}

	return s.attemptRemote(ctx, account, deal, remoteOp{
		action:       domain.EscrowActionCancelled,
		activityType: domain.ActivityTypeEscrowCancelled,
		description:  "Escrow cancelled, funds returned to buyer",
		metadata:     map[string]any{"reason": reason},
		call: func(ctx context.Context) (*escrow.Transaction, error) {
			return s.provider.Cancel(ctx, account.ProviderTransactionID, escrow.CancelRequest{
				Reason:   reason,
				Metadata: map[string]string{"deal_id": deal.ID.String(), "deal_number": deal.DealNumber},
			})
		},
		commit: func(a *domain.EscrowAccount, now time.Time) {
			a.Status = domain.EscrowStatusCancelled
			a.CancellationReason = reason
			a.CancelledAt = &now
		},
	})
}

// Reconcile polls the provider and mirrors its authoritative status
func (s *EscrowService) Reconcile(ctx context.Context, id uuid.UUID) (*domain.EscrowAccount, error) {
	return s.withAccount(ctx, id, func(account *domain.EscrowAccount, deal *domain.Deal) error {
		return s.reconcile(ctx, account, deal)
	})
}

// reconcile runs with the deal lock held
func (s *EscrowService) reconcile(ctx context.Context, account *domain.EscrowAccount, deal *domain.Deal) error {
	txn, err := s.provider.GetStatus(ctx, account.ProviderTransactionID)
	if err != nil {
		return providerErr("failed to poll escrow status", err)
	}
	if !txn.Status.IsValid() {
		return domain.NewProviderError(fmt.Sprintf("escrow provider reported unknown status %q", txn.Status), nil)
	}

	now := s.now()
	from := account.Status
	changed := txn.Status != from
	if changed {
		if !CanTransitionEscrow(from, txn.Status) {
			s.logger.Warn("escrow provider moved outside the custody graph",
				zap.String("escrow_account_id", account.ID.String()),
				zap.String("from", string(from)),
				zap.String("to", string(txn.Status)))
		}
		account.Status = txn.Status
		stampStatus(account, now)
	}
	account.PendingReconcile = false
	account.LastReconciledAt = &now

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.WithTx(tx).Update(ctx, account); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.txnRepo.WithTx(tx).Create(ctx, &domain.EscrowTransaction{
			EscrowAccountID:       account.ID,
			ProviderTransactionID: account.ProviderTransactionID,
			Action:                domain.EscrowActionReconciled,
			Description:           fmt.Sprintf("Status reconciled from %s to %s", from, txn.Status),
			Metadata:              map[string]any{"from": string(from), "to": string(txn.Status)},
			CreatedAt:             now,
		})
	})
	if err != nil {
		return storeErr("failed to save reconciled escrow account", err)
	}

	if changed {
		s.activities.Record(ctx, deal.ID, domain.ActivityTypeEscrowReconciled,
			"Escrow reconciled",
			fmt.Sprintf("Escrow status changed from %s to %s at the provider", from, txn.Status),
			map[string]any{"escrow_account_id": account.ID.String(), "from": string(from), "to": string(txn.Status)})
	}
	return nil
}

func stampStatus(account *domain.EscrowAccount, now time.Time) {
	switch account.Status {
	case domain.EscrowStatusFunded:
		if account.FundedAt == nil {
			account.FundedAt = &now
		}
	case domain.EscrowStatusReleased:
		if account.ReleasedAt == nil {
			account.ReleasedAt = &now
		}
	case domain.EscrowStatusCancelled:
		if account.CancelledAt == nil {
			account.CancelledAt = &now
		}
	}
}

// ReconcilePending reconciles up to limit accounts flagged after a timeout
func (s *EscrowService) ReconcilePending(ctx context.Context, limit int) (int, error) {
	accounts, err := s.accountRepo.ListPendingReconcile(ctx, limit)
	if err != nil {
		return 0, storeErr("failed to list pending escrow accounts", err)
	}

	reconciled := 0
	var errs []error
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.Reconcile(ctx, account.ID); err != nil {
			s.logger.Warn("escrow reconciliation failed",
				zap.String("escrow_account_id", account.ID.String()),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		reconciled++
	}
	return reconciled, errors.Join(errs...)
}

// Get returns an escrow account on a deal visible to the caller
func (s *EscrowService) Get(ctx context.Context, id uuid.UUID) (*domain.EscrowAccount, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "escrow account", id)
	}
	if _, err := s.dealRepo.GetByID(ctx, account.DealID); err != nil {
		return nil, lookupErr(err, "escrow account", id)
	}
	return account, nil
}

// GetByDeal returns the escrow account of a deal
func (s *EscrowService) GetByDeal(ctx context.Context, dealID uuid.UUID) (*domain.EscrowAccount, error) {
	if _, err := s.dealRepo.GetByID(ctx, dealID); err != nil {
		return nil, lookupErr(err, "deal", dealID)
	}
	account, err := s.accountRepo.GetByDealID(ctx, dealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("deal %s has no escrow account", dealID)
		}
		return nil, storeErr("failed to load escrow account", err)
	}
	return account, nil
}

// Transactions returns the escrow account's action log, oldest first
func (s *EscrowService) Transactions(ctx context.Context, id uuid.UUID) ([]domain.EscrowTransaction, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.txnRepo.ListByAccount(ctx, id)
	if err != nil {
		return nil, storeErr("failed to list escrow transactions", err)
	}
	return entries, nil
}
