package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/buymart/dealflow-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EscrowReaction is what the policy does to escrow when a deal reaches a status
type EscrowReaction string

const (
	EscrowReactionRelease EscrowReaction = "release"
	EscrowReactionCancel  EscrowReaction = "cancel"
)

// DefaultEscrowRules releases funds on completion and returns them when a
// deal is cancelled or expires.
func DefaultEscrowRules() map[domain.DealStatus]EscrowReaction {
	return map[domain.DealStatus]EscrowReaction{
		domain.DealStatusCompleted: EscrowReactionRelease,
		domain.DealStatusCancelled: EscrowReactionCancel,
		domain.DealStatusExpired:   EscrowReactionCancel,
	}
}

// EscrowPolicy couples deal transitions to escrow actions. It is invoked by
// the deal state machine with the deal lock held.
type EscrowPolicy struct {
	rules  map[domain.DealStatus]EscrowReaction
	escrow *EscrowService
	logger *zap.Logger
}

// NewEscrowPolicy creates a policy; nil rules selects DefaultEscrowRules
func NewEscrowPolicy(rules map[domain.DealStatus]EscrowReaction, escrowService *EscrowService, logger *zap.Logger) *EscrowPolicy {
	if rules == nil {
		rules = DefaultEscrowRules()
	}
	return &EscrowPolicy{rules: rules, escrow: escrowService, logger: logger}
}

// Apply runs the escrow reaction for the deal's new status, if any. A deal
// without an escrow account, or whose escrow is already out of custody, is a no-op.
func (p *EscrowPolicy) Apply(ctx context.Context, deal *domain.Deal) error {
	if p == nil || p.escrow == nil {
		return nil
	}
	reaction, ok := p.rules[deal.Status]
	if !ok {
		return nil
	}

	account, err := p.escrow.accountRepo.GetByDealID(ctx, deal.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return storeErr("failed to load escrow account", err)
	}
	if err := p.escrow.settle(ctx, account, deal); err != nil {
		return err
	}
	if account.Status.IsTerminal() {
		return nil
	}

	switch reaction {
	case EscrowReactionRelease:
		if account.Status == domain.EscrowStatusCreated {
			p.logger.Info("skipping escrow release for unfunded account",
				zap.String("deal_id", deal.ID.String()),
				zap.String("escrow_account_id", account.ID.String()))
			return nil
		}
		return p.escrow.release(ctx, account, deal, &domain.ReleaseEscrowRequest{})
	case EscrowReactionCancel:
		return p.escrow.cancel(ctx, account, deal, fmt.Sprintf("Deal %s was %s", deal.DealNumber, deal.Status))
	}
	return nil
}
