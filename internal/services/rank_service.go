package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RankInfo describes one level of the rank table
type RankInfo struct {
	Level        models.MembershipLevel `json:"level"`
	Name         string                 `json:"name"`
	Ordinal      int                    `json:"ordinal"`
	Price        decimal.Decimal        `json:"price"`
	BonusPercent decimal.Decimal        `json:"bonusPercent"`
}

// RankUpgradeResult is a completed upgrade plus the commissions it paid upstream
type RankUpgradeResult struct {
	Request         *models.RankUpgradeRequest `json:"request"`
	Commissions     []models.Commission        `json:"commissions"`
	CommissionError string                     `json:"commissionError,omitempty"`
}

type RankService struct {
	store       database.Store
	ledger      *LedgerService
	commissions *CommissionService
	settings    SettingsSource
	audit       *audit.Logger
}

func NewRankService(store database.Store, ledger *LedgerService, commissions *CommissionService,
	settings SettingsSource, auditLogger *audit.Logger) *RankService {
	return &RankService{
		store:       store,
		ledger:      ledger,
		commissions: commissions,
		settings:    settings,
		audit:       auditLogger,
	}
}

// UpgradeBonus is the income credit granted on reaching target. The first paid rank earns none.
func UpgradeBonus(settings *config.Settings, target models.MembershipLevel, price decimal.Decimal) (pct, amount decimal.Decimal) {
	if target.Ordinal() < 2 {
		return decimal.Zero, decimal.Zero
	}
	return settings.UpgradeBonusPercent, config.Percent(price, settings.UpgradeBonusPercent)
}

// ListRanks returns the rank table of the active settings.
func (s *RankService) ListRanks() []RankInfo {
	settings := s.settings.Current()
	out := make([]RankInfo, 0, len(models.Levels))
	for _, level := range models.Levels {
		info := RankInfo{Level: level, Name: level.DisplayName(), Ordinal: level.Ordinal()}
		if price, ok := settings.RankPrice(level); ok {
			info.Price = price
			info.BonusPercent, _ = UpgradeBonus(settings, level, price)
		}
		out = append(out, info)
	}
	return out
}

// RequestUpgrade debits the rank price from the personal wallet, credits the bonus, and moves the
// account to target in one unit. Upstream commissions are paid after commit.
func (s *RankService) RequestUpgrade(ctx context.Context, accountID string, target models.MembershipLevel) (*RankUpgradeResult, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidRankTarget, target)
	}

	var (
		request *models.RankUpgradeRequest
		from    models.MembershipLevel
		price   decimal.Decimal
	)
	err := s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		from = u.Account.MembershipLevel
		if !target.IsHigherThan(from) {
			return fmt.Errorf("%w: %s is not above current level %s", ErrInvalidRankTarget, target.DisplayName(), from.DisplayName())
		}
		var ok bool
		price, ok = u.Settings.RankPrice(target)
		if !ok {
			return fmt.Errorf("%w: %s has no price", ErrInvalidRankTarget, target.DisplayName())
		}

		requestID := uuid.New().String()
		keyPrefix := fmt.Sprintf("rank-upgrade:%s:%s", accountID, target)
		if _, err := u.Post(Posting{
			Wallet:               models.WalletPersonal,
			Delta:                price.Neg(),
			Reason:               models.ReasonRankUpgradeDebit,
			IdempotencyKey:       keyPrefix + ":debit",
			RelatedTransactionID: requestID,
		}); err != nil {
			return err
		}

		bonusPct, bonus := UpgradeBonus(u.Settings, target, price)
		if bonus.IsPositive() {
			if _, err := u.Post(Posting{
				Wallet:               models.WalletIncome,
				Delta:                bonus,
				Reason:               models.ReasonRankUpgradeBonus,
				IdempotencyKey:       keyPrefix + ":bonus",
				RelatedTransactionID: requestID,
			}); err != nil {
				return err
			}
		}

		u.Account.MembershipLevel = target
		request = &models.RankUpgradeRequest{
			ID:           requestID,
			AccountID:    accountID,
			FromLevel:    from,
			ToLevel:      target,
			Price:        price,
			BonusPercent: bonusPct,
			BonusAmount:  bonus,
			Status:       models.RankUpgradeCompleted,
			CreatedAt:    u.Now(),
		}
		return u.Tx().InsertRankUpgrade(u.Context(), request)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrInvalidRankTarget) {
			s.recordFailure(ctx, accountID, from, target, price, err)
		}
		return nil, err
	}

	log.Printf("[RANK] Account %s upgraded %s -> %s for %s (bonus %s)",
		accountID, from.DisplayName(), target.DisplayName(), price.StringFixed(2), request.BonusAmount.StringFixed(2))
	s.audit.LogOperation(request.ID, accountID, "RANK_UPGRADED", fmt.Sprintf("%s->%s", from, target))

	result := &RankUpgradeResult{Request: request}
	paid, err := s.commissions.Cascade(ctx, CommissionEvent{
		Source:      models.SourceRankUpgrade,
		EventID:     request.ID,
		AccountID:   accountID,
		Base:        price,
		EarnerLevel: target,
	})
	result.Commissions = paid
	if err != nil {
		result.CommissionError = "commission delivery pending retry"
	}
	return result, nil
}

// recordFailure stores a failed attempt in its own unit so the failed group leaves no trace on balances.
func (s *RankService) recordFailure(ctx context.Context, accountID string, from, target models.MembershipLevel, price decimal.Decimal, cause error) {
	err := s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		return u.Tx().InsertRankUpgrade(u.Context(), &models.RankUpgradeRequest{
			ID:            uuid.New().String(),
			AccountID:     accountID,
			FromLevel:     from,
			ToLevel:       target,
			Price:         price,
			BonusPercent:  decimal.Zero,
			BonusAmount:   decimal.Zero,
			Status:        models.RankUpgradeFailed,
			FailureReason: cause.Error(),
			CreatedAt:     u.Now(),
		})
	})
	if err != nil {
		log.Printf("[RANK] Failed to record failed upgrade for %s: %v", accountID, err)
	}
}

// History lists the upgrade attempts of an account in order.
func (s *RankService) History(ctx context.Context, accountID string) ([]models.RankUpgradeRequest, error) {
	return s.store.ListRankUpgrades(ctx, accountID)
}
