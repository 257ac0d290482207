package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// CommissionEvent is a qualifying earning event of account AccountID
type CommissionEvent struct {
	Source    models.CommissionSource `json:"source"`
	EventID   string                  `json:"eventId"`
	AccountID string                  `json:"accountId"`
	Base      decimal.Decimal         `json:"base"`
	// EarnerLevel is the earner's level when the event happened. Loaded from the account when empty.
	EarnerLevel models.MembershipLevel `json:"earnerLevel,omitempty"`
}

// CommissionEligible reports whether an ancestor at ancestor level earns from an earner at earner level.
func CommissionEligible(earner, ancestor models.MembershipLevel) bool {
	return earner != models.LevelIntern && earner.Valid() && ancestor.Ordinal() >= earner.Ordinal()
}

func commissionKey(earnerID, eventID string, level models.CommissionLevel) string {
	sum := sha256.Sum256([]byte(earnerID + "|" + eventID + "|" + string(level)))
	return "commission:" + hex.EncodeToString(sum[:])
}

type commissionHop struct {
	level     models.CommissionLevel
	accountID string
}

// CommissionService pays up to three referrer hops for each earning event
type CommissionService struct {
	store    database.Store
	ledger   *LedgerService
	settings SettingsSource
	audit    *audit.Logger
	backoff  time.Duration
}

func NewCommissionService(store database.Store, ledger *LedgerService, settings SettingsSource, auditLogger *audit.Logger) *CommissionService {
	return &CommissionService{
		store:    store,
		ledger:   ledger,
		settings: settings,
		audit:    auditLogger,
		backoff:  100 * time.Millisecond,
	}
}

// Cascade delivers the commissions of one event. Transient failures retry the whole cascade;
// hops already paid are replayed by their idempotency keys.
func (s *CommissionService) Cascade(ctx context.Context, ev CommissionEvent) ([]models.Commission, error) {
	if ev.EventID == "" || ev.AccountID == "" {
		return nil, fmt.Errorf("%w: commission event requires an event id and an earning account", ErrInvalidRequest)
	}
	if !ev.Base.IsPositive() {
		return nil, nil
	}

	settings := s.settings.Current()
	if ev.EarnerLevel == "" {
		earner, err := s.store.GetAccount(ctx, ev.AccountID)
		if err != nil {
			return nil, fmt.Errorf("load earner %s: %w", ev.AccountID, err)
		}
		ev.EarnerLevel = earner.MembershipLevel
	}
	if ev.EarnerLevel == models.LevelIntern {
		return nil, nil
	}

	for attempt := 1; ; attempt++ {
		paid, err := s.deliver(ctx, ev, settings)
		if err == nil || !IsTransient(err) || attempt >= settings.CommissionMaxAttempts {
			if err != nil {
				log.Printf("[COMMISSION] Cascade %s/%s failed after %d attempt(s): %v", ev.Source, ev.EventID, attempt, err)
				s.audit.LogError(ev.EventID, ev.AccountID, err)
			}
			return paid, err
		}

		log.Printf("[COMMISSION] Cascade %s/%s attempt %d failed, retrying: %v", ev.Source, ev.EventID, attempt, err)
		select {
		case <-ctx.Done():
			return paid, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
}

// ancestors walks the referrer chain up to three hops. A repeated account ends the walk.
func (s *CommissionService) ancestors(ctx context.Context, accountID string) ([]commissionHop, error) {
	visited := map[string]bool{accountID: true}
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var hops []commissionHop
	next := account.ReferrerID
	for _, level := range models.CommissionLevels {
		if next == nil {
			break
		}
		if visited[*next] {
			log.Printf("[COMMISSION] Referral cycle detected at %s above %s", *next, accountID)
			break
		}
		visited[*next] = true

		ancestor, err := s.store.GetAccount(ctx, *next)
		if err != nil {
			return nil, fmt.Errorf("load ancestor %s: %w", *next, err)
		}
		hops = append(hops, commissionHop{level: level, accountID: ancestor.ID})
		next = ancestor.ReferrerID
	}
	return hops, nil
}

func (s *CommissionService) deliver(ctx context.Context, ev CommissionEvent, settings *config.Settings) ([]models.Commission, error) {
	hops, err := s.ancestors(ctx, ev.AccountID)
	if err != nil {
		return nil, err
	}

	results := make([]*models.Commission, len(hops))
	g, gctx := errgroup.WithContext(ctx)
	for i, hop := range hops {
		g.Go(func() error {
			c, err := s.creditHop(gctx, ev, hop, settings)
			results[i] = c
			return err
		})
	}
	err = g.Wait()

	paid := make([]models.Commission, 0, len(results))
	for _, c := range results {
		if c != nil {
			paid = append(paid, *c)
		}
	}
	return paid, err
}

func (s *CommissionService) creditHop(ctx context.Context, ev CommissionEvent, hop commissionHop, settings *config.Settings) (*models.Commission, error) {
	var created *models.Commission
	err := s.ledger.Execute(ctx, hop.accountID, func(u *Unit) error {
		if !CommissionEligible(ev.EarnerLevel, u.Account.MembershipLevel) {
			return nil
		}

		pct := settings.CommissionPercent(ev.Source, hop.level)
		amount := config.Percent(ev.Base, pct)
		if !amount.IsPositive() {
			return nil
		}

		res, err := u.Post(Posting{
			Wallet:               models.WalletIncome,
			Delta:                amount,
			Reason:               models.ReasonCommission,
			IdempotencyKey:       commissionKey(ev.AccountID, ev.EventID, hop.level),
			RelatedTransactionID: ev.EventID,
		})
		if err != nil || res.Replayed {
			return err
		}

		c := &models.Commission{
			ID:              uuid.New().String(),
			Level:           hop.level,
			FromAccountID:   ev.AccountID,
			ToAccountID:     hop.accountID,
			SourceEvent:     ev.Source,
			EventID:         ev.EventID,
			BaseAmount:      ev.Base,
			Percent:         pct,
			AmountEarned:    amount,
			SettingsVersion: settings.Version,
			CreatedAt:       u.Now(),
		}
		if err := u.Tx().InsertCommission(u.Context(), c); err != nil {
			return fmt.Errorf("record commission: %w", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created != nil {
		log.Printf("[COMMISSION] Level %s: %s earned %s from %s (%s %s)",
			created.Level, created.ToAccountID, created.AmountEarned.StringFixed(2), created.FromAccountID, ev.Source, ev.EventID)
	}
	return created, nil
}

// GetCommissions lists commissions credited to an account, newest first.
func (s *CommissionService) GetCommissions(ctx context.Context, accountID string, limit int) ([]models.Commission, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListCommissions(ctx, accountID, clampLimit(limit))
}
