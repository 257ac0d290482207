package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

var ErrSalaryRunInProgress = errors.New("salary run already in progress for period")

const salaryLockTTL = time.Hour

// SalaryStatus is the live evaluation of one account
type SalaryStatus struct {
	AccountID        string                  `json:"accountId"`
	MembershipLevel  models.MembershipLevel  `json:"membershipLevel"`
	DirectQualified  int                     `json:"directQualified"`
	NetworkQualified int                     `json:"networkQualified"`
	MatchedTier      *config.SalaryTier      `json:"matchedTier,omitempty"`
	Tiers            []config.SalaryTier     `json:"tiers"`
	Snapshots        []models.SalarySnapshot `json:"snapshots"`
}

// SalaryRunReport summarises one period run
type SalaryRunReport struct {
	Period    string          `json:"period"`
	Evaluated int             `json:"evaluated"`
	Paid      int             `json:"paid"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Total     decimal.Decimal `json:"total"`
}

// referralIndex maps each account to its level and direct children
type referralIndex struct {
	levels   map[string]models.MembershipLevel
	children map[string][]string
}

func buildReferralIndex(nodes []models.ReferralNode) *referralIndex {
	idx := &referralIndex{
		levels:   make(map[string]models.MembershipLevel, len(nodes)),
		children: make(map[string][]string),
	}
	for _, n := range nodes {
		idx.levels[n.AccountID] = n.MembershipLevel
		if n.ReferrerID != nil {
			idx.children[*n.ReferrerID] = append(idx.children[*n.ReferrerID], n.AccountID)
		}
	}
	return idx
}

// qualified counts direct referrals and the full downline that satisfy the commission rule
// against accountID's own level.
func (idx *referralIndex) qualified(accountID string) (direct, network int) {
	level := idx.levels[accountID]
	for _, child := range idx.children[accountID] {
		if CommissionEligible(idx.levels[child], level) {
			direct++
		}
	}

	visited := map[string]bool{accountID: true}
	queue := append([]string(nil), idx.children[accountID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if CommissionEligible(idx.levels[id], level) {
			network++
		}
		queue = append(queue, idx.children[id]...)
	}
	return direct, network
}

// MatchTier returns the single highest-paying tier reached, or nil.
func MatchTier(settings *config.Settings, direct, network int) *config.SalaryTier {
	for i := range settings.SalaryTiers {
		tier := settings.SalaryTiers[i]
		count := network
		if tier.Kind == config.TierDirect {
			count = direct
		}
		if count >= tier.Threshold {
			return &tier
		}
	}
	return nil
}

// SalaryPeriod formats the month containing t.
func SalaryPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PreviousSalaryPeriod is the month before the one containing now.
func PreviousSalaryPeriod(now time.Time) string {
	first := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	return SalaryPeriod(first.AddDate(0, -1, 0))
}

func salaryKey(accountID, period string) string {
	sum := sha256.Sum256([]byte(accountID + "|" + period))
	return "salary:" + hex.EncodeToString(sum[:])
}

type SalaryService struct {
	store    database.Store
	ledger   *LedgerService
	settings SettingsSource
	redis    redis.Cmdable
	audit    *audit.Logger
}

func NewSalaryService(store database.Store, ledger *LedgerService, settings SettingsSource,
	rdb redis.Cmdable, auditLogger *audit.Logger) *SalaryService {
	return &SalaryService{store: store, ledger: ledger, settings: settings, redis: rdb, audit: auditLogger}
}

// Run evaluates every account for period and pays at most one tier each. Reruns are safe.
func (s *SalaryService) Run(ctx context.Context, period string) (*SalaryRunReport, error) {
	if _, err := time.Parse("2006-01", period); err != nil {
		return nil, fmt.Errorf("%w: invalid salary period %q", ErrInvalidRequest, period)
	}

	lockKey := "salary:run:" + period
	ok, err := s.redis.SetNX(ctx, lockKey, "running", salaryLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: salary lock: %v", database.ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrSalaryRunInProgress, period)
	}
	defer s.redis.Del(context.WithoutCancel(ctx), lockKey)

	settings := s.settings.Current()
	nodes, err := s.store.ListReferralNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load referral index: %w", err)
	}
	idx := buildReferralIndex(nodes)

	report := &SalaryRunReport{Period: period, Total: decimal.Zero}
	log.Printf("[SALARY] Run %s started for %d accounts (settings v%d)", period, len(nodes), settings.Version)

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Evaluated++

		direct, network := idx.qualified(n.AccountID)
		tier := MatchTier(settings, direct, network)
		if tier == nil {
			continue
		}

		paid, err := s.pay(ctx, n.AccountID, period, tier, direct, network, settings)
		switch {
		case err != nil:
			report.Failed++
			log.Printf("[SALARY] Payout to %s for %s failed: %v", n.AccountID, period, err)
			s.audit.LogError(period, n.AccountID, err)
		case paid:
			report.Paid++
			report.Total = report.Total.Add(tier.Amount)
		default:
			report.Skipped++
		}
	}

	log.Printf("[SALARY] Run %s finished: paid=%d skipped=%d failed=%d total=%s",
		period, report.Paid, report.Skipped, report.Failed, report.Total.StringFixed(2))
	return report, nil
}

func (s *SalaryService) pay(ctx context.Context, accountID, period string, tier *config.SalaryTier,
	direct, network int, settings *config.Settings) (bool, error) {
	paid := false
	err := s.ledger.Execute(ctx, accountID, func(u *Unit) error {
		if _, err := u.Tx().GetSalarySnapshot(u.Context(), accountID, period); err == nil {
			return nil
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}

		res, err := u.Post(Posting{
			Wallet:               settings.SalaryWallet,
			Delta:                tier.Amount,
			Reason:               models.ReasonSalary,
			IdempotencyKey:       salaryKey(accountID, period),
			RelatedTransactionID: period,
		})
		if err != nil {
			return err
		}

		paid = !res.Replayed
		return u.Tx().InsertSalarySnapshot(u.Context(), &models.SalarySnapshot{
			AccountID:        accountID,
			Period:           period,
			TierMatched:      tier.Name,
			DirectQualified:  direct,
			NetworkQualified: network,
			AmountPaid:       res.Entry.Delta,
			Wallet:           settings.SalaryWallet,
			SettingsVersion:  settings.Version,
			CreatedAt:        u.Now(),
		})
	})
	if err == nil && paid {
		log.Printf("[SALARY] %s paid %s (%s) for %s", accountID, tier.Amount.StringFixed(2), tier.Name, period)
	}
	return paid, err
}

// GetSalaryStatus evaluates an account against the current settings without paying.
func (s *SalaryService) GetSalaryStatus(ctx context.Context, accountID string) (*SalaryStatus, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	nodes, err := s.store.ListReferralNodes(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.store.ListSalarySnapshots(ctx, accountID)
	if err != nil {
		return nil, err
	}

	settings := s.settings.Current()
	direct, network := buildReferralIndex(nodes).qualified(accountID)
	return &SalaryStatus{
		AccountID:        accountID,
		MembershipLevel:  account.MembershipLevel,
		DirectQualified:  direct,
		NetworkQualified: network,
		MatchedTier:      MatchTier(settings, direct, network),
		Tiers:            settings.SalaryTiers,
		Snapshots:        snapshots,
	}, nil
}
