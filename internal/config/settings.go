package config

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/earnhub/backend/internal/models"
	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Salary tier kinds
const (
	TierDirect  = "direct"
	TierNetwork = "network"
)

// SalaryTier pays Amount when the qualified count of Kind reaches Threshold
type SalaryTier struct {
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	Threshold int             `json:"threshold"`
	Amount    decimal.Decimal `json:"amount"`
}

// Settings is an immutable, versioned snapshot of the business configuration.
// Evaluations take a *Settings explicitly so past computations stay reproducible.
type Settings struct {
	Version               int
	Currency              string
	TaskCommission        map[models.CommissionLevel]decimal.Decimal
	UpgradeCommission     map[models.CommissionLevel]decimal.Decimal
	RankPrices            map[models.MembershipLevel]decimal.Decimal
	UpgradeBonusPercent   decimal.Decimal
	SalaryWallet          models.Wallet
	SalaryTiers           []SalaryTier // highest amount first
	SalarySchedule        string
	WithdrawalTaxPercent  decimal.Decimal
	WithdrawalMinRank     models.MembershipLevel
	WithdrawalMinAmount   decimal.Decimal
	VideosPerDay          map[models.MembershipLevel]int
	PaymentPerVideo       map[models.MembershipLevel]decimal.Decimal
	BankChangeLocation    *time.Location
	LockTimeout           time.Duration
	VerifyOnWrite         bool
	CommissionMaxAttempts int
	ReferralBaseURL       string
}

// CommissionPercent returns the configured percentage for a hop of the given event type.
func (s *Settings) CommissionPercent(source models.CommissionSource, level models.CommissionLevel) decimal.Decimal {
	table := s.TaskCommission
	if source == models.SourceRankUpgrade {
		table = s.UpgradeCommission
	}
	return table[level]
}

// RankPrice returns the price of a paid rank.
func (s *Settings) RankPrice(level models.MembershipLevel) (decimal.Decimal, bool) {
	p, ok := s.RankPrices[level]
	return p, ok
}

// Percent applies a percentage to an amount, rounded to cents.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
}

var defaultRankPrices = map[models.MembershipLevel]string{
	models.LevelRank1:  "3000",
	models.LevelRank2:  "9600",
	models.LevelRank3:  "24000",
	models.LevelRank4:  "52000",
	models.LevelRank5:  "100000",
	models.LevelRank6:  "180000",
	models.LevelRank7:  "300000",
	models.LevelRank8:  "480000",
	models.LevelRank9:  "720000",
	models.LevelRank10: "1000000",
}

func applySettingsDefaults(v *viper.Viper) {
	v.SetDefault("version", 1)
	v.SetDefault("currency", "PKR")

	v.SetDefault("commission.task.a", "10")
	v.SetDefault("commission.task.b", "5")
	v.SetDefault("commission.task.c", "2")
	v.SetDefault("commission.rank_upgrade.a", "12")
	v.SetDefault("commission.rank_upgrade.b", "6")
	v.SetDefault("commission.rank_upgrade.c", "3")
	v.SetDefault("commission.max_attempts", 3)

	for level, price := range defaultRankPrices {
		v.SetDefault("ranks.prices."+string(level), price)
	}
	v.SetDefault("ranks.upgrade_bonus_percent", "10")

	v.SetDefault("salary.wallet", string(models.WalletIncome))
	v.SetDefault("salary.schedule", "0 2 1 * *")
	v.SetDefault("salary.tiers", []map[string]any{
		{"name": "direct-15", "kind": TierDirect, "threshold": 15, "amount": "50000"},
		{"name": "network-40", "kind": TierNetwork, "threshold": 40, "amount": "30000"},
		{"name": "direct-8", "kind": TierDirect, "threshold": 8, "amount": "20000"},
		{"name": "network-20", "kind": TierNetwork, "threshold": 20, "amount": "10000"},
	})

	v.SetDefault("withdrawal.tax_percent", "10")
	v.SetDefault("withdrawal.min_rank", string(models.LevelRank1))
	v.SetDefault("withdrawal.min_amount", "500")

	for i, level := range models.Levels {
		v.SetDefault("tasks.videos_per_day."+string(level), i+1)
		perVideo := decimal.NewFromInt(int64(20 * (i + 1)))
		if level == models.LevelIntern {
			perVideo = decimal.NewFromInt(10)
		}
		v.SetDefault("tasks.payment_per_video."+string(level), perVideo.String())
	}

	v.SetDefault("bank_change.timezone", "UTC")
	v.SetDefault("ledger.lock_timeout", 5*time.Second)
	v.SetDefault("ledger.verify_on_write", true)
	v.SetDefault("referral.base_url", "https://app.example.com/register")
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("setting %s: invalid decimal %q: %w", key, raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("setting %s: must not be negative", key)
	}
	return d, nil
}

func commissionTable(v *viper.Viper, prefix string) (map[models.CommissionLevel]decimal.Decimal, error) {
	table := make(map[models.CommissionLevel]decimal.Decimal, len(models.CommissionLevels))
	for _, level := range models.CommissionLevels {
		pct, err := decimalKey(v, prefix+"."+strings.ToLower(string(level)))
		if err != nil {
			return nil, err
		}
		table[level] = pct
	}
	return table, nil
}

// LoadSettings builds a snapshot from a viper instance that already has defaults applied.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Version:               v.GetInt("version"),
		Currency:              v.GetString("currency"),
		SalarySchedule:        v.GetString("salary.schedule"),
		LockTimeout:           v.GetDuration("ledger.lock_timeout"),
		VerifyOnWrite:         v.GetBool("ledger.verify_on_write"),
		CommissionMaxAttempts: v.GetInt("commission.max_attempts"),
		ReferralBaseURL:       v.GetString("referral.base_url"),
		RankPrices:            make(map[models.MembershipLevel]decimal.Decimal),
		VideosPerDay:          make(map[models.MembershipLevel]int),
		PaymentPerVideo:       make(map[models.MembershipLevel]decimal.Decimal),
	}

	var err error
	if s.TaskCommission, err = commissionTable(v, "commission.task"); err != nil {
		return nil, err
	}
	if s.UpgradeCommission, err = commissionTable(v, "commission.rank_upgrade"); err != nil {
		return nil, err
	}
	if s.UpgradeBonusPercent, err = decimalKey(v, "ranks.upgrade_bonus_percent"); err != nil {
		return nil, err
	}
	if s.WithdrawalTaxPercent, err = decimalKey(v, "withdrawal.tax_percent"); err != nil {
		return nil, err
	}
	if s.WithdrawalMinAmount, err = decimalKey(v, "withdrawal.min_amount"); err != nil {
		return nil, err
	}

	for _, level := range models.Levels[1:] {
		price, err := decimalKey(v, "ranks.prices."+string(level))
		if err != nil {
			return nil, err
		}
		s.RankPrices[level] = price
	}
	for _, level := range models.Levels {
		s.VideosPerDay[level] = v.GetInt("tasks.videos_per_day." + string(level))
		pay, err := decimalKey(v, "tasks.payment_per_video."+string(level))
		if err != nil {
			return nil, err
		}
		s.PaymentPerVideo[level] = pay
	}

	s.SalaryWallet = models.Wallet(v.GetString("salary.wallet"))
	if !s.SalaryWallet.Valid() {
		return nil, fmt.Errorf("setting salary.wallet: unknown wallet %q", s.SalaryWallet)
	}

	minRank, err := models.ParseLevel(v.GetString("withdrawal.min_rank"))
	if err != nil {
		return nil, fmt.Errorf("setting withdrawal.min_rank: %w", err)
	}
	s.WithdrawalMinRank = minRank

	loc, err := time.LoadLocation(v.GetString("bank_change.timezone"))
	if err != nil {
		return nil, fmt.Errorf("setting bank_change.timezone: %w", err)
	}
	s.BankChangeLocation = loc

	var rawTiers []struct {
		Name      string `mapstructure:"name"`
		Kind      string `mapstructure:"kind"`
		Threshold int    `mapstructure:"threshold"`
		Amount    string `mapstructure:"amount"`
	}
	if err := v.UnmarshalKey("salary.tiers", &rawTiers); err != nil {
		return nil, fmt.Errorf("setting salary.tiers: %w", err)
	}
	for _, rt := range rawTiers {
		if rt.Kind != TierDirect && rt.Kind != TierNetwork {
			return nil, fmt.Errorf("setting salary.tiers: unknown kind %q", rt.Kind)
		}
		amount, err := decimal.NewFromString(rt.Amount)
		if err != nil {
			return nil, fmt.Errorf("setting salary.tiers: invalid amount %q: %w", rt.Amount, err)
		}
		if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
			return nil, fmt.Errorf("setting salary.tiers: amount %q must be positive with at most two decimals", rt.Amount)
		}
		name := rt.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", rt.Kind, rt.Threshold)
		}
		s.SalaryTiers = append(s.SalaryTiers, SalaryTier{Name: name, Kind: rt.Kind, Threshold: rt.Threshold, Amount: amount})
	}
	sortTiers(s.SalaryTiers)

	if s.CommissionMaxAttempts < 1 {
		s.CommissionMaxAttempts = 1
	}
	return s, nil
}

// sortTiers orders tiers by amount descending; on equal amounts direct tiers come first.
func sortTiers(tiers []SalaryTier) {
	sort.SliceStable(tiers, func(i, j int) bool {
		if c := tiers[i].Amount.Cmp(tiers[j].Amount); c != 0 {
			return c > 0
		}
		return tiers[i].Kind == TierDirect && tiers[j].Kind != TierDirect
	})
}

// DefaultSettings returns the built-in snapshot.
func DefaultSettings() *Settings {
	v := viper.New()
	applySettingsDefaults(v)
	s, err := LoadSettings(v)
	if err != nil {
		panic(fmt.Sprintf("default settings are invalid: %v", err))
	}
	return s
}

// Provider hands out the current settings snapshot and swaps it when the settings file changes.
type Provider struct {
	v       *viper.Viper
	mu      sync.Mutex
	current atomic.Pointer[Settings]
}

// NewProvider loads settings from path (optional) on top of the defaults and watches it for changes.
func NewProvider(path string) (*Provider, error) {
	v := viper.New()
	applySettingsDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
	}

	s, err := LoadSettings(v)
	if err != nil {
		return nil, err
	}

	p := &Provider{v: v}
	p.current.Store(s)

	if path != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			if err := p.reload(); err != nil {
				log.Printf("[CONFIG] Settings reload from %s rejected: %v", e.Name, err)
			}
		})
		v.WatchConfig()
	}
	return p, nil
}

// NewStaticProvider serves a fixed snapshot.
func NewStaticProvider(s *Settings) *Provider {
	p := &Provider{}
	p.current.Store(s)
	return p
}

// Current returns the active snapshot. Callers must not mutate it.
func (p *Provider) Current() *Settings {
	return p.current.Load()
}

func (p *Provider) reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := LoadSettings(p.v)
	if err != nil {
		return err
	}
	if prev := p.current.Load(); prev != nil && next.Version <= prev.Version {
		next.Version = prev.Version + 1
	}
	p.current.Store(next)
	log.Printf("[CONFIG] Settings reloaded, version %d", next.Version)
	return nil
}
