package services

import (
	"context"
	"sort"

	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/models"
)

// DownlineMember is one account below the viewer in the referral tree
type DownlineMember struct {
	AccountID       string                 `json:"accountId"`
	ReferrerID      string                 `json:"referrerId"`
	MembershipLevel models.MembershipLevel `json:"membershipLevel"`
	Depth           int                    `json:"depth"`
	// CommissionLevel is A, B or C for the three hops that earn commission, empty below.
	CommissionLevel models.CommissionLevel `json:"commissionLevel,omitempty"`
	// Qualifies is true when this member's activity currently pays the viewer.
	Qualifies bool `json:"qualifies"`
}

// Downline groups the viewer's referral tree
type Downline struct {
	AccountID string           `json:"accountId"`
	Members   []DownlineMember `json:"members"`
	ByLevel   map[string]int   `json:"byLevel"`
}

type ReferralService struct {
	store database.Store
}

func NewReferralService(store database.Store) *ReferralService {
	return &ReferralService{store: store}
}

// GetDownline walks the referral tree below accountID breadth first. maxDepth <= 0 walks it all.
func (s *ReferralService) GetDownline(ctx context.Context, accountID string, maxDepth int) (*Downline, error) {
	viewer, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	nodes, err := s.store.ListReferralNodes(ctx)
	if err != nil {
		return nil, err
	}
	idx := buildReferralIndex(nodes)

	out := &Downline{AccountID: accountID, Members: []DownlineMember{}, ByLevel: map[string]int{}}
	type item struct {
		id     string
		parent string
		depth  int
	}
	visited := map[string]bool{accountID: true}
	var queue []item
	for _, child := range idx.children[accountID] {
		queue = append(queue, item{id: child, parent: accountID, depth: 1})
	}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if visited[it.id] || (maxDepth > 0 && it.depth > maxDepth) {
			continue
		}
		visited[it.id] = true

		level := idx.levels[it.id]
		m := DownlineMember{
			AccountID:       it.id,
			ReferrerID:      it.parent,
			MembershipLevel: level,
			Depth:           it.depth,
		}
		if it.depth <= len(models.CommissionLevels) {
			m.CommissionLevel = models.CommissionLevels[it.depth-1]
			m.Qualifies = CommissionEligible(level, viewer.MembershipLevel)
			out.ByLevel[string(m.CommissionLevel)]++
		}
		out.Members = append(out.Members, m)

		children := append([]string(nil), idx.children[it.id]...)
		sort.Strings(children)
		for _, child := range children {
			queue = append(queue, item{id: child, parent: it.id, depth: it.depth + 1})
		}
	}
	return out, nil
}
