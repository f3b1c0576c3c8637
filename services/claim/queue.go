package claim

import (
	"context"

	"go.uber.org/zap"

	"github.com/abujawed11/engage-swap-sub000/services/campaign"
	"github.com/abujawed11/engage-swap-sub000/services/scoring"
)

// QueueEntry is one campaign offered to a user, in rank order.
type QueueEntry struct {
	CampaignID    string  `json:"campaign_id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Payout        string  `json:"payout"`
	WatchDuration int     `json:"watch_duration"`
	Score         float64 `json:"score"`
}

// Queue builds a user's ranked campaign queue. Candidates the user cannot
// claim right now are filtered before ranking; the full eligible set is
// ranked and only then truncated to the page size.
func (s *Service) Queue(ctx context.Context, userID string, limit int) ([]QueueEntry, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	candidates, err := s.campaigns.Candidates(ctx, userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*campaign.Campaign, len(candidates))
	eligible := make([]scoring.Candidate, 0, len(candidates))
	for _, c := range candidates {
		decision, err := s.eligibility.Peek(ctx, userID, c.ID, c.Payout)
		if err != nil {
			zap.L().Warn("failed to peek eligibility, skipping candidate",
				zap.String("campaign_id", c.ID), zap.Error(err))
			continue
		}
		if !decision.Allowed {
			continue
		}
		byID[c.ID] = c
		eligible = append(eligible, scoring.Candidate{
			CampaignID: c.ID,
			Payout:     c.Payout,
			Total:      c.Total,
			Served:     c.Served,
			CreatedAt:  c.CreatedAt,
		})
	}

	ranked, err := s.ranker.Rank(ctx, userID, eligible)
	if err != nil {
		return nil, err
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]QueueEntry, 0, len(ranked))
	for _, r := range ranked {
		c := byID[r.CampaignID]
		out = append(out, QueueEntry{
			CampaignID:    c.ID,
			Title:         c.Title,
			URL:           c.URL,
			Payout:        c.Payout.StringFixed(3),
			WatchDuration: c.WatchDuration,
			Score:         r.Score,
		})
	}
	return out, nil
}
