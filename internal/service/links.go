package service

import (
	"context"
	"sync"

	"github.com/jpcardenas/sms-dispatch/pkg/logger"
)

type linkFetcher interface {
	DynamicLink(ctx context.Context, campaignID string) (string, error)
}

type linkCache interface {
	GetCampaignLink(ctx context.Context, campaignID string) (string, error)
	CacheCampaignLink(ctx context.Context, campaignID, link string) error
}

// LinkProvider hands out the dynamic short link for a campaign. The
// shortener is only called every refreshEvery requests; between refreshes
// the last fetched value is reused, and a failed refresh falls back to it
// too, so a flaky shortener never stalls a drain.
type LinkProvider struct {
	fetcher      linkFetcher
	cache        linkCache // optional
	refreshEvery int

	mu      sync.Mutex
	counter map[string]int
	current map[string]string
}

func NewLinkProvider(fetcher linkFetcher, cache linkCache, refreshEvery int) *LinkProvider {
	if refreshEvery < 1 {
		refreshEvery = 15
	}
	return &LinkProvider{
		fetcher:      fetcher,
		cache:        cache,
		refreshEvery: refreshEvery,
		counter:      make(map[string]int),
		current:      make(map[string]string),
	}
}

// LinkFor returns the current dynamic link for the campaign, refreshing it
// when due. Returns "" when no link could ever be fetched; the template
// renderer then leaves the placeholder alone.
func (p *LinkProvider) LinkFor(ctx context.Context, campaignID string) string {
	if campaignID == "" || p.fetcher == nil {
		return ""
	}

	p.mu.Lock()
	n := p.counter[campaignID]
	p.counter[campaignID] = n + 1
	link := p.current[campaignID]
	p.mu.Unlock()

	if link != "" && n%p.refreshEvery != 0 {
		return link
	}

	if link == "" && p.cache != nil {
		if cached, err := p.cache.GetCampaignLink(ctx, campaignID); err == nil && cached != "" {
			link = cached
		}
	}

	fresh, err := p.fetcher.DynamicLink(ctx, campaignID)
	if err != nil {
		logger.Warnf("Failed to refresh dynamic link for campaign %s: %v", campaignID, err)
		return link
	}

	p.mu.Lock()
	p.current[campaignID] = fresh
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.CacheCampaignLink(ctx, campaignID, fresh); err != nil {
			logger.Warnf("Failed to cache dynamic link for campaign %s: %v", campaignID, err)
		}
	}

	return fresh
}
