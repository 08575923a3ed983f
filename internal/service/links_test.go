package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeFetcher is a test double for linkFetcher.
type fakeFetcher struct {
	calls int
	err   error
}

func (f *fakeFetcher) DynamicLink(ctx context.Context, campaignID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("https://s.co/%s-%d", campaignID, f.calls), nil
}

func TestLinkProvider_RefreshesEveryN(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := NewLinkProvider(fetcher, nil, 3)

	ctx := context.Background()

	first := p.LinkFor(ctx, "c1")
	if first != "https://s.co/c1-1" {
		t.Fatalf("unexpected first link: %s", first)
	}

	// Calls 2 and 3 reuse the cached value.
	for i := 0; i < 2; i++ {
		if got := p.LinkFor(ctx, "c1"); got != first {
			t.Errorf("expected reused link %s, got %s", first, got)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 fetch after 3 requests, got %d", fetcher.calls)
	}

	// The 4th request triggers the refresh.
	if got := p.LinkFor(ctx, "c1"); got != "https://s.co/c1-2" {
		t.Errorf("expected refreshed link, got %s", got)
	}
	if fetcher.calls != 2 {
		t.Errorf("expected 2 fetches, got %d", fetcher.calls)
	}
}

func TestLinkProvider_FailedRefreshFallsBack(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := NewLinkProvider(fetcher, nil, 1)

	ctx := context.Background()

	first := p.LinkFor(ctx, "c1")
	if first == "" {
		t.Fatal("expected a link on first fetch")
	}

	fetcher.err = errors.New("shortener down")
	if got := p.LinkFor(ctx, "c1"); got != first {
		t.Errorf("expected fallback to last known link %s, got %s", first, got)
	}
}

func TestLinkProvider_NoLinkEverFetched(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("shortener down")}
	p := NewLinkProvider(fetcher, nil, 5)

	if got := p.LinkFor(context.Background(), "c1"); got != "" {
		t.Errorf("expected empty link when fetch never succeeded, got %s", got)
	}
}

func TestLinkProvider_EmptyCampaign(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := NewLinkProvider(fetcher, nil, 5)

	if got := p.LinkFor(context.Background(), ""); got != "" {
		t.Errorf("expected empty link for empty campaign id, got %s", got)
	}
	if fetcher.calls != 0 {
		t.Errorf("expected no fetch for empty campaign id, got %d", fetcher.calls)
	}
}

func TestLinkProvider_CampaignsIsolated(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := NewLinkProvider(fetcher, nil, 10)

	ctx := context.Background()
	a := p.LinkFor(ctx, "a")
	b := p.LinkFor(ctx, "b")
	if a == b {
		t.Errorf("expected distinct links per campaign, got %s twice", a)
	}
}
