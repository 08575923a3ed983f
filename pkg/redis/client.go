package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/jpcardenas/sms-dispatch/environments"
	"github.com/jpcardenas/sms-dispatch/pkg/logger"
)

// Client caches two lookups: the dynamic short link per campaign (bounds
// calls to the shortener) and the provider tracking-id to recipient mapping
// used to resolve delivery-report webhooks.
type Client struct {
	client valkey.Client
}

const (
	trackingKeyPrefix = "tracking:"
	trackingTTL       = 72 * time.Hour

	linkKeyPrefix = "campaign_link:"
	linkTTL       = 10 * time.Minute
)

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

// CacheTracking remembers which recipient a provider tracking id belongs
// to, so a delivery report carrying only the tracking id can be resolved.
func (c *Client) CacheTracking(ctx context.Context, trackingID, number string) error {
	key := trackingKeyPrefix + trackingID

	err := c.client.Do(ctx, c.client.B().Set().Key(key).Value(number).Ex(trackingTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache tracking id: %w", err)
	}

	logger.Debugf("Cached tracking %s -> %s", trackingID, number)
	return nil
}

// LookupTracking resolves a tracking id to the recipient number. Empty
// string when the mapping is unknown or expired.
func (c *Client) LookupTracking(ctx context.Context, trackingID string) (string, error) {
	key := trackingKeyPrefix + trackingID

	result := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up tracking id: %w", result.Error())
	}

	number, err := result.ToString()
	if err != nil {
		return "", fmt.Errorf("failed to read tracking mapping: %w", err)
	}

	return number, nil
}

// CacheCampaignLink stores the current dynamic link for a campaign.
func (c *Client) CacheCampaignLink(ctx context.Context, campaignID, link string) error {
	key := linkKeyPrefix + campaignID

	err := c.client.Do(ctx, c.client.B().Set().Key(key).Value(link).Ex(linkTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache campaign link: %w", err)
	}

	return nil
}

// GetCampaignLink returns the cached dynamic link, or empty when absent.
func (c *Client) GetCampaignLink(ctx context.Context, campaignID string) (string, error) {
	key := linkKeyPrefix + campaignID

	result := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get campaign link: %w", result.Error())
	}

	link, err := result.ToString()
	if err != nil {
		return "", fmt.Errorf("failed to read campaign link: %w", err)
	}

	return link, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
