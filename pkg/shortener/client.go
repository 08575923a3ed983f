// Package shortener talks to the link-generation collaborator. The
// dispatcher refreshes the dynamic link periodically, not per message, to
// bound calls to this service.
package shortener

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/jpcardenas/sms-dispatch/environments"
	"github.com/jpcardenas/sms-dispatch/pkg/logger"
)

type linkResponse struct {
	Status   string `json:"status"`
	ShortURL string `json:"shortUrl"`
	Message  string `json:"message"`
}

type Client struct {
	httpClient *resty.Client
	baseURL    string
}

func NewClient(cfg environments.ShortenerConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		baseURL:    cfg.URL,
	}
}

// DynamicLink fetches the current short link for a campaign.
func (c *Client) DynamicLink(ctx context.Context, campaignID string) (string, error) {
	var result linkResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("%s/api/dynamic-link/%s", c.baseURL, campaignID))
	if err != nil {
		return "", fmt.Errorf("failed to fetch dynamic link: %w", err)
	}

	if resp.IsError() || result.Status != "ok" {
		msg := result.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("shortener rejected link request: %s", msg)
	}

	logger.Debugf("Dynamic link for campaign %s: %s", campaignID, result.ShortURL)
	return result.ShortURL, nil
}
