// Package gateway implements the outbound transport contract shared by all
// carrier endpoints: an HTTP send with a bounded timeout, a deterministic
// request signature and a structured success/error response.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
	"github.com/jpcardenas/sms-dispatch/pkg/logger"
)

// sendResponse is the carrier's wire reply. status "1" is success; any
// other value carries a provider error message.
type sendResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Client sends messages through operator endpoints. Retries are owned by
// the dispatch scheduler, never by the HTTP layer.
type Client struct {
	httpClient *resty.Client
}

func NewClient() *Client {
	client := resty.New().
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("X-Requested-With", "XMLHttpRequest")

	return &Client{httpClient: client}
}

// Send pushes one message through the operator's endpoint. recipient must
// already carry the international prefix. queueRef is our job id, echoed
// back by the carrier in delivery reports.
func (c *Client) Send(
	ctx context.Context,
	op *domain.OperatorProfile,
	recipient, content, queueRef string,
) (*domain.TransportReceipt, error) {
	timeout := time.Duration(op.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sign := SignSend(op.Account, queueRef, recipient, content, op.Secret)

	body := map[string]string{
		"account":  op.Account,
		"sendid":   queueRef,
		"senderid": op.SenderID,
		"mobile":   recipient,
		"content":  content,
		"sign":     sign,
	}

	var wire sendResponse

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(reqCtx).
		SetBody(body).
		SetResult(&wire).
		Post(op.APIURL + "/sendsmsV2")
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded)
		return nil, &domain.TransportError{Operator: op.Name, Timeout: timedOut, Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &domain.TransportError{
			Operator: op.Name,
			Err:      fmt.Errorf("unexpected status code %d: %s", resp.StatusCode(), resp.String()),
		}
	}

	if wire.Status != "1" {
		msg := wire.Message
		if msg == "" {
			msg = "unknown provider error"
		}
		return nil, &domain.ProviderError{Operator: op.Name, Code: wire.Status, Message: msg}
	}

	logger.Infof("[%s] sent to %s in %dms (tracking: %s)", op.Name, recipient, latencyMs, wire.ID)

	return &domain.TransportReceipt{
		TrackingID:  wire.ID,
		RawResponse: resp.String(),
		LatencyMs:   latencyMs,
	}, nil
}

// MapDeliveryStatus translates the carrier's delivery-report codes into the
// canonical vocabulary.
func MapDeliveryStatus(code string) domain.DeliveryStatus {
	switch code {
	case "1":
		return domain.DeliveryDelivered
	case "2":
		return domain.DeliveryFailed
	case "3":
		return domain.DeliveryPending
	case "4":
		return domain.DeliveryInvalid
	default:
		return domain.DeliveryUnknown
	}
}
