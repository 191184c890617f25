// Package webhook publishes open/close trade signals to an external endpoint.
// Delivery is best-effort: a failed POST is logged by the caller and never
// rolls back the position mutation it announces.
package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"daytrader/internal/models"
)

// Signal actions.
const (
	ActionBuyToOpen   = "buy_to_open"
	ActionSellToOpen  = "sell_to_open"
	ActionBuyToClose  = "buy_to_close"
	ActionSellToClose = "sell_to_close"
)

// OpenAction returns the opening action for a direction.
func OpenAction(dir models.Direction) string {
	if dir == models.Short {
		return ActionSellToOpen
	}
	return ActionBuyToOpen
}

// CloseAction returns the closing action for a direction.
func CloseAction(dir models.Direction) string {
	if dir == models.Short {
		return ActionBuyToClose
	}
	return ActionSellToClose
}

// Signal is the wire payload posted on each open and close.
type Signal struct {
	Ticker              string           `json:"ticker"`
	Action              string           `json:"action"`
	Indicator           string           `json:"indicator"`
	Reason              string           `json:"reason"`
	EnterPrice          *float64         `json:"enter_price,omitempty"`
	ExitPrice           *float64         `json:"exit_price,omitempty"`
	ProfitLoss          *float64         `json:"profit_loss,omitempty"`
	TechnicalIndicators *models.Snapshot `json:"technical_indicators,omitempty"`
}

// Publisher delivers signals.
type Publisher interface {
	Publish(ctx context.Context, sig *Signal) error
}

// Client posts signals over HTTP.
type Client struct {
	http   *resty.Client
	url    string
	logger *logrus.Logger
}

var _ Publisher = (*Client)(nil)

// NewClient builds a webhook client. An empty URL disables publishing.
func NewClient(url string, logger *logrus.Logger) *Client {
	return &Client{
		http: resty.New().
			SetTimeout(5 * time.Second).
			SetRetryCount(1).
			SetRetryWaitTime(500 * time.Millisecond),
		url:    url,
		logger: logger,
	}
}

// Publish posts one signal. A disabled client succeeds silently.
func (c *Client) Publish(ctx context.Context, sig *Signal) error {
	if c.url == "" {
		return nil
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(sig).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("posting %s signal for %s: %w", sig.Action, sig.Ticker, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook rejected %s signal for %s: status %d",
			sig.Action, sig.Ticker, resp.StatusCode())
	}
	c.logger.WithFields(logrus.Fields{
		"ticker": sig.Ticker,
		"action": sig.Action,
	}).Debug("signal published")
	return nil
}

// Recorder is an in-memory Publisher for tests.
type Recorder struct {
	mu      sync.Mutex
	Signals []*Signal
	Err     error
}

var _ Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(ctx context.Context, sig *Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Signals = append(r.Signals, sig)
	return nil
}

// Published returns a copy of the signals seen so far.
func (r *Recorder) Published() []*Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Signal, len(r.Signals))
	copy(out, r.Signals)
	return out
}
