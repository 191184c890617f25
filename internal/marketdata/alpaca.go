package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	md "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/sirupsen/logrus"

	"daytrader/internal/models"
)

const (
	// rateLimitBackoff is how long to wait after a 429 before the single retry.
	rateLimitBackoff = 5 * time.Second
	// barLookbackDays bounds how far back the 1-minute bar request reaches.
	barLookbackDays = 3
	// screenerTop is how many symbols each screener list requests.
	screenerTop = 20
)

// AlpacaProvider implements Provider against the Alpaca market-data and
// trading APIs. Bars use the sip feed, raw adjustment, 1-minute timeframe,
// ascending sort.
type AlpacaProvider struct {
	mdClient    *md.Client
	tradeClient *alpaca.Client
	logger      *logrus.Logger

	sleep func(time.Duration)
}

var _ Provider = (*AlpacaProvider)(nil)

// Options configures the Alpaca clients. Empty values fall back to the
// SDK's environment-variable defaults.
type Options struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// NewAlpacaProvider builds the production provider.
func NewAlpacaProvider(opts Options, logger *logrus.Logger) *AlpacaProvider {
	return &AlpacaProvider{
		mdClient: md.NewClient(md.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
		}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		logger: logger,
		sleep:  time.Sleep,
	}
}

// IsMarketOpen asks the market clock.
func (p *AlpacaProvider) IsMarketOpen(ctx context.Context) (bool, error) {
	clock, err := p.Clock(ctx)
	if err != nil {
		return false, err
	}
	return clock.IsOpen, nil
}

// Clock returns the session clock.
func (p *AlpacaProvider) Clock(ctx context.Context) (*models.Clock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := p.tradeClient.GetClock()
	if err != nil {
		return nil, err
	}
	return &models.Clock{
		Timestamp: c.Timestamp,
		IsOpen:    c.IsOpen,
		NextOpen:  c.NextOpen,
		NextClose: c.NextClose,
	}, nil
}

// Quote returns the latest bid/ask, or (nil, nil) when Alpaca has none.
func (p *AlpacaProvider) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := p.mdClient.GetLatestQuote(ticker, md.GetLatestQuoteRequest{Feed: md.SIP})
	if err != nil {
		if isNoData(err) {
			return nil, nil
		}
		if isRateLimited(err) {
			p.sleep(rateLimitBackoff)
			q, err = p.mdClient.GetLatestQuote(ticker, md.GetLatestQuoteRequest{Feed: md.SIP})
		}
		if err != nil {
			return nil, err
		}
	}
	if q == nil {
		return nil, nil
	}
	return &models.Quote{
		Ticker:    ticker,
		Bid:       q.BidPrice,
		Ask:       q.AskPrice,
		Timestamp: q.Timestamp,
	}, nil
}

// Bars returns up to limit 1-minute bars in ascending time order, or
// (nil, nil) when the symbol has no data in the window.
func (p *AlpacaProvider) Bars(ctx context.Context, ticker string, limit int) ([]models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := time.Now()
	req := md.GetBarsRequest{
		TimeFrame:  md.OneMin,
		Adjustment: md.Raw,
		Start:      end.AddDate(0, 0, -barLookbackDays),
		End:        end,
		TotalLimit: limit,
		Feed:       md.SIP,
		Sort:       md.SortAsc,
	}
	bars, err := p.mdClient.GetBars(ticker, req)
	if err != nil {
		if isNoData(err) {
			return nil, nil
		}
		if isRateLimited(err) {
			p.sleep(rateLimitBackoff)
			bars, err = p.mdClient.GetBars(ticker, req)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(bars) == 0 {
		return nil, nil
	}
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, models.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	if len(out) > limit && limit > 0 {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Screener pulls the most-active, gainer and loser symbol sets.
func (p *AlpacaProvider) Screener(ctx context.Context) (*Screener, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	actives, err := p.mdClient.GetMostActives(md.GetMostActivesRequest{
		By:  "volume",
		Top: screenerTop,
	})
	if err != nil {
		return nil, err
	}
	movers, err := p.mdClient.GetMarketMovers(md.GetMarketMoversRequest{Top: screenerTop})
	if err != nil {
		return nil, err
	}
	scr := &Screener{}
	for _, a := range actives {
		scr.MostActive = append(scr.MostActive, a.Symbol)
	}
	for _, m := range movers.Gainers {
		scr.Gainers = append(scr.Gainers, m.Symbol)
	}
	for _, m := range movers.Losers {
		scr.Losers = append(scr.Losers, m.Symbol)
	}
	return scr, nil
}

// isRateLimited reports whether the provider rejected the call with a 429.
func isRateLimited(err error) bool {
	var apiErr *alpaca.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

// isNoData reports provider responses that mean "no data for this symbol":
// 404s and 422s are absence, not failure.
func isNoData(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404 || apiErr.StatusCode == 422
	}
	return false
}
