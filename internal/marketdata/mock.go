package marketdata

import (
	"context"
	"sync"
	"time"

	"daytrader/internal/models"
)

// MockProvider is a configurable in-memory Provider for tests.
type MockProvider struct {
	mu sync.Mutex

	MarketOpen bool
	ClockValue *models.Clock
	Quotes     map[string]*models.Quote
	BarData    map[string][]models.Bar
	Screen     *Screener

	// Error injection, keyed by ticker. A "*" entry applies to every ticker.
	QuoteErrs map[string]error
	BarErrs   map[string]error

	QuoteCalls int
	BarCalls   int
}

var _ Provider = (*MockProvider)(nil)

func NewMockProvider() *MockProvider {
	return &MockProvider{
		MarketOpen: true,
		Quotes:     make(map[string]*models.Quote),
		BarData:    make(map[string][]models.Bar),
		QuoteErrs:  make(map[string]error),
		BarErrs:    make(map[string]error),
		Screen:     &Screener{},
	}
}

// SetTicker installs a quote and a flat bar series for one ticker.
func (m *MockProvider) SetTicker(ticker string, price float64, bars int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Quotes[ticker] = &models.Quote{
		Ticker:    ticker,
		Bid:       price * 0.999,
		Ask:       price * 1.001,
		Timestamp: time.Now(),
	}
	series := make([]models.Bar, 0, bars)
	ts := time.Now().Add(-time.Duration(bars) * time.Minute)
	for i := 0; i < bars; i++ {
		series = append(series, models.Bar{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price * 1.002,
			Low:       price * 0.998,
			Close:     price,
			Volume:    10000,
		})
	}
	m.BarData[ticker] = series
}

func (m *MockProvider) IsMarketOpen(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MarketOpen, nil
}

func (m *MockProvider) Clock(ctx context.Context) (*models.Clock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClockValue != nil {
		return m.ClockValue, nil
	}
	now := time.Now()
	return &models.Clock{
		Timestamp: now,
		IsOpen:    m.MarketOpen,
		NextOpen:  now.Add(12 * time.Hour),
		NextClose: now.Add(3 * time.Hour),
	}, nil
}

func (m *MockProvider) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuoteCalls++
	if err := m.QuoteErrs["*"]; err != nil {
		return nil, err
	}
	if err := m.QuoteErrs[ticker]; err != nil {
		return nil, err
	}
	q, ok := m.Quotes[ticker]
	if !ok {
		return nil, nil
	}
	return q, nil
}

func (m *MockProvider) Bars(ctx context.Context, ticker string, limit int) ([]models.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BarCalls++
	if err := m.BarErrs["*"]; err != nil {
		return nil, err
	}
	if err := m.BarErrs[ticker]; err != nil {
		return nil, err
	}
	bars, ok := m.BarData[ticker]
	if !ok {
		return nil, nil
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// Calls reports how many quote and bar fetches the mock has served.
func (m *MockProvider) Calls() (quotes, bars int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.QuoteCalls, m.BarCalls
}

func (m *MockProvider) Screener(ctx context.Context) (*Screener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Screen, nil
}
