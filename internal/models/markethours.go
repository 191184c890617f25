package models

import (
	"sync"
	"time"
)

const marketTimezone = "America/New_York"

var (
	nyOnce sync.Once
	nyLoc  *time.Location
)

// MarketLocation returns the America/New_York location, falling back to a
// fixed EST offset if tzdata is unavailable.
func MarketLocation() *time.Location {
	nyOnce.Do(func() {
		loc, err := time.LoadLocation(marketTimezone)
		if err != nil {
			loc = time.FixedZone("EST", -5*60*60)
		}
		nyLoc = loc
	})
	return nyLoc
}

// MarketTime converts t to market-local time (DST-aware).
func MarketTime(t time.Time) time.Time {
	return t.In(MarketLocation())
}

// TradeDate returns the market-local calendar date of t as yyyy-mm-dd.
func TradeDate(t time.Time) string {
	return MarketTime(t).Format("2006-01-02")
}
