package model

import (
	"strconv"
	"time"
)

// -----------------------------------------------------------------------------
// Market Data Types
// -----------------------------------------------------------------------------

// Bar represents a single OHLCV candlestick.
type Bar struct {
	Time   int64   `json:"time"`   // Bar open time (Unix seconds)
	Open   float64 `json:"open"`   // Opening price
	High   float64 `json:"high"`   // High price
	Low    float64 `json:"low"`    // Low price
	Close  float64 `json:"close"`  // Closing price
	Volume int64   `json:"volume"` // Traded volume
}

// Quote represents a real-time market quote for a single symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	BidSize   int64     `json:"bid_size"`
	AskSize   int64     `json:"ask_size"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"` // Local receive time
}

// Spread returns the bid/ask spread, or 0 when either side is missing.
func (q Quote) Spread() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return q.Ask - q.Bid
}

// HistoricalData is the facade response for a historical bars request.
type HistoricalData struct {
	Symbol      string    `json:"symbol"`
	BarSize     string    `json:"bar_size"`
	Duration    string    `json:"duration"`
	Bars        []Bar     `json:"bars"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
}

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// AccountValue is one tag/value row from the gateway's account summary.
// The gateway reports every figure as a string with a currency qualifier.
type AccountValue struct {
	Tag      string `json:"tag"`      // e.g., "NetLiquidation"
	Value    string `json:"value"`    // Raw value as reported
	Currency string `json:"currency"` // e.g., "USD", empty for unitless tags
}

// Float parses the row's value as a float. Returns 0 and false for
// non-numeric tags (e.g., "AccountType").
func (v AccountValue) Float() (float64, bool) {
	f, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AccountSummary is the facade response for an account summary request.
type AccountSummary struct {
	AccountID string         `json:"account_id"`
	Values    []AccountValue `json:"values"`
	Timestamp time.Time      `json:"timestamp"`
}

// Lookup returns the first row with the given tag.
func (s AccountSummary) Lookup(tag string) (AccountValue, bool) {
	for _, v := range s.Values {
		if v.Tag == tag {
			return v, true
		}
	}
	return AccountValue{}, false
}
