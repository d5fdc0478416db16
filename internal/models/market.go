package models

import (
	"fmt"
	"math"
	"time"
)

// Epsilon is the single tolerance for "effectively zero" weights and quantities.
// Stop, trade-necessity and flat-state decisions all compare against it.
const Epsilon = 1e-6

// DateLayout is the calendar-date format used by every input and output file
const DateLayout = "2006-01-02"

// NormalizeDate strips the clock and zone so dates compare with == across inputs
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a calendar date, accepting RFC3339 timestamps as well
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// PriceBar is one daily OHLCV observation for a symbol
type PriceBar struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate enforces finite values, positive close and OHLC consistency
func (b PriceBar) Validate() error {
	if b.Symbol == "" {
		return &DataQualityError{Date: b.Date, Reason: "empty symbol"}
	}
	for _, f := range []struct {
		name string
		v    float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}, {"volume", b.Volume}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &DataQualityError{Date: b.Date, Symbol: b.Symbol, Reason: fmt.Sprintf("non-finite %s %v", f.name, f.v)}
		}
	}
	if !(b.Close > 0) {
		return &DataQualityError{Date: b.Date, Symbol: b.Symbol, Reason: fmt.Sprintf("non-positive close %v", b.Close)}
	}
	if b.High < b.Open || b.High < b.Low || b.High < b.Close {
		return &DataQualityError{Date: b.Date, Symbol: b.Symbol,
			Reason: fmt.Sprintf("high %v below open/low/close (%v/%v/%v)", b.High, b.Open, b.Low, b.Close)}
	}
	if b.Low > b.Open || b.Low > b.Close {
		return &DataQualityError{Date: b.Date, Symbol: b.Symbol,
			Reason: fmt.Sprintf("low %v above open/close (%v/%v)", b.Low, b.Open, b.Close)}
	}
	return nil
}

// FeatureRow is a price bar annotated with indicator columns.
// Nil pointers mean the indicator is not available for that row.
type FeatureRow struct {
	PriceBar
	Returns    *float64 `json:"returns,omitempty"`
	Volatility *float64 `json:"volatility,omitempty"` // annualized
	EMAFast    *float64 `json:"ema_fast,omitempty"`
	EMASlow    *float64 `json:"ema_slow,omitempty"`
	RSI        *float64 `json:"rsi,omitempty"`
	Signal     int      `json:"signal"`
}

// Float returns a pointer to v, for populating optional indicator columns
func Float(v float64) *float64 { return &v }

// Key identifies a (date, symbol) row for joins
type Key struct {
	Date   time.Time
	Symbol string
}

// KeyOf builds the join key with a normalized date
func KeyOf(date time.Time, symbol string) Key {
	return Key{Date: NormalizeDate(date), Symbol: symbol}
}
