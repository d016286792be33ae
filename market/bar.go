package market

import (
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV sample for a fixed interval. Time is the start of the
// interval.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// MalformedBarError reports a bar that is missing a timestamp or carries a
// price the engine cannot act on.
type MalformedBarError struct {
	Time   time.Time
	Field  string
	Reason string
}

func (e *MalformedBarError) Error() string {
	if e.Time.IsZero() {
		return fmt.Sprintf("malformed bar: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed bar at %s: %s %s", e.Time.Format(time.RFC3339), e.Field, e.Reason)
}

// Validate returns a *MalformedBarError when the bar cannot be used.
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return &MalformedBarError{Field: "time", Reason: "is missing"}
	}

	prices := []struct {
		name string
		v    float64
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
	}
	for _, p := range prices {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return &MalformedBarError{Time: b.Time, Field: p.name, Reason: "is not a number"}
		}
		if p.v <= 0 {
			return &MalformedBarError{Time: b.Time, Field: p.name, Reason: "must be positive"}
		}
	}

	if math.IsNaN(b.Volume) || b.Volume < 0 {
		return &MalformedBarError{Time: b.Time, Field: "volume", Reason: "must be non-negative"}
	}
	return nil
}

// Mid returns the midpoint of the bar's range.
func (b Bar) Mid() float64 {
	return (b.High + b.Low) / 2
}

func (b Bar) String() string {
	return fmt.Sprintf("%s O:%.4f H:%.4f L:%.4f C:%.4f V:%.0f",
		b.Time.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
}
