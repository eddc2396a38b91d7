package domain

import "time"

// Bar is one OHLCV observation over an interval, stamped with the interval
// time reported by the feed.
type Bar struct {
	Time         time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	OpenInterest float64
}

// Contains reports whether price lies within [Low, High].
func (b Bar) Contains(price float64) bool {
	return price >= b.Low && price <= b.High
}
