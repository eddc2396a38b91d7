package feed

import (
	"time"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// DayKey truncates t to its calendar day in loc.
func DayKey(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AggregateDaily folds intraday bars (ascending) into one bar per calendar
// day in loc: first open, highest high, lowest low, last close, summed
// volume and last open interest. Each daily bar is stamped with its day.
func AggregateDaily(bars []domain.Bar, loc *time.Location) map[time.Time]domain.Bar {
	if loc == nil {
		loc = time.UTC
	}
	out := make(map[time.Time]domain.Bar)
	for _, b := range bars {
		day := DayKey(b.Time, loc)
		d, ok := out[day]
		if !ok {
			out[day] = domain.Bar{
				Time:         day,
				Open:         b.Open,
				High:         b.High,
				Low:          b.Low,
				Close:        b.Close,
				Volume:       b.Volume,
				OpenInterest: b.OpenInterest,
			}
			continue
		}
		if b.High > d.High {
			d.High = b.High
		}
		if b.Low < d.Low {
			d.Low = b.Low
		}
		d.Close = b.Close
		d.Volume += b.Volume
		d.OpenInterest = b.OpenInterest
		out[day] = d
	}
	return out
}
