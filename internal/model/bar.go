package model

import (
	"sort"
	"time"
)

// PriceBar is one daily trading session for a single symbol.
// Prices are in the listing currency as float64; daily equity data from
// public sources is already decimal so no fixed-point scaling is applied.
type PriceBar struct {
	Date   time.Time `json:"date"` // session date, midnight UTC
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Series is a chronologically ordered run of bars, unique by date, ascending.
type Series []PriceBar

// NewSeries sorts bars by date and drops duplicate dates, keeping the last
// occurrence of each date.
func NewSeries(bars []PriceBar) Series {
	if len(bars) == 0 {
		return nil
	}
	cp := make([]PriceBar, len(bars))
	copy(cp, bars)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })

	out := cp[:0]
	for _, b := range cp {
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return Series(out)
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s) }

// Empty reports whether the series holds no bars.
func (s Series) Empty() bool { return len(s) == 0 }

// Last returns the most recent bar. ok is false for an empty series.
func (s Series) Last() (PriceBar, bool) {
	if len(s) == 0 {
		return PriceBar{}, false
	}
	return s[len(s)-1], true
}

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high column.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low column.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Low
	}
	return out
}

// SliceUntil returns the prefix of bars dated on or before t.
// The returned slice shares storage with s; callers must not append to it.
func (s Series) SliceUntil(t time.Time) Series {
	n := sort.Search(len(s), func(i int) bool { return s[i].Date.After(t) })
	return s[:n:n]
}

// Between returns bars with from <= date <= to.
func (s Series) Between(from, to time.Time) Series {
	lo := sort.Search(len(s), func(i int) bool { return !s[i].Date.Before(from) })
	hi := sort.Search(len(s), func(i int) bool { return s[i].Date.After(to) })
	if lo >= hi {
		return nil
	}
	return s[lo:hi:hi]
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
