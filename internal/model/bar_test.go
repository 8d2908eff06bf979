package model

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewSeries_SortsAndDedupes(t *testing.T) {
	s := NewSeries([]PriceBar{
		{Date: day(2024, 1, 3), Close: 3},
		{Date: day(2024, 1, 1), Close: 1},
		{Date: day(2024, 1, 2), Close: 2},
		{Date: day(2024, 1, 2), Close: 22},
	})
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	got := s.Closes()
	want := []float64{1, 22, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("closes[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if NewSeries(nil) != nil {
		t.Error("empty input should give nil series")
	}
}

func TestSeries_SliceUntil(t *testing.T) {
	s := NewSeries([]PriceBar{
		{Date: day(2024, 1, 1)}, {Date: day(2024, 1, 2)}, {Date: day(2024, 1, 4)},
	})
	tests := []struct {
		at   time.Time
		want int
	}{
		{day(2023, 12, 31), 0},
		{day(2024, 1, 2), 2},
		{day(2024, 1, 3), 2},
		{day(2024, 2, 1), 3},
	}
	for _, tt := range tests {
		if got := s.SliceUntil(tt.at).Len(); got != tt.want {
			t.Errorf("SliceUntil(%s) = %d bars, want %d", tt.at.Format(time.DateOnly), got, tt.want)
		}
	}

	// capacity is clipped so appending cannot clobber later bars
	prefix := s.SliceUntil(day(2024, 1, 1))
	_ = append(prefix, PriceBar{Date: day(2030, 1, 1)})
	if !s[1].Date.Equal(day(2024, 1, 2)) {
		t.Error("append to prefix overwrote the parent series")
	}
}

func TestSeries_Between(t *testing.T) {
	s := NewSeries([]PriceBar{
		{Date: day(2024, 1, 1)}, {Date: day(2024, 1, 2)}, {Date: day(2024, 1, 3)},
	})
	if got := s.Between(day(2024, 1, 2), day(2024, 1, 3)).Len(); got != 2 {
		t.Errorf("Between = %d, want 2", got)
	}
	if got := s.Between(day(2024, 1, 3), day(2024, 1, 1)); got != nil {
		t.Errorf("inverted Between = %v, want nil", got)
	}
}

func TestSeries_LastAndColumns(t *testing.T) {
	var empty Series
	if _, ok := empty.Last(); ok || !empty.Empty() {
		t.Error("empty series reported a last bar")
	}
	s := NewSeries([]PriceBar{{Date: day(2024, 1, 1), High: 5, Low: 1, Close: 3}})
	last, ok := s.Last()
	if !ok || last.Close != 3 {
		t.Errorf("last = %+v", last)
	}
	if s.Highs()[0] != 5 || s.Lows()[0] != 1 {
		t.Errorf("highs=%v lows=%v", s.Highs(), s.Lows())
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	got := Day(time.Date(2024, 3, 15, 22, 30, 0, 0, loc))
	if !got.Equal(day(2024, 3, 15)) {
		t.Errorf("Day = %v", got)
	}
}
