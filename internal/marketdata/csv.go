// Package marketdata provides DataProvider implementations that read daily
// bars from CSV files on disk or from an HTTP CSV endpoint.
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"stock-analyzer/internal/model"
)

// dateLayouts are tried in order when parsing the date column.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"20060102",
}

// ParseCSV reads daily bars from r. The first row is a header naming the
// columns; Date, Open, High, Low and Close are required (case-insensitive,
// "Adj Close" is ignored), Volume is optional. Rows with an unparseable
// date or price are skipped. The result is sorted and de-duplicated.
func ParseCSV(r io.Reader) (model.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, model.ErrNoData
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var bars []model.PriceBar
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		bar, ok := parseRow(rec, cols)
		if !ok {
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, model.ErrNoData
	}
	return model.NewSeries(bars), nil
}

type columns struct {
	date, open, high, low, close, volume int
}

func columnIndex(header []string) (columns, error) {
	c := columns{-1, -1, -1, -1, -1, -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "date", "timestamp":
			c.date = i
		case "open":
			c.open = i
		case "high":
			c.high = i
		case "low":
			c.low = i
		case "close":
			c.close = i
		case "volume":
			c.volume = i
		}
	}
	if c.date < 0 || c.open < 0 || c.high < 0 || c.low < 0 || c.close < 0 {
		return c, fmt.Errorf("csv header %v: need date, open, high, low, close columns", header)
	}
	return c, nil
}

func parseRow(rec []string, c columns) (model.PriceBar, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	date, ok := parseDate(field(c.date))
	if !ok {
		return model.PriceBar{}, false
	}
	var px [4]float64
	for k, i := range []int{c.open, c.high, c.low, c.close} {
		v, err := strconv.ParseFloat(field(i), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return model.PriceBar{}, false
		}
		px[k] = v
	}
	var vol int64
	if s := field(c.volume); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			vol = int64(f)
		}
	}
	return model.PriceBar{
		Date:   date,
		Open:   px[0],
		High:   px[1],
		Low:    px[2],
		Close:  px[3],
		Volume: vol,
	}, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), true
		}
	}
	return time.Time{}, false
}

// WriteCSV writes bars with a Date,Open,High,Low,Close,Volume header, the
// format ParseCSV reads back.
func WriteCSV(w io.Writer, bars model.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Open", "High", "Low", "Close", "Volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Date.Format("2006-01-02"),
			formatF(b.Open), formatF(b.High), formatF(b.Low), formatF(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
