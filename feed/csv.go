package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/intraday/market"
)

// CSVHeader is the bar file layout read by DecodeCSV and written by
// WriteCSV.
var CSVHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
}

// CSVFile is a History backed by a bar file on disk. The file is read on
// every fetch so it may be refreshed between runs.
type CSVFile struct {
	Path string
}

func (c CSVFile) FetchRange(ctx context.Context, symbol string, _ time.Duration, from, to time.Time) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, fetchErr("csv", symbol, err)
	}
	bars, err := LoadCSV(c.Path)
	if err != nil {
		return nil, fetchErr("csv", symbol, err)
	}
	bars = filterRange(bars, from, to)
	if len(bars) == 0 {
		return nil, fetchErr("csv", symbol, ErrNoData)
	}
	return bars, nil
}

// LoadCSV reads a bar file.
func LoadCSV(path string) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCSV(f)
}

// DecodeCSV reads rows of timestamp,open,high,low,close[,volume]. A single
// header row is allowed and empty rows are skipped. Timestamps may be
// RFC3339, "2006-01-02 15:04:05[-07:00]" (UTC when no offset) or unix
// seconds. Values are not validated here; that is the consumer's call.
func DecodeCSV(r io.Reader) ([]market.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		bars     []market.Bar
		sawFirst bool
		line     int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return bars, nil
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if !sawFirst {
			sawFirst = true
			if isHeader(row[0]) {
				continue
			}
		}
		b, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
}

func isHeader(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "timestamp" || s == "time" || s == "datetime" || s == "date"
}

func parseBarRow(row []string) (market.Bar, error) {
	if len(row) < 5 {
		return market.Bar{}, fmt.Errorf("want at least 5 columns, got %d", len(row))
	}
	ts, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Bar{}, err
	}

	var vals [5]float64
	n := 4
	if len(row) > 5 {
		n = 5
	}
	for i := 0; i < n; i++ {
		s := strings.TrimSpace(row[i+1])
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("bad %s %q: %w", CSVHeader[i+1], s, err)
		}
		vals[i] = v
	}
	return market.Bar{Time: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}

// WriteCSV writes bars with a header row.
func WriteCSV(w io.Writer, bars []market.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Time.UTC().Format(time.RFC3339),
			f(b.Open), f(b.High), f(b.Low), f(b.Close), f(b.Volume),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
