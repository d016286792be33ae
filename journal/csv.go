package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CSVHeader is the column order of a ledger file.
var CSVHeader = []string{"type", "price", "timestamp", "profit", "reason"}

// CSVStore rewrites the whole ledger file on every Save. The file is written
// to a temporary sibling and renamed into place so readers never see a
// partial ledger.
type CSVStore struct {
	path string
}

func NewCSV(path string) (*CSVStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("csv journal: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &CSVStore{path: path}, nil
}

func (j *CSVStore) Path() string { return j.path }

func (j *CSVStore) Save(ctx context.Context, trades []Trade) error {
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Store: j.path, Err: err}
	}
	if err := j.write(trades); err != nil {
		return &PersistenceError{Store: j.path, Err: err}
	}
	return nil
}

func (j *CSVStore) write(trades []Trade) error {
	tmp, err := os.CreateTemp(filepath.Dir(j.path), filepath.Base(j.path)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, trades); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), j.path)
}

func (j *CSVStore) Close() error { return nil }

// WriteCSV writes a header and one row per trade. Profit and reason are left
// blank on BUY rows.
func WriteCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, t := range trades {
		profit, reason := "", ""
		if t.IsSell() {
			profit = f(t.Profit)
			reason = string(t.Reason)
		}
		if err := cw.Write([]string{
			string(t.Type),
			f(t.Price),
			t.Time.Format(time.RFC3339),
			profit,
			reason,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a ledger file written by CSVStore.
func ReadCSV(path string) ([]Trade, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return DecodeCSV(fh)
}

// DecodeCSV parses ledger rows. A header row is optional.
func DecodeCSV(r io.Reader) ([]Trade, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []Trade
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "type") {
			continue
		}
		t, err := parseTradeRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t)
	}
}

func parseTradeRow(row []string) (Trade, error) {
	if len(row) < 3 {
		return Trade{}, fmt.Errorf("need at least type,price,timestamp: %v", row)
	}

	side, err := ParseSide(row[0])
	if err != nil {
		return Trade{}, err
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return Trade{}, fmt.Errorf("bad price %q: %w", row[1], err)
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(row[2]))
	if err != nil {
		return Trade{}, fmt.Errorf("bad timestamp %q: %w", row[2], err)
	}

	t := Trade{Type: side, Price: price, Time: ts}
	if side == Buy {
		return t, nil
	}

	if len(row) > 3 && strings.TrimSpace(row[3]) != "" {
		t.Profit, err = strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return Trade{}, fmt.Errorf("bad profit %q: %w", row[3], err)
		}
	}
	if len(row) > 4 {
		t.Reason, err = ParseExitReason(row[4])
		if err != nil {
			return Trade{}, err
		}
	}
	return t, nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
