package feed

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ulikunitz/xz/lzma"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/intraday/market"
)

const DefaultDukascopyURL = "https://datafeed.dukascopy.com/datafeed"

// tickSize is the width of one bi5 record: ms offset, ask, bid (uint32)
// then ask volume, bid volume (float32), all big endian.
const tickSize = 20

// Tick is one decoded Dukascopy quote.
type Tick struct {
	Time   time.Time
	Ask    float64
	Bid    float64
	AskVol float64
	BidVol float64
}

func (t Tick) Mid() float64 { return (t.Ask + t.Bid) / 2 }

// Dukascopy is a History over the hourly tick archives. Hours are fetched in
// parallel and, when CacheDir is set, kept on disk so repeated backtests do
// not download them again. Ticks are aggregated into bars on the mid price.
type Dukascopy struct {
	BaseURL  string
	Client   *http.Client
	CacheDir string
	Workers  int
}

func NewDukascopy(baseURL, cacheDir string) *Dukascopy {
	if baseURL == "" {
		baseURL = DefaultDukascopyURL
	}
	return &Dukascopy{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Client:   &http.Client{Timeout: 45 * time.Second},
		CacheDir: cacheDir,
		Workers:  max(4, runtime.NumCPU()),
	}
}

func (d *Dukascopy) FetchRange(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]market.Bar, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if interval <= 0 {
		return nil, fetchErr("dukascopy", sym, fmt.Errorf("interval %s not positive", interval))
	}
	if !to.After(from) {
		return nil, fetchErr("dukascopy", sym, fmt.Errorf("empty range %s - %s", from, to))
	}

	var hours []time.Time
	for t := from.UTC().Truncate(time.Hour); t.Before(to); t = t.Add(time.Hour) {
		hours = append(hours, t)
	}

	ticks := make([][]Tick, len(hours))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, d.Workers))
	for i, h := range hours {
		g.Go(func() error {
			tt, err := d.hour(gctx, sym, h)
			if err != nil {
				return fmt.Errorf("%s: %w", h.Format("2006-01-02T15"), err)
			}
			ticks[i] = tt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fetchErr("dukascopy", sym, err)
	}

	var all []Tick
	for _, tt := range ticks {
		for _, t := range tt {
			if inRange(t.Time, from, to) {
				all = append(all, t)
			}
		}
	}
	bars := AggregateTicks(all, interval)
	if len(bars) == 0 {
		return nil, fetchErr("dukascopy", sym, ErrNoData)
	}
	return bars, nil
}

// hour returns the decoded ticks of one archive hour. A missing hour
// (weekends, holidays) is empty, not an error.
func (d *Dukascopy) hour(ctx context.Context, symbol string, h time.Time) ([]Tick, error) {
	raw, err := d.load(ctx, symbol, h)
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	r, err := lzma.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}
	return DecodeTicks(r, h, pointFor(symbol))
}

func (d *Dukascopy) load(ctx context.Context, symbol string, h time.Time) ([]byte, error) {
	var cache string
	if d.CacheDir != "" {
		cache = filepath.Join(d.CacheDir, symbol,
			fmt.Sprintf("%04d", h.Year()), fmt.Sprintf("%02d", h.Month()), fmt.Sprintf("%02d", h.Day()),
			fmt.Sprintf("%02dh_ticks.bi5", h.Hour()))
		if b, err := os.ReadFile(cache); err == nil {
			return b, nil
		}
	}

	raw, found, err := d.download(ctx, tickURL(d.BaseURL, symbol, h))
	if err != nil || !found {
		return nil, err
	}
	if cache != "" {
		if err := writeFileAtomic(cache, raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func (d *Dukascopy) download(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", "intraday/1.0")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("http status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// tickURL builds the archive path. Months are zero based: Jan=00 ... Dec=11.
func tickURL(base, symbol string, t time.Time) string {
	month0 := int(t.Month()) - 1
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%02dh_ticks.bi5",
		strings.TrimRight(base, "/"),
		symbol,
		t.Year(), month0, t.Day(), t.Hour())
}

// pointFor is the integer price scale of a symbol's archive.
func pointFor(symbol string) float64 {
	s := strings.ToUpper(symbol)
	if strings.Contains(s, "JPY") || strings.HasPrefix(s, "XAU") || strings.HasPrefix(s, "XAG") {
		return 1e3
	}
	return 1e5
}

// DecodeTicks reads decompressed bi5 records for the hour starting at h.
func DecodeTicks(r io.Reader, h time.Time, point float64) ([]Tick, error) {
	var (
		out []Tick
		rec [tickSize]byte
	)
	for {
		_, err := io.ReadFull(r, rec[:])
		if err == io.EOF {
			return out, nil
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated tick record after %d ticks", len(out))
		}
		if err != nil {
			return nil, err
		}
		be := binary.BigEndian
		ms := be.Uint32(rec[0:4])
		out = append(out, Tick{
			Time:   h.Add(time.Duration(ms) * time.Millisecond),
			Ask:    float64(be.Uint32(rec[4:8])) / point,
			Bid:    float64(be.Uint32(rec[8:12])) / point,
			AskVol: float64(math.Float32frombits(be.Uint32(rec[12:16]))),
			BidVol: float64(math.Float32frombits(be.Uint32(rec[16:20]))),
		})
	}
}

// AggregateTicks buckets time-ordered ticks into bars of the given interval
// using the mid price. Volume is the summed ask and bid volume.
func AggregateTicks(ticks []Tick, interval time.Duration) []market.Bar {
	var (
		out []market.Bar
		cur market.Bar
		has bool
	)
	for _, t := range ticks {
		start := t.Time.Truncate(interval)
		mid := t.Mid()
		if !has || !start.Equal(cur.Time) {
			if has {
				out = append(out, cur)
			}
			cur = market.Bar{Time: start, Open: mid, High: mid, Low: mid, Close: mid}
			has = true
		}
		cur.High = math.Max(cur.High, mid)
		cur.Low = math.Min(cur.Low, mid)
		cur.Close = mid
		cur.Volume += t.AskVol + t.BidVol
	}
	if has {
		out = append(out, cur)
	}
	return out
}
