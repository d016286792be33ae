package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/intraday/market"
)

const (
	// OandaPracticeURL is the fxPractice REST host.
	OandaPracticeURL = "https://api-fxpractice.oanda.com"
	// OandaLiveURL is the fxTrade REST host.
	OandaLiveURL = "https://api-fxtrade.oanda.com"

	oandaMaxCount = 5000
)

// Oanda reads mid-price candles from the v3 instruments endpoint. Symbols
// use OANDA's instrument names, such as EUR_USD. Incomplete candles are
// never returned, so the newest bar is always a closed one.
type Oanda struct {
	BaseURL string
	Token   string
	Client  *http.Client

	// Lookback is the number of candles FetchLatest asks for.
	Lookback int
}

func NewOanda(baseURL, token string) *Oanda {
	if baseURL == "" {
		baseURL = OandaPracticeURL
	}
	return &Oanda{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    token,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Lookback: 60,
	}
}

func (o *Oanda) FetchLatest(ctx context.Context, symbol string, interval time.Duration) ([]market.Bar, error) {
	g, err := oandaGranularity(interval)
	if err != nil {
		return nil, fetchErr("oanda", symbol, err)
	}
	q := url.Values{}
	q.Set("granularity", g)
	q.Set("count", strconv.Itoa(min(max(o.Lookback, 1), oandaMaxCount)))
	bars, err := o.candles(ctx, symbol, q)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fetchErr("oanda", symbol, ErrNoData)
	}
	return bars, nil
}

// FetchRange pages through [from, to) in windows of at most 5000 candles,
// the most the endpoint returns per request.
func (o *Oanda) FetchRange(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]market.Bar, error) {
	g, err := oandaGranularity(interval)
	if err != nil {
		return nil, fetchErr("oanda", symbol, err)
	}
	if from.IsZero() {
		return nil, fetchErr("oanda", symbol, fmt.Errorf("range needs a start time"))
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}

	var out []market.Bar
	step := interval * oandaMaxCount
	for start := from; start.Before(to); start = start.Add(step) {
		end := start.Add(step)
		if end.After(to) {
			end = to
		}
		q := url.Values{}
		q.Set("granularity", g)
		q.Set("from", start.UTC().Format(time.RFC3339))
		q.Set("to", end.UTC().Format(time.RFC3339))
		bars, err := o.candles(ctx, symbol, q)
		if err != nil {
			return nil, err
		}
		out = append(out, bars...)
	}

	out = filterRange(out, from, to)
	if len(out) == 0 {
		return nil, fetchErr("oanda", symbol, ErrNoData)
	}
	return out, nil
}

type oandaOHLC struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type oandaCandles struct {
	Candles []struct {
		Complete bool      `json:"complete"`
		Volume   int64     `json:"volume"`
		Time     string    `json:"time"`
		Mid      oandaOHLC `json:"mid"`
	} `json:"candles"`
	ErrorMessage string `json:"errorMessage"`
}

func (o *Oanda) candles(ctx context.Context, symbol string, q url.Values) ([]market.Bar, error) {
	q.Set("price", "M")
	u := fmt.Sprintf("%s/v3/instruments/%s/candles?%s", o.BaseURL, url.PathEscape(symbol), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fetchErr("oanda", symbol, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.Token)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fetchErr("oanda", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fetchErr("oanda", symbol, err)
	}
	var cr oandaCandles
	decodeErr := json.Unmarshal(body, &cr)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && cr.ErrorMessage != "" {
			return nil, fetchErr("oanda", symbol, fmt.Errorf("http status %d: %s", resp.StatusCode, cr.ErrorMessage))
		}
		return nil, fetchErr("oanda", symbol, fmt.Errorf("http status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, fetchErr("oanda", symbol, fmt.Errorf("decode candles: %w", decodeErr))
	}

	bars := make([]market.Bar, 0, len(cr.Candles))
	for _, c := range cr.Candles {
		if !c.Complete {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, c.Time)
		if err != nil {
			return nil, fetchErr("oanda", symbol, fmt.Errorf("candle time %q: %w", c.Time, err))
		}
		b := market.Bar{Time: t.UTC(), Volume: float64(c.Volume)}
		for _, p := range []struct {
			dst *float64
			s   string
		}{{&b.Open, c.Mid.O}, {&b.High, c.Mid.H}, {&b.Low, c.Mid.L}, {&b.Close, c.Mid.C}} {
			if *p.dst, err = strconv.ParseFloat(p.s, 64); err != nil {
				return nil, fetchErr("oanda", symbol, fmt.Errorf("candle %s price %q: %w", c.Time, p.s, err))
			}
		}
		bars = append(bars, b)
	}
	return bars, nil
}

var oandaGranularities = map[time.Duration]string{
	5 * time.Second:  "S5",
	10 * time.Second: "S10",
	15 * time.Second: "S15",
	30 * time.Second: "S30",
	time.Minute:      "M1",
	2 * time.Minute:  "M2",
	4 * time.Minute:  "M4",
	5 * time.Minute:  "M5",
	10 * time.Minute: "M10",
	15 * time.Minute: "M15",
	30 * time.Minute: "M30",
	time.Hour:        "H1",
	2 * time.Hour:    "H2",
	3 * time.Hour:    "H3",
	4 * time.Hour:    "H4",
	6 * time.Hour:    "H6",
	8 * time.Hour:    "H8",
	12 * time.Hour:   "H12",
	24 * time.Hour:   "D",
}

func oandaGranularity(d time.Duration) (string, error) {
	if g, ok := oandaGranularities[d]; ok {
		return g, nil
	}
	return "", fmt.Errorf("interval %s not offered by oanda", market.FormatInterval(d))
}
