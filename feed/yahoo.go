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

const DefaultYahooURL = "https://query1.finance.yahoo.com"

// Yahoo reads the public chart endpoint. Null quotes in the response come
// back as zero prices so the consumer's bar validation discards them.
type Yahoo struct {
	BaseURL string
	Client  *http.Client
}

func NewYahoo(baseURL string) *Yahoo {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	return &Yahoo{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (y *Yahoo) FetchLatest(ctx context.Context, symbol string, interval time.Duration) ([]market.Bar, error) {
	iv, err := yahooInterval(interval)
	if err != nil {
		return nil, fetchErr("yahoo", symbol, err)
	}
	q := url.Values{}
	q.Set("interval", iv)
	q.Set("range", yahooRange(interval))
	return y.chart(ctx, symbol, q)
}

func (y *Yahoo) FetchRange(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]market.Bar, error) {
	iv, err := yahooInterval(interval)
	if err != nil {
		return nil, fetchErr("yahoo", symbol, err)
	}
	q := url.Values{}
	q.Set("interval", iv)
	q.Set("period1", strconv.FormatInt(from.Unix(), 10))
	q.Set("period2", strconv.FormatInt(to.Unix(), 10))
	bars, err := y.chart(ctx, symbol, q)
	if err != nil {
		return nil, err
	}
	bars = filterRange(bars, from, to)
	if len(bars) == 0 {
		return nil, fetchErr("yahoo", symbol, ErrNoData)
	}
	return bars, nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) chart(ctx context.Context, symbol string, q url.Values) ([]market.Bar, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.BaseURL, url.PathEscape(symbol), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fetchErr("yahoo", symbol, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (intraday)")
	req.Header.Set("Accept", "application/json")

	client := y.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fetchErr("yahoo", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fetchErr("yahoo", symbol, err)
	}

	var cr chartResponse
	decodeErr := json.Unmarshal(body, &cr)
	if cr.Chart.Error != nil {
		return nil, fetchErr("yahoo", symbol,
			fmt.Errorf("%s: %s", cr.Chart.Error.Code, cr.Chart.Error.Description))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fetchErr("yahoo", symbol, fmt.Errorf("http status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, fetchErr("yahoo", symbol, fmt.Errorf("decode chart: %w", decodeErr))
	}

	bars := cr.bars()
	if len(bars) == 0 {
		return nil, fetchErr("yahoo", symbol, ErrNoData)
	}
	return bars, nil
}

func (cr *chartResponse) bars() []market.Bar {
	if len(cr.Chart.Result) == 0 {
		return nil
	}
	res := cr.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	qt := res.Indicators.Quote[0]

	out := make([]market.Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		out = append(out, market.Bar{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   at(qt.Open, i),
			High:   at(qt.High, i),
			Low:    at(qt.Low, i),
			Close:  at(qt.Close, i),
			Volume: at(qt.Volume, i),
		})
	}
	return out
}

func at(vs []*float64, i int) float64 {
	if i >= len(vs) || vs[i] == nil {
		return 0
	}
	return *vs[i]
}

func yahooInterval(d time.Duration) (string, error) {
	switch d {
	case time.Minute:
		return "1m", nil
	case 2 * time.Minute:
		return "2m", nil
	case 5 * time.Minute:
		return "5m", nil
	case 15 * time.Minute:
		return "15m", nil
	case 30 * time.Minute:
		return "30m", nil
	case time.Hour:
		return "60m", nil
	case 90 * time.Minute:
		return "90m", nil
	case 24 * time.Hour:
		return "1d", nil
	}
	return "", fmt.Errorf("interval %s not offered by yahoo", d)
}

func yahooRange(d time.Duration) string {
	switch {
	case d < time.Hour:
		return "1d"
	case d < 24*time.Hour:
		return "5d"
	default:
		return "1mo"
	}
}
