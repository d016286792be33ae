package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/rustyeddy/intraday/market"
)

// Alpaca reads stock bars through the Alpaca market data API. Empty
// credentials fall back to the APCA_API_KEY_ID / APCA_API_SECRET_KEY
// environment variables, as the SDK does.
type Alpaca struct {
	client   *marketdata.Client
	feed     marketdata.Feed
	lookback int
}

type AlpacaOptions struct {
	APIKey    string
	APISecret string
	BaseURL   string

	// Feed selects the data feed, e.g. "iex" or "sip". Empty uses the
	// account default.
	Feed string

	// Lookback is how many intervals FetchLatest asks for. Default 60.
	Lookback int
}

func NewAlpaca(opts AlpacaOptions) *Alpaca {
	if opts.Lookback <= 0 {
		opts.Lookback = 60
	}
	return &Alpaca{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		feed:     marketdata.Feed(opts.Feed),
		lookback: opts.Lookback,
	}
}

func (a *Alpaca) FetchLatest(ctx context.Context, symbol string, interval time.Duration) ([]market.Bar, error) {
	start := time.Now().Add(-time.Duration(a.lookback) * interval)
	return a.fetch(ctx, symbol, interval, start, time.Time{})
}

func (a *Alpaca) FetchRange(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]market.Bar, error) {
	bars, err := a.fetch(ctx, symbol, interval, from, to)
	if err != nil {
		return nil, err
	}
	bars = filterRange(bars, from, to)
	if len(bars) == 0 {
		return nil, fetchErr("alpaca", symbol, ErrNoData)
	}
	return bars, nil
}

func (a *Alpaca) fetch(ctx context.Context, symbol string, interval time.Duration, start, end time.Time) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, fetchErr("alpaca", symbol, err)
	}
	tf, err := alpacaTimeFrame(interval)
	if err != nil {
		return nil, fetchErr("alpaca", symbol, err)
	}
	raw, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
		Feed:      a.feed,
	})
	if err != nil {
		return nil, fetchErr("alpaca", symbol, err)
	}
	if len(raw) == 0 {
		return nil, fetchErr("alpaca", symbol, ErrNoData)
	}
	return fromAlpaca(raw), nil
}

func fromAlpaca(raw []marketdata.Bar) []market.Bar {
	out := make([]market.Bar, 0, len(raw))
	for _, b := range raw {
		out = append(out, market.Bar{
			Time:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return out
}

func alpacaTimeFrame(d time.Duration) (marketdata.TimeFrame, error) {
	switch {
	case d <= 0:
		return marketdata.TimeFrame{}, fmt.Errorf("interval %s not positive", d)
	case d%(24*time.Hour) == 0:
		return marketdata.NewTimeFrame(int(d/(24*time.Hour)), marketdata.Day), nil
	case d%time.Hour == 0:
		return marketdata.NewTimeFrame(int(d/time.Hour), marketdata.Hour), nil
	case d%time.Minute == 0:
		return marketdata.NewTimeFrame(int(d/time.Minute), marketdata.Min), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("interval %s not offered by alpaca", d)
}
