package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartBody = `{"chart":{"result":[{
  "meta":{"symbol":"SPY"},
  "timestamp":[%d,%d,%d],
  "indicators":{"quote":[{
    "open":[100,100.1,null],
    "high":[100.2,100.3,null],
    "low":[99.9,100,null],
    "close":[100.1,100.2,null],
    "volume":[1000,1100,null]
  }]}
}],"error":null}}`

func yahooServer(t *testing.T, h http.HandlerFunc) *Yahoo {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewYahoo(srv.URL)
}

func TestYahooFetchLatest(t *testing.T) {
	t.Parallel()

	var gotPath, gotInterval, gotRange string
	y := yahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		gotRange = r.URL.Query().Get("range")
		fmt.Fprintf(w, chartBody, t0.Unix(), t0.Add(time.Minute).Unix(), t0.Add(2*time.Minute).Unix())
	})

	bars, err := y.FetchLatest(context.Background(), "SPY", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/SPY", gotPath)
	assert.Equal(t, "1m", gotInterval)
	assert.Equal(t, "1d", gotRange)

	require.Len(t, bars, 3)
	assert.True(t, t0.Equal(bars[0].Time))
	assert.Equal(t, 100.1, bars[0].Close)
	assert.Equal(t, 1100.0, bars[1].Volume)

	// The null row comes through with zero prices and fails validation.
	assert.Zero(t, bars[2].Close)
	assert.Error(t, bars[2].Validate())
}

func TestYahooFetchRange(t *testing.T) {
	t.Parallel()

	var p1, p2 string
	y := yahooServer(t, func(w http.ResponseWriter, r *http.Request) {
		p1 = r.URL.Query().Get("period1")
		p2 = r.URL.Query().Get("period2")
		fmt.Fprintf(w, chartBody, t0.Unix(), t0.Add(time.Minute).Unix(), t0.Add(2*time.Minute).Unix())
	})

	bars, err := y.FetchRange(context.Background(), "SPY", time.Minute, t0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(t0.Unix()), p1)
	assert.Equal(t, fmt.Sprint(t0.Add(2*time.Minute).Unix()), p2)
	assert.Len(t, bars, 2, "upper bound is exclusive")
}

func TestYahooErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
		noData  bool
	}{
		{
			name:    "chart error",
			status:  http.StatusNotFound,
			body:    `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`,
			wantMsg: "symbol may be delisted",
		},
		{name: "server error", status: http.StatusBadGateway, body: "oops", wantMsg: "http status 502"},
		{name: "bad json", status: http.StatusOK, body: "{", wantMsg: "decode chart"},
		{name: "empty result", status: http.StatusOK, body: `{"chart":{"result":[],"error":null}}`, noData: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			y := yahooServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := y.FetchLatest(context.Background(), "XXXX", time.Minute)
			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "yahoo", fe.Provider)
			if tt.noData {
				assert.True(t, errors.Is(err, ErrNoData))
				return
			}
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestYahooUnsupportedInterval(t *testing.T) {
	t.Parallel()

	_, err := NewYahoo("").FetchLatest(context.Background(), "SPY", 3*time.Minute)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.ErrorContains(t, err, "not offered")
}

func TestYahooRange(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1d", yahooRange(5*time.Minute))
	assert.Equal(t, "5d", yahooRange(time.Hour))
	assert.Equal(t, "1mo", yahooRange(24*time.Hour))
}
