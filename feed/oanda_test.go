package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const candlesBody = `{"instrument":"EUR_USD","granularity":"M1","candles":[
  {"complete":true,"volume":100,"time":"%s","mid":{"o":"1.08500","h":"1.08600","l":"1.08400","c":"1.08550"}},
  {"complete":true,"volume":150,"time":"%s","mid":{"o":"1.08550","h":"1.08700","l":"1.08500","c":"1.08650"}},
  {"complete":false,"volume":3,"time":"%s","mid":{"o":"1.08650","h":"1.08660","l":"1.08640","c":"1.08650"}}
]}`

func oandaServer(t *testing.T, h http.HandlerFunc) *Oanda {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewOanda(srv.URL, "test-token")
}

func candleTimes(ts ...time.Time) []any {
	out := make([]any, len(ts))
	for i, t := range ts {
		out[i] = t.Format(time.RFC3339Nano)
	}
	return out
}

func TestOandaFetchLatest(t *testing.T) {
	t.Parallel()

	o := oandaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v3/instruments/EUR_USD/candles", r.URL.Path)
		assert.Equal(t, "M", r.URL.Query().Get("price"))
		assert.Equal(t, "M1", r.URL.Query().Get("granularity"))
		assert.Equal(t, "60", r.URL.Query().Get("count"))
		fmt.Fprintf(w, candlesBody, candleTimes(t0, t0.Add(time.Minute), t0.Add(2*time.Minute))...)
	})

	bars, err := o.FetchLatest(context.Background(), "EUR_USD", time.Minute)
	require.NoError(t, err)

	// The incomplete candle is dropped.
	require.Len(t, bars, 2)
	assert.True(t, t0.Equal(bars[0].Time))
	assert.Equal(t, 1.085, bars[0].Open)
	assert.Equal(t, 1.0865, bars[1].Close)
	assert.Equal(t, 150.0, bars[1].Volume)
	require.NoError(t, bars[0].Validate())
}

func TestOandaFetchRangePages(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	o := oandaServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
		if !assert.NoError(t, err) {
			return
		}
		fmt.Fprintf(w, candlesBody, candleTimes(from, from.Add(time.Second), from.Add(2*time.Second))...)
	})

	// 10s bars: three pages of 5000 candles cover 40 hours.
	from := t0
	to := t0.Add(40 * time.Hour)
	bars, err := o.FetchRange(context.Background(), "EUR_USD", 10*time.Second, from, to)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	assert.Len(t, bars, 6)
	assert.True(t, from.Equal(bars[0].Time))
}

func TestOandaErrors(t *testing.T) {
	t.Parallel()

	t.Run("api error", func(t *testing.T) {
		o := oandaServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"errorMessage":"Invalid value specified for 'instrument'"}`)
		})
		_, err := o.FetchLatest(context.Background(), "NOPE", time.Minute)
		require.Error(t, err)
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "oanda", fe.Provider)
		assert.Contains(t, err.Error(), "http status 400: Invalid value")
	})

	t.Run("empty", func(t *testing.T) {
		o := oandaServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"candles":[]}`)
		})
		_, err := o.FetchLatest(context.Background(), "EUR_USD", time.Minute)
		assert.True(t, errors.Is(err, ErrNoData))
	})

	t.Run("bad price", func(t *testing.T) {
		o := oandaServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"candles":[{"complete":true,"time":"%s","mid":{"o":"x","h":"1","l":"1","c":"1"}}]}`,
				t0.Format(time.RFC3339))
		})
		_, err := o.FetchLatest(context.Background(), "EUR_USD", time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `price "x"`)
	})

	t.Run("interval", func(t *testing.T) {
		_, err := NewOanda("", "").FetchLatest(context.Background(), "EUR_USD", 7*time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "interval 7m not offered by oanda")
	})

	t.Run("open start", func(t *testing.T) {
		_, err := NewOanda("", "").FetchRange(context.Background(), "EUR_USD", time.Minute, time.Time{}, t0)
		require.Error(t, err)
	})
}
