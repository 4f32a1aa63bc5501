package marketdata

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const latestBarTime = int64(1700000000)

// histoHandler generates hourly bars ending at toTs (or the fixed latest
// time), the way the histohour endpoint pages backwards
func histoHandler(t *testing.T, wantAuth string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" {
			assert.Equal(t, wantAuth, r.Header.Get("Authorization"))
		}

		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		require.NoError(t, err)

		end := latestBarTime
		if toTs := r.URL.Query().Get("toTs"); toTs != "" {
			end, err = strconv.ParseInt(toTs, 10, 64)
			require.NoError(t, err)
		}

		rows := ""
		for i := 0; i < limit; i++ {
			ts := end - int64(limit-1-i)*3600
			if rows != "" {
				rows += ","
			}
			rows += fmt.Sprintf(`{"time":%d,"open":1,"high":2,"low":0.5,"close":1.5,"volumefrom":10,"volumeto":15}`, ts)
		}

		fmt.Fprintf(w, `{"Response":"Success","Data":{"Data":[%s]}}`, rows)
	}
}

func TestFetchHourly(t *testing.T) {
	server := httptest.NewServer(histoHandler(t, "Apikey test-key"))
	defer server.Close()

	client := NewClient(server.URL, "test-key")

	bars, err := client.FetchHourly("BTC", "USD", 5)
	require.NoError(t, err)
	require.Len(t, bars, 5)

	// Chronological order, one hour apart, newest bar last
	assert.Equal(t, time.Unix(latestBarTime, 0).UTC(), bars[4].Time)
	for i := 1; i < len(bars); i++ {
		assert.Equal(t, time.Hour, bars[i].Time.Sub(bars[i-1].Time))
	}
	assert.Equal(t, 1.5, bars[0].Close)
}

func TestFetchHourlyPagesBackwards(t *testing.T) {
	server := httptest.NewServer(histoHandler(t, ""))
	defer server.Close()

	client := NewClient(server.URL, "")

	bars, err := client.FetchHourly("BTC", "USD", 3000)
	require.NoError(t, err)
	require.Len(t, bars, 3000)

	// The flattened result stays strictly chronological across page seams
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i].Time.After(bars[i-1].Time),
			"bar %d not after bar %d", i, i-1)
	}
	assert.Equal(t, time.Unix(latestBarTime, 0).UTC(), bars[len(bars)-1].Time)
}

func TestFetchHourlySkipsZeroPadding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Response":"Success","Data":{"Data":[
			{"time":1700000000,"open":0,"high":0,"low":0,"close":0,"volumefrom":0,"volumeto":0},
			{"time":1700003600,"open":1,"high":2,"low":0.5,"close":1.5,"volumefrom":10,"volumeto":15}
		]}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	bars, err := client.FetchHourly("BTC", "USD", 2)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 1.5, bars[0].Close)
}

func TestFetchHourlyErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Response":"Error","Message":"market does not exist"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	_, err := client.FetchHourly("NOPE", "USD", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market does not exist")
}

func TestFetchHourlyInvalidHours(t *testing.T) {
	client := NewClient("http://localhost", "")
	_, err := client.FetchHourly("BTC", "USD", 0)
	assert.Error(t, err)
}

func TestFetchSpotPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC", r.URL.Query().Get("fsym"))
		assert.Equal(t, "USD", r.URL.Query().Get("tsyms"))
		fmt.Fprint(w, `{"USD":64250.5}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	price, err := client.FetchSpotPrice("BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, 64250.5, price)
}

func TestFetchSpotPriceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Response":"Error","Message":"invalid pair"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.FetchSpotPrice("BTC", "XXX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pair")

	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"EUR":100}`)
	}))
	defer missing.Close()

	client = NewClient(missing.URL, "")
	_, err = client.FetchSpotPrice("BTC", "USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no price for USD")
}

func TestGetHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.FetchSpotPrice("BTC", "USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
