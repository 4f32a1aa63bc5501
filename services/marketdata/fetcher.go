package marketdata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// CryptoCompare API limits
const (
	MaxBarsPerRequest = 2000
	DefaultTimeout    = 30 * time.Second
)

// Bar represents one hourly OHLCV bar as returned by the API
type Bar struct {
	Time       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	VolumeFrom float64
	VolumeTo   float64
}

// histoResponse represents the CryptoCompare histohour response envelope
type histoResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		TimeFrom int64 `json:"TimeFrom"`
		TimeTo   int64 `json:"TimeTo"`
		Data     []struct {
			Time       int64   `json:"time"`
			Open       float64 `json:"open"`
			High       float64 `json:"high"`
			Low        float64 `json:"low"`
			Close      float64 `json:"close"`
			VolumeFrom float64 `json:"volumefrom"`
			VolumeTo   float64 `json:"volumeto"`
		} `json:"Data"`
	} `json:"Data"`
}

// Client fetches market data from the CryptoCompare min-api
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new market data client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// FetchHourly fetches up to the requested number of hourly bars for a pair,
// paging backwards with toTs until the span is covered or history runs out.
// Bars are returned in chronological order.
func (c *Client) FetchHourly(currency, compare string, hours int) ([]Bar, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("hours must be positive")
	}

	var pages [][]Bar
	total := 0
	toTs := int64(0) // 0 means latest

	for total < hours {
		limit := hours - total
		if limit > MaxBarsPerRequest {
			limit = MaxBarsPerRequest
		}

		page, err := c.fetchHourlyPage(currency, compare, limit, toTs)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		pages = append(pages, page)
		total += len(page)

		// Next page ends one hour before the earliest bar of this page
		toTs = page[0].Time.Unix() - 3600

		// Short page means history is exhausted
		if len(page) < limit {
			break
		}
	}

	// Pages were collected newest-first, flatten oldest-first
	bars := make([]Bar, 0, total)
	for i := len(pages) - 1; i >= 0; i-- {
		bars = append(bars, pages[i]...)
	}

	return bars, nil
}

// fetchHourlyPage fetches a single histohour page
func (c *Client) fetchHourlyPage(currency, compare string, limit int, toTs int64) ([]Bar, error) {
	params := url.Values{}
	params.Set("fsym", currency)
	params.Set("tsym", compare)
	// API returns limit+1 bars, keep the request aligned with what we want
	params.Set("limit", strconv.Itoa(limit))
	if toTs > 0 {
		params.Set("toTs", strconv.FormatInt(toTs, 10))
	}

	body, err := c.get("/data/v2/histohour", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hourly bars for %s/%s: %w", currency, compare, err)
	}

	var response histoResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse histohour response: %w", err)
	}

	if response.Response == "Error" {
		return nil, fmt.Errorf("cryptocompare error: %s", response.Message)
	}

	bars := make([]Bar, 0, len(response.Data.Data))
	for _, row := range response.Data.Data {
		// The API pads missing history with zero rows
		if row.Open == 0 && row.Close == 0 && row.High == 0 && row.Low == 0 {
			continue
		}
		bars = append(bars, Bar{
			Time:       time.Unix(row.Time, 0).UTC(),
			Open:       row.Open,
			High:       row.High,
			Low:        row.Low,
			Close:      row.Close,
			VolumeFrom: row.VolumeFrom,
			VolumeTo:   row.VolumeTo,
		})
	}

	return bars, nil
}

// FetchSpotPrice fetches the current price of a pair
func (c *Client) FetchSpotPrice(currency, compare string) (float64, error) {
	params := url.Values{}
	params.Set("fsym", currency)
	params.Set("tsyms", compare)

	body, err := c.get("/data/price", params)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch spot price for %s/%s: %w", currency, compare, err)
	}

	// Error responses carry a Response field, success is a flat price map
	var check struct {
		Response string `json:"Response"`
		Message  string `json:"Message"`
	}
	if err := json.Unmarshal(body, &check); err == nil && check.Response == "Error" {
		return 0, fmt.Errorf("cryptocompare error: %s", check.Message)
	}

	var prices map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return 0, fmt.Errorf("failed to parse price response: %w", err)
	}

	price, ok := prices[compare]
	if !ok {
		return 0, fmt.Errorf("no price for %s in response", compare)
	}

	return price, nil
}

// get performs a GET request against the API and returns the raw body
func (c *Client) get(path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api error (%d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
