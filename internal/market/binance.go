package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"alertmonitor/internal/models"
)

const binanceBaseURL = "https://api.binance.com"

// defaultTimeout bounds a single ticker request so one stuck fetch cannot
// stall a whole evaluation pass.
const defaultTimeout = 10 * time.Second

// BinanceClient fetches spot market data from the Binance REST API.
type BinanceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinanceClient creates a client against the public Binance API.
func NewBinanceClient() *BinanceClient {
	return &BinanceClient{
		baseURL: binanceBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewBinanceClientWithBaseURL is used by tests to point the client at a stub server.
func NewBinanceClientWithBaseURL(baseURL string) *BinanceClient {
	c := NewBinanceClient()
	c.baseURL = baseURL
	return c
}

// ticker24h mirrors the subset of GET /api/v3/ticker/24hr we consume.
// Binance returns numeric fields as strings.
type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
}

// GetTicker fetches the current price and 24h stats for a symbol.
func (c *BinanceClient) GetTicker(ctx context.Context, symbol string) (*models.PriceSnapshot, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ticker response for %s: %w", symbol, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticker request for %s failed: status %d: %s", symbol, resp.StatusCode, body)
	}

	var ticker ticker24h
	if err := json.Unmarshal(body, &ticker); err != nil {
		return nil, fmt.Errorf("parse ticker response for %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(ticker.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parse price %q for %s: %w", ticker.LastPrice, symbol, err)
	}

	// Change and volume are informational; a parse failure leaves them zero.
	change, _ := strconv.ParseFloat(ticker.PriceChangePercent, 64)
	volume, _ := strconv.ParseFloat(ticker.Volume, 64)

	return &models.PriceSnapshot{
		Symbol:     symbol,
		Price:      price,
		Change24h:  change,
		Volume24h:  volume,
		CapturedAt: time.Now().UTC(),
	}, nil
}
