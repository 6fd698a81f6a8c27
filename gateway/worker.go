package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WorkerClient places orders through the Zerodha order worker, a small HTTP
// relay that signs and forwards orders to the broker using the per-account
// credentials carried in each request.
type WorkerClient struct {
	url        string
	key        string
	httpClient *http.Client
}

var _ Gateway = (*WorkerClient)(nil)

// NewWorkerClient creates a client for the order worker at url, authenticated
// with the shared internal key.
func NewWorkerClient(url, key string) *WorkerClient {
	return &WorkerClient{
		url: url,
		key: key,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type workerRequest struct {
	APIKey          string `json:"api_key"`
	AccessToken     string `json:"access_token"`
	TradingSymbol   string `json:"tradingsymbol"`
	Exchange        string `json:"exchange"`
	TransactionType string `json:"transaction_type"`
	Quantity        int    `json:"quantity"`
}

type workerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PlaceOrder submits one order and blocks until the worker answers. Transport
// failures, non-2xx responses, and explicit error statuses all surface as an
// error carrying the worker's message.
func (c *WorkerClient) PlaceOrder(ctx context.Context, ord Order) error {
	body, err := json.Marshal(workerRequest{
		APIKey:          ord.Account.APIKey,
		AccessToken:     ord.Account.AccessToken,
		TradingSymbol:   ord.Instrument.Symbol,
		Exchange:        ord.Instrument.Exchange,
		TransactionType: string(ord.Side),
		Quantity:        ord.Quantity,
	})
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-INTERNAL-KEY", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(text))
	}

	var wr workerResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if wr.Status != "success" {
		if wr.Message == "" {
			wr.Message = wr.Status
		}
		return fmt.Errorf("order rejected: %s", wr.Message)
	}
	return nil
}
