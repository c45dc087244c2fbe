package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const toncenterBaseURL = "https://toncenter.com/api/v2"

// ErrProviderNotFound reports that the external system has no record of
// the queried transaction or invoice.
var ErrProviderNotFound = errors.New("not found at provider")

// TonClient reads incoming transfers for an address via toncenter.
type TonClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewTonClient(apiKey string) *TonClient {
	return &TonClient{
		BaseURL: toncenterBaseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type TonTransaction struct {
	Hash       string
	Comment    string
	AmountNano int64
}

func (c *TonClient) GetRecentTransactions(ctx context.Context, address string, limit int) ([]TonTransaction, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("limit", strconv.Itoa(limit))
	if c.APIKey != "" {
		q.Set("api_key", c.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/getTransactions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("toncenter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("toncenter: unexpected status %s", resp.Status)
	}

	var wrapper struct {
		OK     bool `json:"ok"`
		Result []struct {
			TransactionID struct {
				Hash string `json:"hash"`
			} `json:"transaction_id"`
			InMsg struct {
				Message string `json:"message"`
				Value   string `json:"value"`
			} `json:"in_msg"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("toncenter: decode: %w", err)
	}
	if !wrapper.OK {
		return nil, fmt.Errorf("toncenter: api returned ok=false")
	}

	out := make([]TonTransaction, 0, len(wrapper.Result))
	for _, tx := range wrapper.Result {
		nano, _ := strconv.ParseInt(tx.InMsg.Value, 10, 64)
		out = append(out, TonTransaction{
			Hash:       tx.TransactionID.Hash,
			Comment:    tx.InMsg.Message,
			AmountNano: nano,
		})
	}
	return out, nil
}
