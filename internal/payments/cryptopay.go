package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const cryptoPayBaseURL = "https://pay.crypt.bot/api"

// CryptoPayClient talks to the Crypto Pay invoice API.
type CryptoPayClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewCryptoPayClient(token string) *CryptoPayClient {
	return &CryptoPayClient{
		BaseURL: cryptoPayBaseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type Invoice struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"`
	PayURL    string `json:"pay_url"`
	Amount    string `json:"amount"`
}

type cryptoPayResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

func (c *CryptoPayClient) CreateInvoice(ctx context.Context, asset, amount string) (*Invoice, error) {
	body, err := json.Marshal(map[string]any{
		"asset":          asset,
		"amount":         amount,
		"allow_comments": false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/createInvoice", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result Invoice
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetInvoiceStatus re-queries one invoice by its external id.
func (c *CryptoPayClient) GetInvoiceStatus(ctx context.Context, invoiceID int64) (string, error) {
	u := c.BaseURL + "/getInvoices?invoice_ids=" + url.QueryEscape(strconv.FormatInt(invoiceID, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	var result struct {
		Items []Invoice `json:"items"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	if len(result.Items) == 0 {
		return "", fmt.Errorf("invoice %d: %w", invoiceID, ErrProviderNotFound)
	}
	return result.Items[0].Status, nil
}

func (c *CryptoPayClient) do(req *http.Request, out any) error {
	req.Header.Set("Crypto-Pay-API-Token", c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("crypto pay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("crypto pay: unexpected status %s", resp.Status)
	}

	var wrapper cryptoPayResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return fmt.Errorf("crypto pay: decode: %w", err)
	}
	if !wrapper.OK {
		return fmt.Errorf("crypto pay: api returned ok=false")
	}
	if err := json.Unmarshal(wrapper.Result, out); err != nil {
		return fmt.Errorf("crypto pay: decode result: %w", err)
	}
	return nil
}
