package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// BlockingClient manages IP blocks through the external blocking
// service. The dashboard never touches the firewall itself.
type BlockingClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewBlockingClient(baseURL, apiKey string, timeout time.Duration) *BlockingClient {
	return &BlockingClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// ActiveBlock is one currently enforced block
type ActiveBlock struct {
	ID        int64  `json:"id"`
	IP        string `json:"ip"`
	Source    string `json:"source"` // fail2ban, ip_block, manual
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// List returns all active blocks
func (b *BlockingClient) List(ctx context.Context) ([]ActiveBlock, error) {
	var resp struct {
		Success bool          `json:"success"`
		Error   string        `json:"error"`
		Blocks  []ActiveBlock `json:"blocks"`
	}
	if err := b.do(ctx, http.MethodGet, "/api/dashboard/blocking/blocks/list", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apiError(resp.Error, "block list query rejected")
	}
	return resp.Blocks, nil
}

// ManualBlock blocks an IP with an operator-supplied reason
func (b *BlockingClient) ManualBlock(ctx context.Context, ip, reason string) error {
	body := map[string]string{"ip": ip, "reason": reason}
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/dashboard/blocking/blocks/manual", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return apiError(resp.Error, "manual block rejected")
	}
	return nil
}

// Unblock lifts all blocks for an IP
func (b *BlockingClient) Unblock(ctx context.Context, ip string) error {
	body := map[string]string{"ip": ip}
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/dashboard/blocking/blocks/unblock", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return apiError(resp.Error, "unblock rejected")
	}
	return nil
}

// Delete removes one block record by id
func (b *BlockingClient) Delete(ctx context.Context, id int64) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := b.do(ctx, http.MethodDelete, fmt.Sprintf("/api/dashboard/blocking/blocks/%d", id), nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return apiError(resp.Error, "block delete rejected")
	}
	return nil
}

func (b *BlockingClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("blocking service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from blocking service: %w", err)
	}
	return nil
}
