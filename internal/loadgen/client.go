package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RankingRow is one row of GET /api/v1/ranks.
type RankingRow struct {
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Record string `json:"record"`
	Date   string `json:"date"`
}

// Page is the body of GET /api/v1/ranks.
type Page struct {
	Items []RankingRow `json:"items"`
	Total int          `json:"total"`
}

// MyRank is the body of GET /api/v1/ranks/my.
type MyRank struct {
	Rank   int    `json:"rank"`
	Record string `json:"record"`
}

type recordResponse struct {
	Success bool   `json:"success"`
	Rank    int    `json:"rank"`
	Record  string `json:"record"`
}

// HTTPClient talks to the besttime API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client with a per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Health calls GET /health.
func (c *HTTPClient) Health(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrUnhealthy, status)
	}
	return nil
}

// SignIn signs the player in and fills its ID and Token.
func (c *HTTPClient) SignIn(ctx context.Context, p *Player) error {
	body := map[string]string{"name": p.Name, "phone": p.Phone}
	status, raw, err := c.do(ctx, http.MethodPost, "/api/v1/auth/signin", body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: %s got %d", ErrSignIn, p.Phone, status)
	}
	var resp struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decoding sign-in response: %w", err)
	}
	p.ID, p.Token = resp.User.ID, resp.AccessToken
	return nil
}

// Record submits one clear time and returns the HTTP status.
func (c *HTTPClient) Record(ctx context.Context, p *Player, ms int64, key string) (int, error) {
	header := map[string]string{"Authorization": "Bearer " + p.Token}
	if key != "" {
		header["Idempotency-Key"] = key
	}
	status, raw, err := c.do(ctx, http.MethodPost, "/api/v1/games/record", map[string]int64{"clearTimeMs": ms}, header)
	if err != nil {
		return 0, err
	}
	if status == http.StatusCreated || status == http.StatusOK {
		var resp recordResponse
		if err := json.Unmarshal(raw, &resp); err != nil || !resp.Success {
			return status, fmt.Errorf("%w: malformed record response", ErrStatus)
		}
	}
	return status, nil
}

// MyRank reads the player's own rank.
func (c *HTTPClient) MyRank(ctx context.Context, p *Player) (MyRank, error) {
	var out MyRank
	status, raw, err := c.do(ctx, http.MethodGet, "/api/v1/ranks/my", nil, map[string]string{"Authorization": "Bearer " + p.Token})
	if err != nil {
		return out, err
	}
	if status != http.StatusOK {
		return out, fmt.Errorf("%w: ranks/my returned %d", ErrStatus, status)
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// Page reads one page of the public leaderboard.
func (c *HTTPClient) Page(ctx context.Context, offset, limit int) (Page, error) {
	var out Page
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	status, raw, err := c.do(ctx, http.MethodGet, "/api/v1/ranks?"+q.Encode(), nil, nil)
	if err != nil {
		return out, err
	}
	if status != http.StatusOK {
		return out, fmt.Errorf("%w: ranks returned %d", ErrStatus, status)
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, header map[string]string) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, raw, nil
}
