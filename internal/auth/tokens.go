package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Token is a provider OAuth token handed out by the session service.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenClient fetches Gmail OAuth tokens for a user from the session
// service. Storage and refresh live entirely on that side; this client
// only reads.
type TokenClient struct {
	baseURL string
	client  *http.Client
}

// NewTokenClient creates a client against the session service.
func NewTokenClient(authServerURL string) *TokenClient {
	return &TokenClient{
		baseURL: authServerURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetToken fetches the current Google OAuth token for userID.
func (c *TokenClient) GetToken(ctx context.Context, userID string) (*Token, error) {
	url := fmt.Sprintf("%s/api/auth/users/%s/tokens/google", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil, fmt.Errorf("no google account connected for %s", userID)
	}

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"` // unix timestamp
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Expiry:       time.Unix(result.ExpiresAt, 0),
	}, nil
}

// AccessToken returns just the access token for userID, satisfying the
// notification service's token source.
func (c *TokenClient) AccessToken(ctx context.Context, userID string) (string, error) {
	tok, err := c.GetToken(ctx, userID)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
