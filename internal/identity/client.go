package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnauthorized means the auth service rejected the credentials.
// User-correctable; the caller must not retry or produce side effects.
var ErrUnauthorized = errors.New("unauthorized")

// Client resolves credentials to an identity by calling the auth service.
type Client struct {
	address string
	http    *http.Client
}

func NewClient(address string) *Client {
	return &Client{
		address: address,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Login exchanges basic-auth credentials for a signed token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s/login", c.address), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(username, password)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("auth service returned %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	return out.Token, nil
}

// Validate checks a bearer token and returns the username it carries.
func (c *Client) Validate(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s/validate", c.address), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("auth service returned %d: %s", resp.StatusCode, body)
	}

	var claims struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return "", fmt.Errorf("decode claims: %w", err)
	}
	if claims.Username == "" {
		return "", fmt.Errorf("auth service returned claims without username")
	}
	return claims.Username, nil
}
