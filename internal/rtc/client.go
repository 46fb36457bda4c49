// Package rtc fetches media tokens from the external token service.
// The coordinator never mints tokens itself; a failed fetch degrades
// the join to signalling-only instead of blocking admission.
package rtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// TokenProvider issues channel credentials for an admitted user.
type TokenProvider interface {
	Token(ctx context.Context, channel, userID string, host bool) (*Credentials, error)
}

// Credentials is what a client needs to join the media channel.
type Credentials struct {
	Token     string `json:"token"`
	Channel   string `json:"channel"`
	UID       string `json:"uid"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	// Degraded marks a join without media credentials; signalling
	// still works, audio and video do not.
	Degraded bool `json:"degraded,omitempty"`
}

type tokenRequest struct {
	Channel string `json:"channel"`
	UID     string `json:"uid"`
	Role    string `json:"role"`
}

// Client implements TokenProvider against an HTTP JSON endpoint.
type Client struct {
	url  string
	http *http.Client
	log  *zap.Logger
}

// NewClient creates a token client. An empty url disables the provider;
// Token then always returns degraded credentials.
func NewClient(url string, log *zap.Logger) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

// Token requests a credential for (channel, userID). Errors are
// absorbed into a degraded credential; only ctx cancellation is
// surfaced to the caller.
func (c *Client) Token(ctx context.Context, channel, userID string, host bool) (*Credentials, error) {
	if c.url == "" {
		return &Credentials{Channel: channel, UID: userID, Degraded: true}, nil
	}

	role := "subscriber"
	if host {
		role = "publisher"
	}
	body, err := json.Marshal(tokenRequest{Channel: channel, UID: userID, Role: role})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("token fetch failed, degrading join", zap.String("channel", channel), zap.Error(err))
		return &Credentials{Channel: channel, UID: userID, Degraded: true}, nil
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		c.log.Warn("token service returned non-200, degrading join",
			zap.String("channel", channel), zap.Int("status", res.StatusCode))
		return &Credentials{Channel: channel, UID: userID, Degraded: true}, nil
	}

	var creds Credentials
	if err := json.NewDecoder(res.Body).Decode(&creds); err != nil {
		c.log.Warn("token response decode failed, degrading join", zap.String("channel", channel), zap.Error(err))
		return &Credentials{Channel: channel, UID: userID, Degraded: true}, nil
	}
	if creds.Channel == "" {
		creds.Channel = channel
	}
	if creds.UID == "" {
		creds.UID = userID
	}
	return &creds, nil
}
