package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

var ErrRegionUnknown = errors.New("unknown panel region")

// Client talks to the 3x-ui panels of every edge server. One session cookie
// jar covers all regions; login state is tracked per region.
type Client struct {
	regions   map[string]string // region code -> panel base URL
	username  string
	password  string
	inboundID int
	client    *http.Client

	mu       sync.Mutex
	loggedIn map[string]bool
}

type clientConfig struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Enable     bool   `json:"enable"`
	Flow       string `json:"flow"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"` // milliseconds timestamp
}

type response struct {
	Success bool        `json:"success"`
	Msg     string      `json:"msg"`
	Obj     interface{} `json:"obj"`
}

func NewClient(regions map[string]string, username, password string, inboundID int) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		regions:   regions,
		username:  username,
		password:  password,
		inboundID: inboundID,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Jar:     jar,
		},
		loggedIn: make(map[string]bool),
	}, nil
}

func (c *Client) baseURL(region string) (string, error) {
	url, ok := c.regions[region]
	if !ok || url == "" {
		return "", fmt.Errorf("%w: %s", ErrRegionUnknown, region)
	}
	return url, nil
}

func (c *Client) login(ctx context.Context, region string) error {
	base, err := c.baseURL(region)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var result response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("login failed: %s", result.Msg)
	}

	c.mu.Lock()
	c.loggedIn[region] = true
	c.mu.Unlock()
	return nil
}

func (c *Client) ensureLoggedIn(ctx context.Context, region string) error {
	c.mu.Lock()
	ok := c.loggedIn[region]
	c.mu.Unlock()
	if ok {
		return nil
	}
	return c.login(ctx, region)
}

func (c *Client) dropSession(region string) {
	c.mu.Lock()
	c.loggedIn[region] = false
	c.mu.Unlock()
}

// EnableClient switches a pre-provisioned slot on with the given expiry.
func (c *Client) EnableClient(ctx context.Context, region, uid string, expiryMs int64) error {
	return c.updateClient(ctx, region, uid, true, expiryMs)
}

// DisableClient switches a slot off. The uid stays on the panel for reuse.
func (c *Client) DisableClient(ctx context.Context, region, uid string) error {
	return c.updateClient(ctx, region, uid, false, 0)
}

// UpdateClientExpiry moves the expiry of an enabled slot.
func (c *Client) UpdateClientExpiry(ctx context.Context, region, uid string, expiryMs int64) error {
	return c.updateClient(ctx, region, uid, true, expiryMs)
}

func (c *Client) updateClient(ctx context.Context, region, uid string, enable bool, expiryMs int64) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := c.ensureLoggedIn(ctx, region); err != nil {
			lastErr = err
			continue
		}

		retry, err := c.updateClientOnce(ctx, region, uid, enable, expiryMs)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		c.dropSession(region)
	}
	return fmt.Errorf("update client %s on %s: %w", uid, region, lastErr)
}

// updateClientOnce does a single updateClient call. The second return value
// says whether the failure looks like a stale session worth a re-login.
func (c *Client) updateClientOnce(ctx context.Context, region, uid string, enable bool, expiryMs int64) (bool, error) {
	base, err := c.baseURL(region)
	if err != nil {
		return false, err
	}

	cfg := clientConfig{
		ID:         uid,
		Email:      uid,
		Enable:     enable,
		Flow:       "xtls-rprx-vision",
		LimitIP:    3,
		ExpiryTime: expiryMs,
	}

	settingsJSON, err := json.Marshal(map[string]interface{}{
		"clients": []clientConfig{cfg},
	})
	if err != nil {
		return false, err
	}

	body, err := json.Marshal(map[string]interface{}{
		"id":       c.inboundID,
		"settings": string(settingsJSON),
	})
	if err != nil {
		return false, err
	}

	url := fmt.Sprintf("%s/panel/api/inbounds/%d/updateClient/%s", base, c.inboundID, uid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("update client request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	// 3xx or an empty body means the session cookie went stale
	if resp.StatusCode != http.StatusOK || len(respBody) == 0 {
		return true, fmt.Errorf("update client failed: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	var result response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return false, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if !result.Success {
		return false, fmt.Errorf("update client failed: %s", result.Msg)
	}
	return false, nil
}
