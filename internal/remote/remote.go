// Package remote calls the account endpoints of a dictado server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fmueller/dictado/internal/license"
	"github.com/fmueller/dictado/internal/provider"
	"github.com/fmueller/dictado/internal/quota"
)

const maxResponseBytes = 1 << 20

// codeErrors maps server error codes back to the sentinels callers match on.
var codeErrors = map[string]error{
	"invalid_license": license.ErrInvalidFormat,
	"already_bound":   license.ErrAlreadyBoundToOther,
	"quota_exceeded":  quota.ErrQuotaExceeded,
}

type Client struct {
	baseURL  string
	token    string
	deviceID string
	http     *http.Client
}

func New(baseURL, token, deviceID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: provider.DefaultTimeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:    strings.TrimSpace(token),
		deviceID: deviceID,
		http:     httpClient,
	}
}

// Status fetches the quota status the server holds for this device.
func (c *Client) Status(ctx context.Context) (quota.Status, error) {
	var status quota.Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return quota.Status{}, err
	}
	return status, nil
}

// Activate binds key to this device on the server.
func (c *Client) Activate(ctx context.Context, key string) error {
	body, err := json.Marshal(map[string]string{"licenseKey": key})
	if err != nil {
		return fmt.Errorf("encode activation: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/api/activate", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(provider.DeviceIDHeader, c.deviceID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func responseError(status int, payload []byte) error {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	_ = json.Unmarshal(payload, &envelope)

	if sentinel, ok := codeErrors[envelope.Code]; ok {
		return sentinel
	}

	message := envelope.Message
	if message == "" {
		message = envelope.Error
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &provider.Error{Provider: "server", StatusCode: status, Message: message}
}
