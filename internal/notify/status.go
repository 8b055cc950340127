// Package notify dispatches participant status updates to the web
// interface. The wire format (a multipart "jsonfile" part wrapping the
// status document) is dictated by the receiving side.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client posts status updates to the configured status-update endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a status update client for the given endpoint URL.
func NewClient(url string, log *zap.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// SendStatus reports a status change of one participant. orgToken
// authenticates the request on behalf of the participant's organization;
// properties carries at least the status code and optionally location data.
func (c *Client) SendStatus(ctx context.Context, orgToken string, uid string, properties map[string]any) error {
	payload, err := json.Marshal(map[string]any{
		"token": orgToken,
		"data": []map[string]any{
			{
				"uid":        uid,
				"properties": []map[string]any{properties},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("jsonfile", "jsonfile")
	if err != nil {
		return fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return fmt.Errorf("write multipart part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post status update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status update endpoint returned %d", resp.StatusCode)
	}
	c.log.Debug("status update dispatched", zap.String("uid", uid))
	return nil
}
