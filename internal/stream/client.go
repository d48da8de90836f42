// internal/stream/client.go
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"devopus/internal/snapshot"
)

// Attachment is a base64 data-URL upload forwarded verbatim to the backend,
// which does the PDF extraction / vision work itself.
type Attachment struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "image" or "pdf"
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// GenerateRequest starts a fresh top-level generation.
type GenerateRequest struct {
	Prompt        string      `json:"prompt"`
	Attachment    *Attachment `json:"attachment,omitempty"`
	UserID        string      `json:"user_id,omitempty"`
	ProjectID     string      `json:"project_id,omitempty"`
	ImageAssetURL string      `json:"image_asset_url,omitempty"`
}

// FollowUpRequest modifies an existing snapshot.
type FollowUpRequest struct {
	Prompt         string                `json:"prompt"`
	CurrentFiles   snapshot.FileSnapshot `json:"current_files"`
	ReviewFeedback string                `json:"review_feedback,omitempty"`
	UserID         string                `json:"user_id,omitempty"`
	ProjectID      string                `json:"project_id,omitempty"`
	ImageAssetURL  string                `json:"image_asset_url,omitempty"`
}

// Client talks to the generation backend's streaming endpoints. One stream is
// consumed at a time per session; records are delivered to the handler
// synchronously, in arrival order.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a streaming client for the given backend base URL. The
// http.Client must not carry a timeout that would cut long generations short;
// cancellation is the context's job.
func NewClient(baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
	}
}

// Generate runs a top-level generation, invoking handle for each decoded
// event until the stream ends.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, handle func(Event)) error {
	return c.stream(ctx, "/generate-stream", req, handle)
}

// FollowUp runs a modification pass against the current files.
func (c *Client) FollowUp(ctx context.Context, req FollowUpRequest, handle func(Event)) error {
	return c.stream(ctx, "/followup-stream", req, handle)
}

// stream POSTs the request and pumps the chunked response body through a
// FrameDecoder. Only transport failures are returned; malformed records are
// logged and skipped.
func (c *Client) stream(ctx context.Context, endpoint string, body interface{}, handle func(Event)) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	decoder := NewFrameDecoder()
	buf := make([]byte, 4096)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, record := range decoder.Feed(buf[:n]) {
				ev, parseErr := ParseEvent(record)
				if parseErr != nil {
					log.Printf("[Stream] dropping malformed record: %v", parseErr)
					continue
				}
				handle(ev)
			}
		}
		if readErr == io.EOF {
			// A trailing partial record is incomplete and unusable.
			decoder.Reset()
			return nil
		}
		if readErr != nil {
			decoder.Reset()
			return fmt.Errorf("read stream: %w", readErr)
		}
	}
}
