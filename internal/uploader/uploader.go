// internal/uploader/uploader.go
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Uploader sends image attachments to the backend asset store so the coding
// agent can reference them by URL.
type Uploader struct {
	baseURL string
	httpc   *http.Client
}

// New creates an uploader for the backend base URL
func New(baseURL string, httpc *http.Client) *Uploader {
	if httpc == nil {
		httpc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Uploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
	}
}

// Upload posts an asset and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if mimeType != "" {
		if err := writer.WriteField("mime_type", mimeType); err != nil {
			return "", fmt.Errorf("write mime field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/assets/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload asset: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return result.URL, nil
}

// UploadOrEmpty uploads an asset and returns "" on failure. Generation can
// proceed without the image; the failure is only logged.
func (u *Uploader) UploadOrEmpty(ctx context.Context, name, mimeType string, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	url, err := u.Upload(ctx, name, mimeType, data)
	if err != nil {
		log.Printf("[Uploader] asset upload failed, continuing without image: %v", err)
		return ""
	}
	return url
}
