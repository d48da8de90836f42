// internal/version/client.go
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"devopus/internal/snapshot"
)

// Version is one immutable historical snapshot of a project's generated
// code, owned by the backend store. The list endpoint returns newest-first;
// Chronological reverses for follow-up-history replay.
type Version struct {
	ID                string                `json:"id"`
	ProjectID         string                `json:"project_id"`
	VersionNumber     int                   `json:"version_number"`
	Prompt            string                `json:"prompt"`
	Summary           string                `json:"summary,omitempty"`
	CodeSnapshot      snapshot.FileSnapshot `json:"code_snapshot"`
	PlanSnapshot      string                `json:"plan_snapshot,omitempty"`
	ArchitectSnapshot string                `json:"architect_snapshot,omitempty"`
	DiagramSnapshot   string                `json:"diagram_snapshot,omitempty"`
	ReviewSnapshot    string                `json:"review_snapshot,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

// Client reads version history from the backend store.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a version store client for the backend base URL.
func NewClient(baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
	}
}

// List returns a project's versions as delivered by the store: newest first.
func (c *Client) List(ctx context.Context, projectID string) ([]Version, error) {
	var resp struct {
		Versions []Version `json:"versions"`
	}
	if err := c.get(ctx, "/projects/"+projectID+"/versions", &resp); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return resp.Versions, nil
}

// Get fetches a single version including its full code snapshot.
func (c *Client) Get(ctx context.Context, versionID string) (*Version, error) {
	var v Version
	if err := c.get(ctx, "/versions/"+versionID, &v); err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &v, nil
}

// Latest fetches the most recent version for a project. A project with no
// versions yields nil, not an error.
func (c *Client) Latest(ctx context.Context, projectID string) (*Version, error) {
	var v Version
	if err := c.get(ctx, "/projects/"+projectID+"/latest", &v); err != nil {
		return nil, fmt.Errorf("latest version: %w", err)
	}
	if v.ID == "" {
		return nil, nil
	}
	return &v, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("store returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// Chronological returns a copy of a newest-first version list in ascending
// order, reconstructing the follow-up history. The first element's prompt is
// the session's initial prompt.
func Chronological(versions []Version) []Version {
	out := make([]Version, len(versions))
	for i, v := range versions {
		out[len(versions)-1-i] = v
	}
	return out
}

// InitialPrompt returns the prompt of the oldest version in a newest-first
// list, or "" when the list is empty.
func InitialPrompt(versions []Version) string {
	if len(versions) == 0 {
		return ""
	}
	return versions[len(versions)-1].Prompt
}
