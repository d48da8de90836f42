// internal/project/client.go
package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"devopus/internal/snapshot"
)

// Project is the live, denormalized state of a generated app — distinct from
// its version history, rewritten on every successful generation.
type Project struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Description       string                `json:"description,omitempty"`
	Files             snapshot.FileSnapshot `json:"files,omitempty"`
	PlanSnapshot      string                `json:"plan_snapshot,omitempty"`
	ArchitectSnapshot string                `json:"architect_snapshot,omitempty"`
	DiagramSnapshot   string                `json:"diagram_snapshot,omitempty"`
	ReviewSnapshot    string                `json:"review_snapshot,omitempty"`
	Prompt            string                `json:"prompt,omitempty"`
	CreatedAt         time.Time             `json:"created_at,omitempty"`
	UpdatedAt         time.Time             `json:"updated_at,omitempty"`
}

// Summary is the lightweight listing form, without any code.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// codeSnapshot decodes the store's code_snapshot column, which has grown two
// shapes over time: a bare file map, or a wrapper carrying the file map plus
// the agent outputs of the run that produced it.
type codeSnapshot struct {
	Files             snapshot.FileSnapshot
	PlanSnapshot      string
	ArchitectSnapshot string
	DiagramSnapshot   string
	ReviewSnapshot    string
	Prompt            string
}

func (c *codeSnapshot) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	if _, ok := keys["files"]; !ok {
		// Bare file map.
		return json.Unmarshal(data, &c.Files)
	}

	var wrapped struct {
		Files             snapshot.FileSnapshot `json:"files"`
		PlanSnapshot      string                `json:"plan_snapshot"`
		ArchitectSnapshot string                `json:"architect_snapshot"`
		DiagramSnapshot   string                `json:"diagram_snapshot"`
		ReviewSnapshot    string                `json:"review_snapshot"`
		Prompt            string                `json:"prompt"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	c.Files = wrapped.Files
	c.PlanSnapshot = wrapped.PlanSnapshot
	c.ArchitectSnapshot = wrapped.ArchitectSnapshot
	c.DiagramSnapshot = wrapped.DiagramSnapshot
	c.ReviewSnapshot = wrapped.ReviewSnapshot
	c.Prompt = wrapped.Prompt
	return nil
}

// wireProject is the store's response shape for a single project.
type wireProject struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	CodeSnapshot      *codeSnapshot `json:"code_snapshot"`
	PlanSnapshot      string        `json:"plan_snapshot"`
	ArchitectSnapshot string        `json:"architect_snapshot"`
	DiagramSnapshot   string        `json:"diagram_snapshot"`
	ReviewSnapshot    string        `json:"review_snapshot"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Client reads and writes projects in the backend store.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a project client for the backend base URL.
func NewClient(baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
	}
}

// Get fetches a project with its full code snapshot. Dedicated agent-output
// columns win; when they are empty the legacy copies nested inside
// code_snapshot fill them in, so projects written before the schema split
// still resume with their plan and review intact.
func (c *Client) Get(ctx context.Context, projectID string) (*Project, error) {
	var wire wireProject
	if err := c.do(ctx, http.MethodGet, "/projects/single/"+projectID, nil, &wire); err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	p := &Project{
		ID:                wire.ID,
		Name:              wire.Name,
		Description:       wire.Description,
		PlanSnapshot:      wire.PlanSnapshot,
		ArchitectSnapshot: wire.ArchitectSnapshot,
		DiagramSnapshot:   wire.DiagramSnapshot,
		ReviewSnapshot:    wire.ReviewSnapshot,
		CreatedAt:         wire.CreatedAt,
		UpdatedAt:         wire.UpdatedAt,
	}

	if snap := wire.CodeSnapshot; snap != nil {
		p.Files = snap.Files
		p.Prompt = snap.Prompt
		if p.PlanSnapshot == "" {
			p.PlanSnapshot = snap.PlanSnapshot
		}
		if p.ArchitectSnapshot == "" {
			p.ArchitectSnapshot = snap.ArchitectSnapshot
		}
		if p.DiagramSnapshot == "" {
			p.DiagramSnapshot = snap.DiagramSnapshot
		}
		if p.ReviewSnapshot == "" {
			p.ReviewSnapshot = snap.ReviewSnapshot
		}
	}

	return p, nil
}

// SaveRequest upserts a project row.
type SaveRequest struct {
	UserID      string                `json:"user_id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	ProjectID   string                `json:"project_id,omitempty"`
	Files       snapshot.FileSnapshot `json:"-"`
}

// Save upserts a project, wrapping the files in the store's persistence
// format. Returns the project id (fresh on insert).
func (c *Client) Save(ctx context.Context, req SaveRequest) (string, error) {
	body := map[string]interface{}{
		"user_id":     req.UserID,
		"name":        req.Name,
		"description": req.Description,
	}
	if req.ProjectID != "" {
		body["project_id"] = req.ProjectID
	}
	if len(req.Files) > 0 {
		body["code_snapshot"] = map[string]interface{}{"files": req.Files.Wrapped()}
	}

	var resp struct {
		ProjectID string `json:"project_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/projects/save", body, &resp); err != nil {
		return "", fmt.Errorf("save project: %w", err)
	}
	return resp.ProjectID, nil
}

// ListForUser returns a user's projects, most recently updated first,
// without code snapshots.
func (c *Client) ListForUser(ctx context.Context, userID string) ([]Summary, error) {
	var summaries []Summary
	if err := c.do(ctx, http.MethodGet, "/projects/user/"+userID, nil, &summaries); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return summaries, nil
}

// Delete removes a project and all its versions.
func (c *Client) Delete(ctx context.Context, projectID string) error {
	if err := c.do(ctx, http.MethodDelete, "/projects/"+projectID, nil, nil); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
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

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
