// internal/export/github.go
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"devopus/internal/snapshot"
)

const githubAPI = "https://api.github.com"

var invalidRepoChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Request describes one export of a project snapshot to GitHub.
type Request struct {
	ProjectID   string
	ProjectName string
	Token       string
	Files       snapshot.FileSnapshot
	Private     bool
}

// Result reports where the export landed.
type Result struct {
	RepoName string `json:"repo_name"`
	RepoURL  string `json:"repo_url"`
	CloneURL string `json:"clone_url"`
}

// Exporter pushes generated projects to new GitHub repositories.
type Exporter struct {
	apiBase string
	httpc   *http.Client
}

// NewExporter creates an exporter against the public GitHub API
func NewExporter(httpc *http.Client) *Exporter {
	if httpc == nil {
		httpc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Exporter{apiBase: githubAPI, httpc: httpc}
}

// RepoName derives a GitHub-safe repository name from the project name,
// falling back to an id-based name when nothing usable survives.
func RepoName(projectName, projectID string) string {
	name := strings.TrimSpace(projectName)
	name = invalidRepoChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-._")
	if name == "" {
		short := projectID
		if len(short) > 8 {
			short = short[:8]
		}
		name = "devopus-project-" + short
	}
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}

// Export creates the remote repository, commits the snapshot and pushes it.
func (e *Exporter) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Token == "" {
		return nil, fmt.Errorf("github token required")
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("nothing to export")
	}

	repoName := RepoName(req.ProjectName, req.ProjectID)

	result, err := e.createRepo(ctx, req.Token, repoName, req.Private)
	if err != nil {
		return nil, err
	}

	if err := e.pushSnapshot(ctx, req, result.CloneURL); err != nil {
		return nil, err
	}

	return result, nil
}

// createRepo creates the repository under the token's account
func (e *Exporter) createRepo(ctx context.Context, token, name string, private bool) (*Result, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"name":        name,
		"description": "Generated with devopus",
		"private":     private,
		"auto_init":   false,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiBase+"/user/repos", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("create repository: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var created struct {
		Name     string `json:"name"`
		HTMLURL  string `json:"html_url"`
		CloneURL string `json:"clone_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}

	return &Result{
		RepoName: created.Name,
		RepoURL:  created.HTMLURL,
		CloneURL: created.CloneURL,
	}, nil
}

// pushSnapshot builds a single-commit repository in a temp dir and pushes it
func (e *Exporter) pushSnapshot(ctx context.Context, req Request, remoteURL string) error {
	workDir, err := os.MkdirTemp("", "devopus-export-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	repo, err := git.PlainInit(workDir, false)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	for path, content := range req.Files {
		rel := strings.TrimPrefix(path, "/")
		if rel == "" || strings.Contains(rel, "..") {
			continue
		}
		abs := filepath.Join(workDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return fmt.Errorf("create dir for %s: %w", path, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		if _, err := worktree.Add(rel); err != nil {
			return fmt.Errorf("stage %s: %w", path, err)
		}
	}

	_, err = worktree.Commit("Initial commit from devopus", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "devopus",
			Email: "export@devopus.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteURL},
	})
	if err != nil {
		return fmt.Errorf("add remote: %w", err)
	}

	pushOpts := &git.PushOptions{RemoteName: "origin"}
	if strings.HasPrefix(remoteURL, "http") {
		pushOpts.Auth = &githttp.BasicAuth{
			Username: "x-access-token",
			Password: req.Token,
		}
	}
	if err := repo.PushContext(ctx, pushOpts); err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}

	return nil
}
