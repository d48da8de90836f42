// app.go
package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"devopus/internal/config"
	"devopus/internal/database"
	"devopus/internal/eventhub"
	"devopus/internal/export"
	"devopus/internal/history"
	"devopus/internal/preview"
	"devopus/internal/project"
	"devopus/internal/session"
	"devopus/internal/snapshot"
	"devopus/internal/stream"
	"devopus/internal/uploader"
	"devopus/internal/version"
)

// App struct contains the core application state and managers
type App struct {
	ctx    context.Context
	mu     sync.RWMutex
	config *config.Config

	// Core managers
	dbManager      *database.Database
	eventHub       *eventhub.EventHub
	session        *session.Session
	dispatcher     *session.Dispatcher
	streamClient   *stream.Client
	projectClient  *project.Client
	versionClient  *version.Client
	archive        *history.Archive
	materializer   *preview.Materializer
	previewWatcher *preview.Watcher
	exporter       *export.Exporter
	assetUploader  *uploader.Uploader
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{}
}

// Startup initializes all managers
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.config = cfg

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.dbManager = db

	// Stale pointers from a previous run would mask newly generated versions
	if err := db.ResetPointers(); err != nil {
		log.Printf("[App] failed to reset version pointers: %v", err)
	}

	a.eventHub = eventhub.New(ctx)

	backendURL := cfg.Settings.BackendURL
	a.streamClient = stream.NewClient(backendURL, nil)
	a.projectClient = project.NewClient(backendURL, nil)
	a.versionClient = version.NewClient(backendURL, nil)
	a.assetUploader = uploader.New(backendURL, nil)
	a.exporter = export.NewExporter(nil)

	a.archive = history.NewArchive(cfg.HistoryDir, cfg.Settings.CompressionLevel)

	a.session = session.New()
	a.dispatcher = session.NewDispatcher(a.session, a.eventHub, a.archive)

	a.materializer = preview.NewMaterializer(cfg.Settings.PreviewDir)

	log.Println("[App] devopus started")
	return nil
}

// Shutdown releases all resources
func (a *App) Shutdown(ctx context.Context) {
	if a.previewWatcher != nil {
		a.previewWatcher.Close()
	}
	if a.dbManager != nil {
		a.dbManager.Close()
	}
	log.Println("[App] devopus shutdown complete")
}

// SetBroadcaster wires the WebSocket server into the EventHub
func (a *App) SetBroadcaster(broadcaster eventhub.Broadcaster) {
	if a.eventHub != nil {
		a.eventHub.SetBroadcaster(broadcaster)
	}
}

// GenerateParams are the arguments for StartGeneration
type GenerateParams struct {
	Prompt     string             `json:"prompt"`
	UserID     string             `json:"user_id,omitempty"`
	ProjectID  string             `json:"project_id,omitempty"`
	Attachment *stream.Attachment `json:"attachment,omitempty"`
}

// StartGeneration begins a fresh top-level generation. It returns once the
// stream is accepted; progress arrives as events.
func (a *App) StartGeneration(params GenerateParams) error {
	if strings.TrimSpace(params.Prompt) == "" {
		return fmt.Errorf("prompt required")
	}
	if err := a.session.Begin(session.RunGenerate); err != nil {
		return err
	}

	req := stream.GenerateRequest{
		Prompt:     params.Prompt,
		UserID:     params.UserID,
		ProjectID:  params.ProjectID,
		Attachment: params.Attachment,
	}
	req.ImageAssetURL = a.uploadAttachment(params.Attachment)

	go a.runStream(func(ctx context.Context) error {
		return a.streamClient.Generate(ctx, req, a.handleEvent)
	})
	return nil
}

// FollowUpParams are the arguments for StartFollowUp
type FollowUpParams struct {
	Prompt         string             `json:"prompt"`
	ReviewFeedback string             `json:"review_feedback,omitempty"`
	UserID         string             `json:"user_id,omitempty"`
	Attachment     *stream.Attachment `json:"attachment,omitempty"`
}

// StartFollowUp begins a modification pass against the completed snapshot.
func (a *App) StartFollowUp(params FollowUpParams) error {
	if strings.TrimSpace(params.Prompt) == "" {
		return fmt.Errorf("prompt required")
	}
	if err := a.session.Begin(session.RunFollowUp); err != nil {
		return err
	}

	req := stream.FollowUpRequest{
		Prompt:         params.Prompt,
		CurrentFiles:   a.session.Files(),
		ReviewFeedback: params.ReviewFeedback,
		UserID:         params.UserID,
		ProjectID:      a.session.ProjectID(),
	}
	req.ImageAssetURL = a.uploadAttachment(params.Attachment)

	go a.runStream(func(ctx context.Context) error {
		return a.streamClient.FollowUp(ctx, req, a.handleEvent)
	})
	return nil
}

// handleEvent feeds one stream event to the dispatcher
func (a *App) handleEvent(ev stream.Event) {
	a.dispatcher.Dispatch(ev)
}

// runStream consumes a stream to its end and settles the session
func (a *App) runStream(run func(context.Context) error) {
	defer a.session.FinishRun()

	if err := run(a.ctx); err != nil {
		log.Printf("[App] stream failed: %v", err)
		a.session.Fail(err.Error())
		a.eventHub.EmitSessionError(err.Error())
		return
	}

	if a.session.Stage() == session.StageComplete {
		// A freshly completed run is the latest version again
		if pid := a.session.ProjectID(); pid != "" {
			if err := a.dbManager.ClearCurrentVersion(pid); err != nil {
				log.Printf("[App] failed to clear version pointer for %s: %v", pid, err)
			}
		}
		a.refreshPreview()
	}
}

// uploadAttachment pushes an image attachment to the asset store. Non-image
// attachments travel inline; upload failures degrade to no asset URL.
func (a *App) uploadAttachment(att *stream.Attachment) string {
	if att == nil || att.Type != "image" {
		return ""
	}
	data := decodeDataURL(att.Data)
	if len(data) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(a.ctx, 60*time.Second)
	defer cancel()
	url := a.assetUploader.UploadOrEmpty(ctx, att.Name, att.MimeType, data)
	if url != "" {
		a.eventHub.EmitAssetUploaded(att.Name, url)
	}
	return url
}

// decodeDataURL strips a data-URL prefix and decodes the base64 payload
func decodeDataURL(s string) []byte {
	if idx := strings.Index(s, "base64,"); idx >= 0 {
		s = s[idx+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return data
}

// GetSession returns the current session state
func (a *App) GetSession() session.View {
	return a.session.View()
}

// GetProject loads a project and resumes the session from it
func (a *App) GetProject(projectID string) (*project.Project, error) {
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()

	p, err := a.projectClient.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	a.session.Hydrate(p.ID, p.PlanSnapshot, p.ArchitectSnapshot, p.DiagramSnapshot, p.ReviewSnapshot)
	if len(p.Files) > 0 {
		if err := a.session.RestoreSnapshot(p.Files); err != nil {
			return nil, fmt.Errorf("load project: %w", err)
		}
		a.refreshPreview()
	}

	a.cacheProject(p.ID, p.Name, p.Description, "")
	return p, nil
}

// SaveProject upserts the project row in the backend store
func (a *App) SaveProject(req project.SaveRequest) (string, error) {
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()

	if len(req.Files) == 0 {
		req.Files = a.session.Files()
	}

	id, err := a.projectClient.Save(ctx, req)
	if err != nil {
		return "", err
	}
	a.cacheProject(id, req.Name, req.Description, req.UserID)
	return id, nil
}

// ListProjects lists a user's projects from the backend, falling back to the
// local cache when the backend is unreachable
func (a *App) ListProjects(userID string) ([]project.Summary, error) {
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()

	summaries, err := a.projectClient.ListForUser(ctx, userID)
	if err != nil {
		log.Printf("[App] backend project list failed, serving cache: %v", err)
		return a.cachedProjects(userID), nil
	}
	return summaries, nil
}

// cacheProject records a project summary for offline listing
func (a *App) cacheProject(id, name, description, userID string) {
	if id == "" || a.dbManager == nil {
		return
	}
	err := a.dbManager.SaveProjectCache(&database.ProjectCacheEntry{
		ID:          id,
		Name:        name,
		Description: description,
		UserID:      userID,
		UpdatedAt:   time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[App] failed to cache project %s: %v", id, err)
	}
}

// cachedProjects serves the local project cache
func (a *App) cachedProjects(userID string) []project.Summary {
	entries, err := a.dbManager.ListProjectCache()
	if err != nil {
		return nil
	}
	var summaries []project.Summary
	for _, e := range entries {
		if userID != "" && e.UserID != "" && e.UserID != userID {
			continue
		}
		summaries = append(summaries, project.Summary{
			ID:          e.ID,
			Name:        e.Name,
			Description: e.Description,
			UpdatedAt:   time.Unix(e.UpdatedAt, 0),
		})
	}
	return summaries
}

// DeleteProject removes a project and its versions from the backend store
func (a *App) DeleteProject(projectID string) error {
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()

	if err := a.projectClient.Delete(ctx, projectID); err != nil {
		return err
	}
	if err := a.dbManager.DeleteProjectCache(projectID); err != nil {
		log.Printf("[App] failed to drop cached project %s: %v", projectID, err)
	}
	if err := a.dbManager.ClearCurrentVersion(projectID); err != nil {
		log.Printf("[App] failed to clear version pointer for %s: %v", projectID, err)
	}
	return nil
}

// ListVersions returns a project's version history, newest first
func (a *App) ListVersions(projectID string) ([]version.Version, error) {
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()
	return a.versionClient.List(ctx, projectID)
}

// GetVersion fetches one version with its full snapshot
func (a *App) GetVersion(versionID string) (*version.Version, error) {
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()
	return a.versionClient.Get(ctx, versionID)
}

// RevertToVersion replaces the session files with a historical snapshot.
// History is untouched; the change only becomes a new version if a later
// save persists it.
func (a *App) RevertToVersion(versionID string) (*version.Version, error) {
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()

	v, err := a.versionClient.Revert(ctx, versionID, a.session, a.dbManager)
	if err != nil {
		return v, err
	}

	a.eventHub.EmitVersionReverted(v.ProjectID, v.ID)
	a.refreshPreview()
	return v, nil
}

// GetCurrentVersion returns the pointed-at version id for a project, or ""
// when the project is at its latest version
func (a *App) GetCurrentVersion(projectID string) (string, error) {
	return a.dbManager.GetCurrentVersion(projectID)
}

// RenderPreview normalizes the session snapshot into a runnable tree,
// mirrors it to the preview directory and returns it
func (a *App) RenderPreview() (snapshot.FileSnapshot, error) {
	normalized := snapshot.Normalize(a.session.Files())
	if err := a.materializer.Write(normalized); err != nil {
		return nil, err
	}
	a.ensurePreviewWatcher()
	return normalized, nil
}

// refreshPreview rewrites the preview tree after the snapshot changed
func (a *App) refreshPreview() {
	files := a.session.Files()
	if len(files) == 0 {
		return
	}
	if _, err := a.RenderPreview(); err != nil {
		log.Printf("[App] preview refresh failed: %v", err)
	}
}

// ensurePreviewWatcher starts the external-edit watcher once
func (a *App) ensurePreviewWatcher() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.previewWatcher != nil {
		return
	}

	debounce := time.Duration(a.config.Settings.DebounceMillis) * time.Millisecond
	w, err := preview.NewWatcher(a.materializer.Dir(), debounce, func(paths []string) {
		a.eventHub.EmitPreviewChanged(eventhub.PreviewChangedEvent{
			ProjectID: a.session.ProjectID(),
			Paths:     paths,
		})
	})
	if err != nil {
		log.Printf("[App] preview watcher unavailable: %v", err)
		return
	}
	if err := w.Start(); err != nil {
		log.Printf("[App] preview watcher failed to start: %v", err)
		w.Close()
		return
	}
	a.previewWatcher = w
}

// UploadAssetParams are the arguments for UploadAsset
type UploadAssetParams struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64, with or without a data-URL prefix
}

// UploadAsset uploads an asset and returns its public URL
func (a *App) UploadAsset(params UploadAssetParams) (string, error) {
	data := decodeDataURL(params.Data)
	if len(data) == 0 {
		return "", fmt.Errorf("empty or undecodable asset data")
	}

	ctx, cancel := context.WithTimeout(a.ctx, 60*time.Second)
	defer cancel()

	url, err := a.assetUploader.Upload(ctx, params.Name, params.MimeType, data)
	if err != nil {
		return "", err
	}
	a.eventHub.EmitAssetUploaded(params.Name, url)
	return url, nil
}

// ExportParams are the arguments for ExportToGitHub
type ExportParams struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Token       string `json:"token,omitempty"`
	Private     bool   `json:"private,omitempty"`
}

// ExportToGitHub pushes the session's normalized snapshot to a new GitHub
// repository
func (a *App) ExportToGitHub(params ExportParams) (*export.Result, error) {
	token := params.Token
	if token == "" {
		token = a.config.Settings.GitHubToken
	}

	files := snapshot.Normalize(a.session.Files())

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Minute)
	defer cancel()

	result, err := a.exporter.Export(ctx, export.Request{
		ProjectID:   params.ProjectID,
		ProjectName: params.ProjectName,
		Token:       token,
		Files:       files,
		Private:     params.Private,
	})
	if err != nil {
		return nil, err
	}

	a.eventHub.EmitExportComplete(params.ProjectID, result.RepoURL)
	return result, nil
}

// GetPreference reads a UI preference from the local store, "" when unset
func (a *App) GetPreference(key string) (string, error) {
	value, err := a.dbManager.GetSetting(key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetPreference stores a UI preference in the local store
func (a *App) SetPreference(key, value string) error {
	return a.dbManager.SaveSetting(key, value)
}

// ListHistory returns the local archive entries for a project
func (a *App) ListHistory(projectID string) ([]history.Entry, error) {
	return a.archive.List(projectID)
}

// RestoreFromHistory loads an archived snapshot back into the session
func (a *App) RestoreFromHistory(projectID, entryID string) error {
	_, files, err := a.archive.Load(projectID, entryID)
	if err != nil {
		return err
	}
	if err := a.session.RestoreSnapshot(files); err != nil {
		return err
	}
	a.refreshPreview()
	return nil
}
