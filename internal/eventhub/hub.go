package eventhub

import (
	"context"
)

// Broadcaster pushes events to connected clients
type Broadcaster interface {
	BroadcastEvent(eventType string, payload interface{})
}

// EventHub is the central event dispatcher for the daemon
type EventHub struct {
	ctx         context.Context
	broadcaster Broadcaster
}

// New creates an EventHub
func New(ctx context.Context) *EventHub {
	return &EventHub{ctx: ctx}
}

// SetBroadcaster sets the WebSocket broadcaster
func (h *EventHub) SetBroadcaster(b Broadcaster) {
	h.broadcaster = b
}

func (h *EventHub) emit(eventName string, payload interface{}) {
	if h.broadcaster != nil {
		h.broadcaster.BroadcastEvent(eventName, payload)
	}
}

// Emit is the generic event send method, used as the session emitter
func (h *EventHub) Emit(eventName string, payload interface{}) {
	h.emit(eventName, payload)
}

// Generation failure outside the event stream (transport errors). Failures
// reported by the backend itself flow through Emit from the dispatcher with
// the same payload shape.
func (h *EventHub) EmitSessionError(message string) {
	h.emit("session:error", map[string]interface{}{
		"message": message,
	})
}

// Version history events
func (h *EventHub) EmitVersionReverted(projectID, versionID string) {
	h.emit("version:reverted", map[string]interface{}{
		"project_id": projectID,
		"version_id": versionID,
	})
}

// Preview tree events
type PreviewChangedEvent struct {
	ProjectID string   `json:"project_id"`
	Paths     []string `json:"paths"`
}

func (h *EventHub) EmitPreviewChanged(event PreviewChangedEvent) {
	h.emit("preview:changed", event)
}

// Asset upload completion
func (h *EventHub) EmitAssetUploaded(name, url string) {
	h.emit("asset:uploaded", map[string]interface{}{
		"name": name,
		"url":  url,
	})
}

// Export progress
func (h *EventHub) EmitExportComplete(projectID, repoURL string) {
	h.emit("export:complete", map[string]interface{}{
		"project_id": projectID,
		"repo_url":   repoURL,
	})
}
