// internal/session/session.go
package session

import (
	"errors"
	"sync"

	"devopus/internal/snapshot"
)

// Stage identifies the phase a generation session is in. Transitions are
// validated by the dispatcher against the legal stage graph; nothing else
// writes Stage.
type Stage string

const (
	StageIdle         Stage = "idle"
	StagePlanning     Stage = "planning"
	StageArchitecting Stage = "architecting"
	StageCoding       Stage = "coding"
	StageReviewing    Stage = "reviewing"
	StageModifying    Stage = "modifying"
	StageComplete     Stage = "complete"
)

// RunKind classifies the in-flight run; it decides where an error event
// lands the session (a failed follow-up keeps the completed snapshot, a
// failed top-level run returns to idle).
type RunKind int

const (
	RunNone RunKind = iota
	RunGenerate
	RunFollowUp
)

// ErrRunInFlight is returned when a caller tries to start a run while one is
// already active. There is no queuing and the active run is never cancelled
// by a second request.
var ErrRunInFlight = errors.New("a generation is already in flight for this session")

// Session holds the accumulated state of one generation session. It is owned
// by its creator for the lifetime of a project view and mutated only through
// the dispatcher; concurrent readers get copies via View.
type Session struct {
	mu sync.RWMutex

	stage        Stage
	plan         string
	architecture string
	diagram      string
	review       string
	summary      string
	files        snapshot.FileSnapshot
	lastError    string
	projectID    string

	runKind RunKind
}

// View is an immutable copy of the session state handed to callers.
type View struct {
	Stage        Stage                 `json:"stage"`
	Plan         string                `json:"plan,omitempty"`
	Architecture string                `json:"architecture,omitempty"`
	Diagram      string                `json:"diagram,omitempty"`
	Review       string                `json:"review,omitempty"`
	Summary      string                `json:"summary,omitempty"`
	Files        snapshot.FileSnapshot `json:"files,omitempty"`
	Error        string                `json:"error,omitempty"`
	ProjectID    string                `json:"project_id,omitempty"`
}

// New creates an idle session with no artifacts.
func New() *Session {
	return &Session{stage: StageIdle}
}

// View returns a copy of the current state.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return View{
		Stage:        s.stage,
		Plan:         s.plan,
		Architecture: s.architecture,
		Diagram:      s.diagram,
		Review:       s.review,
		Summary:      s.summary,
		Files:        s.files.Clone(),
		Error:        s.lastError,
		ProjectID:    s.projectID,
	}
}

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// Files returns a copy of the current file snapshot.
func (s *Session) Files() snapshot.FileSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files.Clone()
}

// ProjectID returns the project this session is associated with, if any.
func (s *Session) ProjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectID
}

// Begin is the concurrency guard: it admits at most one in-flight run. A new
// run may only start from idle or complete; anything else is rejected
// without queuing. Starting a fresh top-level run from complete discards the
// previous run's artifacts (the files survive until the new run's terminal
// event replaces them wholesale).
//
// The guard is client-local; two independent sessions on the same project
// are not coordinated here and the last writer to the store wins.
func (s *Session) Begin(kind RunKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageIdle && s.stage != StageComplete {
		return ErrRunInFlight
	}
	if kind == RunFollowUp && s.stage != StageComplete {
		return errors.New("no completed snapshot to follow up on")
	}

	if kind == RunGenerate {
		s.plan = ""
		s.architecture = ""
		s.diagram = ""
		s.review = ""
		s.summary = ""
		s.lastError = ""
		s.stage = StageIdle
	} else {
		s.lastError = ""
	}
	s.runKind = kind
	return nil
}

// FinishRun clears the run classification once a stream has ended.
func (s *Session) FinishRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runKind = RunNone
}

// Fail records a transport-level failure: the run aborts, already-set
// artifacts stay intact, and the stage falls back the same way a backend
// error event would move it.
func (s *Session) Fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(message)
}

func (s *Session) failLocked(message string) {
	s.lastError = message
	if s.runKind == RunFollowUp {
		s.stage = StageComplete
	} else {
		s.stage = StageIdle
	}
}

// RestoreSnapshot replaces the session's files verbatim and marks the
// session complete. Used by revert and by project resume: planning artifacts
// are deliberately left untouched so the user can keep following up. It
// honors the same admission rule as Begin; while a run is in flight only the
// dispatcher may touch files, so a mid-run restore is rejected.
func (s *Session) RestoreSnapshot(files snapshot.FileSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageIdle && s.stage != StageComplete {
		return ErrRunInFlight
	}
	s.files = files.Clone()
	s.stage = StageComplete
	return nil
}

// Hydrate preloads artifacts from a persisted project when a session is
// resumed. Only empty fields are filled; a live run's artifacts win.
func (s *Session) Hydrate(projectID, plan, architecture, diagram, review string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.projectID == "" {
		s.projectID = projectID
	}
	if s.plan == "" {
		s.plan = plan
	}
	if s.architecture == "" {
		s.architecture = architecture
	}
	if s.diagram == "" {
		s.diagram = diagram
	}
	if s.review == "" {
		s.review = review
	}
}
