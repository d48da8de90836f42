// internal/session/dispatcher.go
package session

import (
	"log"

	"devopus/internal/snapshot"
	"devopus/internal/stream"
)

// Emitter receives session change notifications for the UI. Matches the
// event hub's Emit signature.
type Emitter interface {
	Emit(eventName string, payload interface{})
}

// Saver persists a completed snapshot when the backend confirms a save. The
// call is best-effort and must never block or fail the stream.
type Saver interface {
	PersistSnapshot(projectID string, files snapshot.FileSnapshot)
}

// Dispatcher interprets decoded stream events against a session, enforcing
// the legal stage graph. Out-of-order, duplicate and unknown events are
// dropped with a warning; they never panic and never touch accumulated
// artifacts.
type Dispatcher struct {
	session *Session
	emitter Emitter
	saver   Saver
}

// NewDispatcher wires a dispatcher to its session. emitter and saver may be
// nil.
func NewDispatcher(s *Session, emitter Emitter, saver Saver) *Dispatcher {
	return &Dispatcher{session: s, emitter: emitter, saver: saver}
}

// stageTransitions lists, per discriminant, the stages it may legally arrive
// in and the stage it moves the session to (empty RunKind-independent moves
// keep the stage). The error and saved discriminants are handled out of
// table because their effects depend on run state.
var stageTransitions = map[string]struct {
	from []Stage
	to   Stage
}{
	"planning":           {from: []Stage{StageIdle}, to: StagePlanning},
	"plan_complete":      {from: []Stage{StagePlanning}, to: StagePlanning},
	"architecting":       {from: []Stage{StagePlanning}, to: StageArchitecting},
	"architect_complete": {from: []Stage{StageArchitecting}, to: StageArchitecting},
	"coding":             {from: []Stage{StageArchitecting}, to: StageCoding},
	"coding_complete":    {from: []Stage{StageCoding}, to: StageCoding},
	"reviewing":          {from: []Stage{StageCoding}, to: StageReviewing},
	"complete":           {from: []Stage{StageReviewing, StageModifying}, to: StageComplete},
	"modifying":          {from: []Stage{StageComplete}, to: StageModifying},
}

// Dispatch applies one event. It reports whether the event was accepted.
func (d *Dispatcher) Dispatch(ev stream.Event) bool {
	s := d.session
	s.mu.Lock()

	switch ev.Stage {
	case "error":
		s.failLocked(ev.Message)
		s.mu.Unlock()
		d.emit("session:error", map[string]interface{}{"message": ev.Message})
		return true

	case "save_error":
		// Persistence failed backend-side; non-fatal, state untouched.
		s.mu.Unlock()
		log.Printf("[Session] backend save failed (non-fatal): %s", ev.Message)
		return true

	case "saved":
		// The backend confirms every save, including follow-up versions; each
		// confirmation mirrors the snapshot locally. Only a save for a
		// different project is a stray.
		if s.stage != StageComplete {
			stage := s.stage
			s.mu.Unlock()
			log.Printf("[Session] dropping saved event in stage %s", stage)
			return false
		}
		if s.projectID != "" && ev.ProjectID != s.projectID {
			project := s.projectID
			s.mu.Unlock()
			log.Printf("[Session] dropping saved event for foreign project %s (session is %s)", ev.ProjectID, project)
			return false
		}
		if s.projectID == "" {
			s.projectID = ev.ProjectID
		}
		files := s.files.Clone()
		s.mu.Unlock()

		if d.saver != nil {
			// Fire-and-forget local mirror; failure is logged by the saver
			// and never surfaces to the stage.
			go d.saver.PersistSnapshot(ev.ProjectID, files)
		}
		d.emit("session:saved", map[string]interface{}{"project_id": ev.ProjectID})
		return true
	}

	tr, known := stageTransitions[ev.Stage]
	if !known {
		from := s.stage
		s.mu.Unlock()
		log.Printf("[Session] ignoring unknown event %q in stage %s", ev.Stage, from)
		return false
	}
	if !stageIn(s.stage, tr.from) {
		from := s.stage
		s.mu.Unlock()
		log.Printf("[Session] dropping out-of-order event %q in stage %s", ev.Stage, from)
		return false
	}

	d.applyLocked(ev)
	changed := s.stage != tr.to
	s.stage = tr.to
	view := View{Stage: s.stage}
	s.mu.Unlock()

	if changed {
		d.emit("session:stage", view)
	}
	return true
}

// applyLocked copies an accepted event's payload into the session. Artifact
// fields are write-once per run; files are only ever replaced wholesale, and
// an absent or empty files payload leaves the previous snapshot untouched.
func (d *Dispatcher) applyLocked(ev stream.Event) {
	s := d.session

	switch ev.Stage {
	case "plan_complete":
		if ev.Plan != "" && s.plan == "" {
			s.plan = ev.Plan
			d.emitAsync("session:plan", ev.Plan)
		}
	case "architect_complete":
		if ev.Architect != "" && s.architecture == "" {
			s.architecture = ev.Architect
			d.emitAsync("session:architecture", ev.Architect)
		}
		if ev.Diagram != "" && s.diagram == "" {
			s.diagram = ev.Diagram
			d.emitAsync("session:diagram", ev.Diagram)
		}
	case "coding_complete":
		if len(ev.Files) > 0 {
			s.files = ev.Files.Clone()
			d.emitAsync("session:files", len(ev.Files))
		}
	case "complete":
		if len(ev.Files) > 0 {
			s.files = ev.Files.Clone()
			d.emitAsync("session:files", len(ev.Files))
		}
		if ev.Review != "" && s.review == "" {
			s.review = ev.Review
			d.emitAsync("session:review", ev.Review)
		}
		if ev.Summary != "" {
			s.summary = ev.Summary
			d.emitAsync("session:summary", ev.Summary)
		}
	}
}

func stageIn(stage Stage, set []Stage) bool {
	for _, s := range set {
		if s == stage {
			return true
		}
	}
	return false
}

func (d *Dispatcher) emit(name string, payload interface{}) {
	if d.emitter != nil {
		d.emitter.Emit(name, payload)
	}
}

// emitAsync is used while s.mu is held; emission must not re-enter the
// session, so it is deferred to a goroutine.
func (d *Dispatcher) emitAsync(name string, payload interface{}) {
	if d.emitter != nil {
		go d.emitter.Emit(name, payload)
	}
}
