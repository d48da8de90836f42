// internal/session/dispatcher_test.go
package session

import (
	"sync"
	"testing"

	"devopus/internal/snapshot"
	"devopus/internal/stream"
)

type recordingSaver struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (r *recordingSaver) PersistSnapshot(projectID string, files snapshot.FileSnapshot) {
	r.mu.Lock()
	r.calls = append(r.calls, projectID)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
}

func (r *recordingSaver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func dispatchRun(t *testing.T, d *Dispatcher, events []stream.Event) {
	t.Helper()
	for _, ev := range events {
		d.Dispatch(ev)
	}
}

func TestDispatcherHappyPath(t *testing.T) {
	s := New()
	d := NewDispatcher(s, nil, nil)

	if err := s.Begin(RunGenerate); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	codingFiles := snapshot.FileSnapshot{"/App.tsx": "v1"}
	finalFiles := snapshot.FileSnapshot{"/App.tsx": "v2", "/types.ts": "export {}"}

	dispatchRun(t, d, []stream.Event{
		{Stage: "planning"},
		{Stage: "plan_complete", Plan: "X"},
		{Stage: "architecting"},
		{Stage: "architect_complete", Architect: "arch", Diagram: "graph TD; A-->B;"},
		{Stage: "coding"},
		{Stage: "coding_complete", Files: codingFiles},
		{Stage: "reviewing"},
		{Stage: "complete", Files: finalFiles, Review: "Y"},
	})

	v := s.View()
	if v.Stage != StageComplete {
		t.Errorf("expected complete, got %s", v.Stage)
	}
	if v.Plan != "X" || v.Review != "Y" {
		t.Errorf("artifacts lost: plan=%q review=%q", v.Plan, v.Review)
	}
	if v.Architecture != "arch" || v.Diagram == "" {
		t.Errorf("architect artifacts lost: %q %q", v.Architecture, v.Diagram)
	}
	if v.Files["/App.tsx"] != "v2" {
		t.Errorf("final files must overwrite coding_complete files, got %q", v.Files["/App.tsx"])
	}
}

func TestDispatcherAcrossSplitChunks(t *testing.T) {
	// The same run, delivered through the frame decoder in three arbitrary
	// chunks, must produce the identical final session.
	raw := `data: {"stage": "planning"}` + "\n" +
		`data: {"stage": "plan_complete", "plan": "X"}` + "\n" +
		`data: {"stage": "architecting"}` + "\n" +
		`data: {"stage": "coding"}` + "\n" +
		`data: {"stage": "coding_complete", "files": {"/App.tsx": "v1"}}` + "\n" +
		`data: {"stage": "reviewing"}` + "\n" +
		`data: {"stage": "complete", "files": {"/App.tsx": "v2"}, "review": "Y"}` + "\n"

	s := New()
	d := NewDispatcher(s, nil, nil)
	if err := s.Begin(RunGenerate); err != nil {
		t.Fatal(err)
	}

	decoder := stream.NewFrameDecoder()
	for _, chunk := range []string{raw[:17], raw[17:201], raw[201:]} {
		for _, record := range decoder.Feed([]byte(chunk)) {
			ev, err := stream.ParseEvent(record)
			if err != nil {
				t.Fatalf("unexpected parse error: %v", err)
			}
			d.Dispatch(ev)
		}
	}

	v := s.View()
	if v.Stage != StageComplete || v.Plan != "X" || v.Review != "Y" {
		t.Errorf("unexpected final session: %+v", v)
	}
	if v.Files["/App.tsx"] != "v2" {
		t.Errorf("files not overwritten by complete: %v", v.Files)
	}
}

func TestDispatcherOutOfOrder(t *testing.T) {
	s := New()
	d := NewDispatcher(s, nil, nil)
	s.Begin(RunGenerate)
	d.Dispatch(stream.Event{Stage: "planning"})

	t.Run("SkippedStageDropped", func(t *testing.T) {
		ok := d.Dispatch(stream.Event{Stage: "coding_complete", Files: snapshot.FileSnapshot{"/x.ts": "y"}})
		if ok {
			t.Error("coding_complete in planning must be rejected")
		}
		if s.Stage() != StagePlanning {
			t.Errorf("stage must not move on rejected event, got %s", s.Stage())
		}
		if len(s.Files()) != 0 {
			t.Error("rejected event must not touch files")
		}
	})

	t.Run("DuplicateTransitionDropped", func(t *testing.T) {
		if d.Dispatch(stream.Event{Stage: "planning"}) {
			t.Error("second planning event must be rejected")
		}
	})

	t.Run("UnknownDiscriminantDropped", func(t *testing.T) {
		if d.Dispatch(stream.Event{Stage: "deploying"}) {
			t.Error("unknown discriminant must be rejected")
		}
		if s.Stage() != StagePlanning {
			t.Errorf("stage moved on unknown event: %s", s.Stage())
		}
	})
}

func TestDispatcherCompleteWithoutFiles(t *testing.T) {
	s := New()
	d := NewDispatcher(s, nil, nil)
	s.Begin(RunGenerate)

	existing := snapshot.FileSnapshot{"/App.tsx": "keep me"}
	dispatchRun(t, d, []stream.Event{
		{Stage: "planning"},
		{Stage: "architecting"},
		{Stage: "coding"},
		{Stage: "coding_complete", Files: existing},
		{Stage: "reviewing"},
		{Stage: "complete"},
	})

	if s.Stage() != StageComplete {
		t.Fatalf("expected complete, got %s", s.Stage())
	}
	if got := s.Files()["/App.tsx"]; got != "keep me" {
		t.Errorf("complete without files must not clear snapshot, got %q", got)
	}

	t.Run("EmptyFilesMapAlsoIgnored", func(t *testing.T) {
		s.Begin(RunFollowUp)
		d.Dispatch(stream.Event{Stage: "modifying"})
		d.Dispatch(stream.Event{Stage: "complete", Files: snapshot.FileSnapshot{}})
		if got := s.Files()["/App.tsx"]; got != "keep me" {
			t.Errorf("empty files payload must not clear snapshot, got %q", got)
		}
	})
}

func TestDispatcherErrorEvent(t *testing.T) {
	t.Run("TopLevelRunFallsToIdle", func(t *testing.T) {
		s := New()
		d := NewDispatcher(s, nil, nil)
		s.Begin(RunGenerate)
		dispatchRun(t, d, []stream.Event{
			{Stage: "planning"},
			{Stage: "plan_complete", Plan: "X"},
			{Stage: "error", Message: "planner blew up"},
		})

		v := s.View()
		if v.Stage != StageIdle {
			t.Errorf("top-level error must land in idle, got %s", v.Stage)
		}
		if v.Error != "planner blew up" {
			t.Errorf("error message lost: %q", v.Error)
		}
		if v.Plan != "X" {
			t.Error("error must not clear already-set artifacts")
		}
	})

	t.Run("FollowUpFallsToComplete", func(t *testing.T) {
		s := New()
		d := NewDispatcher(s, nil, nil)
		s.Begin(RunGenerate)
		dispatchRun(t, d, []stream.Event{
			{Stage: "planning"}, {Stage: "architecting"}, {Stage: "coding"},
			{Stage: "coding_complete", Files: snapshot.FileSnapshot{"/App.tsx": "v1"}},
			{Stage: "reviewing"}, {Stage: "complete"},
		})
		s.FinishRun()

		s.Begin(RunFollowUp)
		d.Dispatch(stream.Event{Stage: "modifying"})
		d.Dispatch(stream.Event{Stage: "error", Message: "coder failed"})

		v := s.View()
		if v.Stage != StageComplete {
			t.Errorf("follow-up error must land in complete, got %s", v.Stage)
		}
		if v.Files["/App.tsx"] != "v1" {
			t.Error("follow-up error must keep the previous snapshot")
		}
	})
}

func TestDispatcherSaved(t *testing.T) {
	saver := &recordingSaver{done: make(chan struct{}, 4)}
	s := New()
	d := NewDispatcher(s, nil, saver)
	s.Begin(RunGenerate)
	dispatchRun(t, d, []stream.Event{
		{Stage: "planning"}, {Stage: "architecting"}, {Stage: "coding"},
		{Stage: "reviewing"},
		{Stage: "complete", Files: snapshot.FileSnapshot{"/App.tsx": "v1"}},
	})

	if !d.Dispatch(stream.Event{Stage: "saved", ProjectID: "proj-1"}) {
		t.Fatal("first saved event must be accepted")
	}
	if s.ProjectID() != "proj-1" {
		t.Errorf("session not associated with project: %q", s.ProjectID())
	}

	<-saver.done
	if got := saver.callCount(); got != 1 {
		t.Errorf("expected one persistence call, got %d", got)
	}

	t.Run("ForeignProjectDropped", func(t *testing.T) {
		if d.Dispatch(stream.Event{Stage: "saved", ProjectID: "proj-2"}) {
			t.Error("saved for another project must be rejected")
		}
		if s.ProjectID() != "proj-1" {
			t.Errorf("project association overwritten: %q", s.ProjectID())
		}
	})

	t.Run("FollowUpSavePersistsAgain", func(t *testing.T) {
		s.FinishRun()
		if err := s.Begin(RunFollowUp); err != nil {
			t.Fatalf("Begin follow-up failed: %v", err)
		}
		dispatchRun(t, d, []stream.Event{
			{Stage: "modifying"},
			{Stage: "complete", Files: snapshot.FileSnapshot{"/App.tsx": "v2"}},
		})

		if !d.Dispatch(stream.Event{Stage: "saved", ProjectID: "proj-1"}) {
			t.Fatal("saved after a follow-up must be accepted")
		}
		<-saver.done
		if got := saver.callCount(); got != 2 {
			t.Errorf("follow-up version not mirrored, persistence calls = %d", got)
		}
	})

	t.Run("SavedOutsideCompleteDropped", func(t *testing.T) {
		s.FinishRun()
		s.Begin(RunGenerate)
		d.Dispatch(stream.Event{Stage: "planning"})
		if d.Dispatch(stream.Event{Stage: "saved", ProjectID: "proj-1"}) {
			t.Error("saved mid-run must be rejected")
		}
		if got := saver.callCount(); got != 2 {
			t.Errorf("persistence fired mid-run, calls = %d", got)
		}
	})
}

func TestConcurrencyGuard(t *testing.T) {
	s := New()
	d := NewDispatcher(s, nil, nil)

	if err := s.Begin(RunGenerate); err != nil {
		t.Fatalf("first Begin failed: %v", err)
	}
	d.Dispatch(stream.Event{Stage: "planning"})

	t.Run("RejectsWhileInFlight", func(t *testing.T) {
		if err := s.Begin(RunGenerate); err != ErrRunInFlight {
			t.Errorf("expected ErrRunInFlight, got %v", err)
		}
		if err := s.Begin(RunFollowUp); err == nil {
			t.Error("follow-up must also be rejected mid-run")
		}
	})

	t.Run("AdmitsAfterComplete", func(t *testing.T) {
		dispatchRun(t, d, []stream.Event{
			{Stage: "architecting"}, {Stage: "coding"}, {Stage: "reviewing"},
			{Stage: "complete", Files: snapshot.FileSnapshot{"/App.tsx": "v1"}},
		})
		s.FinishRun()
		if err := s.Begin(RunFollowUp); err != nil {
			t.Errorf("Begin after complete failed: %v", err)
		}
	})

	t.Run("FollowUpNeedsSnapshot", func(t *testing.T) {
		fresh := New()
		if err := fresh.Begin(RunFollowUp); err == nil {
			t.Error("follow-up from idle must be rejected")
		}
	})
}

func TestBeginGenerateResetsArtifacts(t *testing.T) {
	s := New()
	d := NewDispatcher(s, nil, nil)
	s.Begin(RunGenerate)
	dispatchRun(t, d, []stream.Event{
		{Stage: "planning"}, {Stage: "plan_complete", Plan: "old plan"},
		{Stage: "architecting"}, {Stage: "coding"},
		{Stage: "coding_complete", Files: snapshot.FileSnapshot{"/App.tsx": "old"}},
		{Stage: "reviewing"}, {Stage: "complete"},
	})
	s.FinishRun()

	if err := s.Begin(RunGenerate); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	v := s.View()
	if v.Plan != "" {
		t.Error("fresh top-level run must discard prior artifacts")
	}
	if v.Stage != StageIdle {
		t.Errorf("fresh run must start from idle, got %s", v.Stage)
	}
}

func TestRestoreSnapshotPreservesArtifacts(t *testing.T) {
	s := New()
	d := NewDispatcher(s, nil, nil)
	s.Begin(RunGenerate)
	dispatchRun(t, d, []stream.Event{
		{Stage: "planning"}, {Stage: "plan_complete", Plan: "P"},
		{Stage: "architecting"}, {Stage: "architect_complete", Architect: "A", Diagram: "D"},
		{Stage: "coding"},
		{Stage: "coding_complete", Files: snapshot.FileSnapshot{"/App.tsx": "new"}},
		{Stage: "reviewing"},
		{Stage: "complete", Review: "R"},
	})
	s.FinishRun()

	if err := s.RestoreSnapshot(snapshot.FileSnapshot{"/App.tsx": "old version"}); err != nil {
		t.Fatalf("RestoreSnapshot failed: %v", err)
	}

	v := s.View()
	if v.Files["/App.tsx"] != "old version" {
		t.Errorf("snapshot not restored: %v", v.Files)
	}
	if v.Plan != "P" || v.Architecture != "A" || v.Diagram != "D" || v.Review != "R" {
		t.Error("restore must only replace code, not planning artifacts")
	}
	if v.Stage != StageComplete {
		t.Errorf("restore must leave the session complete, got %s", v.Stage)
	}
}

func TestRestoreSnapshotRejectedMidRun(t *testing.T) {
	s := New()
	d := NewDispatcher(s, nil, nil)
	s.Begin(RunGenerate)
	dispatchRun(t, d, []stream.Event{
		{Stage: "planning"}, {Stage: "architecting"}, {Stage: "coding"},
		{Stage: "coding_complete", Files: snapshot.FileSnapshot{"/App.tsx": "in-flight"}},
	})

	if err := s.RestoreSnapshot(snapshot.FileSnapshot{"/App.tsx": "old version"}); err != ErrRunInFlight {
		t.Fatalf("mid-run restore must be rejected, got %v", err)
	}
	if s.Stage() != StageCoding {
		t.Errorf("rejected restore must not move the stage, got %s", s.Stage())
	}
	if got := s.Files()["/App.tsx"]; got != "in-flight" {
		t.Errorf("rejected restore must not touch files, got %q", got)
	}

	// The open stream finishes undisturbed
	dispatchRun(t, d, []stream.Event{
		{Stage: "reviewing"},
		{Stage: "complete", Files: snapshot.FileSnapshot{"/App.tsx": "final"}, Review: "Y"},
	})
	v := s.View()
	if v.Stage != StageComplete || v.Files["/App.tsx"] != "final" || v.Review != "Y" {
		t.Errorf("run result lost after rejected restore: %+v", v)
	}
}
