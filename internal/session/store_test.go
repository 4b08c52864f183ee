package session

import (
	"sync"
	"testing"
	"time"

	"github.com/lmoretti/stride/internal/workflow"
)

func testDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name:        "development",
		Description: "test workflow",
		Inputs: map[string]InputSpecAlias{
			"task_description":      {Type: "string", Required: true},
			"require_plan_approval": {Type: "boolean"},
		},
		Workflow: workflow.Tree{
			Goal: "test",
			Root: "analyze",
			Tree: map[string]*workflow.Node{
				"analyze":  {Goal: "look", NextAllowedNodes: []string{"validate"}},
				"validate": {Goal: "check"},
			},
		},
	}
}

// InputSpecAlias keeps the test table readable.
type InputSpecAlias = workflow.InputSpec

func TestCreate(t *testing.T) {
	st := NewStore()
	s := st.Create("client-1", "fix the parser", testDefinition(), "development.yaml")

	if s.SessionID == "" {
		t.Fatal("session ID not generated")
	}
	if s.CurrentNode != "analyze" {
		t.Errorf("CurrentNode = %q, want root", s.CurrentNode)
	}
	if s.Status != StatusReady {
		t.Errorf("Status = %q, want READY", s.Status)
	}
	if s.Inputs["task_description"] != "fix the parser" {
		t.Errorf("task_description = %v", s.Inputs["task_description"])
	}
	if s.Inputs["require_plan_approval"] != false {
		t.Errorf("boolean input default = %v, want false", s.Inputs["require_plan_approval"])
	}
	if len(s.NodeHistory) != 1 || s.NodeHistory[0] != "analyze" {
		t.Errorf("NodeHistory = %v", s.NodeHistory)
	}
	if len(s.Log) == 0 {
		t.Error("creation should be logged")
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	st := NewStore()
	created := st.Create("client-1", "task", testDefinition(), "development.yaml")

	snap := st.Get(created.SessionID)
	if snap == nil {
		t.Fatal("Get returned nil for live session")
	}

	// Mutating the snapshot must not leak into the store.
	snap.Status = "MANGLED"
	snap.Inputs["task_description"] = "mangled"
	snap.NodeHistory = append(snap.NodeHistory, "ghost")

	again := st.Get(created.SessionID)
	if again.Status != StatusReady {
		t.Errorf("snapshot mutation leaked status %q", again.Status)
	}
	if again.Inputs["task_description"] != "task" {
		t.Errorf("snapshot mutation leaked inputs")
	}
	if len(again.NodeHistory) != 1 {
		t.Errorf("snapshot mutation leaked history %v", again.NodeHistory)
	}
}

func TestGetMissing(t *testing.T) {
	st := NewStore()
	if st.Get("nope") != nil {
		t.Error("Get on missing session should return nil")
	}
}

func TestUpdate(t *testing.T) {
	st := NewStore()
	s := st.Create("client-1", "task", testDefinition(), "development.yaml")
	before := st.Get(s.SessionID).LastUpdated

	ok := st.Update(s.SessionID, func(live *Session) {
		live.Status = StatusRunning
		live.AddLog("moving on")
	})
	if !ok {
		t.Fatal("Update returned false for live session")
	}

	got := st.Get(s.SessionID)
	if got.Status != StatusRunning {
		t.Errorf("Status = %q", got.Status)
	}
	if got.LastUpdated.Before(before) {
		t.Error("LastUpdated not bumped")
	}

	if st.Update("missing", func(*Session) {}) {
		t.Error("Update on missing session should return false")
	}
}

func TestGetByClientAndDelete(t *testing.T) {
	st := NewStore()
	def := testDefinition()

	// Two sessions created for the same client both appear.
	first := st.Create("client-1", "task one", def, "development.yaml")
	second := st.Create("client-1", "task two", def, "development.yaml")
	st.Create("client-2", "other", def, "development.yaml")

	got := st.GetByClient("client-1")
	if len(got) != 2 {
		t.Fatalf("GetByClient = %d sessions, want 2", len(got))
	}

	// Deleting one leaves exactly the other.
	if !st.Delete(first.SessionID) {
		t.Fatal("Delete returned false")
	}
	got = st.GetByClient("client-1")
	if len(got) != 1 || got[0].SessionID != second.SessionID {
		t.Fatalf("after delete, GetByClient = %v", got)
	}

	if st.Delete(first.SessionID) {
		t.Error("second delete should return false")
	}
}

func TestGetAllIsSnapshot(t *testing.T) {
	st := NewStore()
	s := st.Create("client-1", "task", testDefinition(), "development.yaml")

	all := st.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll = %d sessions", len(all))
	}
	delete(all, s.SessionID)

	if st.Get(s.SessionID) == nil {
		t.Error("mutating the GetAll snapshot affected the store")
	}
}

func TestStats(t *testing.T) {
	st := NewStore()
	def := testDefinition()
	a := st.Create("client-1", "t1", def, "development.yaml")
	st.Create("client-1", "t2", def, "development.yaml")
	st.Create("client-2", "t3", def, "development.yaml")

	st.Update(a.SessionID, func(s *Session) { s.Status = StatusCompleted })

	stats := st.Stats()
	if stats.Total != 3 {
		t.Errorf("Total = %d", stats.Total)
	}
	if stats.ByStatus[StatusReady] != 2 || stats.ByStatus[StatusCompleted] != 1 {
		t.Errorf("ByStatus = %v", stats.ByStatus)
	}
	if stats.Clients != 2 {
		t.Errorf("Clients = %d", stats.Clients)
	}
}

func TestCleanup(t *testing.T) {
	st := NewStore()
	def := testDefinition()

	oldDone := st.Create("client-1", "old done", def, "development.yaml")
	freshDone := st.Create("client-1", "fresh done", def, "development.yaml")
	oldActive := st.Create("client-1", "old active", def, "development.yaml")

	base := time.Now().UTC()
	fixedNow(t, base)

	st.Update(oldDone.SessionID, func(s *Session) { s.Status = StatusCompleted })
	st.Update(freshDone.SessionID, func(s *Session) { s.Status = StatusCompleted })
	st.Update(oldActive.SessionID, func(s *Session) { s.Status = StatusRunning })

	// Age two of them past the retention window.
	fixedNow(t, base.Add(-48*time.Hour))
	st.Update(oldDone.SessionID, func(s *Session) {})
	st.Update(oldActive.SessionID, func(s *Session) {})
	fixedNow(t, base.Add(-time.Hour))
	st.Update(freshDone.SessionID, func(s *Session) {})
	fixedNow(t, base)

	removed := st.Cleanup(24 * time.Hour)
	if removed != 1 {
		t.Fatalf("Cleanup removed %d, want 1", removed)
	}
	if st.Get(oldDone.SessionID) != nil {
		t.Error("stale terminal session should be removed")
	}
	if st.Get(freshDone.SessionID) == nil {
		t.Error("terminal session updated 1 hour ago must be retained")
	}
	if st.Get(oldActive.SessionID) == nil {
		t.Error("non-terminal session must be retained regardless of age")
	}

	// The client index must agree with the session map.
	if got := st.GetByClient("client-1"); len(got) != 2 {
		t.Errorf("index has %d sessions after cleanup, want 2", len(got))
	}
}

// fixedNow pins the package clock for the rest of the test.
func fixedNow(t *testing.T, at time.Time) {
	t.Helper()
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = time.Now })
}

func TestConcurrentAccess(t *testing.T) {
	st := NewStore()
	def := testDefinition()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := st.Create("client-1", "task", def, "development.yaml")
			st.Update(s.SessionID, func(live *Session) { live.Status = StatusRunning })
			_ = st.Get(s.SessionID)
			_ = st.GetByClient("client-1")
			_ = st.GetAll()
			_ = st.Stats()
			st.Delete(s.SessionID)
		}()
	}
	wg.Wait()

	if stats := st.Stats(); stats.Total != 0 {
		t.Errorf("expected empty store after concurrent churn, got %d", stats.Total)
	}
}

func TestRecordOutputsAppendOnly(t *testing.T) {
	s := &Session{}
	s.RecordOutputs("analyze", map[string]any{"summary": "v1"})
	s.RecordOutputs("analyze", map[string]any{"files": "a.go"})

	got := s.NodeOutputs["analyze"]
	if got["summary"] != "v1" || got["files"] != "a.go" {
		t.Errorf("outputs = %v, want merged captures", got)
	}
}
