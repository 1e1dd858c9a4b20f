package denial

import (
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/rcm/rcm/internal/platform/insight"
)

// Stage is how far an operator has taken one denial in the current session.
type Stage int

const (
	StageDenied Stage = iota
	StageAnalyzing
	StageAnalyzed
	StageAppealDrafted
)

var stageNames = [...]string{"denied", "analyzing", "analyzed", "appeal_drafted"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// WorkspaceEntry is the session state of one denial.
type WorkspaceEntry struct {
	DenialID   string            `json:"denialId"`
	Stage      Stage             `json:"stage"`
	Analysis   *insight.Analysis `json:"analysis,omitempty"`
	WorkflowID string            `json:"workflowId,omitempty"`
	Letter     string            `json:"appealLetter,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// sessionTTL is how long an operator's session survives without a write.
const sessionTTL = 8 * time.Hour

// Workspace holds per-operator session state in memory. Stages only move
// forward. Nothing here is persisted; a restart, or sessionTTL without a
// write, returns every denial of that operator to StageDenied.
type Workspace struct {
	mu       sync.Mutex
	sessions *gocache.Cache
	now      func() time.Time
}

func NewWorkspace() *Workspace {
	return newWorkspace(sessionTTL)
}

func newWorkspace(ttl time.Duration) *Workspace {
	return &Workspace{
		sessions: gocache.New(ttl, 2*ttl),
		now:      time.Now,
	}
}

func (w *Workspace) session(operator string) map[string]*WorkspaceEntry {
	if v, ok := w.sessions.Get(operator); ok {
		return v.(map[string]*WorkspaceEntry)
	}
	return nil
}

// entry returns the operator's entry for denialID, creating it if needed,
// and pushes the session's expiry out.
func (w *Workspace) entry(operator, denialID string) *WorkspaceEntry {
	s := w.session(operator)
	if s == nil {
		s = make(map[string]*WorkspaceEntry)
	}
	w.sessions.SetDefault(operator, s)
	e, ok := s[denialID]
	if !ok {
		e = &WorkspaceEntry{DenialID: denialID, Stage: StageDenied}
		s[denialID] = e
	}
	return e
}

// Stage reports the current stage of a denial for an operator.
func (w *Workspace) Stage(operator, denialID string) Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.session(operator)[denialID]; ok {
		return e.Stage
	}
	return StageDenied
}

// BeginAnalysis marks a denial as analyzing unless it is already further
// along. Re-running analysis is always allowed.
func (w *Workspace) BeginAnalysis(operator, denialID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.entry(operator, denialID)
	if e.Stage < StageAnalyzing {
		e.Stage = StageAnalyzing
	}
	e.UpdatedAt = w.now()
}

// RecordAnalysis overwrites the session analysis. A nil analysis records
// that none is available.
func (w *Workspace) RecordAnalysis(operator, denialID string, a *insight.Analysis) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.entry(operator, denialID)
	e.Analysis = a
	if e.Stage < StageAnalyzed {
		e.Stage = StageAnalyzed
	}
	e.UpdatedAt = w.now()
}

// RecordAppeal stores the drafted letter and moves to StageAppealDrafted
// from any stage. A draft straight from StageDenied is allowed: the caller
// supplies the analysis context, and the session may have been lost to a
// restart or held by another instance.
func (w *Workspace) RecordAppeal(operator, denialID, workflowID, letter string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.entry(operator, denialID)
	e.Stage = StageAppealDrafted
	e.WorkflowID = workflowID
	e.Letter = letter
	e.UpdatedAt = w.now()
}

// Snapshot returns copies of an operator's entries, most recently touched
// first.
func (w *Workspace) Snapshot(operator string) []WorkspaceEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.session(operator)
	out := make([]WorkspaceEntry, 0, len(s))
	for _, e := range s {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].DenialID < out[j].DenialID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}
