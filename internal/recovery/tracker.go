package recovery

import "sync"

// TenantState is the process-local recovery state of one tenant.
type TenantState string

const (
	// TenantUnknown means no recovery decision has been made yet, or a
	// previous attempt failed and is eligible to run again.
	TenantUnknown TenantState = "unknown"
	// TenantInProgress means a recovery pass is running right now.
	TenantInProgress TenantState = "in_progress"
	// TenantCompleted means recovery ran to success, or there was nothing
	// to recover; no further checks for this process lifetime.
	TenantCompleted TenantState = "completed"
)

// Tracker holds per-tenant recovery coordination state. It is process-local
// scratch state: never persisted, never authoritative across replicas. Its
// only job is to keep at most one recovery pass per tenant running within
// one process.
type Tracker struct {
	mu         sync.Mutex
	inProgress map[string]struct{}
	completed  map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		inProgress: make(map[string]struct{}),
		completed:  make(map[string]struct{}),
	}
}

// State returns the tenant's current state.
func (t *Tracker) State(profileID string) TenantState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.completed[profileID]; ok {
		return TenantCompleted
	}
	if _, ok := t.inProgress[profileID]; ok {
		return TenantInProgress
	}
	return TenantUnknown
}

// Begin transitions unknown -> in_progress. Returns false when the tenant
// is already in progress or completed, so exactly one caller wins.
func (t *Tracker) Begin(profileID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.completed[profileID]; ok {
		return false
	}
	if _, ok := t.inProgress[profileID]; ok {
		return false
	}
	t.inProgress[profileID] = struct{}{}
	return true
}

// Complete marks the tenant done for this process lifetime.
func (t *Tracker) Complete(profileID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inProgress, profileID)
	t.completed[profileID] = struct{}{}
}

// Reset returns the tenant to unknown so a later request can retry.
func (t *Tracker) Reset(profileID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inProgress, profileID)
	delete(t.completed, profileID)
}
