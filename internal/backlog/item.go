package backlog

import (
	"fmt"
	"strings"
)

// Status is the partition an item currently occupies. Exactly one holds at
// any time.
type Status string

const (
	StatusReady     Status = "ready"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusBlocked   Status = "blocked"
)

// Valid reports whether s is one of the four known partitions.
func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusClaimed, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// Completion records who finished an item and when. Set exactly once, on the
// transition to StatusCompleted.
type Completion struct {
	WorkerID      string `json:"worker_id"`
	CompletedAtMs int64  `json:"completed_at_ms"`
	// Ref is an external reference supplied by the execution consumer
	// (a change id, build number, review link).
	Ref string `json:"ref,omitempty"`
}

// Item is a unit of schedulable work.
type Item struct {
	ID    string `json:"id"`
	Kind  string `json:"kind,omitempty"`
	Title string `json:"title,omitempty"`
	// Headers carry opaque metadata for the execution consumer.
	Headers map[string]string `json:"headers,omitempty"`

	Status   Status `json:"status"`
	Priority int32  `json:"priority"`
	// Deps are item ids that must be completed before this item may become
	// ready. Structured ids only; nothing is parsed from prose.
	Deps []string `json:"deps,omitempty"`

	// Stamp is a sortable creation identifier (pkg/id). Equal priorities are
	// broken by ascending stamp, so earlier items win deterministically.
	Stamp       string `json:"stamp"`
	CreatedAtMs int64  `json:"created_at_ms"`

	// Claim bookkeeping; populated iff Status == StatusClaimed.
	Claimant    string `json:"claimant,omitempty"`
	ClaimedAtMs int64  `json:"claimed_at_ms,omitempty"`
	HeartbeatMs int64  `json:"heartbeat_ms,omitempty"`

	// LeaseMs is how long a claim survives without a heartbeat renewal.
	LeaseMs int64 `json:"lease_ms"`

	Completion *Completion `json:"completion,omitempty"`
}

// Validate checks structural invariants that hold in every partition.
func (it *Item) Validate() error {
	if strings.TrimSpace(it.ID) == "" {
		return fmt.Errorf("item id required")
	}
	if !it.Status.Valid() {
		return fmt.Errorf("item %s: invalid status %q", it.ID, it.Status)
	}
	if (it.Claimant != "") != (it.Status == StatusClaimed) {
		return fmt.Errorf("item %s: claimant present iff status is claimed", it.ID)
	}
	if it.Status == StatusCompleted && it.Completion == nil {
		return fmt.Errorf("item %s: completed without completion record", it.ID)
	}
	for _, dep := range it.Deps {
		if dep == it.ID {
			return fmt.Errorf("item %s: depends on itself", it.ID)
		}
	}
	return nil
}

// LeaseExpired reports whether a claimed item's lease has lapsed at nowMs.
func (it *Item) LeaseExpired(nowMs int64) bool {
	if it.Status != StatusClaimed {
		return false
	}
	return nowMs-it.HeartbeatMs > it.LeaseMs
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate a
// proposed item without aliasing shared state.
func (it *Item) Clone() *Item {
	cp := *it
	if it.Headers != nil {
		cp.Headers = make(map[string]string, len(it.Headers))
		for k, v := range it.Headers {
			cp.Headers[k] = v
		}
	}
	if it.Deps != nil {
		cp.Deps = append([]string(nil), it.Deps...)
	}
	if it.Completion != nil {
		c := *it.Completion
		cp.Completion = &c
	}
	return &cp
}

// Release clears claim bookkeeping and returns the item to ready. Used by
// the reaper on lease expiry and by workers giving an item back.
func (it *Item) Release() {
	it.Status = StatusReady
	it.Claimant = ""
	it.ClaimedAtMs = 0
	it.HeartbeatMs = 0
}
