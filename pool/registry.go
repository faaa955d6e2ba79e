package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"gitlab.com/gitlab-org/runner-pool/common"
)

// registry tracks the runners of one pool. Every method holds the lock only
// for the in-memory update; callers do their I/O outside of it.
type registry struct {
	mu      sync.RWMutex
	runners map[string]*runner
	now     func() time.Time
}

func newRegistry() *registry {
	return &registry{
		runners: make(map[string]*runner),
		now:     time.Now,
	}
}

func (r *registry) insert(info RunnerInfo, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runners[info.ID]; ok {
		return fmt.Errorf("runner %s is already registered", info.ID)
	}

	now := r.now()
	info.CreatedAt = now
	info.StateChangedAt = now

	r.runners[info.ID] = &runner{info: info, cancel: cancel}

	return nil
}

// transition moves the runner to next and applies mutate to the record in
// the same critical section. The previous state is returned.
func (r *registry) transition(id string, next State, mutate func(info *RunnerInfo)) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rn, ok := r.runners[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrRunnerNotFound, id)
	}

	prev := rn.info.State
	if err := checkTransition(prev, next); err != nil {
		return prev, err
	}

	rn.info.State = next
	rn.info.StateChangedAt = r.now()
	if mutate != nil {
		mutate(&rn.info)
	}
	if next.IsTerminal() {
		rn.info.InstanceID = ""
		rn.info.Address = ""
	}

	return prev, nil
}

func (r *registry) update(id string, mutate func(rn *runner)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rn, ok := r.runners[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrRunnerNotFound, id)
	}

	mutate(rn)

	return nil
}

// claimRemoteDeletion returns true exactly once per runner whose credential
// was issued, so the remote record is deleted at most once.
func (r *registry) claimRemoteDeletion(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rn, ok := r.runners[id]
	if !ok || !rn.credentialIssued || rn.remoteDeleted {
		return false
	}

	rn.remoteDeleted = true

	return true
}

func (r *registry) cancelProvisioning(id string) {
	r.mu.RLock()
	rn, ok := r.runners[id]
	r.mu.RUnlock()

	if ok && rn.cancel != nil {
		rn.cancel()
	}
}

func (r *registry) get(id string) (RunnerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rn, ok := r.runners[id]
	if !ok {
		return RunnerInfo{}, false
	}

	return rn.info, true
}

// snapshot returns copies of all records, oldest first.
func (r *registry) snapshot() []RunnerInfo {
	r.mu.RLock()
	infos := lo.MapToSlice(r.runners, func(_ string, rn *runner) RunnerInfo {
		return rn.info
	})
	r.mu.RUnlock()

	slices.SortFunc(infos, func(a, b RunnerInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})

	return infos
}

func (r *registry) live() []RunnerInfo {
	return lo.Filter(r.snapshot(), func(info RunnerInfo, _ int) bool {
		return !info.State.IsTerminal()
	})
}

func (r *registry) counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var counts Counts
	for _, rn := range r.runners {
		counts.Total++
		switch rn.info.State {
		case StateStarting:
			counts.Starting++
		case StateIdle:
			counts.Idle++
		case StateBusy:
			counts.Busy++
		case StateStopping:
			counts.Stopping++
		}
	}

	return counts
}

// prune drops every terminal runner and returns what was removed.
func (r *registry) prune() []RunnerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned []RunnerInfo
	for id, rn := range r.runners {
		if !rn.info.State.IsTerminal() {
			continue
		}

		pruned = append(pruned, rn.info)
		delete(r.runners, id)
	}

	return pruned
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
