//go:build !integration

package pool

import (
	"context"
	"fmt"
	"sync"

	"gitlab.com/gitlab-org/runner-pool/common"
	"gitlab.com/gitlab-org/runner-pool/metadata"
)

// fakeProvisioner boots instances instantly and lets the test decide when
// and how each one exits.
type fakeProvisioner struct {
	mu sync.Mutex

	// createErr, when set, is consulted for every Create call in order.
	createErr func(n int) error
	// block makes Create wait until its context is done.
	block bool

	next      int
	specs     []common.InstanceSpec
	bundles   []*metadata.InstanceMetadata
	exits     map[string]chan common.ExitStatus
	destroyed map[string]int
	closed    int
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{
		exits:     make(map[string]chan common.ExitStatus),
		destroyed: make(map[string]int),
	}
}

func (f *fakeProvisioner) Create(ctx context.Context, spec common.InstanceSpec, bundle *metadata.InstanceMetadata) (common.Instance, error) {
	f.mu.Lock()
	n := f.next
	f.next++
	f.specs = append(f.specs, spec)
	f.bundles = append(f.bundles, bundle)
	createErr, block := f.createErr, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return common.Instance{}, ctx.Err()
	}

	if createErr != nil {
		if err := createErr(n); err != nil {
			return common.Instance{}, err
		}
	}

	id := fmt.Sprintf("i-%d", n)

	f.mu.Lock()
	f.exits[id] = make(chan common.ExitStatus, 1)
	f.mu.Unlock()

	return common.Instance{ID: id, Address: fmt.Sprintf("10.0.0.%d", n+2)}, nil
}

func (f *fakeProvisioner) Destroy(_ context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, ok := f.exits[instanceID]
	if !ok {
		return common.ErrInstanceNotFound
	}

	f.destroyed[instanceID]++

	select {
	case ch <- common.ExitStatus{ExitCode: 143}:
	default:
	}

	return nil
}

func (f *fakeProvisioner) AwaitExit(ctx context.Context, instanceID string) (common.ExitStatus, error) {
	f.mu.Lock()
	ch, ok := f.exits[instanceID]
	f.mu.Unlock()

	if !ok {
		return common.ExitStatus{}, common.ErrInstanceNotFound
	}

	select {
	case status := <-ch:
		return status, nil
	case <-ctx.Done():
		return common.ExitStatus{}, ctx.Err()
	}
}

func (f *fakeProvisioner) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed++

	return nil
}

func (f *fakeProvisioner) exit(instanceID string, code int) {
	f.mu.Lock()
	ch := f.exits[instanceID]
	f.mu.Unlock()

	ch <- common.ExitStatus{ExitCode: code}
}

func (f *fakeProvisioner) destroyCount(instanceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.destroyed[instanceID]
}

func (f *fakeProvisioner) createdBundles() []*metadata.InstanceMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*metadata.InstanceMetadata(nil), f.bundles...)
}

func (f *fakeProvisioner) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}
