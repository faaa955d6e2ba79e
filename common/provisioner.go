package common

import (
	"context"
	"errors"

	"gitlab.com/gitlab-org/runner-pool/metadata"
)

var ErrInstanceNotFound = errors.New("instance not found")

type InstanceSpec struct {
	Name        string
	Pool        string
	Image       string
	Kernel      string
	KernelArgs  string
	MemoryBytes int64
	VCPUs       int
	Labels      []string
}

type Instance struct {
	ID      string
	Address string
}

type ExitStatus struct {
	ExitCode int
}

func (e ExitStatus) Success() bool {
	return e.ExitCode == 0
}

// Provisioner creates and destroys the compute instances backing runners.
// Every pool owns its own Provisioner.
//
//go:generate mockery --name=Provisioner --inpackage
type Provisioner interface {
	// Create boots a new instance and makes bundle reachable from inside it
	// before the instance starts booting.
	Create(ctx context.Context, spec InstanceSpec, bundle *metadata.InstanceMetadata) (Instance, error)
	// Destroy tears the instance down. Unknown instances are not an error.
	Destroy(ctx context.Context, instanceID string) error
	// AwaitExit blocks until the instance exits or ctx is done.
	AwaitExit(ctx context.Context, instanceID string) (ExitStatus, error)
	Close() error
}
