package common

import (
	"context"
	"errors"
)

// ErrRunnerNotFound is returned by platform clients when a remote runner
// record cannot be resolved.
var ErrRunnerNotFound = errors.New("runner not found")

type PlatformType string

const (
	PlatformGitLab PlatformType = "gitlab"
	PlatformGitea  PlatformType = "gitea"
	PlatformGitHub PlatformType = "github"
)

// ExecutionMode describes how the in-guest agent turns a credential into a
// job-executing process.
type ExecutionMode string

const (
	// ExecutionModeOneStep runs a single job directly with the credential.
	ExecutionModeOneStep ExecutionMode = "one-step"
	// ExecutionModeTwoStep registers locally first and then starts a daemon
	// that exits after exactly one job.
	ExecutionModeTwoStep ExecutionMode = "two-step"
)

func (m ExecutionMode) IsValid() bool {
	return m == ExecutionModeOneStep || m == ExecutionModeTwoStep
}

type CredentialRequest struct {
	RunnerName  string
	PoolName    string
	Description string
	Labels      []string

	RunUntagged    bool
	Locked         bool
	AccessLevel    string
	MaximumTimeout int
}

// Credential is a freshly issued, instance scoped registration secret.
type Credential struct {
	Token    string
	RemoteID int64
	Mode     ExecutionMode
	Extras   map[string]string
}

// RunnerRef identifies a remote runner record. Platforms that assign the
// numeric id only after in-guest registration resolve it by Name.
type RunnerRef struct {
	RemoteID int64
	Name     string
}

// Platform is the capability interface a CI platform has to provide to feed
// a pool with credentials and demand.
//
//go:generate mockery --name=Platform --inpackage
type Platform interface {
	Name() string
	Type() PlatformType
	URL() string
	IssueCredential(ctx context.Context, req CredentialRequest) (Credential, error)
	// DeleteRunner removes the remote runner record. Deleting a record that
	// is already gone is not an error.
	DeleteRunner(ctx context.Context, ref RunnerRef) error
	EstimateQueueDepth(ctx context.Context, labels []string) (int, error)
}
