package agent

import (
	"fmt"

	"gitlab.com/gitlab-org/runner-pool/metadata"
)

// Command is one process the agent starts for the job runner.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// JobRunner turns an instance bundle into the commands that execute exactly
// one job. Only the last command executes the job, the ones before it
// register locally and have to succeed.
type JobRunner interface {
	Name() string
	Prepare(bundle *metadata.InstanceMetadata) error
	Commands(bundle *metadata.InstanceMetadata) ([]Command, error)
	// StateFiles lists the local credential and state files removed once
	// the job runner is done.
	StateFiles() []string
}

func NewJobRunner(config Config, bundle *metadata.InstanceMetadata) (JobRunner, error) {
	config = config.withDefaults()

	switch bundle.Platform {
	case "gitlab":
		return newGitLabRunner(config), nil
	case "gitea":
		return newGiteaRunner(config), nil
	case "github":
		return newGitHubRunner(config), nil
	default:
		return nil, fmt.Errorf("no job runner for platform %q", bundle.Platform)
	}
}
