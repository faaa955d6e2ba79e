package agent

import (
	"errors"
	"path/filepath"

	"gitlab.com/gitlab-org/runner-pool/metadata"
)

type githubRunner struct {
	config Config
}

func newGitHubRunner(config Config) *githubRunner {
	return &githubRunner{config: config}
}

func (r *githubRunner) Name() string {
	return "actions-runner"
}

func (r *githubRunner) Prepare(_ *metadata.InstanceMetadata) error {
	return nil
}

// Commands runs the runner with its JIT config, which registers, runs one
// job and removes the runner in one go.
func (r *githubRunner) Commands(bundle *metadata.InstanceMetadata) ([]Command, error) {
	if bundle.Mode() != metadata.ExecutionModeOneStep {
		return nil, errors.New("github runners only support one-step execution")
	}

	return []Command{{
		Path: filepath.Join(r.config.GitHubRunnerDir, "run.sh"),
		Dir:  r.config.GitHubRunnerDir,
		Args: []string{"--jitconfig", bundle.RegistrationToken},
	}}, nil
}

func (r *githubRunner) StateFiles() []string {
	return []string{
		filepath.Join(r.config.GitHubRunnerDir, ".runner"),
		filepath.Join(r.config.GitHubRunnerDir, ".credentials"),
		filepath.Join(r.config.GitHubRunnerDir, ".credentials_rsaparams"),
	}
}
