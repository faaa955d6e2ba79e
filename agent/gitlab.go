package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gitlab.com/gitlab-org/runner-pool/metadata"
)

type gitlabRunner struct {
	config     Config
	configPath string
}

func newGitLabRunner(config Config) *gitlabRunner {
	return &gitlabRunner{
		config:     config,
		configPath: filepath.Join(config.WorkDir, "config.toml"),
	}
}

func (r *gitlabRunner) Name() string {
	return "gitlab-runner"
}

// Prepare drops a stale config.toml, register would append a second
// runner entry to it.
func (r *gitlabRunner) Prepare(_ *metadata.InstanceMetadata) error {
	if err := os.MkdirAll(r.config.WorkDir, 0o755); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}

	if err := os.Remove(r.configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale config: %w", err)
	}

	return nil
}

func (r *gitlabRunner) Commands(bundle *metadata.InstanceMetadata) ([]Command, error) {
	buildsDir := filepath.Join(r.config.WorkDir, "builds")
	cacheDir := filepath.Join(r.config.WorkDir, "cache")

	if bundle.Mode() == metadata.ExecutionModeOneStep {
		return []Command{{
			Path: r.config.GitLabRunnerPath,
			Dir:  r.config.WorkDir,
			Args: []string{
				"run-single",
				"--url", bundle.InstanceURL,
				"--token", bundle.RegistrationToken,
				"--name", bundle.RunnerName,
				"--executor", r.config.GitLabExecutor,
				"--builds-dir", buildsDir,
				"--cache-dir", cacheDir,
				"--max-builds", "1",
				"--wait-timeout", strconv.Itoa(r.config.WaitTimeout),
			},
		}}, nil
	}

	register := []string{
		"register",
		"--non-interactive",
		"--url", bundle.InstanceURL,
		"--token", bundle.RegistrationToken,
		"--name", bundle.RunnerName,
		"--executor", r.config.GitLabExecutor,
		"--builds-dir", buildsDir,
		"--cache-dir", cacheDir,
		"--config", r.configPath,
	}
	if len(bundle.Labels) > 0 {
		register = append(register, "--tag-list", strings.Join(bundle.Labels, ","))
	}

	return []Command{
		{Path: r.config.GitLabRunnerPath, Dir: r.config.WorkDir, Args: register},
		{Path: r.config.GitLabRunnerPath, Dir: r.config.WorkDir, Args: []string{"run", "--config", r.configPath}},
	}, nil
}

func (r *gitlabRunner) StateFiles() []string {
	return []string{r.configPath}
}
