package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"gitlab.com/gitlab-org/runner-pool/metadata"
)

type actRunnerConfig struct {
	Log    actRunnerLog     `yaml:"log"`
	Runner actRunnerSection `yaml:"runner"`
}

type actRunnerLog struct {
	Level string `yaml:"level"`
}

type actRunnerSection struct {
	File     string   `yaml:"file"`
	Capacity int      `yaml:"capacity"`
	Labels   []string `yaml:"labels,omitempty"`
}

type giteaRunner struct {
	config     Config
	configPath string
	runnerFile string
}

func newGiteaRunner(config Config) *giteaRunner {
	return &giteaRunner{
		config:     config,
		configPath: filepath.Join(config.WorkDir, "config.yaml"),
		runnerFile: filepath.Join(config.WorkDir, ".runner"),
	}
}

func (r *giteaRunner) Name() string {
	return "act_runner"
}

// Prepare writes the act_runner config. A capacity of one keeps the daemon
// from picking up a second job before it exits.
func (r *giteaRunner) Prepare(bundle *metadata.InstanceMetadata) error {
	if err := os.MkdirAll(r.config.WorkDir, 0o755); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}

	data, err := yaml.Marshal(actRunnerConfig{
		Log: actRunnerLog{Level: "info"},
		Runner: actRunnerSection{
			File:     r.runnerFile,
			Capacity: 1,
			Labels:   bundle.Labels,
		},
	})
	if err != nil {
		return fmt.Errorf("encoding act_runner config: %w", err)
	}

	if err := os.WriteFile(r.configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing act_runner config: %w", err)
	}

	return nil
}

func (r *giteaRunner) Commands(bundle *metadata.InstanceMetadata) ([]Command, error) {
	register := []string{
		"register",
		"--no-interactive",
		"--instance", bundle.InstanceURL,
		"--token", bundle.RegistrationToken,
		"--name", bundle.RunnerName,
	}
	if len(bundle.Labels) > 0 {
		register = append(register, "--labels", strings.Join(bundle.Labels, ","))
	}
	register = append(register, "-c", r.configPath)

	return []Command{
		{Path: r.config.ActRunnerPath, Dir: r.config.WorkDir, Args: register},
		{Path: r.config.ActRunnerPath, Dir: r.config.WorkDir, Args: []string{"daemon", "--once", "-c", r.configPath}},
	}, nil
}

func (r *giteaRunner) StateFiles() []string {
	return []string{r.runnerFile, r.configPath}
}
