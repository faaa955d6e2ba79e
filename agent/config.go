package agent

import (
	"time"

	"gitlab.com/gitlab-org/runner-pool/helpers/process"
)

const (
	DefaultWorkDir          = "/opt/runner"
	DefaultUser             = "runner"
	DefaultGroup            = "docker"
	DefaultContainerHost    = "unix:///var/run/docker.sock"
	DefaultGitLabRunnerPath = "/usr/local/bin/gitlab-runner"
	DefaultGitLabExecutor   = "shell"
	DefaultActRunnerPath    = "/usr/local/bin/act_runner"
	DefaultGitHubRunnerDir  = "/opt/actions-runner"
	DefaultGracePeriod      = process.GracefulTimeout
	DefaultWaitTimeout      = 600
)

// Config configures the in-guest agent. The struct doubles as the flag set
// of the agent command.
type Config struct {
	WorkDir       string `long:"work-dir" env:"RUNNER_POOL_AGENT_WORK_DIR" description:"Working directory of the job runner"`
	User          string `long:"user" env:"RUNNER_POOL_AGENT_USER" description:"User the job runner runs as"`
	Group         string `long:"group" env:"RUNNER_POOL_AGENT_GROUP" description:"Group the job runner runs as"`
	AllowRoot     bool   `long:"allow-root" env:"RUNNER_POOL_AGENT_ALLOW_ROOT" description:"Allow the job runner user to resolve to root"`
	ContainerHost string `long:"container-host" env:"RUNNER_POOL_AGENT_CONTAINER_HOST" description:"Container runtime socket exported as DOCKER_HOST"`
	EnvFile       string `long:"env-file" env:"RUNNER_POOL_AGENT_ENV_FILE" description:"Optional KEY=value file merged into the job runner environment"`

	GracePeriod time.Duration `long:"grace-period" env:"RUNNER_POOL_AGENT_GRACE_PERIOD" description:"Time between SIGTERM and SIGKILL when stopping the job runner"`

	GitLabRunnerPath string `long:"gitlab-runner-path" env:"RUNNER_POOL_AGENT_GITLAB_RUNNER_PATH" description:"Path of the gitlab-runner binary"`
	GitLabExecutor   string `long:"gitlab-executor" env:"RUNNER_POOL_AGENT_GITLAB_EXECUTOR" description:"Executor gitlab-runner uses"`
	WaitTimeout      int    `long:"wait-timeout" env:"RUNNER_POOL_AGENT_WAIT_TIMEOUT" description:"Seconds run-single waits for a job before exiting"`

	ActRunnerPath string `long:"act-runner-path" env:"RUNNER_POOL_AGENT_ACT_RUNNER_PATH" description:"Path of the act_runner binary"`

	GitHubRunnerDir string `long:"github-runner-dir" env:"RUNNER_POOL_AGENT_GITHUB_RUNNER_DIR" description:"Directory of the GitHub Actions runner"`
}

func (c Config) withDefaults() Config {
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.ContainerHost == "" {
		c.ContainerHost = DefaultContainerHost
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.GitLabRunnerPath == "" {
		c.GitLabRunnerPath = DefaultGitLabRunnerPath
	}
	if c.GitLabExecutor == "" {
		c.GitLabExecutor = DefaultGitLabExecutor
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.ActRunnerPath == "" {
		c.ActRunnerPath = DefaultActRunnerPath
	}
	if c.GitHubRunnerDir == "" {
		c.GitHubRunnerDir = DefaultGitHubRunnerDir
	}

	return c
}
