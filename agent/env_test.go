//go:build !integration

package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/runner-pool/helpers/process"
)

func TestBuildEnvironment(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")
	t.Setenv("AGENT_SECRET", "do-not-leak")

	envFile := filepath.Join(t.TempDir(), "runner.env")
	require.NoError(t, os.WriteFile(envFile, []byte("FOO=bar\nPATH=/evil\nHOME=/evil\n"), 0o600))

	tests := map[string]struct {
		config     Config
		credential *process.Credential
		expected   []string
	}{
		"defaults": {
			config: Config{WorkDir: "/work", ContainerHost: "unix:///run/docker.sock"},
			expected: []string{
				"DOCKER_HOST=unix:///run/docker.sock",
				"HOME=/work",
				"PATH=/usr/local/bin:/usr/bin:/bin",
			},
		},
		"with credential": {
			config:     Config{WorkDir: "/work", User: "runner", ContainerHost: "unix:///run/docker.sock"},
			credential: &process.Credential{UID: 1000, GID: 1000, Username: "runner", HomeDir: "/home/runner"},
			expected: []string{
				"DOCKER_HOST=unix:///run/docker.sock",
				"HOME=/home/runner",
				"PATH=/usr/local/bin:/usr/bin:/bin",
				"USER=runner",
			},
		},
		"with env file": {
			config: Config{WorkDir: "/work", ContainerHost: "tcp://docker:2375", EnvFile: envFile},
			expected: []string{
				"DOCKER_HOST=tcp://docker:2375",
				"FOO=bar",
				"HOME=/work",
				"PATH=/usr/local/bin:/usr/bin:/bin",
			},
		},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			env, err := buildEnvironment(tc.config, tc.credential)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, env)
		})
	}
}

func TestBuildEnvironmentMissingEnvFile(t *testing.T) {
	_, err := buildEnvironment(Config{EnvFile: filepath.Join(t.TempDir(), "missing.env")}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
