package agent

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	"gitlab.com/gitlab-org/runner-pool/helpers/process"
)

const defaultPath = "/usr/local/bin:/usr/bin:/bin"

// variables the env file can't override
var protectedVariables = []string{"PATH", "HOME", "USER"}

// buildEnvironment returns the curated environment of the job runner. The
// agent's own environment only contributes PATH.
func buildEnvironment(config Config, credential *process.Credential) ([]string, error) {
	path := os.Getenv("PATH")
	if path == "" {
		path = defaultPath
	}
	if !slices.Contains(strings.Split(path, ":"), "/usr/local/bin") {
		path = "/usr/local/bin:" + path
	}

	home := config.WorkDir
	user := config.User
	if credential != nil {
		if credential.HomeDir != "" {
			home = credential.HomeDir
		}
		user = credential.Username
	}

	env := map[string]string{
		"PATH":        path,
		"HOME":        home,
		"DOCKER_HOST": config.ContainerHost,
	}
	if user != "" {
		env["USER"] = user
	}

	if config.EnvFile != "" {
		extra, err := godotenv.Read(config.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("reading env file %s: %w", config.EnvFile, err)
		}

		for key, value := range extra {
			if slices.Contains(protectedVariables, key) {
				continue
			}
			env[key] = value
		}
	}

	result := make([]string, 0, len(env))
	for key, value := range env {
		result = append(result, key+"="+value)
	}
	slices.Sort(result)

	return result, nil
}
