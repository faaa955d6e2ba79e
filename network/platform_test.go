//go:build !integration

package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/runner-pool/common"
)

func TestNewPlatform(t *testing.T) {
	tests := map[common.PlatformType]interface{}{
		common.PlatformGitLab: &GitLabClient{},
		common.PlatformGitea:  &GiteaClient{},
		common.PlatformGitHub: &GitHubClient{},
	}

	for platformType, expected := range tests {
		t.Run(string(platformType), func(t *testing.T) {
			platform, err := NewPlatform(&common.PlatformConfig{
				Name:  string(platformType),
				Type:  platformType,
				URL:   "https://ci.example.com/",
				Token: "secret",
				Scope: common.ScopeOrg,
				Owner: "acme",
			}, nil, testLogger())
			require.NoError(t, err)

			assert.IsType(t, expected, platform)
			assert.Equal(t, string(platformType), platform.Name())
			assert.Equal(t, "https://ci.example.com", platform.URL())
		})
	}

	_, err := NewPlatform(&common.PlatformConfig{Name: "bb", Type: "bitbucket"}, nil, testLogger())
	assert.ErrorContains(t, err, `unknown type "bitbucket"`)
}

func TestPlatformsShareClients(t *testing.T) {
	platforms := NewPlatforms(NewAPIRequestsCollector(), testLogger())
	config := &common.PlatformConfig{Name: "gitlab", Type: common.PlatformGitLab, URL: "https://gitlab.example.com", Token: "t"}

	first, err := platforms.Get(config)
	require.NoError(t, err)

	second, err := platforms.Get(config)
	require.NoError(t, err)

	assert.Same(t, first, second)
}
