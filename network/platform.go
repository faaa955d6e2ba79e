package network

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/common"
)

var (
	_ common.Platform = (*GitLabClient)(nil)
	_ common.Platform = (*GiteaClient)(nil)
	_ common.Platform = (*GitHubClient)(nil)

	_ VersionChecker = (*GitLabClient)(nil)
	_ VersionChecker = (*GiteaClient)(nil)
	_ VersionChecker = (*GitHubClient)(nil)
)

// NewPlatform builds the client for the configured platform type. Every
// client reports its requests to collector.
func NewPlatform(config *common.PlatformConfig, collector *APIRequestsCollector, logger logrus.FieldLogger) (common.Platform, error) {
	switch config.Type {
	case common.PlatformGitLab:
		return NewGitLabClient(config, collector, logger)
	case common.PlatformGitea:
		return NewGiteaClient(config, collector, logger)
	case common.PlatformGitHub:
		return NewGitHubClient(config, collector, logger)
	default:
		return nil, fmt.Errorf("platform %q: unknown type %q", config.Name, config.Type)
	}
}

// Platforms keeps one client per configured platform so that pools
// targeting the same platform share its client and queue depth cache.
type Platforms struct {
	collector *APIRequestsCollector
	logger    logrus.FieldLogger
	clients   map[string]common.Platform
}

func NewPlatforms(collector *APIRequestsCollector, logger logrus.FieldLogger) *Platforms {
	return &Platforms{
		collector: collector,
		logger:    logger,
		clients:   make(map[string]common.Platform),
	}
}

func (p *Platforms) Get(config *common.PlatformConfig) (common.Platform, error) {
	if client, ok := p.clients[config.Name]; ok {
		return client, nil
	}

	client, err := NewPlatform(config, p.collector, p.logger)
	if err != nil {
		return nil, err
	}

	p.clients[config.Name] = client

	return client, nil
}
