package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-version"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/common"
)

const (
	giteaRunnerIDCacheSize = 1024
	giteaJobsLimit         = 50
)

type giteaRegistrationToken struct {
	Token string `json:"token"`
}

// GiteaRunner is a runner registered with Gitea Actions.
type GiteaRunner struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Busy   bool     `json:"busy"`
	Labels []string `json:"labels"`
}

type giteaJob struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Labels []string `json:"labels"`
}

// GiteaClient hands out registration tokens for act_runner. Runners get
// their numeric id only once they register from inside the instance, so
// deletion resolves it by name.
type GiteaClient struct {
	*client

	config    *common.PlatformConfig
	queue     *queueDepthCache
	runnerIDs *lru.Cache[string, int64]
}

func NewGiteaClient(config *common.PlatformConfig, collector *APIRequestsCollector, logger logrus.FieldLogger) (*GiteaClient, error) {
	c, err := newClient(config, collector, logger)
	if err != nil {
		return nil, err
	}

	runnerIDs, err := lru.New[string, int64](giteaRunnerIDCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating runner id cache: %w", err)
	}

	return &GiteaClient{
		client:    c,
		config:    config,
		queue:     newQueueDepthCache(config.GetQueueDepthCacheTTL()),
		runnerIDs: runnerIDs,
	}, nil
}

func (g *GiteaClient) Name() string {
	return g.config.Name
}

func (g *GiteaClient) Type() common.PlatformType {
	return common.PlatformGitea
}

func (g *GiteaClient) URL() string {
	return strings.TrimRight(g.config.URL, "/")
}

func (g *GiteaClient) headers() http.Header {
	headers := make(http.Header)
	headers.Set("Authorization", "token "+g.config.Token)
	return headers
}

func (g *GiteaClient) scopePath() string {
	switch g.config.Scope {
	case common.ScopeOrg:
		return fmt.Sprintf("api/v1/orgs/%s", url.PathEscape(g.config.Owner))
	case common.ScopeRepo:
		return fmt.Sprintf("api/v1/repos/%s/%s", url.PathEscape(g.config.Owner), url.PathEscape(g.config.Repo))
	default:
		return "api/v1/admin"
	}
}

func (g *GiteaClient) runnersPath() string {
	if g.config.Scope == common.ScopeOrg || g.config.Scope == common.ScopeRepo {
		return g.scopePath() + "/actions/runners"
	}

	return g.scopePath() + "/runners"
}

func (g *GiteaClient) IssueCredential(ctx context.Context, req common.CredentialRequest) (common.Credential, error) {
	var response giteaRegistrationToken
	_, err := g.doJSON(
		ctx,
		apiEndpointRegistrationToken,
		http.MethodGet,
		g.runnersPath()+"/registration-token",
		g.headers(),
		nil,
		&response,
		http.StatusOK,
	)
	if err != nil {
		return common.Credential{}, fmt.Errorf("requesting registration token for %s: %w", req.RunnerName, err)
	}

	if response.Token == "" {
		return common.Credential{}, fmt.Errorf("requesting registration token for %s: empty registration token received", req.RunnerName)
	}

	return common.Credential{
		Token: response.Token,
		Mode:  g.config.GetExecutionMode(),
	}, nil
}

func (g *GiteaClient) DeleteRunner(ctx context.Context, ref common.RunnerRef) error {
	id := ref.RemoteID
	if id == 0 {
		resolved, err := g.resolveRunnerID(ctx, ref.Name)
		if errors.Is(err, common.ErrRunnerNotFound) {
			g.logger.WithField("runner", ref.Name).Debugln("Runner never registered, nothing to delete")
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolving runner %s: %w", ref.Name, err)
		}
		id = resolved
	}

	_, err := g.doJSON(
		ctx,
		apiEndpointDeleteRunner,
		http.MethodDelete,
		fmt.Sprintf("%s/%d", g.runnersPath(), id),
		g.headers(),
		nil,
		nil,
		http.StatusNoContent, http.StatusOK,
	)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("deleting runner %d: %w", id, err)
	}

	if ref.Name != "" {
		g.runnerIDs.Remove(ref.Name)
	}

	return nil
}

func (g *GiteaClient) resolveRunnerID(ctx context.Context, name string) (int64, error) {
	if id, ok := g.runnerIDs.Get(name); ok {
		return id, nil
	}

	runners, err := g.ListRunners(ctx)
	if err != nil {
		return 0, err
	}

	for _, runner := range runners {
		if runner.Name == name {
			return runner.ID, nil
		}
	}

	return 0, common.ErrRunnerNotFound
}

// ListRunners returns the runners registered in the configured scope and
// refreshes the name to id cache.
func (g *GiteaClient) ListRunners(ctx context.Context) ([]GiteaRunner, error) {
	var raw json.RawMessage
	_, err := g.doJSON(ctx, apiEndpointListRunners, http.MethodGet, g.runnersPath(), g.headers(), nil, &raw, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("listing runners: %w", err)
	}

	runners, err := decodeGiteaRunners(raw)
	if err != nil {
		return nil, err
	}

	for _, runner := range runners {
		g.runnerIDs.Add(runner.Name, runner.ID)
	}

	return runners, nil
}

// Older Gitea releases answer with a bare array, newer ones with an object
// carrying the runners and a total count.
func decodeGiteaRunners(raw json.RawMessage) ([]GiteaRunner, error) {
	var runners []GiteaRunner

	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		if err := json.Unmarshal(raw, &runners); err != nil {
			return nil, fmt.Errorf("decoding runners: %w", err)
		}
		return runners, nil
	}

	var wrapped struct {
		Runners []GiteaRunner `json:"runners"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding runners: %w", err)
	}

	return wrapped.Runners, nil
}

// EstimateQueueDepth counts waiting jobs whose runs-on labels are all
// offered by labels.
func (g *GiteaClient) EstimateQueueDepth(ctx context.Context, labels []string) (int, error) {
	return g.queue.get(labels, func() (int, error) {
		return g.countWaitingJobs(ctx, labels)
	})
}

func (g *GiteaClient) countWaitingJobs(ctx context.Context, labels []string) (int, error) {
	query := url.Values{}
	query.Set("status", "waiting")
	query.Set("limit", fmt.Sprint(giteaJobsLimit))

	var response struct {
		Jobs []giteaJob `json:"jobs"`
	}
	_, err := g.doJSON(
		ctx,
		apiEndpointListJobs,
		http.MethodGet,
		g.scopePath()+"/actions/jobs?"+query.Encode(),
		g.headers(),
		nil,
		&response,
		http.StatusOK,
	)
	if err != nil {
		return 0, fmt.Errorf("listing waiting jobs: %w", err)
	}

	depth := 0
	for _, job := range response.Jobs {
		if labelsMatch(job.Labels, labels) {
			depth++
		}
	}

	return depth, nil
}

func (g *GiteaClient) Version(ctx context.Context) (*version.Version, error) {
	var response versionResponse
	_, err := g.doJSON(ctx, apiEndpointVersion, http.MethodGet, "api/v1/version", g.headers(), nil, &response, http.StatusOK)
	if err != nil {
		return nil, err
	}

	return parseVersion(response.Version)
}

func (g *GiteaClient) MinimumVersion() *version.Version {
	return minimumGiteaVersion
}
