package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/common"
)

const (
	githubAPIVersion        = "2022-11-28"
	githubDefaultRunnerGrp  = 1
	githubQueuedRunsPerPage = 50
	githubRunnersPerPage    = 100
)

// ErrQueueDepthUnsupported is returned when the platform scope offers no
// way to list queued jobs.
var ErrQueueDepthUnsupported = errors.New("queue depth is not available for this scope")

type jitConfigRequest struct {
	Name          string   `json:"name"`
	RunnerGroupID int64    `json:"runner_group_id"`
	Labels        []string `json:"labels"`
	WorkFolder    string   `json:"work_folder,omitempty"`
}

type jitConfigResponse struct {
	Runner struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"runner"`
	EncodedJITConfig string `json:"encoded_jit_config"`
}

type githubRunner struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Busy   bool   `json:"busy"`
}

type githubJob struct {
	ID     int64    `json:"id"`
	Status string   `json:"status"`
	Labels []string `json:"labels"`
}

// requesterTransport lets go-gh send its requests through the retrying
// requester.
type requesterTransport struct {
	requester requester
}

func (t requesterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.requester.Do(req)
}

// GitHubClient issues just-in-time runner configurations. A JIT config is a
// complete one-shot credential, the runner inside the instance starts with
// it directly.
type GitHubClient struct {
	*client

	config  *common.PlatformConfig
	rest    *api.RESTClient
	apiBase string
	queue   *queueDepthCache
}

func NewGitHubClient(config *common.PlatformConfig, collector *APIRequestsCollector, logger logrus.FieldLogger) (*GitHubClient, error) {
	c, err := newClient(config, collector, logger)
	if err != nil {
		return nil, err
	}

	rest, err := api.NewRESTClient(api.ClientOptions{
		Host:         c.url.Hostname(),
		AuthToken:    config.Token,
		Transport:    requesterTransport{requester: c.requester},
		Timeout:      common.DefaultNetworkClientTimeout,
		LogIgnoreEnv: true,
		Headers: map[string]string{
			"User-Agent":           common.AppVersion.UserAgent(),
			"X-GitHub-Api-Version": githubAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating GitHub REST client: %w", err)
	}

	return &GitHubClient{
		client:  c,
		config:  config,
		rest:    rest,
		apiBase: githubAPIBase(c.url),
		queue:   newQueueDepthCache(config.GetQueueDepthCacheTTL()),
	}, nil
}

// githubAPIBase maps the configured web URL to the REST API root:
// api.github.com for github.com and /api/v3 for GitHub Enterprise Server.
func githubAPIBase(u *url.URL) string {
	if strings.EqualFold(u.Hostname(), "github.com") || strings.EqualFold(u.Hostname(), "api.github.com") {
		return "https://api.github.com/"
	}

	base := *u
	base.Path = strings.TrimSuffix(base.Path, "/")
	if !strings.HasSuffix(base.Path, "/api/v3") {
		base.Path += "/api/v3"
	}
	base.Path += "/"
	base.RawQuery = ""
	base.Fragment = ""
	base.User = nil

	return base.String()
}

func (g *GitHubClient) Name() string {
	return g.config.Name
}

func (g *GitHubClient) Type() common.PlatformType {
	return common.PlatformGitHub
}

func (g *GitHubClient) URL() string {
	return strings.TrimRight(g.config.URL, "/")
}

func (g *GitHubClient) isEnterprise() bool {
	return g.apiBase != "https://api.github.com/"
}

func (g *GitHubClient) runnersPath() string {
	if g.config.Scope == common.ScopeRepo {
		return fmt.Sprintf("repos/%s/%s/actions/runners", url.PathEscape(g.config.Owner), url.PathEscape(g.config.Repo))
	}

	return fmt.Sprintf("orgs/%s/actions/runners", url.PathEscape(g.config.Owner))
}

// do sends a REST call through go-gh and records it like the JSON client
// does for the other platforms.
func (g *GitHubClient) do(ctx context.Context, endpoint apiEndpoint, method, path string, request, response interface{}, successStatus int) error {
	var body io.Reader
	if request != nil {
		payload, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("failed to marshal request object: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	var err error
	g.collector.Observe(g.logger, g.platform, endpoint, func() (int, string) {
		err = g.rest.DoWithContext(ctx, method, g.apiBase+path, body, response)

		var httpErr *api.HTTPError
		switch {
		case err == nil:
			return successStatus, method
		case errors.As(err, &httpErr):
			return httpErr.StatusCode, method
		default:
			return clientError, method
		}
	})

	return err
}

func (g *GitHubClient) IssueCredential(ctx context.Context, req common.CredentialRequest) (common.Credential, error) {
	groupID := g.config.RunnerGroupID
	if groupID == 0 {
		groupID = githubDefaultRunnerGrp
	}

	request := jitConfigRequest{
		Name:          req.RunnerName,
		RunnerGroupID: groupID,
		Labels:        req.Labels,
		WorkFolder:    "_work",
	}

	var response jitConfigResponse
	err := g.do(ctx, apiEndpointJITConfig, http.MethodPost, g.runnersPath()+"/generate-jitconfig", &request, &response, http.StatusCreated)
	if err != nil {
		return common.Credential{}, fmt.Errorf("generating JIT config for %s: %w", req.RunnerName, err)
	}

	if response.EncodedJITConfig == "" {
		return common.Credential{}, fmt.Errorf("generating JIT config for %s: empty JIT config received", req.RunnerName)
	}

	return common.Credential{
		Token:    response.EncodedJITConfig,
		RemoteID: response.Runner.ID,
		Mode:     g.config.GetExecutionMode(),
	}, nil
}

func (g *GitHubClient) DeleteRunner(ctx context.Context, ref common.RunnerRef) error {
	id := ref.RemoteID
	if id == 0 {
		resolved, err := g.resolveRunnerID(ctx, ref.Name)
		if errors.Is(err, common.ErrRunnerNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolving runner %s: %w", ref.Name, err)
		}
		id = resolved
	}

	err := g.do(ctx, apiEndpointDeleteRunner, http.MethodDelete, fmt.Sprintf("%s/%d", g.runnersPath(), id), nil, nil, http.StatusNoContent)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("deleting runner %d: %w", id, err)
	}

	return nil
}

func (g *GitHubClient) resolveRunnerID(ctx context.Context, name string) (int64, error) {
	query := url.Values{}
	query.Set("per_page", fmt.Sprint(githubRunnersPerPage))
	query.Set("name", name)

	var response struct {
		Runners []githubRunner `json:"runners"`
	}
	err := g.do(ctx, apiEndpointListRunners, http.MethodGet, g.runnersPath()+"?"+query.Encode(), nil, &response, http.StatusOK)
	if err != nil {
		return 0, err
	}

	for _, runner := range response.Runners {
		if runner.Name == name {
			return runner.ID, nil
		}
	}

	return 0, common.ErrRunnerNotFound
}

// EstimateQueueDepth counts queued jobs of queued workflow runs whose
// runs-on labels are all offered by labels. GitHub has no organization
// wide jobs listing, so only repository scoped platforms report demand.
func (g *GitHubClient) EstimateQueueDepth(ctx context.Context, labels []string) (int, error) {
	if g.config.Scope != common.ScopeRepo {
		return 0, ErrQueueDepthUnsupported
	}

	return g.queue.get(labels, func() (int, error) {
		return g.countQueuedJobs(ctx, labels)
	})
}

func (g *GitHubClient) countQueuedJobs(ctx context.Context, labels []string) (int, error) {
	repoPath := fmt.Sprintf("repos/%s/%s/actions", url.PathEscape(g.config.Owner), url.PathEscape(g.config.Repo))

	var runs struct {
		WorkflowRuns []struct {
			ID int64 `json:"id"`
		} `json:"workflow_runs"`
	}
	err := g.do(ctx, apiEndpointListJobs, http.MethodGet, fmt.Sprintf("%s/runs?status=queued&per_page=%d", repoPath, githubQueuedRunsPerPage), nil, &runs, http.StatusOK)
	if err != nil {
		return 0, fmt.Errorf("listing queued workflow runs: %w", err)
	}

	depth := 0
	for _, run := range runs.WorkflowRuns {
		var jobs struct {
			Jobs []githubJob `json:"jobs"`
		}
		err := g.do(ctx, apiEndpointListJobs, http.MethodGet, fmt.Sprintf("%s/runs/%d/jobs?filter=latest", repoPath, run.ID), nil, &jobs, http.StatusOK)
		if err != nil {
			return 0, fmt.Errorf("listing jobs of workflow run %d: %w", run.ID, err)
		}

		for _, job := range jobs.Jobs {
			if job.Status == "queued" && labelsMatch(job.Labels, labels) {
				depth++
			}
		}
	}

	return depth, nil
}

// Version reports the GitHub Enterprise Server release. github.com is not
// versioned and yields nil.
func (g *GitHubClient) Version(ctx context.Context) (*version.Version, error) {
	if !g.isEnterprise() {
		return nil, nil
	}

	var response struct {
		InstalledVersion string `json:"installed_version"`
	}
	if err := g.do(ctx, apiEndpointVersion, http.MethodGet, "meta", nil, &response, http.StatusOK); err != nil {
		return nil, err
	}

	if response.InstalledVersion == "" {
		return nil, nil
	}

	return parseVersion(response.InstalledVersion)
}

func (g *GitHubClient) MinimumVersion() *version.Version {
	return minimumGHESVersion
}
