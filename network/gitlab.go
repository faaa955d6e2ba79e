package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/common"
)

const (
	gitlabJobsPerPage    = 100
	gitlabMaxQueuePages  = 5
	gitlabNextPageHeader = "X-Next-Page"
)

var gitlabRunnerTypes = map[string]string{
	common.ScopeInstance: "instance_type",
	common.ScopeGroup:    "group_type",
	common.ScopeProject:  "project_type",
}

type createRunnerRequest struct {
	RunnerType      string `json:"runner_type"`
	GroupID         int64  `json:"group_id,omitempty"`
	ProjectID       int64  `json:"project_id,omitempty"`
	Description     string `json:"description,omitempty"`
	Paused          bool   `json:"paused"`
	Locked          bool   `json:"locked"`
	RunUntagged     bool   `json:"run_untagged"`
	TagList         string `json:"tag_list,omitempty"`
	AccessLevel     string `json:"access_level,omitempty"`
	MaximumTimeout  int    `json:"maximum_timeout,omitempty"`
	MaintenanceNote string `json:"maintenance_note,omitempty"`
}

type createRunnerResponse struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

type gitlabJob struct {
	ID      int64    `json:"id"`
	Status  string   `json:"status"`
	TagList []string `json:"tag_list"`
}

// GitLabClient creates runners through the runner creation workflow
// (POST /user/runners) which hands back an authentication token that the
// in-guest agent can use directly.
type GitLabClient struct {
	*client

	config *common.PlatformConfig
	queue  *queueDepthCache
}

func NewGitLabClient(config *common.PlatformConfig, collector *APIRequestsCollector, logger logrus.FieldLogger) (*GitLabClient, error) {
	c, err := newClient(config, collector, logger)
	if err != nil {
		return nil, err
	}

	return &GitLabClient{
		client: c,
		config: config,
		queue:  newQueueDepthCache(config.GetQueueDepthCacheTTL()),
	}, nil
}

func (g *GitLabClient) Name() string {
	return g.config.Name
}

func (g *GitLabClient) Type() common.PlatformType {
	return common.PlatformGitLab
}

func (g *GitLabClient) URL() string {
	return strings.TrimRight(g.config.URL, "/")
}

func (g *GitLabClient) headers() http.Header {
	headers := make(http.Header)
	headers.Set("PRIVATE-TOKEN", g.config.Token)
	return headers
}

func (g *GitLabClient) IssueCredential(ctx context.Context, req common.CredentialRequest) (common.Credential, error) {
	description := req.Description
	if description == "" {
		description = req.RunnerName
	}

	request := createRunnerRequest{
		RunnerType:      gitlabRunnerTypes[g.config.Scope],
		Description:     description,
		Locked:          req.Locked,
		RunUntagged:     req.RunUntagged,
		TagList:         strings.Join(req.Labels, ","),
		AccessLevel:     req.AccessLevel,
		MaximumTimeout:  req.MaximumTimeout,
		MaintenanceNote: fmt.Sprintf("Ephemeral runner %s managed by %s pool %s", req.RunnerName, common.NAME, req.PoolName),
	}

	switch g.config.Scope {
	case common.ScopeGroup:
		request.GroupID = g.config.GroupID
	case common.ScopeProject:
		request.ProjectID = g.config.ProjectID
	}

	var response createRunnerResponse
	_, err := g.doJSON(
		ctx,
		apiEndpointCreateRunner,
		http.MethodPost,
		"api/v4/user/runners",
		g.headers(),
		&request,
		&response,
		http.StatusCreated, http.StatusOK,
	)
	if err != nil {
		return common.Credential{}, fmt.Errorf("creating runner %s: %w", req.RunnerName, err)
	}

	if response.Token == "" {
		return common.Credential{}, fmt.Errorf("creating runner %s: empty authentication token received", req.RunnerName)
	}

	g.logger.WithFields(logrus.Fields{
		"runner":    req.RunnerName,
		"remote_id": response.ID,
	}).Debugln("Runner record created")

	return common.Credential{
		Token:    response.Token,
		RemoteID: response.ID,
		Mode:     g.config.GetExecutionMode(),
	}, nil
}

func (g *GitLabClient) DeleteRunner(ctx context.Context, ref common.RunnerRef) error {
	if ref.RemoteID == 0 {
		g.logger.WithField("runner", ref.Name).Debugln("Runner has no remote record, nothing to delete")
		return nil
	}

	_, err := g.doJSON(
		ctx,
		apiEndpointDeleteRunner,
		http.MethodDelete,
		fmt.Sprintf("api/v4/runners/%d", ref.RemoteID),
		g.headers(),
		nil,
		nil,
		http.StatusNoContent, http.StatusOK,
	)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting runner %d: %w", ref.RemoteID, err)
	}

	return nil
}

// EstimateQueueDepth counts pending jobs whose tags are all offered by
// labels. Untagged jobs always match.
func (g *GitLabClient) EstimateQueueDepth(ctx context.Context, labels []string) (int, error) {
	return g.queue.get(labels, func() (int, error) {
		return g.countPendingJobs(ctx, labels)
	})
}

func (g *GitLabClient) jobsPath() string {
	if g.config.Scope == common.ScopeProject {
		return fmt.Sprintf("api/v4/projects/%d/jobs", g.config.ProjectID)
	}

	return "api/v4/jobs"
}

func (g *GitLabClient) countPendingJobs(ctx context.Context, labels []string) (int, error) {
	depth := 0
	page := "1"

	for i := 0; i < gitlabMaxQueuePages && page != ""; i++ {
		query := url.Values{}
		query.Set("scope[]", "pending")
		query.Set("per_page", strconv.Itoa(gitlabJobsPerPage))
		query.Set("page", page)

		var jobs []gitlabJob
		res, err := g.doJSON(
			ctx,
			apiEndpointListJobs,
			http.MethodGet,
			g.jobsPath()+"?"+query.Encode(),
			g.headers(),
			nil,
			&jobs,
			http.StatusOK,
		)
		if err != nil {
			return 0, fmt.Errorf("listing pending jobs: %w", err)
		}

		for _, job := range jobs {
			if labelsMatch(job.TagList, labels) {
				depth++
			}
		}

		page = res.Header.Get(gitlabNextPageHeader)
	}

	return depth, nil
}

func (g *GitLabClient) Version(ctx context.Context) (*version.Version, error) {
	var response versionResponse
	_, err := g.doJSON(ctx, apiEndpointVersion, http.MethodGet, "api/v4/version", g.headers(), nil, &response, http.StatusOK)
	if err != nil {
		return nil, err
	}

	return parseVersion(response.Version)
}

func (g *GitLabClient) MinimumVersion() *version.Version {
	return minimumGitLabVersion
}
