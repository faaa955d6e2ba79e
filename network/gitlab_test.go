//go:build !integration

package network

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/gitlab-org/runner-pool/common"
)

func newTestGitLabClient(t *testing.T, serverURL string, modify func(c *common.PlatformConfig)) *GitLabClient {
	t.Helper()

	config := &common.PlatformConfig{
		Name:               "gitlab",
		Type:               common.PlatformGitLab,
		URL:                serverURL,
		Token:              "glpat-secret",
		Scope:              common.ScopeInstance,
		QueueDepthCacheTTL: noCache(),
	}
	if modify != nil {
		modify(config)
	}

	c, err := NewGitLabClient(config, nil, testLogger())
	require.NoError(t, err)

	return c
}

func TestGitLabIssueCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v4/user/runners", r.URL.Path)
		assert.Equal(t, "glpat-secret", r.Header.Get("PRIVATE-TOKEN"))

		var req createRunnerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "group_type", req.RunnerType)
		assert.Equal(t, int64(42), req.GroupID)
		assert.Zero(t, req.ProjectID)
		assert.Equal(t, "linux,docker", req.TagList)
		assert.Equal(t, "runner-pool-small-1a2b3c4d", req.Description)
		assert.True(t, req.RunUntagged)
		assert.Equal(t, "ref_protected", req.AccessLevel)
		assert.Equal(t, 3600, req.MaximumTimeout)
		assert.Contains(t, req.MaintenanceNote, "pool small")

		writeJSON(t, w, http.StatusCreated, map[string]interface{}{"id": 7, "token": "glrt-abc"})
	}))
	defer server.Close()

	c := newTestGitLabClient(t, server.URL, func(c *common.PlatformConfig) {
		c.Scope = common.ScopeGroup
		c.GroupID = 42
	})

	credential, err := c.IssueCredential(t.Context(), common.CredentialRequest{
		RunnerName:     "runner-pool-small-1a2b3c4d",
		PoolName:       "small",
		Labels:         []string{"linux", "docker"},
		RunUntagged:    true,
		AccessLevel:    "ref_protected",
		MaximumTimeout: 3600,
	})
	require.NoError(t, err)

	assert.Equal(t, "glrt-abc", credential.Token)
	assert.Equal(t, int64(7), credential.RemoteID)
	assert.Equal(t, common.ExecutionModeOneStep, credential.Mode)
}

func TestGitLabIssueCredentialProjectScopeTwoStep(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createRunnerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "project_type", req.RunnerType)
		assert.Equal(t, int64(9), req.ProjectID)

		writeJSON(t, w, http.StatusCreated, map[string]interface{}{"id": 8, "token": "glrt-def"})
	}))
	defer server.Close()

	c := newTestGitLabClient(t, server.URL, func(c *common.PlatformConfig) {
		c.Scope = common.ScopeProject
		c.ProjectID = 9
		c.ExecutionMode = common.ExecutionModeTwoStep
	})

	credential, err := c.IssueCredential(t.Context(), common.CredentialRequest{RunnerName: "r"})
	require.NoError(t, err)
	assert.Equal(t, common.ExecutionModeTwoStep, credential.Mode)
}

func TestGitLabIssueCredentialErrors(t *testing.T) {
	tests := map[string]struct {
		handler       http.HandlerFunc
		expectedError string
	}{
		"empty token": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusCreated, map[string]interface{}{"id": 7})
			},
			expectedError: "empty authentication token",
		},
		"forbidden": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusForbidden, map[string]string{"message": "insufficient_scope"})
			},
			expectedError: "403 Forbidden (insufficient_scope)",
		},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			_, err := newTestGitLabClient(t, server.URL, nil).IssueCredential(t.Context(), common.CredentialRequest{RunnerName: "r"})
			assert.ErrorContains(t, err, tc.expectedError)
		})
	}
}

func TestGitLabDeleteRunner(t *testing.T) {
	tests := map[string]struct {
		status      int
		expectError bool
	}{
		"deleted":         {status: http.StatusNoContent},
		"already deleted": {status: http.StatusNotFound},
		"forbidden":       {status: http.StatusForbidden, expectError: true},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/api/v4/runners/7", r.URL.Path)
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			err := newTestGitLabClient(t, server.URL, nil).DeleteRunner(t.Context(), common.RunnerRef{RemoteID: 7})
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestGitLabDeleteRunnerWithoutRemoteID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer server.Close()

	assert.NoError(t, newTestGitLabClient(t, server.URL, nil).DeleteRunner(t.Context(), common.RunnerRef{Name: "r"}))
}

func TestGitLabEstimateQueueDepth(t *testing.T) {
	pages := map[string][]gitlabJob{
		"1": {
			{ID: 1, Status: "pending", TagList: []string{"linux"}},
			{ID: 2, Status: "pending", TagList: []string{"windows"}},
			{ID: 3, Status: "pending"},
		},
		"2": {
			{ID: 4, Status: "pending", TagList: []string{"linux", "docker"}},
			{ID: 5, Status: "pending", TagList: []string{"linux", "gpu"}},
		},
	}

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/api/v4/projects/9/jobs", r.URL.Path)
		assert.Equal(t, "pending", r.URL.Query().Get("scope[]"))

		page := r.URL.Query().Get("page")
		if page == "1" {
			w.Header().Set(gitlabNextPageHeader, "2")
		}
		writeJSON(t, w, http.StatusOK, pages[page])
	}))
	defer server.Close()

	c := newTestGitLabClient(t, server.URL, func(c *common.PlatformConfig) {
		c.Scope = common.ScopeProject
		c.ProjectID = 9
		c.QueueDepthCacheTTL = nil
	})

	depth, err := c.EstimateQueueDepth(t.Context(), []string{"linux", "docker"})
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	depth, err = c.EstimateQueueDepth(t.Context(), []string{"docker", "linux"})
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests), "second estimate must come from the cache")
}

func TestGitLabEstimateQueueDepthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/jobs", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestGitLabClient(t, server.URL, nil).EstimateQueueDepth(t.Context(), []string{"linux"})
	assert.ErrorContains(t, err, "listing pending jobs")
}

func TestGitLabVersion(t *testing.T) {
	tests := map[string]struct {
		version       string
		expectedError string
	}{
		"supported":           {version: "16.5.0-ee"},
		"minimum prerelease":  {version: "15.10.0-ee"},
		"too old":             {version: "15.9.2", expectedError: "at least 15.10.0 is required"},
		"unparseable version": {version: "latest", expectedError: `parsing version "latest"`},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v4/version", r.URL.Path)
				writeJSON(t, w, http.StatusOK, versionResponse{Version: tc.version})
			}))
			defer server.Close()

			_, err := CheckVersion(t.Context(), newTestGitLabClient(t, server.URL, nil))
			if tc.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.expectedError)
		})
	}
}
