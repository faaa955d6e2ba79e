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

func newTestGiteaClient(t *testing.T, serverURL string, scope string) *GiteaClient {
	t.Helper()

	c, err := NewGiteaClient(&common.PlatformConfig{
		Name:               "gitea",
		Type:               common.PlatformGitea,
		URL:                serverURL,
		Token:              "gitea-secret",
		Scope:              scope,
		Owner:              "acme",
		Repo:               "widgets",
		QueueDepthCacheTTL: noCache(),
	}, nil, testLogger())
	require.NoError(t, err)

	return c
}

func TestGiteaIssueCredential(t *testing.T) {
	tests := map[string]string{
		common.ScopeInstance: "/api/v1/admin/runners/registration-token",
		common.ScopeOrg:      "/api/v1/orgs/acme/actions/runners/registration-token",
		common.ScopeRepo:     "/api/v1/repos/acme/widgets/actions/runners/registration-token",
	}

	for scope, expectedPath := range tests {
		t.Run(scope, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, expectedPath, r.URL.Path)
				assert.Equal(t, "token gitea-secret", r.Header.Get("Authorization"))
				writeJSON(t, w, http.StatusOK, giteaRegistrationToken{Token: "reg-token"})
			}))
			defer server.Close()

			credential, err := newTestGiteaClient(t, server.URL, scope).IssueCredential(t.Context(), common.CredentialRequest{RunnerName: "r"})
			require.NoError(t, err)
			assert.Equal(t, "reg-token", credential.Token)
			assert.Equal(t, common.ExecutionModeTwoStep, credential.Mode)
			assert.Zero(t, credential.RemoteID)
		})
	}
}

func TestGiteaIssueCredentialEmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, giteaRegistrationToken{})
	}))
	defer server.Close()

	_, err := newTestGiteaClient(t, server.URL, common.ScopeInstance).IssueCredential(t.Context(), common.CredentialRequest{RunnerName: "r"})
	assert.ErrorContains(t, err, "empty registration token")
}

func TestGiteaDeleteRunnerResolvesName(t *testing.T) {
	for name, listing := range map[string]interface{}{
		"array response": []GiteaRunner{{ID: 11, Name: "runner-a"}, {ID: 12, Name: "runner-b"}},
		"object response": map[string]interface{}{
			"runners":     []GiteaRunner{{ID: 11, Name: "runner-a"}, {ID: 12, Name: "runner-b"}},
			"total_count": 2,
		},
	} {
		t.Run(name, func(t *testing.T) {
			var lists, deletes int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch {
				case r.Method == http.MethodGet && r.URL.Path == "/api/v1/orgs/acme/actions/runners":
					atomic.AddInt32(&lists, 1)
					writeJSON(t, w, http.StatusOK, listing)
				case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/orgs/acme/actions/runners/12":
					atomic.AddInt32(&deletes, 1)
					w.WriteHeader(http.StatusNoContent)
				default:
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
					w.WriteHeader(http.StatusTeapot)
				}
			}))
			defer server.Close()

			c := newTestGiteaClient(t, server.URL, common.ScopeOrg)

			require.NoError(t, c.DeleteRunner(t.Context(), common.RunnerRef{Name: "runner-b"}))
			assert.Equal(t, int32(1), atomic.LoadInt32(&lists))
			assert.Equal(t, int32(1), atomic.LoadInt32(&deletes))

			// runner-a was cached by the listing above
			_, ok := c.runnerIDs.Get("runner-a")
			assert.True(t, ok)
			_, ok = c.runnerIDs.Get("runner-b")
			assert.False(t, ok, "deleted runner must be evicted")
		})
	}
}

func TestGiteaDeleteRunnerNeverRegistered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(t, w, http.StatusOK, []GiteaRunner{})
	}))
	defer server.Close()

	assert.NoError(t, newTestGiteaClient(t, server.URL, common.ScopeInstance).DeleteRunner(t.Context(), common.RunnerRef{Name: "ghost"}))
}

func TestGiteaDeleteRunnerAlreadyDeleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/runners/5", r.URL.Path)
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "runner not found"})
	}))
	defer server.Close()

	assert.NoError(t, newTestGiteaClient(t, server.URL, common.ScopeInstance).DeleteRunner(t.Context(), common.RunnerRef{RemoteID: 5}))
}

func TestGiteaEstimateQueueDepth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repos/acme/widgets/actions/jobs", r.URL.Path)
		assert.Equal(t, "waiting", r.URL.Query().Get("status"))

		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"jobs": []giteaJob{
				{ID: 1, Status: "waiting", Labels: []string{"ubuntu-latest"}},
				{ID: 2, Status: "waiting", Labels: []string{"macos"}},
				{ID: 3, Status: "waiting", Labels: []string{"ubuntu-latest", "large"}},
			},
			"total_count": 3,
		})
	}))
	defer server.Close()

	c := newTestGiteaClient(t, server.URL, common.ScopeRepo)

	depth, err := c.EstimateQueueDepth(t.Context(), []string{"ubuntu-latest:docker://node:20-bookworm"})
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestDecodeGiteaRunners(t *testing.T) {
	runners, err := decodeGiteaRunners(json.RawMessage(` [{"id":1,"name":"a"}]`))
	require.NoError(t, err)
	assert.Len(t, runners, 1)

	runners, err = decodeGiteaRunners(json.RawMessage(`{"runners":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`))
	require.NoError(t, err)
	assert.Len(t, runners, 2)

	_, err = decodeGiteaRunners(json.RawMessage(`"nope"`))
	assert.Error(t, err)
}

func TestGiteaVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/version", r.URL.Path)
		writeJSON(t, w, http.StatusOK, versionResponse{Version: "1.22.3+dev-12-gabcdef"})
	}))
	defer server.Close()

	v, err := CheckVersion(t.Context(), newTestGiteaClient(t, server.URL, common.ScopeInstance))
	require.NoError(t, err)
	assert.Equal(t, "1.22.3", v.Core().String())
}
