//go:build !integration

package metadata

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger, _ := test.NewNullLogger()
	return NewServer("", logger)
}

func get(s *Server, remoteAddr string, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	req.Header.Set("Accept", "application/json")

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	return rec
}

func TestServerServesOnlyMatchingSource(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Publish("172.16.0.2", validBundle()))

	tests := map[string]struct {
		remoteAddr     string
		path           string
		expectedStatus int
	}{
		"matching address": {
			remoteAddr:     "172.16.0.2:43210",
			path:           "/latest/meta-data/runner-pool",
			expectedStatus: http.StatusOK,
		},
		"other instance": {
			remoteAddr:     "172.16.0.3:43210",
			path:           "/latest/meta-data/runner-pool",
			expectedStatus: http.StatusNotFound,
		},
		"wrong namespace": {
			remoteAddr:     "172.16.0.2:43210",
			path:           "/latest/meta-data/other",
			expectedStatus: http.StatusNotFound,
		},
		"unknown path": {
			remoteAddr:     "172.16.0.2:43210",
			path:           "/latest/user-data",
			expectedStatus: http.StatusNotFound,
		},
	}

	for tn, tt := range tests {
		t.Run(tn, func(t *testing.T) {
			rec := get(s, tt.remoteAddr, tt.path)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}

			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var bundle InstanceMetadata
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
			assert.Equal(t, *validBundle(), bundle)
		})
	}
}

func TestServerIgnoresForwardedHeaders(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Publish("172.16.0.2", validBundle()))

	req := httptest.NewRequest(http.MethodGet, "/latest/meta-data/runner-pool", nil)
	req.RemoteAddr = "172.16.0.9:1234"
	req.Header.Set("X-Forwarded-For", "172.16.0.2")

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerPublishIsWriteOnce(t *testing.T) {
	s := newTestServer(t)

	require.NoError(t, s.Publish("172.16.0.2", validBundle()))

	other := validBundle()
	other.RegistrationToken = "glrt-other"
	err := s.Publish("172.16.0.2:80", other)
	assert.ErrorIs(t, err, ErrAlreadyPublished)

	rec := get(s, "172.16.0.2:1", "/latest/meta-data/runner-pool")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "glrt-token")

	s.Revoke("172.16.0.2")
	assert.Equal(t, 0, s.Published())
	assert.Equal(t, http.StatusNotFound, get(s, "172.16.0.2:1", "/latest/meta-data/runner-pool").Code)

	require.NoError(t, s.Publish("172.16.0.2", other), "address can be reused after revoke")
}

func TestServerPublishValidation(t *testing.T) {
	s := newTestServer(t)

	assert.Error(t, s.Publish("not-an-ip", validBundle()))

	invalid := validBundle()
	invalid.RunnerName = ""
	assert.ErrorIs(t, s.Publish("172.16.0.2", invalid), ErrInvalidMetadata)
	assert.Equal(t, 0, s.Published())
}
