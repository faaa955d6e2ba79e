package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/helpers/retry"
)

const envPrefix = "RUNNER_POOL_METADATA"

var ErrMetadataTimeout = errors.New("timed out waiting for instance metadata")

type ClientConfig struct {
	Address        string        `envconfig:"ADDRESS" default:"169.254.169.254"`
	Namespace      string        `envconfig:"NAMESPACE" default:"runner-pool"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	Deadline       time.Duration `envconfig:"DEADLINE" default:"2m"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
}

// ClientConfigFromEnv reads the RUNNER_POOL_METADATA_* variables.
func ClientConfigFromEnv() (ClientConfig, error) {
	var config ClientConfig
	err := envconfig.Process(envPrefix, &config)
	return config, err
}

// Client is the guest side of the handoff channel.
type Client struct {
	url        string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

func NewClient(config ClientConfig, logger logrus.FieldLogger) *Client {
	base := config.Address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	namespace := config.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		url:        strings.TrimRight(base, "/") + pathPrefix + namespace,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch reads and validates the bundle once.
func (c *Client) Fetch(ctx context.Context) (*InstanceMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var bundle InstanceMetadata
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}

	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	return &bundle, nil
}

// Wait polls Fetch every interval until it succeeds. Failures are retried
// until deadline elapses, which yields ErrMetadataTimeout.
func (c *Client) Wait(ctx context.Context, interval time.Duration, deadline time.Duration) (*InstanceMetadata, error) {
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	tries := 0
	bundle, err := retry.NewWithValue(func(ctx context.Context) (*InstanceMetadata, error) {
		tries++
		return c.Fetch(ctx)
	}).
		WithFixedInterval(interval).
		WithCheck(func(_ int, err error) bool {
			c.logger.WithError(err).Debugln("Metadata not available yet")
			return waitCtx.Err() == nil
		}).
		RunValue(waitCtx)

	if err == nil {
		c.logger.WithField("tries", tries).Debugln("Metadata received")
		return bundle, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return nil, fmt.Errorf("%w after %s (%d tries): %v", ErrMetadataTimeout, deadline, tries, err)
}
