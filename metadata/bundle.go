package metadata

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

const DefaultNamespace = "runner-pool"

const (
	ExecutionModeOneStep = "one-step"
	ExecutionModeTwoStep = "two-step"
)

// InstanceMetadata is the bundle handed to exactly one instance. Once
// published it is never modified.
type InstanceMetadata struct {
	Platform          string            `json:"platform"`
	InstanceURL       string            `json:"instance_url"`
	RegistrationToken string            `json:"registration_token"`
	RunnerName        string            `json:"runner_name"`
	Labels            []string          `json:"labels"`
	PoolName          string            `json:"pool_name"`
	CorrelationID     string            `json:"correlation_id"`
	ExecutionMode     string            `json:"execution_mode,omitempty"`
	RemoteID          int64             `json:"remote_id,omitempty"`
	Extras            map[string]string `json:"extras,omitempty"`
}

var fixedFields = map[string]bool{
	"platform":           true,
	"instance_url":       true,
	"registration_token": true,
	"runner_name":        true,
	"labels":             true,
	"pool_name":          true,
	"correlation_id":     true,
	"execution_mode":     true,
	"remote_id":          true,
	"extras":             true,
}

var ErrInvalidMetadata = errors.New("invalid instance metadata")

func (m *InstanceMetadata) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: empty bundle", ErrInvalidMetadata)
	}

	var result *multierror.Error

	required := map[string]string{
		"platform":           m.Platform,
		"instance_url":       m.InstanceURL,
		"registration_token": m.RegistrationToken,
		"runner_name":        m.RunnerName,
		"pool_name":          m.PoolName,
		"correlation_id":     m.CorrelationID,
	}
	for _, field := range []string{"platform", "instance_url", "registration_token", "runner_name", "pool_name", "correlation_id"} {
		if required[field] == "" {
			result = multierror.Append(result, fmt.Errorf("missing required field: %s", field))
		}
	}

	switch m.ExecutionMode {
	case "", ExecutionModeOneStep, ExecutionModeTwoStep:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown execution_mode %q", m.ExecutionMode))
	}

	for key := range m.Extras {
		if fixedFields[key] {
			result = multierror.Append(result, fmt.Errorf("extras key %q shadows a fixed field", key))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	return nil
}

// Mode returns the execution mode, defaulting to one-step.
func (m *InstanceMetadata) Mode() string {
	if m.ExecutionMode == "" {
		return ExecutionModeOneStep
	}

	return m.ExecutionMode
}
