package pool

import (
	"context"
	"time"
)

// RunnerInfo is the orchestrator side record of one single-use runner.
type RunnerInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	State          State     `json:"state"`
	InstanceID     string    `json:"instance_id,omitempty"`
	Address        string    `json:"address,omitempty"`
	RemoteID       int64     `json:"remote_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	StateChangedAt time.Time `json:"state_changed_at"`
}

// Counts summarizes the registry. Active counts only booted runners while
// InFlight also includes the ones still provisioning.
type Counts struct {
	Starting int `json:"starting"`
	Idle     int `json:"idle"`
	Busy     int `json:"busy"`
	Stopping int `json:"stopping"`
	Total    int `json:"total"`
}

func (c Counts) Active() int {
	return c.Idle + c.Busy
}

func (c Counts) InFlight() int {
	return c.Starting + c.Idle + c.Busy
}

type runner struct {
	info RunnerInfo

	// credentialIssued is set once a remote record may exist for the runner.
	credentialIssued bool
	remoteDeleted    bool

	cancel context.CancelFunc
}
