package pool

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	concpool "github.com/sourcegraph/conc/pool"

	"gitlab.com/gitlab-org/runner-pool/common"
	"gitlab.com/gitlab-org/runner-pool/helpers/stringid"
	"gitlab.com/gitlab-org/runner-pool/metadata"
)

const (
	queueDepthTimeout    = 10 * time.Second
	remoteDeletedTimeout = common.DefaultNetworkClientTimeout
)

// Status is a point in time view of one pool.
type Status struct {
	Name       string       `json:"name"`
	Platform   string       `json:"platform"`
	Paused     bool         `json:"paused"`
	MinRunners int          `json:"min_runners"`
	MaxRunners int          `json:"max_runners"`
	Counts     Counts       `json:"counts"`
	Runners    []RunnerInfo `json:"runners,omitempty"`
}

type Option func(p *Pool)

func WithMetrics(metrics MetricsSink) Option {
	return func(p *Pool) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(p *Pool) {
		if timeout > 0 {
			p.shutdownTimeout = timeout
		}
	}
}

func WithTeardownConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.teardownConcurrency = n
		}
	}
}

// Pool keeps between MinRunners and MaxRunners single-use runners alive for
// one platform scope. Scaling decisions are only ever taken by the Run
// goroutine.
type Pool struct {
	config      *common.PoolConfig
	platform    common.Platform
	provisioner common.Provisioner

	registry *registry
	metrics  MetricsSink
	logger   logrus.FieldLogger

	shutdownTimeout     time.Duration
	teardownConcurrency int

	paused      atomic.Bool
	scaleSignal chan struct{}

	provisioning sync.WaitGroup
	watchers     sync.WaitGroup
}

func New(config *common.PoolConfig, platform common.Platform, provisioner common.Provisioner, opts ...Option) *Pool {
	p := &Pool{
		config:              config,
		platform:            platform,
		provisioner:         provisioner,
		registry:            newRegistry(),
		metrics:             noopMetrics{},
		logger:              logrus.StandardLogger(),
		shutdownTimeout:     common.DefaultShutdownTimeout,
		teardownConcurrency: common.DefaultTeardownConcurrency,
		scaleSignal:         make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.WithField("pool", config.Name)

	return p
}

func (p *Pool) Name() string {
	return p.config.Name
}

// Run drives the scaling loop until ctx is done and then tears every
// tracked instance down. The teardown gets its own bounded context.
func (p *Pool) Run(ctx context.Context) error {
	p.metrics.PoolConfigured(p.Name(), p.config.GetMinRunners(), p.config.GetMaxRunners())
	p.metrics.PoolStatus(p.Name(), !p.IsPaused())

	interval := p.config.GetScaleInterval()
	p.logger.WithField("interval", interval).Info("Starting pool")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.shutdownTimeout)
			defer cancel()

			return p.shutdown(shutdownCtx)
		case <-ticker.C:
			p.tick(ctx)
		case <-p.scaleSignal:
			p.tick(ctx)
		}
	}
}

func (p *Pool) tick(ctx context.Context) {
	counts := p.registry.counts()
	p.metrics.RunnerCounts(p.Name(), counts)

	if !p.IsPaused() && ctx.Err() == nil {
		target := targetSize(p.config.GetMinRunners(), p.config.GetMaxRunners(), p.queueDepth(ctx))

		for inFlight := counts.InFlight(); inFlight < target; inFlight++ {
			if err := p.spawn(ctx); err != nil {
				p.logger.WithError(err).Warningln("Failed to spawn runner")
			}
		}
	}

	for _, info := range p.registry.prune() {
		p.logger.WithFields(logrus.Fields{
			"runner": info.ID,
			"state":  info.State,
		}).Debugln("Pruned runner")
	}
}

func (p *Pool) queueDepth(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, p.queueDepthTimeout())
	defer cancel()

	depth, err := p.platform.EstimateQueueDepth(ctx, p.config.Labels)
	if err != nil {
		p.logger.WithError(err).Warningln("Failed to estimate queue depth, assuming no demand")
		return 0
	}

	return depth
}

// queueDepthTimeout bounds the demand query to half a scaling interval, so
// a slow platform API can't hold the loop past its next tick.
func (p *Pool) queueDepthTimeout() time.Duration {
	return min(queueDepthTimeout, p.config.GetScaleInterval()/2)
}

// targetSize is the number of runners the pool should have in flight for
// the given queue depth.
func targetSize(minRunners, maxRunners, queueDepth int) int {
	target := minRunners + max(0, queueDepth)
	return max(minRunners, min(target, maxRunners))
}

// spawn records the runner before anything is provisioned, so that the
// next tick already counts it.
func (p *Pool) spawn(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	info := RunnerInfo{
		ID:    stringid.New(),
		Name:  stringid.RunnerName(common.NAME, p.Name()),
		State: StateStarting,
	}

	if err := p.registry.insert(info, cancel); err != nil {
		cancel()
		return err
	}

	p.metrics.ScaleRequested(p.Name())
	p.logger.WithFields(logrus.Fields{
		"runner": info.ID,
		"name":   info.Name,
	}).Infoln("Spawning runner")

	p.provisioning.Add(1)
	go func() {
		defer p.provisioning.Done()
		defer cancel()

		instance, ok := p.provision(runCtx, info)
		if !ok {
			return
		}

		p.watchers.Add(1)
		go p.watch(ctx, info.ID, instance)
	}()

	return nil
}

func (p *Pool) provision(runCtx context.Context, info RunnerInfo) (common.Instance, bool) {
	started := time.Now()
	logger := p.logger.WithField("runner", info.ID)

	ctx := runCtx
	if timeout := p.config.GetProvisionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	credential, err := p.platform.IssueCredential(ctx, p.credentialRequest(info))
	if err != nil {
		p.abortProvisioning(runCtx, ctx, info, FailureReasonCredentialFailed, err)
		return common.Instance{}, false
	}

	_ = p.registry.update(info.ID, func(rn *runner) {
		rn.credentialIssued = true
		rn.info.RemoteID = credential.RemoteID
	})
	info.RemoteID = credential.RemoteID

	spec, err := p.config.InstanceSpec(info.Name)
	if err != nil {
		p.abortProvisioning(runCtx, ctx, info, FailureReasonCreateFailed, err)
		return common.Instance{}, false
	}

	instance, err := p.provisioner.Create(ctx, spec, p.bundle(info, credential))
	if err != nil {
		p.abortProvisioning(runCtx, ctx, info, FailureReasonCreateFailed, err)
		return common.Instance{}, false
	}

	logger = logger.WithField("instance", instance.ID)

	err = p.setState(info.ID, StateIdle, func(ri *RunnerInfo) {
		ri.InstanceID = instance.ID
		ri.Address = instance.Address
	})
	if err != nil {
		// Force stopped while the instance was booting.
		logger.WithError(err).Infoln("Runner stopped during provisioning, tearing instance down")

		teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), p.shutdownTimeout)
		defer cancel()

		p.finish(info.ID, StateStopped, "", p.teardown(teardownCtx, info, instance.ID))
		return common.Instance{}, false
	}

	p.metrics.ScaleSucceeded(p.Name(), time.Since(started))
	logger.WithField("address", instance.Address).Infoln("Runner is idle")

	return instance, true
}

func (p *Pool) credentialRequest(info RunnerInfo) common.CredentialRequest {
	return common.CredentialRequest{
		RunnerName:     info.Name,
		PoolName:       p.Name(),
		Description:    p.config.Description,
		Labels:         p.config.Labels,
		RunUntagged:    p.config.RunUntagged,
		Locked:         p.config.Locked,
		AccessLevel:    p.config.AccessLevel,
		MaximumTimeout: p.config.MaximumTimeout,
	}
}

func (p *Pool) bundle(info RunnerInfo, credential common.Credential) *metadata.InstanceMetadata {
	var extras map[string]string
	if len(p.config.Instance.Metadata) > 0 || len(credential.Extras) > 0 {
		extras = make(map[string]string)
		maps.Copy(extras, p.config.Instance.Metadata)
		maps.Copy(extras, credential.Extras)
	}

	return &metadata.InstanceMetadata{
		Platform:          string(p.platform.Type()),
		InstanceURL:       p.platform.URL(),
		RegistrationToken: credential.Token,
		RunnerName:        info.Name,
		Labels:            p.config.Labels,
		PoolName:          p.Name(),
		CorrelationID:     info.ID,
		ExecutionMode:     string(credential.Mode),
		RemoteID:          credential.RemoteID,
		Extras:            extras,
	}
}

// abortProvisioning cleans up after a failed provisioning attempt. A runner
// that was stopped on purpose ends stopped, everything else ends failed.
func (p *Pool) abortProvisioning(runCtx, ctx context.Context, info RunnerInfo, reason string, cause error) {
	_ = p.deleteRemote(runCtx, info)

	current, _ := p.registry.get(info.ID)
	if current.State == StateStopping || runCtx.Err() != nil {
		p.finish(info.ID, StateStopped, "", nil)
		return
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = FailureReasonProvisionTimeout
	}

	p.logger.WithFields(logrus.Fields{
		"runner": info.ID,
		"reason": reason,
	}).WithError(cause).Errorln("Failed to provision runner")

	p.metrics.ScaleFailed(p.Name(), p.platform.Name(), reason)

	if err := p.setState(info.ID, StateFailed, withReason(fmt.Sprintf("%s: %v", reason, cause))); err != nil {
		p.logger.WithField("runner", info.ID).WithError(err).Debugln("Failed to mark runner as failed")
	}
}

// watch waits for the instance to exit on its own. When ctx is done first
// the instance is left to shutdown.
func (p *Pool) watch(ctx context.Context, id string, instance common.Instance) {
	defer p.watchers.Done()

	logger := p.logger.WithFields(logrus.Fields{
		"runner":   id,
		"instance": instance.ID,
	})

	status, err := p.provisioner.AwaitExit(ctx, instance.ID)
	if ctx.Err() != nil {
		return
	}

	info, ok := p.registry.get(id)
	if !ok || info.State.IsTerminal() {
		return
	}

	next, reason := StateStopped, ""
	switch {
	case info.State == StateStopping:
	case err != nil:
		next, reason = StateFailed, err.Error()
	case !status.Success():
		next, reason = StateFailed, fmt.Sprintf("exit code %d", status.ExitCode)
	}

	logger.WithFields(logrus.Fields{
		"exit_code": status.ExitCode,
		"state":     info.State,
	}).Infoln("Instance exited")

	if info.State != StateStopping {
		if err := p.setState(id, StateStopping, nil); err != nil {
			logger.WithError(err).Debugln("Runner is already being stopped")
		}
	}

	teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.shutdownTimeout)
	defer cancel()

	teardownErr := p.teardown(teardownCtx, info, instance.ID)
	if next == StateFailed {
		p.metrics.ScaleFailed(p.Name(), p.platform.Name(), FailureReasonRunnerFailed)
	}

	p.finish(id, next, reason, teardownErr)
	p.metrics.InstanceExited(p.Name(), time.Since(info.CreatedAt))

	p.signalScale()
}

func (p *Pool) signalScale() {
	select {
	case p.scaleSignal <- struct{}{}:
	default:
	}
}

// teardown destroys the instance and deletes the remote runner record.
func (p *Pool) teardown(ctx context.Context, info RunnerInfo, instanceID string) error {
	var result *multierror.Error

	if instanceID != "" {
		err := p.provisioner.Destroy(ctx, instanceID)
		if err != nil && !errors.Is(err, common.ErrInstanceNotFound) {
			result = multierror.Append(result, fmt.Errorf("destroying instance %s: %w", instanceID, err))
		}
	}

	if err := p.deleteRemote(ctx, info); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func (p *Pool) deleteRemote(ctx context.Context, info RunnerInfo) error {
	if !p.registry.claimRemoteDeletion(info.ID) {
		return nil
	}

	current, ok := p.registry.get(info.ID)
	if ok {
		info = current
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteDeletedTimeout)
	defer cancel()

	err := p.platform.DeleteRunner(ctx, common.RunnerRef{RemoteID: info.RemoteID, Name: info.Name})
	if err != nil {
		p.logger.WithField("runner", info.ID).WithError(err).Warningln("Failed to delete remote runner record")
		return fmt.Errorf("deleting remote runner %s: %w", info.Name, err)
	}

	return nil
}

// finish moves a runner into a terminal state, through stopping when the
// runner was still live. Teardown errors turn stopped into failed.
func (p *Pool) finish(id string, next State, reason string, teardownErr error) {
	if teardownErr != nil {
		next = StateFailed
		reason = strings.TrimSpace(strings.Join([]string{reason, teardownErr.Error()}, " "))
	}

	if info, ok := p.registry.get(id); ok && info.State != StateStopping && !info.State.IsTerminal() {
		_ = p.setState(id, StateStopping, nil)
	}

	if err := p.setState(id, next, withReason(reason)); err != nil {
		p.logger.WithField("runner", id).WithError(err).Debugln("Runner already finished")
	}
}

func withReason(reason string) func(info *RunnerInfo) {
	return func(info *RunnerInfo) {
		if reason != "" {
			info.Reason = reason
		}
	}
}

func (p *Pool) setState(id string, next State, mutate func(info *RunnerInfo)) error {
	_, err := p.transition(id, next, mutate)
	return err
}

func (p *Pool) transition(id string, next State, mutate func(info *RunnerInfo)) (State, error) {
	prev, err := p.registry.transition(id, next, mutate)
	if err != nil {
		return prev, err
	}

	p.metrics.StateTransition(p.Name(), prev, next)
	p.logger.WithFields(logrus.Fields{
		"runner": id,
		"from":   prev,
		"state":  next,
	}).Debugln("Runner state changed")

	return prev, nil
}

// ForceStop tears one runner down through the same path as a natural exit.
func (p *Pool) ForceStop(ctx context.Context, id string) error {
	prev, err := p.transition(id, StateStopping, nil)
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"runner": id,
		"state":  prev,
	}).Infoln("Force stopping runner")

	info, _ := p.registry.get(id)
	if prev == StateStarting || info.InstanceID == "" {
		p.registry.cancelProvisioning(id)
		return nil
	}

	err = p.provisioner.Destroy(ctx, info.InstanceID)
	if err != nil && !errors.Is(err, common.ErrInstanceNotFound) {
		return fmt.Errorf("destroying instance %s: %w", info.InstanceID, err)
	}

	return nil
}

// MarkBusy records that the runner claimed a job.
func (p *Pool) MarkBusy(id string) error {
	return p.setState(id, StateBusy, nil)
}

func (p *Pool) Pause() {
	p.paused.Store(true)
	p.metrics.PoolStatus(p.Name(), false)
	p.logger.Infoln("Pool paused")
}

func (p *Pool) Resume() {
	p.paused.Store(false)
	p.metrics.PoolStatus(p.Name(), true)
	p.logger.Infoln("Pool resumed")
	p.signalScale()
}

func (p *Pool) IsPaused() bool {
	return p.paused.Load()
}

func (p *Pool) Runner(id string) (RunnerInfo, bool) {
	return p.registry.get(id)
}

func (p *Pool) Runners() []RunnerInfo {
	return p.registry.snapshot()
}

func (p *Pool) Status() Status {
	return Status{
		Name:       p.Name(),
		Platform:   p.platform.Name(),
		Paused:     p.IsPaused(),
		MinRunners: p.config.GetMinRunners(),
		MaxRunners: p.config.GetMaxRunners(),
		Counts:     p.registry.counts(),
		Runners:    p.registry.snapshot(),
	}
}

func (p *Pool) shutdown(ctx context.Context) error {
	p.logger.Infoln("Shutting down pool")

	if !waitGroupWait(ctx, &p.provisioning) {
		p.logger.Warningln("Timed out waiting for provisioning to finish")
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)

	workers := concpool.New().WithMaxGoroutines(p.teardownConcurrency)
	for _, info := range p.registry.live() {
		workers.Go(func() {
			if err := p.shutdownRunner(ctx, info); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		})
	}
	workers.Wait()

	if !waitGroupWait(ctx, &p.watchers) {
		p.logger.Warningln("Timed out waiting for instance watchers")
	}

	if err := p.provisioner.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing provisioner: %w", err))
	}

	p.metrics.RunnerCounts(p.Name(), p.registry.counts())

	return result.ErrorOrNil()
}

func (p *Pool) shutdownRunner(ctx context.Context, info RunnerInfo) error {
	if info.State == StateStarting {
		// Still provisioning after the wait timed out.
		_ = p.setState(info.ID, StateStopping, nil)
		p.registry.cancelProvisioning(info.ID)
		return nil
	}

	if info.State != StateStopping {
		if err := p.setState(info.ID, StateStopping, nil); err != nil {
			return nil
		}
	}

	err := p.teardown(ctx, info, info.InstanceID)
	p.finish(info.ID, StateStopped, "shutdown", err)

	return err
}

func waitGroupWait(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
