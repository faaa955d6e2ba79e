package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"gitlab.com/gitlab-org/runner-pool/common"
	"gitlab.com/gitlab-org/runner-pool/network"
	"gitlab.com/gitlab-org/runner-pool/pool"
)

var ErrPoolNotFound = errors.New("pool not found")

// ProvisionerFactory builds the provisioner owned by one pool.
type ProvisionerFactory func(config *common.PoolConfig) (common.Provisioner, error)

type PlatformFactory func(config *common.PlatformConfig) (common.Platform, error)

type Option func(o *Orchestrator)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithPlatformFactory replaces the HTTP platform clients.
func WithPlatformFactory(factory PlatformFactory) Option {
	return func(o *Orchestrator) {
		o.platformFactory = factory
	}
}

// Orchestrator runs every configured pool independently of the others.
type Orchestrator struct {
	systemID string
	logger   logrus.FieldLogger

	platformFactory PlatformFactory
	apiRequests     *network.APIRequestsCollector
	metrics         *pool.PrometheusMetrics

	pools  []*pool.Pool
	byName map[string]*pool.Pool

	lock    sync.Mutex
	cancel  context.CancelFunc
	wg      *conc.WaitGroup
	errs    *multierror.Error
	started bool
}

func New(config *common.Config, provisioners ProvisionerFactory, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		systemID:    uuid.NewString(),
		logger:      logrus.StandardLogger(),
		apiRequests: network.NewAPIRequestsCollector(),
		metrics:     pool.NewPrometheusMetrics(),
		byName:      make(map[string]*pool.Pool),
		wg:          conc.NewWaitGroup(),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.logger = o.logger.WithField("system_id", o.systemID)

	if o.platformFactory == nil {
		platforms := network.NewPlatforms(o.apiRequests, o.logger)
		o.platformFactory = platforms.Get
	}

	var created []common.Provisioner
	closeCreated := func() {
		for _, provisioner := range created {
			_ = provisioner.Close()
		}
	}

	for _, poolConfig := range config.Pools {
		platformConfig, err := config.PlatformByName(poolConfig.Platform)
		if err != nil {
			closeCreated()
			return nil, fmt.Errorf("pool %q: %w", poolConfig.Name, err)
		}

		platform, err := o.platformFactory(platformConfig)
		if err != nil {
			closeCreated()
			return nil, fmt.Errorf("pool %q: %w", poolConfig.Name, err)
		}

		provisioner, err := provisioners(poolConfig)
		if err != nil {
			closeCreated()
			return nil, fmt.Errorf("pool %q: creating provisioner: %w", poolConfig.Name, err)
		}
		created = append(created, provisioner)

		p := pool.New(
			poolConfig,
			platform,
			provisioner,
			pool.WithLogger(o.logger),
			pool.WithMetrics(o.metrics),
			pool.WithShutdownTimeout(config.GetShutdownTimeout()),
			pool.WithTeardownConcurrency(config.GetTeardownConcurrency()),
		)

		o.pools = append(o.pools, p)
		o.byName[p.Name()] = p
	}

	return o, nil
}

func (o *Orchestrator) SystemID() string {
	return o.systemID
}

// Collectors returns the prometheus collectors of all pools and platform
// clients.
func (o *Orchestrator) Collectors() []prometheus.Collector {
	return []prometheus.Collector{o.metrics, o.apiRequests}
}

func (o *Orchestrator) Pools() []*pool.Pool {
	return o.pools
}

func (o *Orchestrator) Pool(name string) (*pool.Pool, error) {
	p, ok := o.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, name)
	}

	return p, nil
}

func (o *Orchestrator) Status() []pool.Status {
	return lo.Map(o.pools, func(p *pool.Pool, _ int) pool.Status {
		return p.Status()
	})
}

// Start runs every pool in its own goroutine. A pool that fails only
// affects itself.
func (o *Orchestrator) Start(ctx context.Context) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.started {
		return
	}
	o.started = true

	ctx, o.cancel = context.WithCancel(ctx)

	o.logger.WithField("pools", len(o.pools)).Infoln("Starting orchestrator")

	for _, p := range o.pools {
		o.wg.Go(func() {
			if err := p.Run(ctx); err != nil {
				o.logger.WithField("pool", p.Name()).WithError(err).Errorln("Pool shut down with errors")

				o.lock.Lock()
				o.errs = multierror.Append(o.errs, fmt.Errorf("pool %q: %w", p.Name(), err))
				o.lock.Unlock()
			}
		})
	}
}

// Stop shuts every pool down and waits until they are done or ctx expires.
// Each pool bounds its own teardown by the configured shutdown timeout.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.lock.Lock()
	cancel := o.cancel
	o.lock.Unlock()

	if cancel == nil {
		return nil
	}

	o.logger.Infoln("Stopping orchestrator")
	cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for pools to stop: %w", ctx.Err())
	}

	o.lock.Lock()
	defer o.lock.Unlock()

	o.logger.Infoln("Orchestrator stopped")

	return o.errs.ErrorOrNil()
}
