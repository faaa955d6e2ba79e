package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/common"
	"gitlab.com/gitlab-org/runner-pool/helpers/process"
	"gitlab.com/gitlab-org/runner-pool/helpers/stringid"
	"gitlab.com/gitlab-org/runner-pool/metadata"
)

var ErrClosed = errors.New("provisioner is closed")

// Publisher makes a bundle reachable from the instance at address.
type Publisher interface {
	Publish(address string, bundle *metadata.InstanceMetadata) error
	Revoke(address string)
}

type commandFactory func(executable string, args []string, options process.CommandOptions) process.Commander

// Provisioner boots every instance by running the configured launcher
// command. The launcher process lives exactly as long as the instance does.
type Provisioner struct {
	config    common.LauncherConfig
	pool      string
	publisher Publisher
	addresses *addressPool
	logger    logrus.FieldLogger

	newCommand commandFactory
	killWaiter process.KillWaiter

	lock      sync.Mutex
	instances map[string]*instance
	closed    bool
}

type instance struct {
	id       string
	address  netip.Addr
	stateDir string

	cmd    process.Commander
	output io.Closer

	done     chan struct{}
	exitCode int
	waitErr  error

	teardownLock sync.Mutex
	tornDown     bool
}

func New(pool string, config common.LauncherConfig, publisher Publisher, logger logrus.FieldLogger) (*Provisioner, error) {
	if config.Command == "" {
		return nil, fmt.Errorf("pool %q: launcher command is not configured", pool)
	}

	network := config.Network
	if network == "" {
		network = common.DefaultLauncherNetwork
	}

	addresses, err := newAddressPool(network)
	if err != nil {
		return nil, fmt.Errorf("pool %q: %w", pool, err)
	}

	logger = logger.WithField("pool", pool)

	return &Provisioner{
		config:     config,
		pool:       pool,
		publisher:  publisher,
		addresses:  addresses,
		logger:     logger,
		newCommand: process.NewOSCmd,
		killWaiter: process.NewOSKillWait(
			process.NewLogrusLogger(logger),
			config.GetStopTimeout(),
			process.KillTimeout,
		),
		instances: make(map[string]*instance),
	}, nil
}

func (p *Provisioner) Create(ctx context.Context, spec common.InstanceSpec, bundle *metadata.InstanceMetadata) (common.Instance, error) {
	if err := ctx.Err(); err != nil {
		return common.Instance{}, err
	}

	p.lock.Lock()
	closed := p.closed
	p.lock.Unlock()
	if closed {
		return common.Instance{}, ErrClosed
	}

	address, err := p.addresses.Allocate()
	if err != nil {
		return common.Instance{}, err
	}

	inst := &instance{
		id:      stringid.InstanceID(p.pool),
		address: address,
		done:    make(chan struct{}),
	}

	logger := p.logger.WithFields(logrus.Fields{
		"instance": inst.id,
		"address":  address.String(),
	})

	if err := p.prepareStateDir(inst); err != nil {
		p.addresses.Release(address)
		return common.Instance{}, err
	}

	// The bundle has to be reachable before the guest boots.
	if err := p.publisher.Publish(address.String(), bundle); err != nil {
		p.cleanup(inst)
		return common.Instance{}, fmt.Errorf("publishing metadata for %s: %w", inst.id, err)
	}

	vars := p.variables(inst, spec)
	args := make([]string, 0, len(p.config.Args))
	for _, arg := range p.config.Args {
		args = append(args, os.Expand(arg, func(key string) string {
			if value, ok := vars[key]; ok {
				return value
			}
			// unknown variables are left for the launcher's own shell
			return "${" + key + "}"
		}))
	}

	output := logger.WriterLevel(logrus.DebugLevel)
	inst.output = output
	inst.cmd = p.newCommand(p.config.Command, args, process.CommandOptions{
		Dir:    inst.stateDir,
		Env:    p.environment(vars),
		Stdout: output,
		Stderr: output,
	})

	if err := inst.cmd.Start(); err != nil {
		p.publisher.Revoke(address.String())
		p.cleanup(inst)
		return common.Instance{}, fmt.Errorf("starting launcher for %s: %w", inst.id, err)
	}

	p.lock.Lock()
	p.instances[inst.id] = inst
	p.lock.Unlock()

	go inst.wait()

	logger.Infoln("Instance launched")

	return common.Instance{ID: inst.id, Address: address.String()}, nil
}

func (p *Provisioner) prepareStateDir(inst *instance) error {
	if p.config.StateDir == "" {
		return nil
	}

	inst.stateDir = filepath.Join(p.config.StateDir, inst.id)
	if err := os.MkdirAll(inst.stateDir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	return nil
}

func (p *Provisioner) variables(inst *instance, spec common.InstanceSpec) map[string]string {
	return map[string]string{
		"INSTANCE_ID":         inst.id,
		"INSTANCE_NAME":       spec.Name,
		"INSTANCE_ADDRESS":    inst.address.String(),
		"INSTANCE_GATEWAY":    p.addresses.Gateway().String(),
		"INSTANCE_PREFIX_LEN": strconv.Itoa(p.addresses.Bits()),
		"POOL":                p.pool,
		"IMAGE":               spec.Image,
		"KERNEL":              spec.Kernel,
		"KERNEL_ARGS":         spec.KernelArgs,
		"MEMORY_BYTES":        strconv.FormatInt(spec.MemoryBytes, 10),
		"MEMORY_MIB":          strconv.FormatInt(spec.MemoryBytes/units.MiB, 10),
		"VCPUS":               strconv.Itoa(spec.VCPUs),
		"STATE_DIR":           inst.stateDir,
	}
}

func (p *Provisioner) environment(vars map[string]string) []string {
	env := os.Environ()
	for key, value := range vars {
		env = append(env, "RUNNER_POOL_"+key+"="+value)
	}

	return append(env, p.config.Env...)
}

func (inst *instance) wait() {
	err := inst.cmd.Wait()
	_ = inst.output.Close()

	inst.exitCode, inst.waitErr = exitStatus(err)
	close(inst.done)
}

func isDone(inst *instance) bool {
	select {
	case <-inst.done:
		return true
	default:
		return false
	}
}

// exitStatus maps the launcher's wait error to an exit code. A launcher
// killed by a signal reports 128+signal, like a shell does.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, err
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), nil
	}

	return exitErr.ExitCode(), nil
}

func (p *Provisioner) get(instanceID string) (*instance, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	inst, ok := p.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrInstanceNotFound, instanceID)
	}

	return inst, nil
}

func (p *Provisioner) AwaitExit(ctx context.Context, instanceID string) (common.ExitStatus, error) {
	inst, err := p.get(instanceID)
	if err != nil {
		return common.ExitStatus{}, err
	}

	select {
	case <-inst.done:
		if inst.waitErr != nil {
			return common.ExitStatus{ExitCode: inst.exitCode}, fmt.Errorf("waiting for launcher: %w", inst.waitErr)
		}
		return common.ExitStatus{ExitCode: inst.exitCode}, nil
	case <-ctx.Done():
		return common.ExitStatus{}, ctx.Err()
	}
}

// Destroy stops the launcher, SIGTERM first and SIGKILL after the stop
// timeout, and releases everything the instance held.
func (p *Provisioner) Destroy(ctx context.Context, instanceID string) error {
	inst, err := p.get(instanceID)
	if err != nil {
		return err
	}

	return p.destroy(ctx, inst)
}

func (p *Provisioner) destroy(ctx context.Context, inst *instance) error {
	inst.teardownLock.Lock()
	defer inst.teardownLock.Unlock()

	if inst.tornDown {
		return nil
	}

	logger := p.logger.WithField("instance", inst.id)

	select {
	case <-inst.done:
	default:
		logger.Infoln("Stopping instance")

		waitCh := make(chan error, 1)
		go func() {
			select {
			case <-inst.done:
				waitCh <- inst.waitErr
			case <-ctx.Done():
				waitCh <- ctx.Err()
			}
		}()

		err := p.killWaiter.KillAndWait(inst.cmd, waitCh)

		var killErr *process.KillProcessError
		if errors.As(err, &killErr) {
			return fmt.Errorf("stopping instance %s: %w", inst.id, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !isDone(inst) {
			return fmt.Errorf("stopping instance %s: %w", inst.id, ctxErr)
		}
	}

	p.publisher.Revoke(inst.address.String())
	p.cleanup(inst)
	inst.tornDown = true

	p.lock.Lock()
	delete(p.instances, inst.id)
	p.lock.Unlock()

	logger.Debugln("Instance destroyed")

	return nil
}

func (p *Provisioner) cleanup(inst *instance) {
	p.addresses.Release(inst.address)

	if inst.stateDir == "" {
		return
	}

	if err := os.RemoveAll(inst.stateDir); err != nil {
		p.logger.WithField("instance", inst.id).WithError(err).Warningln("Failed to remove state directory")
	}
}

// Close destroys every instance still running and rejects new ones.
func (p *Provisioner) Close() error {
	p.lock.Lock()
	p.closed = true
	remaining := make([]*instance, 0, len(p.instances))
	for _, inst := range p.instances {
		remaining = append(remaining, inst)
	}
	p.lock.Unlock()

	var result *multierror.Error
	for _, inst := range remaining {
		if err := p.destroy(context.Background(), inst); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
