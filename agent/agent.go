package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/helpers/process"
	"gitlab.com/gitlab-org/runner-pool/metadata"
)

// ErrStopped is returned by a step the agent terminated itself.
var ErrStopped = errors.New("job runner stopped by shutdown signal")

// ErrRootCredential is returned when the job runner identity resolves to
// root and running as root wasn't allowed explicitly.
var ErrRootCredential = errors.New("job runner must not run as root")

//go:generate mockery --name=MetadataSource --inpackage --with-expecter=false
type MetadataSource interface {
	Wait(ctx context.Context, interval time.Duration, deadline time.Duration) (*metadata.InstanceMetadata, error)
}

type commandFactory func(executable string, args []string, options process.CommandOptions) process.Commander

type Agent struct {
	config   Config
	source   MetadataSource
	interval time.Duration
	deadline time.Duration
	logger   logrus.FieldLogger

	newCommand       commandFactory
	killWaiter       process.KillWaiter
	lookupCredential func(owner string, group string) (*process.Credential, error)
}

func New(config Config, source MetadataSource, client metadata.ClientConfig, logger logrus.FieldLogger) *Agent {
	config = config.withDefaults()

	return &Agent{
		config:           config,
		source:           source,
		interval:         client.PollInterval,
		deadline:         client.Deadline,
		logger:           logger,
		newCommand:       process.NewOSCmd,
		killWaiter:       process.NewOSKillWait(process.NewLogrusLogger(logger), config.GracePeriod, process.KillTimeout),
		lookupCredential: process.LookupCredential,
	}
}

// Run waits for the instance bundle and executes one job with it. A job
// runner terminated because ctx was canceled does not count as a failure.
func (a *Agent) Run(ctx context.Context) error {
	bundle, err := a.source.Wait(ctx, a.interval, a.deadline)
	if err != nil && ctx.Err() != nil {
		a.logger.Infoln("Stopped while waiting for instance metadata")
		return nil
	}
	if err != nil {
		return fmt.Errorf("waiting for instance metadata: %w", err)
	}

	logger := a.logger.WithFields(logrus.Fields{
		"platform":       bundle.Platform,
		"runner":         bundle.RunnerName,
		"pool":           bundle.PoolName,
		"correlation_id": bundle.CorrelationID,
		"mode":           bundle.Mode(),
	})
	logger.Infoln("Received instance metadata")

	runner, err := NewJobRunner(a.config, bundle)
	if err != nil {
		return err
	}

	credential, err := a.credential()
	if err != nil {
		return err
	}

	env, err := buildEnvironment(a.config, credential)
	if err != nil {
		return err
	}

	defer a.cleanup(logger, runner)

	if err := runner.Prepare(bundle); err != nil {
		return fmt.Errorf("preparing %s: %w", runner.Name(), err)
	}
	if credential != nil {
		if err := os.Chown(a.config.WorkDir, int(credential.UID), int(credential.GID)); err != nil {
			logger.WithError(err).Warningln("Failed to change owner of work directory")
		}
	}

	commands, err := runner.Commands(bundle)
	if err != nil {
		return fmt.Errorf("building %s commands: %w", runner.Name(), err)
	}

	for _, command := range commands {
		err := a.execute(ctx, logger, command, env, credential)
		if errors.Is(err, ErrStopped) {
			logger.Infoln("Job runner stopped")
			return nil
		}
		if err != nil {
			logger.WithError(err).Errorln("Job runner failed")
			return err
		}
	}

	logger.Infoln("Job runner finished")

	return nil
}

func (a *Agent) credential() (*process.Credential, error) {
	credential, err := a.lookupCredential(a.config.User, a.config.Group)
	if err != nil {
		return nil, fmt.Errorf("resolving job runner credential: %w", err)
	}

	if credential.UID == 0 && !a.config.AllowRoot {
		return nil, fmt.Errorf("user %q: %w", a.config.User, ErrRootCredential)
	}

	return credential, nil
}

func (a *Agent) execute(
	ctx context.Context,
	logger logrus.FieldLogger,
	command Command,
	env []string,
	credential *process.Credential,
) error {
	if ctx.Err() != nil {
		return ErrStopped
	}

	step := logger.WithField("command", command.Path)
	if len(command.Args) > 0 {
		step = step.WithField("step", command.Args[0])
	}

	output := step.WriterLevel(logrus.InfoLevel)
	defer output.Close()

	cmd := a.newCommand(command.Path, command.Args, process.CommandOptions{
		Dir:        command.Dir,
		Env:        env,
		Stdout:     output,
		Stderr:     output,
		Credential: credential,
	})

	step.Debugln("Starting job runner step")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", command.Path, err)
	}

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	select {
	case err := <-waitCh:
		if err != nil {
			return fmt.Errorf("%s exited: %w", command.Path, err)
		}
		return nil

	case <-ctx.Done():
		step.Infoln("Stopping job runner step")

		err := a.killWaiter.KillAndWait(cmd, waitCh)
		var killErr *process.KillProcessError
		if errors.As(err, &killErr) {
			return multierror.Append(ErrStopped, killErr)
		}

		return ErrStopped
	}
}

func (a *Agent) cleanup(logger logrus.FieldLogger, runner JobRunner) {
	var result *multierror.Error
	for _, file := range runner.StateFiles() {
		err := os.Remove(file)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.WithError(err).Warningln("Failed to remove job runner state")
	}
}
