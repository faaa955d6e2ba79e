package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"gitlab.com/gitlab-org/runner-pool/common"
	prometheus_helper "gitlab.com/gitlab-org/runner-pool/helpers/prometheus"
	"gitlab.com/gitlab-org/runner-pool/helpers/sentry"
	service_helpers "gitlab.com/gitlab-org/runner-pool/helpers/service"
	"gitlab.com/gitlab-org/runner-pool/log"
	"gitlab.com/gitlab-org/runner-pool/metadata"
	"gitlab.com/gitlab-org/runner-pool/orchestrator"
	"gitlab.com/gitlab-org/runner-pool/provisioner/launcher"
	"gitlab.com/gitlab-org/runner-pool/server"
)

// time on top of shutdown_timeout for the servers to drain
const shutdownGrace = 10 * time.Second

type RunCommand struct {
	configOptions

	ServiceName      string `short:"n" long:"service" description:"Use different names for different services"`
	WorkingDirectory string `short:"d" long:"working-directory" description:"Specify custom working directory"`
	Syslog           bool   `long:"syslog" env:"LOG_SYSLOG" description:"Log to system service logger"`
	ListenAddress    string `long:"listen-address" env:"LISTEN_ADDRESS" description:"Metrics / pprof server listening address"`
	APIAddress       string `long:"api-address" env:"API_ADDRESS" description:"Status API listening address"`

	sentryLogHook     sentry.LogHook
	prometheusLogHook prometheus_helper.LogHook

	orchestrator   *orchestrator.Orchestrator
	metadataServer *metadata.Server

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc

	// stopSignals catches SIGTERM, SIGQUIT and Interrupt
	stopSignals chan os.Signal
	stopSignal  os.Signal
}

func (mr *RunCommand) log() *logrus.Entry {
	return logrus.WithField("config", mr.ConfigFile)
}

// Start implements service.Interface. It must not block: the servers and
// the pools run in the background until Stop.
func (mr *RunCommand) Start(_ service.Service) error {
	mr.stopSignals = make(chan os.Signal, 2)
	signal.Notify(mr.stopSignals, syscall.SIGQUIT, syscall.SIGTERM, os.Interrupt)

	mr.log().Infoln("Starting", common.AppVersion.Line())

	if len(mr.WorkingDirectory) > 0 {
		if err := os.Chdir(mr.WorkingDirectory); err != nil {
			return err
		}
	}

	if err := mr.loadConfig(); err != nil {
		return err
	}

	config := mr.getConfig()

	mr.metadataServer = metadata.NewServer(config.GetMetadataNamespace(), logrus.WithField("component", "metadata"))

	o, err := orchestrator.New(config, mr.newProvisioner, orchestrator.WithLogger(logrus.StandardLogger()))
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	mr.orchestrator = o

	metricsMux, err := server.NewMetricsMux(mr.collectors()...)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	servers := []struct {
		name    string
		address string
		serve   func(ctx context.Context, listener net.Listener) error
	}{
		{
			name:    "api",
			address: mr.apiAddress(config),
			serve: func(ctx context.Context, listener net.Listener) error {
				api := server.New(server.FromOrchestrator(o), logrus.WithField("component", "api"))
				return server.Serve(ctx, listener, api, logrus.WithField("component", "api"))
			},
		},
		{
			name:    "metrics",
			address: mr.listenAddress(config),
			serve: func(ctx context.Context, listener net.Listener) error {
				return server.Serve(ctx, listener, metricsMux, logrus.WithField("component", "metrics"))
			},
		},
		{
			name:    "metadata",
			address: config.GetMetadataAddress(),
			serve: func(ctx context.Context, listener net.Listener) error {
				return server.Serve(ctx, listener, mr.metadataServer, logrus.WithField("component", "metadata"))
			},
		},
	}

	// listeners are created up front so that an address in use fails the start
	listeners := make([]net.Listener, len(servers))
	for i, srv := range servers {
		listener, err := net.Listen("tcp", srv.address)
		if err != nil {
			for _, l := range listeners[:i] {
				_ = l.Close()
			}
			return fmt.Errorf("listening for %s server on %s: %w", srv.name, srv.address, err)
		}
		listeners[i] = listener
	}

	ctx, cancel := context.WithCancel(context.Background())
	mr.cancel = cancel
	mr.group, mr.groupCtx = errgroup.WithContext(ctx)

	for i, srv := range servers {
		listener := listeners[i]
		serve := srv.serve
		mr.group.Go(func() error {
			return serve(mr.groupCtx, listener)
		})
	}

	o.Start(ctx)

	mr.log().WithField("system_id", o.SystemID()).Infoln("Orchestrator started")

	return nil
}

func (mr *RunCommand) loadConfig() error {
	if err := mr.configOptions.loadConfig(); err != nil {
		return err
	}

	config := mr.getConfig()
	if err := log.Configuration().ApplyConfigFile(config.LogLevel, config.LogFormat); err != nil {
		return err
	}

	mr.log().Println("Configuration loaded")

	if config.SentryDSN != nil {
		var err error
		mr.sentryLogHook, err = sentry.NewLogHook(*config.SentryDSN)
		if err != nil {
			mr.log().WithError(err).Errorln("Sentry failure")
		}
	} else {
		mr.sentryLogHook = sentry.LogHook{}
	}

	return nil
}

func (mr *RunCommand) newProvisioner(config *common.PoolConfig) (common.Provisioner, error) {
	return launcher.New(
		config.Name,
		config.Launcher,
		mr.metadataServer,
		logrus.WithFields(logrus.Fields{"pool": config.Name, "component": "launcher"}),
	)
}

func (mr *RunCommand) collectors() []prometheus.Collector {
	collectors := []prometheus.Collector{
		// Metrics about the program's build version.
		common.AppVersion.NewMetricsCollector(),
		// Metrics about caught errors
		&mr.prometheusLogHook,
	}
	if mr.configAccessCollector != nil {
		collectors = append(collectors, mr.configAccessCollector)
	}

	return append(collectors, mr.orchestrator.Collectors()...)
}

func (mr *RunCommand) apiAddress(config *common.Config) string {
	if mr.APIAddress != "" {
		return mr.APIAddress
	}

	return config.GetAPIAddress()
}

func (mr *RunCommand) listenAddress(config *common.Config) string {
	if mr.ListenAddress != "" {
		return mr.ListenAddress
	}

	return config.GetListenAddress()
}

// runWait blocks until a stop signal arrives or one of the servers fails.
func (mr *RunCommand) runWait() {
	mr.log().Debugln("Waiting for stop signal")

	select {
	case mr.stopSignal = <-mr.stopSignals:
	case <-mr.groupCtx.Done():
		mr.log().Errorln("A server terminated, shutting down")
	}
}

// Stop implements service.Interface. The pools get shutdown_timeout to tear
// their instances down, a second signal aborts the wait.
func (mr *RunCommand) Stop(_ service.Service) error {
	mr.log().WithField("StopSignal", mr.stopSignal).Warningln("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), mr.getConfig().GetShutdownTimeout()+shutdownGrace)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var result *multierror.Error
		if err := mr.orchestrator.Stop(ctx); err != nil {
			result = multierror.Append(result, err)
		}

		mr.cancel()
		if err := mr.group.Wait(); err != nil {
			result = multierror.Append(result, err)
		}

		done <- result.ErrorOrNil()
	}()

	defer mr.sentryLogHook.Flush()

	select {
	case err := <-done:
		if err != nil {
			mr.log().WithError(err).Warningln("Shutdown not finished properly")
			return err
		}
		mr.log().Infoln("All pools stopped. Can exit now")
		return nil

	case sig := <-mr.stopSignals:
		return fmt.Errorf("forced exit: %v", sig)

	case <-ctx.Done():
		return errors.New("shutdown timed out")
	}
}

func (mr *RunCommand) Execute(_ *cli.Context) {
	svcConfig := &service.Config{
		Name:        mr.ServiceName,
		DisplayName: mr.ServiceName,
		Description: defaultDescription,
		Arguments:   []string{"run"},
		Option: service.KeyValue{
			"RunWait": mr.runWait,
		},
	}

	svc, err := service_helpers.New(mr, svcConfig)
	if err != nil {
		logrus.WithError(err).
			Fatalln("Service creation failed")
	}

	if mr.Syslog {
		log.SetSystemLogger(logrus.StandardLogger(), svc)
	}

	logrus.AddHook(&mr.sentryLogHook)
	logrus.AddHook(&mr.prometheusLogHook)

	err = svc.Run()
	if err != nil {
		logrus.WithError(err).
			Fatal("Service run failed")
	}
}

func init() {
	common.RegisterCommand("run", "run the runner pool orchestrator", &RunCommand{
		ServiceName:       defaultServiceName,
		prometheusLogHook: prometheus_helper.NewLogHook(),
		configOptions: configOptions{
			configAccessCollector: newConfigAccessCollector(),
		},
	})
}
