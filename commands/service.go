package commands

import (
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"gitlab.com/gitlab-org/runner-pool/common"
	service_helpers "gitlab.com/gitlab-org/runner-pool/helpers/service"
)

const (
	defaultServiceName = "runner-pool"
	defaultDescription = "Pool of single-use CI runners"
)

type NullService struct {
}

func (n *NullService) Start(s service.Service) error {
	return nil
}

func (n *NullService) Stop(s service.Service) error {
	return nil
}

func runServiceInstall(s service.Service, c *cli.Context) error {
	if configFile := c.String("config"); configFile != "" {
		// refuse to install a service that would fail on start
		config := common.NewConfig()
		if err := config.LoadConfig(configFile); err != nil {
			return err
		}
		if err := config.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configFile, err)
		}
	}

	return service.Control(s, "install")
}

func runServiceStatus(displayName string, s service.Service) {
	status, err := s.Status()

	description := ""
	switch status {
	case service.StatusRunning:
		description = "Service is running"
	case service.StatusStopped:
		description = "Service has stopped"
	default:
		description = "Service status unknown"
		if err != nil {
			description = err.Error()
		}
	}

	if status != service.StatusRunning {
		fmt.Fprintf(os.Stderr, "%s: %s\n", displayName, description)
		os.Exit(1)
	}

	fmt.Printf("%s: %s\n", displayName, description)
}

func GetServiceArguments(c *cli.Context) (arguments []string) {
	if wd := c.String("working-directory"); wd != "" {
		arguments = append(arguments, "--working-directory", wd)
	}

	if config := c.String("config"); config != "" {
		arguments = append(arguments, "--config", config)
	}

	if sn := c.String("service"); sn != "" {
		arguments = append(arguments, "--service", sn)
	}

	// syslogging doesn't make sense for systemd systems as those log straight to journald
	syslog := !c.IsSet("syslog") || c.Bool("syslog")
	if service.Platform() == "linux-systemd" && !c.IsSet("syslog") {
		syslog = false
	}

	if syslog {
		arguments = append(arguments, "--syslog")
	}

	return
}

func createServiceConfig(c *cli.Context) *service.Config {
	config := &service.Config{
		Name:        c.String("service"),
		DisplayName: c.String("service"),
		Description: defaultDescription,
		Arguments:   append([]string{"run"}, GetServiceArguments(c)...),
		UserName:    c.String("user"),
	}

	if service.Platform() == "linux-systemd" {
		config.Dependencies = []string{
			"After=syslog.target network-online.target",
			"Wants=network-online.target",
		}
		config.Option = service.KeyValue{
			"Restart": "always",
		}
	}

	return config
}

func RunServiceControl(c *cli.Context) {
	svcConfig := createServiceConfig(c)

	s, err := service_helpers.New(&NullService{}, svcConfig)
	if err != nil {
		logrus.Fatal(err)
	}

	switch c.Command.Name {
	case "install":
		err = runServiceInstall(s, c)
	case "status":
		runServiceStatus(svcConfig.DisplayName, s)
	default:
		err = service.Control(s, c.Command.Name)
	}

	if err != nil {
		logrus.Fatal(err)
	}
}

func GetFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "service, n",
			Value: defaultServiceName,
			Usage: "Specify service name to use",
		},
	}
}

func GetInstallFlags() []cli.Flag {
	workingDirectory, _ := os.Getwd()

	return append(
		GetFlags(),
		cli.StringFlag{
			Name:  "working-directory, d",
			Value: workingDirectory,
			Usage: "Specify custom root directory where all data are stored",
		},
		cli.StringFlag{
			Name:  "config, c",
			Value: GetDefaultConfigFile(),
			Usage: "Specify custom config file",
		},
		cli.BoolFlag{
			Name:  "syslog",
			Usage: "Setup system logging integration",
		},
		cli.StringFlag{
			Name:  "user, u",
			Value: "",
			Usage: "Specify user-name the service runs as",
		},
	)
}

func init() {
	flags := GetFlags()
	installFlags := GetInstallFlags()

	for _, command := range []cli.Command{
		{Name: "install", Usage: "install service", Flags: installFlags},
		{Name: "uninstall", Usage: "uninstall service", Flags: flags},
		{Name: "start", Usage: "start service", Flags: flags},
		{Name: "stop", Usage: "stop service", Flags: flags},
		{Name: "restart", Usage: "restart service", Flags: flags},
		{Name: "status", Usage: "get status of a service", Flags: flags},
	} {
		command.Action = RunServiceControl
		common.RegisterRawCommand(command)
	}
}
