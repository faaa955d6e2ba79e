package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"gitlab.com/gitlab-org/runner-pool/agent"
	"gitlab.com/gitlab-org/runner-pool/common"
	"gitlab.com/gitlab-org/runner-pool/metadata"
)

// AgentCommand runs inside the instance. It takes the job runner
// credential from the metadata handoff channel and executes one job.
type AgentCommand struct {
	agent.Config
}

func (c *AgentCommand) Execute(_ *cli.Context) {
	// the agent shares a small instance with the job it supervises
	memlimit.SetGoMemLimitWithEnv()

	clientConfig, err := metadata.ClientConfigFromEnv()
	if err != nil {
		logrus.WithError(err).Fatalln("Invalid metadata client configuration")
	}

	logger := logrus.WithField("component", "agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	a := agent.New(c.Config, metadata.NewClient(clientConfig, logger), clientConfig, logger)
	if err := a.Run(ctx); err != nil {
		logger.WithError(err).Fatalln("Agent failed")
	}

	logger.Infoln("Agent finished")
}

func init() {
	common.RegisterCommand("agent", "run inside an instance: fetch the runner credential and execute one job", &AgentCommand{})
}
